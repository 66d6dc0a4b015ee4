// Package db embeds the storefront schema and its demo seed data.
package db

import _ "embed"

// Schema contains the DDL statements for all storefront tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// SeedProducts is the demo catalog loaded by seed-db when no file is given.
//
//go:embed seed/products.json
var SeedProducts []byte

// SeedCoupons is the launch coupon set loaded by seed-db.
//
//go:embed seed/coupons.json
var SeedCoupons []byte
