package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
)

// defaults apply to lines that carry only a code.
type defaults struct {
	typ    coupon.Type
	value  decimal.Decimal
	active bool
}

// parseLine parses "CODE" or "CODE,TYPE,VALUE[,ACTIVE]". Blank lines and
// lines starting with '#' yield ok=false.
func parseLine(line string, def defaults) (c coupon.Coupon, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return c, false, nil
	}

	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	c = coupon.Coupon{Code: fields[0], Type: def.typ, Value: def.value, Active: def.active}
	switch len(fields) {
	case 1:
	case 3, 4:
		c.Type = coupon.Type(strings.ToLower(fields[1]))
		if c.Value, err = decimal.NewFromString(fields[2]); err != nil {
			return c, false, errors.Wrapf(err, "value %q", fields[2])
		}
		if len(fields) == 4 {
			if c.Active, err = strconv.ParseBool(fields[3]); err != nil {
				return c, false, errors.Wrapf(err, "active %q", fields[3])
			}
		}
	default:
		return c, false, errors.Errorf("expected 1, 3 or 4 fields, got %d", len(fields))
	}

	if err := c.Validate(); err != nil {
		return c, false, err
	}
	return c, true, nil
}

// fileResult is the outcome of parsing one input file.
type fileResult struct {
	coupons []coupon.Coupon
	invalid int
}

// parseFile reads coupons from path, decompressing .gz files.
func parseFile(ctx context.Context, path string, def defaults, onInvalid func(line int, err error)) (fileResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return fileResult{}, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return fileResult{}, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	return parse(ctx, r, def, onInvalid)
}

func parse(ctx context.Context, r io.Reader, def defaults, onInvalid func(line int, err error)) (fileResult, error) {
	var (
		res     fileResult
		lineNum int
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		lineNum++

		c, ok, err := parseLine(scanner.Text(), def)
		if err != nil {
			res.invalid++
			if onInvalid != nil {
				onInvalid(lineNum, err)
			}
			continue
		}
		if ok {
			res.coupons = append(res.coupons, c)
		}
	}
	if err := scanner.Err(); err != nil {
		return res, errors.Wrap(err, "scan")
	}
	return res, nil
}
