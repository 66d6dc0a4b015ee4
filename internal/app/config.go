package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds the complete application configuration, loadable from
// environment variables (STORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr            string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL     string        `usage:"PostgreSQL connection URL (STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	DBMaxConns      int32         `default:"10" usage:"Maximum PostgreSQL connections" flag:"db-max-conns"`
	ImageBaseURL    string        `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	APIKeyPepper    string        `usage:"HMAC pepper for API key hashing (STORE_API_KEY_PEPPER)" flag:"api-key-pepper"`
	JWTSecret       string        `usage:"HS256 secret for session tokens (STORE_JWT_SECRET)" flag:"jwt-secret"`
	TokenTTL        time.Duration `default:"12h" usage:"Session token lifetime" flag:"token-ttl"`
	PromptPayTarget string        `usage:"PromptPay phone number or national ID receiving payments" flag:"promptpay-target"`
	TaxRate         string        `default:"7" usage:"Tax rate in percent used until one is stored" flag:"tax-rate"`
	Timezone        string        `default:"UTC" usage:"IANA time zone for revenue reports"`
	Checkout        CheckoutConfig
	Coupons         CouponsConfig
	Redis           RedisConfig
	Kafka           KafkaConfig
	RateLimit       RateLimitConfig
	CORS            CORSConfig
	Graceful        GracefulConfig
}

// CheckoutConfig tunes the checkout sessions.
type CheckoutConfig struct {
	VerifyDelay   time.Duration `default:"3s" usage:"Simulated payment verification latency" flag:"verify-delay"`
	SessionTTL    time.Duration `default:"2h" usage:"Idle time before a checkout session is dropped" flag:"session-ttl"`
	EvictInterval time.Duration `default:"1m" usage:"How often idle checkout sessions are dropped, 0 disables eviction" flag:"session-evict-interval"`
}

// CouponsConfig tunes the coupon code filter.
type CouponsConfig struct {
	ReloadInterval time.Duration `default:"1m" usage:"How often coupon codes are reloaded, 0 disables reloads" flag:"coupon-reload-interval"`
}

// RedisConfig enables the product cache when Addr is set.
type RedisConfig struct {
	Addr     string        `default:"" usage:"Redis address for the product cache, empty disables it" flag:"redis-addr"`
	Password string        `default:"" usage:"Redis password" flag:"redis-password"`
	DB       int           `default:"0" usage:"Redis database number" flag:"redis-db"`
	TTL      time.Duration `default:"5m" usage:"Product cache entry lifetime" flag:"redis-ttl"`
}

// KafkaConfig enables order event publishing when Brokers is set.
type KafkaConfig struct {
	Brokers []string `default:"" usage:"Kafka bootstrap brokers, empty disables events" flag:"kafka-brokers"`
	Topic   string   `default:"storefront.orders" usage:"Kafka topic for order events" flag:"kafka-topic"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from a local .env file, environment
// variables and YAML config files, then applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STORE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.Redis.Addr == "" {
		if v := os.Getenv("REDIS_ADDR"); v != "" {
			c.Redis.Addr = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
	c.Kafka.Brokers = compact(c.Kafka.Brokers)
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set STORE_DATABASE_URL or DATABASE_URL")
	case len(c.JWTSecret) < 32:
		return errors.New("jwt secret must be at least 32 bytes: set STORE_JWT_SECRET")
	case c.APIKeyPepper == "":
		return errors.New("api key pepper is required: set STORE_API_KEY_PEPPER")
	}
	if _, err := c.DefaultTaxRate(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// DefaultTaxRate parses TaxRate.
func (c *Config) DefaultTaxRate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.TaxRate))
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse tax rate %q", c.TaxRate)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, errors.Errorf("tax rate %s must be between 0 and 100", rate)
	}
	return rate, nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "load timezone %q", c.Timezone)
	}
	return loc, nil
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
