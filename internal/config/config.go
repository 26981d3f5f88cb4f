package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/dojo-shop/internal/shipping"
	"gopkg.in/yaml.v3"
)

const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MigrationsPath  string        `yaml:"migrations_path"`
}

type CartConfig struct {
	Storage   string        `yaml:"storage"`
	FilePath  string        `yaml:"file_path"`
	KeyPrefix string        `yaml:"key_prefix"`
	IdleTTL   time.Duration `yaml:"idle_ttl"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ShippingConfig struct {
	Cost                  string `yaml:"cost"`
	FreeShippingThreshold string `yaml:"free_shipping_threshold"`
}

type PaymentConfig struct {
	CheckoutURL string `yaml:"checkout_url"`
	TenantID    string `yaml:"tenant_id"`
	RedirectURL string `yaml:"redirect_url"`
}

type Config struct {
	App struct {
		Name string `yaml:"name"`
		Port string `yaml:"port"`
	} `yaml:"app"`
	Postgres PostgresConfig `yaml:"postgres"`
	Cart     CartConfig     `yaml:"cart"`
	Redis    RedisConfig    `yaml:"redis"`
	Shipping ShippingConfig `yaml:"shipping"`
	Payment  PaymentConfig  `yaml:"payment"`
}

// NewConfig reads an optional .env file, then the YAML file named by
// CONFIG_PATH if set, then lets environment variables override both.
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := defaults()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ShippingRules converts the configured amounts. Empty values mean zero.
func (c *Config) ShippingRules() (shipping.Config, error) {
	cost, err := parseAmount("shipping cost", c.Shipping.Cost)
	if err != nil {
		return shipping.Config{}, err
	}
	threshold, err := parseAmount("free shipping threshold", c.Shipping.FreeShippingThreshold)
	if err != nil {
		return shipping.Config{}, err
	}
	return shipping.Config{ShippingCost: cost, FreeShippingThreshold: threshold}, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.App.Name = "shop-service"
	cfg.App.Port = "8080"
	cfg.Postgres.SSLMode = "disable"
	cfg.Postgres.MaxConns = 10
	cfg.Postgres.MinConns = 1
	cfg.Postgres.MaxConnLifetime = time.Hour
	cfg.Cart.Storage = StoragePostgres
	cfg.Cart.FilePath = "data/carts.json"
	cfg.Cart.KeyPrefix = "shop_cart"
	cfg.Cart.IdleTTL = 30 * time.Minute
	cfg.Redis.Addr = "localhost:6379"
	return cfg
}

func loadFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.App.Port, "APP_PORT")
	setString(&cfg.Postgres.Host, "DB_HOST")
	setString(&cfg.Postgres.Port, "DB_PORT")
	setString(&cfg.Postgres.User, "DB_USER")
	setString(&cfg.Postgres.Password, "DB_PASSWORD")
	setString(&cfg.Postgres.DBName, "DB_NAME")
	setString(&cfg.Postgres.SSLMode, "DB_SSLMODE")
	setString(&cfg.Postgres.MigrationsPath, "DB_MIGRATIONS_PATH")
	setString(&cfg.Cart.Storage, "CART_STORAGE")
	setString(&cfg.Cart.FilePath, "CART_STORAGE_FILE")
	setString(&cfg.Cart.KeyPrefix, "CART_KEY_PREFIX")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.Shipping.Cost, "SHIPPING_COST")
	setString(&cfg.Shipping.FreeShippingThreshold, "FREE_SHIPPING_THRESHOLD")
	setString(&cfg.Payment.CheckoutURL, "PAYMENT_CHECKOUT_URL")
	setString(&cfg.Payment.TenantID, "TENANT_ID")
	setString(&cfg.Payment.RedirectURL, "CHECKOUT_REDIRECT_URL")

	if v := os.Getenv("DB_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid DB_MAX_CONNS %q: %w", v, err)
		}
		cfg.Postgres.MaxConns = int32(n)
	}
	if v := os.Getenv("CART_IDLE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid CART_IDLE_TTL %q: %w", v, err)
		}
		cfg.Cart.IdleTTL = d
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid REDIS_DB %q: %w", v, err)
		}
		cfg.Redis.DB = n
	}
	return nil
}

func (c *Config) validate() error {
	required := map[string]string{
		"DB_HOST":              c.Postgres.Host,
		"DB_PORT":              c.Postgres.Port,
		"DB_USER":              c.Postgres.User,
		"DB_NAME":              c.Postgres.DBName,
		"PAYMENT_CHECKOUT_URL": c.Payment.CheckoutURL,
		"TENANT_ID":            c.Payment.TenantID,
	}
	for _, key := range []string{"DB_HOST", "DB_PORT", "DB_USER", "DB_NAME", "PAYMENT_CHECKOUT_URL", "TENANT_ID"} {
		if required[key] == "" {
			return fmt.Errorf("%s is required", key)
		}
	}

	switch c.Cart.Storage {
	case StorageMemory, StorageFile, StorageRedis, StoragePostgres:
	default:
		return fmt.Errorf("unknown CART_STORAGE %q", c.Cart.Storage)
	}

	if c.Cart.IdleTTL < 0 {
		return fmt.Errorf("CART_IDLE_TTL must not be negative, got %s", c.Cart.IdleTTL)
	}

	if _, err := c.ShippingRules(); err != nil {
		return err
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func parseAmount(name, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative, got %s", name, value)
	}
	return amount, nil
}
