package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix 环境变量前缀，例如 LICENSE_BUNDLE_PASSWORD
const EnvPrefix = "LICENSE"

type Config struct {
	Server    ServerConfig    `envconfig:"SERVER"`
	Database  DatabaseConfig  `envconfig:"DATABASE"`
	Cache     CacheConfig     `envconfig:"CACHE"`
	License   LicenseConfig   `envconfig:"VERIFY"`
	Bundle    BundleConfig    `envconfig:"BUNDLE"`
	Auth      AuthConfig      `envconfig:"AUTH"`
	Redis     RedisConfig     `envconfig:"REDIS"`
	Sheets    SheetsConfig    `envconfig:"SHEETS"`
	Log       LogConfig       `envconfig:"LOG"`
	RateLimit RateLimitConfig `envconfig:"RATE_LIMIT"`
}

type ServerConfig struct {
	Addr         string        `envconfig:"ADDR" default:":80"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
}

type DatabaseConfig struct {
	Driver       string `envconfig:"DRIVER" default:"sqlite"`
	DSN          string `envconfig:"DSN" default:"data/license.db"`
	MaxOpenConns int    `envconfig:"MAX_OPEN_CONNS" default:"25"`
}

type CacheConfig struct {
	TTL        time.Duration `envconfig:"TTL" default:"24h"`
	MaxEntries int           `envconfig:"MAX_ENTRIES" default:"1000"`
}

type LicenseConfig struct {
	TrialDays       int           `envconfig:"TRIAL_DAYS" default:"3"`
	StoreTimeout    time.Duration `envconfig:"STORE_TIMEOUT" default:"5s"`
	BreakerFailures uint32        `envconfig:"BREAKER_FAILURES" default:"5"`
	BreakerCooldown time.Duration `envconfig:"BREAKER_COOLDOWN" default:"30s"`
}

type BundleConfig struct {
	Password      string `envconfig:"PASSWORD"`
	KDFIterations int    `envconfig:"KDF_ITERATIONS" default:"100000"`
	PlansFile     string `envconfig:"PLANS_FILE" default:"config/plans.yaml"`
	ScriptsDir    string `envconfig:"SCRIPTS_DIR" default:"scripts"`
}

type AuthConfig struct {
	JWTSecret     string        `envconfig:"JWT_SECRET"`
	TokenTTL      time.Duration `envconfig:"TOKEN_TTL" default:"72h"`
	AdminPassword string        `envconfig:"ADMIN_PASSWORD" default:"admin"`
}

type RedisConfig struct {
	Addr        string `envconfig:"ADDR"`
	Password    string `envconfig:"PASSWORD"`
	AuditKey    string `envconfig:"AUDIT_KEY" default:"license:audit"`
	AuditMaxLen int64  `envconfig:"AUDIT_MAX_LEN" default:"10000"`
}

type SheetsConfig struct {
	Enabled        bool   `envconfig:"ENABLED" default:"false"`
	CredentialPath string `envconfig:"CREDENTIAL_PATH"`
	SpreadsheetID  string `envconfig:"SPREADSHEET_ID"`
	SheetName      string `envconfig:"SHEET_NAME" default:"Devices"`
}

type LogConfig struct {
	Level       string `envconfig:"LEVEL" default:"info"`
	Development bool   `envconfig:"DEVELOPMENT" default:"false"`
}

type RateLimitConfig struct {
	RPS   float64 `envconfig:"RPS" default:"5"`
	Burst int     `envconfig:"BURST" default:"10"`
}

// Warnings 加载配置时产生的提示，由调用方写入日志
type Warnings []string

// Load 从环境变量加载配置
func Load() (*Config, Warnings, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	var warnings Warnings
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = generateSecret(32)
		warnings = append(warnings, "LICENSE_AUTH_JWT_SECRET not set - generated random secret, sessions will not survive restarts")
	}
	if cfg.Auth.AdminPassword == "admin" {
		warnings = append(warnings, "LICENSE_AUTH_ADMIN_PASSWORD uses the default value")
	}

	if err := cfg.Validate(); err != nil {
		return nil, warnings, err
	}
	return &cfg, warnings, nil
}

// Validate 检查必填项和取值范围
func (c *Config) Validate() error {
	var errs []error
	if c.Bundle.Password == "" {
		errs = append(errs, errors.New("bundle password is required (LICENSE_BUNDLE_PASSWORD)"))
	}
	if c.Bundle.KDFIterations < 1 {
		errs = append(errs, fmt.Errorf("bundle kdf iterations must be positive, got %d", c.Bundle.KDFIterations))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache ttl must be positive, got %s", c.Cache.TTL))
	}
	if c.Cache.MaxEntries < 1 {
		errs = append(errs, fmt.Errorf("cache max entries must be positive, got %d", c.Cache.MaxEntries))
	}
	if c.License.StoreTimeout <= 0 {
		errs = append(errs, fmt.Errorf("store timeout must be positive, got %s", c.License.StoreTimeout))
	}
	if c.License.TrialDays < 0 {
		errs = append(errs, fmt.Errorf("trial days must not be negative, got %d", c.License.TrialDays))
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
	}
	return errors.Join(errs...)
}

// TrialDuration 试用期时长
func (c *Config) TrialDuration() time.Duration {
	return time.Duration(c.License.TrialDays) * 24 * time.Hour
}

func generateSecret(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(b)
}
