package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LICENSE_BUNDLE_PASSWORD", "1111")

	cfg, warnings, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":80", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 1000, cfg.Cache.MaxEntries)
	assert.Equal(t, 100000, cfg.Bundle.KDFIterations)
	assert.Equal(t, 5*time.Second, cfg.License.StoreTimeout)
	assert.Equal(t, 3*24*time.Hour, cfg.TrialDuration())
	assert.Len(t, cfg.Auth.JWTSecret, 64)
	assert.Len(t, warnings, 2)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LICENSE_BUNDLE_PASSWORD", "secret")
	t.Setenv("LICENSE_CACHE_TTL", "1h")
	t.Setenv("LICENSE_CACHE_MAX_ENTRIES", "50")
	t.Setenv("LICENSE_DATABASE_DRIVER", "postgres")
	t.Setenv("LICENSE_DATABASE_DSN", "host=db user=license dbname=license")
	t.Setenv("LICENSE_AUTH_JWT_SECRET", "jwt")
	t.Setenv("LICENSE_AUTH_ADMIN_PASSWORD", "strong")
	t.Setenv("LICENSE_REDIS_ADDR", "redis:6379")

	cfg, warnings, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 50, cfg.Cache.MaxEntries)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "jwt", cfg.Auth.JWTSecret)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Empty(t, warnings)
}

func TestLoadRequiresBundlePassword(t *testing.T) {
	t.Setenv("LICENSE_BUNDLE_PASSWORD", "")

	_, _, err := Load()
	assert.ErrorContains(t, err, "bundle password is required")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Driver: "sqlite"},
			Cache:    CacheConfig{TTL: time.Hour, MaxEntries: 10},
			License:  LicenseConfig{StoreTimeout: time.Second, TrialDays: 3},
			Bundle:   BundleConfig{Password: "1111", KDFIterations: 100000},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "zero_iterations", mutate: func(c *Config) { c.Bundle.KDFIterations = 0 }, wantErr: "kdf iterations"},
		{name: "zero_ttl", mutate: func(c *Config) { c.Cache.TTL = 0 }, wantErr: "cache ttl"},
		{name: "zero_entries", mutate: func(c *Config) { c.Cache.MaxEntries = 0 }, wantErr: "max entries"},
		{name: "zero_timeout", mutate: func(c *Config) { c.License.StoreTimeout = 0 }, wantErr: "store timeout"},
		{name: "negative_trial", mutate: func(c *Config) { c.License.TrialDays = -1 }, wantErr: "trial days"},
		{name: "bad_driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: "unsupported database driver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
