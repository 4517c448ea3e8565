package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{Storage: StoragePostgres, DatabaseURL: "postgres://localhost/kart", APIKeyPepper: "pepper"}
	}

	for _, tt := range []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"OK", func(*Config) {}, ""},
		{"Memory", func(c *Config) { c.Storage = StorageMemory; c.DatabaseURL = "" }, ""},
		{"MissingDatabase", func(c *Config) { c.DatabaseURL = "" }, "database URL"},
		{"UnknownStorage", func(c *Config) { c.Storage = "sqlite" }, "unknown storage"},
		{"MissingPepper", func(c *Config) { c.APIKeyPepper = "" }, "pepper"},
		{"HalfGateway", func(c *Config) { c.Gateway.KeyID = "rzp_test" }, "razorpay"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db/kart")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")
	t.Setenv("PORT", "9090")

	c := Config{Addr: "0.0.0.0:8080"}
	c.applyPlatformDefaults()
	assert.Equal(t, "postgres://db/kart", c.DatabaseURL)
	assert.Equal(t, "redis://cache:6379/0", c.RedisURL)
	assert.Equal(t, "0.0.0.0:9090", c.Addr)
}
