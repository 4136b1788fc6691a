package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	ResetForTesting()
	t.Setenv("LCA_ISSUER", "https://auth.loomcast.live")

	cfg, err := NewConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Test singleton behavior
	cfg2, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, cfg, cfg2, "Expected NewConfig to return the same instance")
}

func TestLoadConfigFromFile(t *testing.T) {
	ResetForTesting()

	dir := t.TempDir()
	configContent := `environment: "production"
issuer: "https://auth.loomcast.live"
audience: "loomcast-edge"
token_ttl: "12h"
cors:
  allowed_origins:
    - "https://studio.loomcast.live"
    - "https://*.loomcast.live"
  tenant_origins:
    cust_123:
      - "https://studio.loomcast.live"
jwks:
  ttl: "10m"
store:
  type: "memory"
rate_limit:
  enabled: true
  limit: 60
  window: "30s"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(configContent), 0o600))
	t.Setenv("CONFIG_PATH", dir)

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "https://auth.loomcast.live", cfg.Issuer)
	assert.Equal(t, "loomcast-edge", cfg.Audience)
	assert.Equal(t, 12*time.Hour, cfg.TokenTTL)
	assert.Equal(t, []string{"https://studio.loomcast.live", "https://*.loomcast.live"}, cfg.PlatformOrigins())
	assert.Equal(t, []string{"https://studio.loomcast.live"}, cfg.TenantOriginsFor("cust_123"))
	assert.Nil(t, cfg.TenantOriginsFor("cust_unknown"))
	assert.Equal(t, 10*time.Minute, cfg.Jwks.TTL)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 60, cfg.RateLimit.Limit)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
}

func TestLoadConfigDefaults(t *testing.T) {
	ResetForTesting()
	t.Setenv("CONFIG_PATH", t.TempDir())
	t.Setenv("LCA_ISSUER", "https://auth.loomcast.live")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, ":8787", cfg.Listen)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 10*time.Minute, cfg.Jwks.TTL)
	assert.Equal(t, 5*time.Second, cfg.Jwks.Timeout)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing issuer",
			cfg:     Config{TokenTTL: time.Hour},
			wantErr: "issuer is required",
		},
		{
			name:    "non-positive token ttl",
			cfg:     Config{Issuer: "https://auth.loomcast.live"},
			wantErr: "token_ttl must be positive",
		},
		{
			name: "bad store type",
			cfg: Config{
				Issuer:   "https://auth.loomcast.live",
				TokenTTL: time.Hour,
				Store:    &Store{Type: "etcd"},
			},
			wantErr: "unsupported store type",
		},
		{
			name: "rate limit enabled without limit",
			cfg: Config{
				Issuer:    "https://auth.loomcast.live",
				TokenTTL:  time.Hour,
				RateLimit: &RateLimit{Enabled: true, Window: time.Minute},
			},
			wantErr: "rate_limit.limit must be positive",
		},
		{
			name: "valid",
			cfg: Config{
				Issuer:   "https://auth.loomcast.live",
				TokenTTL: time.Hour,
				Store:    &Store{Type: "memory"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvironmentOverride(t *testing.T) {
	ResetForTesting()
	t.Setenv("CONFIG_PATH", t.TempDir())
	t.Setenv("LCA_ISSUER", "https://auth.loomcast.live")
	t.Setenv("LCA_ENVIRONMENT", "production")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}
