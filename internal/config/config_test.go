package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.ListenAddr)
	assert.Equal(t, "test-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "@every 1m", cfg.Sweeper.Schedule)
	assert.True(t, cfg.Sweeper.Enabled)
	assert.Empty(t, cfg.Store.DatabaseURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("HTTP_LISTEN_ADDR", ":9000")
	t.Setenv("DATABASE_URL", "postgres://localhost/lotto")
	t.Setenv("SWEEP_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTP.ListenAddr)
	assert.Equal(t, "postgres://localhost/lotto", cfg.Store.DatabaseURL)
	assert.False(t, cfg.Sweeper.Enabled)
}

func TestLoadGenesis(t *testing.T) {
	t.Run("parses a complete file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "genesis.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
manager: addr-manager
oracle_address: addr-oracle
community_pool: addr-pool
protocol_commission_percent: 5
creator_commission_percent: 15
`), 0o600))

		g, err := LoadGenesis(path)
		require.NoError(t, err)
		assert.Equal(t, "addr-manager", g.Manager)
		assert.Equal(t, 5, g.ProtocolCommissionPercent)
	})

	t.Run("rejects missing addresses", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "genesis.yaml")
		require.NoError(t, os.WriteFile(path, []byte("manager: addr-manager\n"), 0o600))

		_, err := LoadGenesis(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadGenesis(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}
