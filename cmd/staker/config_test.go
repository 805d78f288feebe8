package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "staker.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[ledger]
data_dir = "/var/lib/staker"
blockhash_interval = "1s"
airdrop_enabled = false

[rpc]
listen = "127.0.0.1:9000"
rate_limit_rps = 50.0
trust_proxy = true

[log]
level = "debug"
`), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/staker", cfg.Ledger.DataDir)
	assert.Equal(t, time.Second, cfg.Ledger.BlockhashInterval)
	assert.False(t, cfg.Ledger.AirdropEnabled)
	assert.Equal(t, defaultConfig().Ledger.MaxAirdrop, cfg.Ledger.MaxAirdrop)

	sc := cfg.serverConfig(slog.Default())
	assert.Equal(t, "127.0.0.1:9000", sc.Address)
	assert.True(t, sc.EnableRateLimit)
	assert.Equal(t, 50.0, sc.RateLimitRPS)
	assert.True(t, sc.TrustProxy)
	assert.False(t, defaultConfig().serverConfig(slog.Default()).TrustProxy)
}

func TestLoadConfig_Rejects(t *testing.T) {
	for name, body := range map[string]string{
		"unknown key":   "[ledger]\nair_drop = true\n",
		"bad level":     "[log]\nlevel = \"loud\"\n",
		"zero window":   "[ledger]\nblockhash_window = 0\n",
		"zero interval": "[ledger]\nblockhash_interval = \"0s\"\n",
		"syntax":        "[ledger\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "staker.toml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := loadConfig(path)
			require.Error(t, err)
		})
	}
}

func TestWriteConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "staker.toml")
	cfg := defaultConfig()
	cfg.Metrics.Enabled = true
	require.NoError(t, writeConfig(path, cfg, false))

	loaded, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	err = writeConfig(path, cfg, false)
	require.ErrorContains(t, err, "already exists")
	require.NoError(t, writeConfig(path, cfg, true))
}

func TestSimulate(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, simulate(context.Background(), &buf, logger, 1_000_000_000))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, []string{"registered", "0", "0", "0", "0"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"credited", "1000000000", "0", "0", "0"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"staked", "0", "1000000000", "1000000000", "1000000000"}, strings.Fields(lines[3]))
	assert.Equal(t, []string{"unstaked", "1000000000", "0", "0", "0"}, strings.Fields(lines[4]))
}
