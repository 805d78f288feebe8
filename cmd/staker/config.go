package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/fortiblox/x1-staker/pkg/bank"
	"github.com/fortiblox/x1-staker/pkg/logging"
	"github.com/fortiblox/x1-staker/pkg/metrics"
	"github.com/fortiblox/x1-staker/pkg/rpc"
	"github.com/fortiblox/x1-staker/pkg/types"
)

// Config is the TOML configuration of the ledger daemon.
type Config struct {
	Ledger  LedgerConfig  `toml:"ledger"`
	RPC     RPCConfig     `toml:"rpc"`
	Metrics MetricsConfig `toml:"metrics"`
	Log     LogConfig     `toml:"log"`
}

// LedgerConfig holds bank and storage settings.
type LedgerConfig struct {
	// DataDir holds the badger store. Empty keeps accounts in memory.
	DataDir           string        `toml:"data_dir"`
	BlockhashInterval time.Duration `toml:"blockhash_interval"`
	BlockhashWindow   int           `toml:"blockhash_window"`
	ComputeUnits      uint64        `toml:"compute_units"`
	AirdropEnabled    bool          `toml:"airdrop_enabled"`
	MaxAirdrop        uint64        `toml:"max_airdrop"`
}

// RPCConfig holds JSON-RPC server settings.
type RPCConfig struct {
	Listen         string   `toml:"listen"`
	AllowedOrigins []string `toml:"allowed_origins"`
	RateLimitRPS   float64  `toml:"rate_limit_rps"`
	RateLimitBurst int      `toml:"rate_limit_burst"`
	MaxRequestSize int64    `toml:"max_request_size"`
	TrustProxy     bool     `toml:"trust_proxy"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func defaultConfig() *Config {
	rpcDefaults := rpc.DefaultServerConfig()
	return &Config{
		Ledger: LedgerConfig{
			DataDir:           "",
			BlockhashInterval: 400 * time.Millisecond,
			BlockhashWindow:   bank.DefaultBlockhashWindow,
			ComputeUnits:      uint64(types.DefaultComputeUnitsPerTransaction),
			AirdropEnabled:    true,
			MaxAirdrop:        bank.DefaultMaxAirdrop,
		},
		RPC: RPCConfig{
			Listen:         rpcDefaults.Address,
			AllowedOrigins: rpcDefaults.AllowedOrigins,
			RateLimitRPS:   0,
			RateLimitBurst: rpcDefaults.RateLimitBurst,
			MaxRequestSize: rpcDefaults.MaxRequestSize,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  metrics.DefaultMetricsAddr,
		},
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatAuto,
		},
	}
}

// loadConfig reads path over the defaults. A missing file yields the
// defaults; unknown keys are an error.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Ledger.BlockhashWindow < 1 {
		return fmt.Errorf("ledger.blockhash_window must be positive")
	}
	if c.Ledger.BlockhashInterval <= 0 {
		return fmt.Errorf("ledger.blockhash_interval must be positive")
	}
	if c.Ledger.ComputeUnits == 0 {
		return fmt.Errorf("ledger.compute_units must be positive")
	}
	if c.RPC.RateLimitRPS < 0 {
		return fmt.Errorf("rpc.rate_limit_rps must not be negative")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

func writeConfig(path string, cfg *Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// loadEnvFiles loads .env.local then .env; values already in the
// environment win.
func loadEnvFiles(logger *slog.Logger) {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err == nil {
			logger.Debug("loaded env file", "file", name)
		}
	}
}

func (c *Config) serverConfig(logger *slog.Logger) *rpc.ServerConfig {
	sc := rpc.DefaultServerConfig()
	sc.Address = c.RPC.Listen
	sc.AllowedOrigins = c.RPC.AllowedOrigins
	sc.MaxRequestSize = c.RPC.MaxRequestSize
	sc.EnableRateLimit = c.RPC.RateLimitRPS > 0
	sc.RateLimitRPS = c.RPC.RateLimitRPS
	sc.RateLimitBurst = c.RPC.RateLimitBurst
	sc.TrustProxy = c.RPC.TrustProxy
	sc.Logger = logger
	return sc
}
