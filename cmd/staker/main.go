// Command staker runs the staking ledger and drives it from the command
// line.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/fortiblox/x1-staker/pkg/client"
	"github.com/fortiblox/x1-staker/pkg/crypto"
	"github.com/fortiblox/x1-staker/pkg/logging"
	"github.com/fortiblox/x1-staker/pkg/rpc"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "0.1.0"

type app struct {
	logger   *slog.Logger
	logLevel *slog.LevelVar
	config   *Config
	cmd      *cli.Command
}

func main() {
	a := newApp()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.cmd.Run(ctx, os.Args); err != nil {
		a.logger.Error("staker failed", "error", err)
		os.Exit(1)
	}
}

func defaultKeypairPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "id.json"
	}
	return filepath.Join(home, ".config", "staker", "id.json")
}

func newApp() *app {
	level := new(slog.LevelVar)
	a := &app{logLevel: level}
	a.logger, _ = logging.New(os.Stderr, level, logging.FormatAuto)
	if os.Getenv("DEBUG") == "1" {
		level.Set(slog.LevelDebug)
	}
	slog.SetDefault(a.logger)
	loadEnvFiles(a.logger)

	a.cmd = &cli.Command{
		Name:    "staker",
		Usage:   "Staking ledger daemon and client",
		Version: versionInfo(),
		Before:  a.before,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "TOML config file",
				Value:   "staker.toml",
				Sources: cli.EnvVars("STAKER_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "rpc",
				Aliases: []string{"u"},
				Usage:   "JSON-RPC endpoint of the ledger",
				Value:   "http://127.0.0.1:8899",
				Sources: cli.EnvVars("STAKER_RPC"),
			},
			&cli.StringFlag{
				Name:    "keypair",
				Aliases: []string{"k"},
				Usage:   "keypair file of the fee payer and signer",
				Value:   defaultKeypairPath(),
				Sources: cli.EnvVars("STAKER_KEYPAIR"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error (overrides config)",
				Sources: cli.EnvVars("STAKER_LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "auto, minimal or json (overrides config)",
				Sources: cli.EnvVars("STAKER_LOG_FORMAT"),
			},
		},
		Commands: []*cli.Command{
			a.keygenCmd(),
			a.addressCmd(),
			a.airdropCmd(),
			a.createMintCmd(),
			a.mintToCmd(),
			a.poolCmd(),
			a.registerCmd(),
			a.stakeCmd(),
			a.unstakeCmd(),
			a.balanceCmd(),
			a.serveCmd(),
			a.stateHashCmd(),
			a.simulateCmd(),
			a.configCmd(),
		},
	}
	return a
}

// before loads the config and applies the logging settings, flags taking
// precedence over the file.
func (a *app) before(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	a.config = cfg

	levelName := cfg.Log.Level
	if cmd.IsSet("log-level") {
		levelName = cmd.String("log-level")
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return err
	}
	if os.Getenv("DEBUG") != "1" {
		a.logLevel.Set(level)
	}

	format := cfg.Log.Format
	if cmd.IsSet("log-format") {
		format = cmd.String("log-format")
	}
	logger, err := logging.New(os.Stderr, a.logLevel, format)
	if err != nil {
		return err
	}
	a.logger = logger
	slog.SetDefault(logger)
	return nil
}

func (a *app) keypair(cmd *cli.Command) (*crypto.Keypair, error) {
	return crypto.LoadKeypair(cmd.String("keypair"))
}

func (a *app) rpcClient(cmd *cli.Command) *rpc.Client {
	return rpc.NewClient(cmd.String("rpc"), rpc.WithClientLogger(a.logger))
}

// client returns a staker client over RPC paid for by the --keypair signer.
func (a *app) client(cmd *cli.Command) (*client.Client, *rpc.Client, error) {
	kp, err := a.keypair(cmd)
	if err != nil {
		return nil, nil, err
	}
	rc := a.rpcClient(cmd)
	return client.New(rc, kp, a.logger), rc, nil
}

func versionInfo() string {
	rev := "unknown"
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && len(s.Value) >= 7 {
				rev = s.Value[:7]
			}
		}
	}
	return fmt.Sprintf("%s (%s)", Version, rev)
}
