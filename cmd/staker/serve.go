package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/fortiblox/x1-staker/pkg/accounts"
	"github.com/fortiblox/x1-staker/pkg/bank"
	"github.com/fortiblox/x1-staker/pkg/metrics"
	"github.com/fortiblox/x1-staker/pkg/rpc"
)

func openStore(dataDir string) (accounts.AccountsDB, error) {
	if dataDir == "" {
		return accounts.NewMemoryDB(), nil
	}
	db, err := accounts.NewBadgerDB(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open accounts store %s: %w", dataDir, err)
	}
	return db, nil
}

func (a *app) serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the ledger with its JSON-RPC and metrics servers",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "data-dir", Usage: "badger directory (overrides ledger.data_dir)", Sources: cli.EnvVars("STAKER_DATA_DIR")},
			&cli.StringFlag{Name: "listen", Usage: "RPC listen address (overrides rpc.listen)", Sources: cli.EnvVars("STAKER_LISTEN")},
			&cli.BoolFlag{Name: "metrics", Usage: "enable the metrics server (overrides metrics.enabled)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := a.config
			if cmd.IsSet("data-dir") {
				cfg.Ledger.DataDir = cmd.String("data-dir")
			}
			if cmd.IsSet("listen") {
				cfg.RPC.Listen = cmd.String("listen")
			}
			if cmd.IsSet("metrics") {
				cfg.Metrics.Enabled = cmd.Bool("metrics")
			}
			return a.serve(ctx, cfg)
		},
	}
}

func (a *app) serve(ctx context.Context, cfg *Config) error {
	db, err := openStore(cfg.Ledger.DataDir)
	if err != nil {
		return err
	}

	opts := []bank.Option{
		bank.WithLogger(a.logger),
		bank.WithComputeUnits(cfg.Ledger.ComputeUnits),
		bank.WithBlockhashWindow(cfg.Ledger.BlockhashWindow),
	}
	if cfg.Ledger.AirdropEnabled {
		opts = append(opts, bank.WithAirdrops(cfg.Ledger.MaxAirdrop))
	}
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		opts = append(opts, bank.WithObserver(m))
	}
	b := bank.New(db, opts...)
	defer func() {
		if err := b.Close(); err != nil {
			a.logger.Error("close accounts store", "error", err)
		}
	}()

	a.logger.Info("ledger started",
		"data_dir", cfg.Ledger.DataDir,
		"accounts", b.AccountsCount(),
		"blockhash_interval", cfg.Ledger.BlockhashInterval,
		"airdrops", cfg.Ledger.AirdropEnabled)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b.RunBlockhashTicker(ctx, cfg.Ledger.BlockhashInterval)
		return nil
	})

	rpc.Version = Version
	server := rpc.NewServer(cfg.serverConfig(a.logger), b)
	g.Go(func() error {
		return server.Start(ctx)
	})

	if m != nil {
		health := metrics.NewHealthChecker(b, metrics.WithBlockhashFreshness(10*cfg.Ledger.BlockhashInterval))
		collector := metrics.NewLedgerCollector(m, b, 15*time.Second, a.logger)
		ms := metrics.NewServer(m,
			metrics.WithAddr(cfg.Metrics.Listen),
			metrics.WithHealthChecker(health),
			metrics.WithLogger(a.logger))
		if err := ms.Start(); err != nil {
			return err
		}
		health.Start(ctx)
		collector.Start(ctx)
		g.Go(func() error {
			<-ctx.Done()
			health.Stop()
			collector.Stop()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return ms.Stop(shutdownCtx)
		})
	}

	err = g.Wait()
	a.logger.Info("ledger stopped", "slot", b.Slot())
	return err
}

func (a *app) stateHashCmd() *cli.Command {
	return &cli.Command{
		Name:  "state-hash",
		Usage: "Print the hash of all ledger accounts",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "data-dir", Usage: "hash a stopped ledger's badger directory instead of asking --rpc"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			dir := cmd.String("data-dir")
			if dir == "" {
				res, err := a.rpcClient(cmd).GetStateHash(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out(cmd), "%s (slot %d, %d accounts)\n", res.Hash, res.Slot, res.Accounts)
				return nil
			}

			db, err := accounts.NewBadgerDB(dir)
			if err != nil {
				return err
			}
			defer db.Close()
			h, err := accounts.ComputeStateHash(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "%s (%d accounts)\n", h, db.GetAccountsCount())
			return nil
		},
	}
}
