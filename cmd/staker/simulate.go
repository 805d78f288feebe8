package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/fortiblox/x1-staker/pkg/accounts"
	"github.com/fortiblox/x1-staker/pkg/bank"
	"github.com/fortiblox/x1-staker/pkg/client"
	"github.com/fortiblox/x1-staker/pkg/crypto"
	"github.com/fortiblox/x1-staker/pkg/svm/programs/staker"
)

const simulateFunding = 10 * 1_000_000_000

func (a *app) simulateCmd() *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "Run a stake and unstake round trip on an in-memory ledger",
		Flags: []cli.Flag{
			&cli.UintFlag{Name: "amount", Aliases: []string{"a"}, Value: 1_000_000_000, Usage: "units credited, staked and unstaked"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return simulate(ctx, out(cmd), a.logger, cmd.Uint("amount"))
		},
	}
}

type simulation struct {
	admin   *client.Client
	user    *client.Client
	pool    *staker.PoolAddresses
	holding *staker.UserAccounts
	tw      *tabwriter.Writer
}

func simulate(ctx context.Context, w io.Writer, logger *slog.Logger, amount uint64) error {
	b := bank.New(accounts.NewMemoryDB(), bank.WithLogger(logger), bank.WithAirdrops(simulateFunding))
	defer b.Close()
	sender := client.NewLocalSender(b)

	adminKey, err := crypto.NewKeypair()
	if err != nil {
		return err
	}
	userKey, err := crypto.NewKeypair()
	if err != nil {
		return err
	}
	mintKey, err := crypto.NewKeypair()
	if err != nil {
		return err
	}

	s := &simulation{
		admin: client.New(sender, adminKey, logger),
		user:  client.New(sender, userKey, logger),
		tw:    tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight),
	}
	for _, c := range []*client.Client{s.admin, s.user} {
		if err := c.Airdrop(ctx, c.Payer().Pubkey(), simulateFunding); err != nil {
			return err
		}
	}
	if _, err := s.admin.CreateMint(ctx, mintKey, 9, adminKey.Pubkey()); err != nil {
		return fmt.Errorf("create mint: %w", err)
	}
	if s.pool, _, err = s.admin.InitializePool(ctx, mintKey.Pubkey()); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if s.holding, _, err = s.user.RegisterStake(ctx, mintKey.Pubkey(), userKey); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	fmt.Fprintln(s.tw, "step\tuser stake\tuser position\tvault\tposition supply\t")
	if err := s.report(ctx, "registered"); err != nil {
		return err
	}
	if _, err := s.admin.MintTo(ctx, mintKey.Pubkey(), s.holding.StakeAccount, adminKey, amount); err != nil {
		return fmt.Errorf("credit: %w", err)
	}
	if err := s.report(ctx, "credited"); err != nil {
		return err
	}
	if _, err := s.user.Stake(ctx, mintKey.Pubkey(), userKey, amount); err != nil {
		return fmt.Errorf("stake: %w", err)
	}
	if err := s.report(ctx, "staked"); err != nil {
		return err
	}
	if _, err := s.user.Unstake(ctx, mintKey.Pubkey(), userKey, amount); err != nil {
		return fmt.Errorf("unstake: %w", err)
	}
	if err := s.report(ctx, "unstaked"); err != nil {
		return err
	}
	if err := s.tw.Flush(); err != nil {
		return err
	}

	h, err := b.StateHash()
	if err != nil {
		return err
	}
	logger.Info("simulation complete", "stake_mint", mintKey.Pubkey(), "pool", s.pool.Pool, "state_hash", h.String())
	return nil
}

func (s *simulation) report(ctx context.Context, step string) error {
	var vals [4]uint64
	var err error
	for i, read := range []func() (uint64, error){
		func() (uint64, error) { return s.user.TokenBalance(ctx, s.holding.StakeAccount) },
		func() (uint64, error) { return s.user.TokenBalance(ctx, s.holding.PositionAccount) },
		func() (uint64, error) { return s.user.TokenBalance(ctx, s.pool.Vault) },
		func() (uint64, error) { return s.user.TokenSupply(ctx, s.pool.PositionMint) },
	} {
		if vals[i], err = read(); err != nil {
			return fmt.Errorf("%s: %w", step, err)
		}
	}
	fmt.Fprintf(s.tw, "%s\t%d\t%d\t%d\t%d\t\n", step, vals[0], vals[1], vals[2], vals[3])
	return nil
}
