package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/fortiblox/x1-staker/pkg/crypto"
	"github.com/fortiblox/x1-staker/pkg/rpc"
	"github.com/fortiblox/x1-staker/pkg/svm/programs/staker"
	"github.com/fortiblox/x1-staker/pkg/types"
)

func out(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func pubkeyArg(cmd *cli.Command, flag string) (types.Pubkey, error) {
	s := cmd.String(flag)
	if s == "" {
		return types.Pubkey{}, fmt.Errorf("--%s is required", flag)
	}
	pk, err := types.PubkeyFromBase58(s)
	if err != nil {
		return types.Pubkey{}, fmt.Errorf("--%s: %w", flag, err)
	}
	return pk, nil
}

var stakeMintFlag = &cli.StringFlag{
	Name:     "stake-mint",
	Aliases:  []string{"m"},
	Usage:    "mint of the token being staked",
	Required: true,
	Sources:  cli.EnvVars("STAKER_STAKE_MINT"),
}

var amountFlag = &cli.UintFlag{
	Name:     "amount",
	Aliases:  []string{"a"},
	Usage:    "token amount in base units",
	Required: true,
}

func (a *app) keygenCmd() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "Generate a keypair file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "outfile", Aliases: []string{"o"}, Usage: "path to write (default: --keypair)"},
			&cli.BoolFlag{Name: "force", Usage: "overwrite an existing file"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.String("outfile")
			if path == "" {
				path = cmd.String("keypair")
			}
			if _, err := os.Stat(path); err == nil && !cmd.Bool("force") {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			kp, err := crypto.NewKeypair()
			if err != nil {
				return err
			}
			if err := crypto.SaveKeypair(path, kp); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "Wrote keypair to %s\npubkey: %s\n", path, kp.Pubkey())
			return nil
		},
	}
}

func (a *app) addressCmd() *cli.Command {
	return &cli.Command{
		Name:  "address",
		Usage: "Print the pubkey of --keypair",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			kp, err := a.keypair(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintln(out(cmd), kp.Pubkey())
			return nil
		},
	}
}

func (a *app) airdropCmd() *cli.Command {
	return &cli.Command{
		Name:      "airdrop",
		Usage:     "Request lamports from the ledger faucet",
		ArgsUsage: "<lamports>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "to", Usage: "recipient (default: --keypair)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var lamports uint64
			if _, err := fmt.Sscan(cmd.Args().First(), &lamports); err != nil {
				return fmt.Errorf("lamports: %w", err)
			}
			to, err := a.recipient(cmd, "to")
			if err != nil {
				return err
			}
			rc := a.rpcClient(cmd)
			if _, err := rc.RequestAirdrop(ctx, to, lamports); err != nil {
				return err
			}
			balance, err := rc.GetBalance(ctx, to)
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "%s: %d lamports\n", to, balance)
			return nil
		},
	}
}

// recipient returns the pubkey in flag, or the --keypair pubkey if unset.
func (a *app) recipient(cmd *cli.Command, flag string) (types.Pubkey, error) {
	if cmd.String(flag) != "" {
		return pubkeyArg(cmd, flag)
	}
	kp, err := a.keypair(cmd)
	if err != nil {
		return types.Pubkey{}, err
	}
	return kp.Pubkey(), nil
}

func (a *app) createMintCmd() *cli.Command {
	return &cli.Command{
		Name:  "create-mint",
		Usage: "Create a token mint whose authority is --keypair",
		Flags: []cli.Flag{
			&cli.UintFlag{Name: "decimals", Value: 9, Usage: "decimal places"},
			&cli.StringFlag{Name: "mint-keypair", Usage: "write the new mint keypair here"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, _, err := a.client(cmd)
			if err != nil {
				return err
			}
			decimals := cmd.Uint("decimals")
			if decimals > 255 {
				return fmt.Errorf("decimals out of range: %d", decimals)
			}
			mint, err := crypto.NewKeypair()
			if err != nil {
				return err
			}
			if path := cmd.String("mint-keypair"); path != "" {
				if err := crypto.SaveKeypair(path, mint); err != nil {
					return err
				}
			}
			sig, err := c.CreateMint(ctx, mint, uint8(decimals), c.Payer().Pubkey())
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "mint: %s\nsignature: %s\n", mint.Pubkey(), sig)
			return nil
		},
	}
}

func (a *app) mintToCmd() *cli.Command {
	return &cli.Command{
		Name:  "mint-to",
		Usage: "Mint tokens into a token account, signed by --keypair as mint authority",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mint", Required: true, Usage: "token mint"},
			&cli.StringFlag{Name: "account", Usage: "destination token account"},
			&cli.StringFlag{Name: "user", Usage: "credit this user's registered stake account instead of --account"},
			amountFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, _, err := a.client(cmd)
			if err != nil {
				return err
			}
			mint, err := pubkeyArg(cmd, "mint")
			if err != nil {
				return err
			}
			var dest types.Pubkey
			switch {
			case cmd.String("user") != "":
				user, err := pubkeyArg(cmd, "user")
				if err != nil {
					return err
				}
				if dest, _, err = staker.FindUserStakeAccount(mint, user); err != nil {
					return err
				}
			case cmd.String("account") != "":
				if dest, err = pubkeyArg(cmd, "account"); err != nil {
					return err
				}
			default:
				return errors.New("one of --account or --user is required")
			}
			sig, err := c.MintTo(ctx, mint, dest, c.Payer(), cmd.Uint("amount"))
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "minted %d to %s\nsignature: %s\n", cmd.Uint("amount"), dest, sig)
			return nil
		},
	}
}

func (a *app) poolCmd() *cli.Command {
	return &cli.Command{
		Name:  "pool",
		Usage: "Create and inspect staking pools",
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Initialize the pool for a stake mint, with --keypair as admin",
				Flags: []cli.Flag{stakeMintFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					c, _, err := a.client(cmd)
					if err != nil {
						return err
					}
					stakeMint, err := pubkeyArg(cmd, "stake-mint")
					if err != nil {
						return err
					}
					addrs, sig, err := c.InitializePool(ctx, stakeMint)
					if err != nil {
						return err
					}
					printPoolAddresses(out(cmd), addrs)
					fmt.Fprintf(out(cmd), "signature:\t%s\n", sig)
					return nil
				},
			},
			{
				Name:  "show",
				Usage: "Show the pool record, custody and position supply",
				Flags: []cli.Flag{stakeMintFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					stakeMint, err := pubkeyArg(cmd, "stake-mint")
					if err != nil {
						return err
					}
					pool, err := a.rpcClient(cmd).GetPoolState(ctx, stakeMint)
					if err != nil {
						return err
					}
					if pool == nil {
						return fmt.Errorf("no pool for stake mint %s", stakeMint)
					}
					printPool(out(cmd), pool)
					return nil
				},
			},
			{
				Name:  "derive",
				Usage: "Print derived pool addresses offline",
				Flags: []cli.Flag{
					stakeMintFlag,
					&cli.StringFlag{Name: "user", Usage: "also derive this user's holdings"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					stakeMint, err := pubkeyArg(cmd, "stake-mint")
					if err != nil {
						return err
					}
					addrs, err := staker.DerivePoolAddresses(stakeMint)
					if err != nil {
						return err
					}
					printPoolAddresses(out(cmd), addrs)
					if cmd.String("user") == "" {
						return nil
					}
					user, err := pubkeyArg(cmd, "user")
					if err != nil {
						return err
					}
					u, err := staker.DeriveUserAccounts(addrs, user)
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(out(cmd), 0, 4, 2, ' ', 0)
					fmt.Fprintf(w, "user stake account:\t%s\t(bump %d)\n", u.StakeAccount, u.StakeAccountBump)
					fmt.Fprintf(w, "user position account:\t%s\t(bump %d)\n", u.PositionAccount, u.PositionAccountBump)
					return w.Flush()
				},
			},
		},
	}
}

func printPoolAddresses(w io.Writer, a *staker.PoolAddresses) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "stake mint:\t%s\n", a.StakeMint)
	fmt.Fprintf(tw, "pool:\t%s\t(bump %d)\n", a.Pool, a.PoolBump)
	fmt.Fprintf(tw, "vault:\t%s\t(bump %d)\n", a.Vault, a.VaultBump)
	fmt.Fprintf(tw, "vault authority:\t%s\t(bump %d)\n", a.VaultAuthority, a.VaultAuthorityBump)
	fmt.Fprintf(tw, "mint authority:\t%s\t(bump %d)\n", a.MintAuthority, a.MintAuthorityBump)
	fmt.Fprintf(tw, "position mint:\t%s\t(bump %d)\n", a.PositionMint, a.PositionMintBump)
	_ = tw.Flush()
}

func printPool(w io.Writer, p *rpc.PoolStateResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "pool:\t%s\n", p.Address)
	fmt.Fprintf(tw, "admin:\t%s\n", p.Admin)
	fmt.Fprintf(tw, "stake mint:\t%s\n", p.StakeMint)
	fmt.Fprintf(tw, "position mint:\t%s\n", p.PositionMint)
	fmt.Fprintf(tw, "vault:\t%s\n", p.Vault)
	fmt.Fprintf(tw, "bumps:\tpool %d, vault %d, vault auth %d, mint auth %d, pos mint %d\n",
		p.Bump, p.VaultBump, p.VaultAuthBump, p.MintAuthBump, p.PosMintBump)
	fmt.Fprintf(tw, "staked:\t%d\n", p.VaultBalance)
	fmt.Fprintf(tw, "positions outstanding:\t%d\n", p.PositionSupply)
	_ = tw.Flush()
}

func (a *app) registerCmd() *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "Create the --keypair user's stake and position accounts for a pool",
		Flags: []cli.Flag{stakeMintFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, _, err := a.client(cmd)
			if err != nil {
				return err
			}
			stakeMint, err := pubkeyArg(cmd, "stake-mint")
			if err != nil {
				return err
			}
			u, sig, err := c.RegisterStake(ctx, stakeMint, c.Payer())
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "stake account: %s\nposition account: %s\nsignature: %s\n", u.StakeAccount, u.PositionAccount, sig)
			return nil
		},
	}
}

func (a *app) stakeCmd() *cli.Command {
	return a.movementCmd("stake", "Deposit stake tokens and receive position tokens", true)
}

func (a *app) unstakeCmd() *cli.Command {
	return a.movementCmd("unstake", "Burn position tokens and withdraw stake tokens", false)
}

func (a *app) movementCmd(name, usage string, deposit bool) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: []cli.Flag{stakeMintFlag, amountFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, _, err := a.client(cmd)
			if err != nil {
				return err
			}
			stakeMint, err := pubkeyArg(cmd, "stake-mint")
			if err != nil {
				return err
			}
			amount := cmd.Uint("amount")
			var sig types.Signature
			if deposit {
				sig, err = c.Stake(ctx, stakeMint, c.Payer(), amount)
			} else {
				sig, err = c.Unstake(ctx, stakeMint, c.Payer(), amount)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "%s %d: %s\n", name, amount, sig)
			return nil
		},
	}
}

func (a *app) balanceCmd() *cli.Command {
	return &cli.Command{
		Name:      "balance",
		Usage:     "Show lamports, or token balances for a stake mint",
		ArgsUsage: "[pubkey]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "stake-mint", Aliases: []string{"m"}, Usage: "also show the user's stake and position balances"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, _, err := a.client(cmd)
			if err != nil {
				return err
			}
			who := c.Payer().Pubkey()
			if arg := cmd.Args().First(); arg != "" {
				if who, err = types.PubkeyFromBase58(arg); err != nil {
					return err
				}
			}

			lamports, err := c.Balance(ctx, who)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(out(cmd), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "account:\t%s\n", who)
			fmt.Fprintf(w, "lamports:\t%d\n", lamports)

			if cmd.String("stake-mint") != "" {
				stakeMint, err := pubkeyArg(cmd, "stake-mint")
				if err != nil {
					return err
				}
				addrs, err := staker.DerivePoolAddresses(stakeMint)
				if err != nil {
					return err
				}
				u, err := staker.DeriveUserAccounts(addrs, who)
				if err != nil {
					return err
				}
				stake, err := c.TokenBalance(ctx, u.StakeAccount)
				if err != nil {
					return err
				}
				pos, err := c.TokenBalance(ctx, u.PositionAccount)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "stake tokens:\t%d\n", stake)
				fmt.Fprintf(w, "position tokens:\t%d\n", pos)
			}
			return w.Flush()
		},
	}
}

func (a *app) configCmd() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage the config file",
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write the default config to --config",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "overwrite an existing file"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					path := cmd.String("config")
					if err := writeConfig(path, defaultConfig(), cmd.Bool("force")); err != nil {
						return err
					}
					fmt.Fprintf(out(cmd), "Wrote %s\n", path)
					return nil
				},
			},
		},
	}
}
