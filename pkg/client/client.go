// Package client builds, signs and submits staker transactions.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fortiblox/x1-staker/pkg/crypto"
	"github.com/fortiblox/x1-staker/pkg/svm/programs/staker"
	"github.com/fortiblox/x1-staker/pkg/svm/programs/system"
	"github.com/fortiblox/x1-staker/pkg/svm/programs/token"
	"github.com/fortiblox/x1-staker/pkg/types"
)

// ErrAccountNotFound is returned when a read names a missing account.
var ErrAccountNotFound = errors.New("account not found")

// TransactionError is a rejected transaction with its program logs.
type TransactionError struct {
	Signature types.Signature
	Logs      []string
	Err       error
}

func (e *TransactionError) Error() string {
	if len(e.Logs) == 0 {
		return e.Err.Error()
	}
	return e.Err.Error() + "\n  " + strings.Join(e.Logs, "\n  ")
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// Client submits staker flows paid for by a fee payer.
type Client struct {
	sender Sender
	payer  *crypto.Keypair
	log    *slog.Logger
}

// New creates a client that pays with payer.
func New(sender Sender, payer *crypto.Keypair, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{sender: sender, payer: payer, log: logger.With("component", "client")}
}

// Payer returns the fee payer.
func (c *Client) Payer() *crypto.Keypair {
	return c.payer
}

// Sender returns the underlying transport.
func (c *Client) Sender() Sender {
	return c.sender
}

// Send signs ixs with the payer and extra signers and submits them as one
// transaction.
func (c *Client) Send(ctx context.Context, ixs []types.Instruction, signers ...*crypto.Keypair) (types.Signature, error) {
	blockhash, err := c.sender.LatestBlockhash(ctx)
	if err != nil {
		return types.Signature{}, fmt.Errorf("latest blockhash: %w", err)
	}
	msg, err := types.NewMessage(c.payer.Pubkey(), ixs, blockhash)
	if err != nil {
		return types.Signature{}, err
	}
	tx := &types.Transaction{Message: *msg}
	if err := crypto.SignTransaction(tx, append([]*crypto.Keypair{c.payer}, signers...)...); err != nil {
		return types.Signature{}, err
	}
	sig, err := c.sender.SendTransaction(ctx, tx)
	if err != nil {
		return sig, err
	}
	c.log.Debug("transaction sent", "signature", sig.String(), "instructions", len(ixs))
	return sig, nil
}

// Airdrop requests lamports for pubkey from the faucet.
func (c *Client) Airdrop(ctx context.Context, pubkey types.Pubkey, lamports uint64) error {
	_, err := c.sender.RequestAirdrop(ctx, pubkey, lamports)
	return err
}

// CreateMint creates and initializes a mint at the address of mint.
func (c *Client) CreateMint(ctx context.Context, mint *crypto.Keypair, decimals uint8, authority types.Pubkey) (types.Signature, error) {
	rent := uint64(types.RentExemptMinimum(token.MintSize))
	return c.Send(ctx, []types.Instruction{
		system.CreateAccount(c.payer.Pubkey(), mint.Pubkey(), rent, token.MintSize, types.TokenProgramID),
		token.InitializeMint(mint.Pubkey(), decimals, authority, nil),
	}, mint)
}

// MintTo mints amount of mint into destination, signed by authority.
func (c *Client) MintTo(ctx context.Context, mint, destination types.Pubkey, authority *crypto.Keypair, amount uint64) (types.Signature, error) {
	return c.Send(ctx, []types.Instruction{token.MintTo(mint, destination, authority.Pubkey(), amount)}, authority)
}

// InitializePool creates the pool for stakeMint with the payer as admin.
func (c *Client) InitializePool(ctx context.Context, stakeMint types.Pubkey) (*staker.PoolAddresses, types.Signature, error) {
	addrs, err := staker.DerivePoolAddresses(stakeMint)
	if err != nil {
		return nil, types.Signature{}, err
	}
	sig, err := c.Send(ctx, []types.Instruction{staker.NewInitializeInstruction(c.payer.Pubkey(), addrs)})
	if err != nil {
		return nil, sig, err
	}
	c.log.Info("pool initialized", "stake_mint", stakeMint, "pool", addrs.Pool, "vault", addrs.Vault)
	return addrs, sig, nil
}

// RegisterStake creates user's holdings in the pool for stakeMint. The user
// pays for them.
func (c *Client) RegisterStake(ctx context.Context, stakeMint types.Pubkey, user *crypto.Keypair) (*staker.UserAccounts, types.Signature, error) {
	addrs, u, err := derive(stakeMint, user.Pubkey())
	if err != nil {
		return nil, types.Signature{}, err
	}
	sig, err := c.Send(ctx, []types.Instruction{staker.NewRegisterStakeInstruction(addrs, u)}, user)
	if err != nil {
		return nil, sig, err
	}
	return u, sig, nil
}

// Stake deposits amount of user's stake tokens.
func (c *Client) Stake(ctx context.Context, stakeMint types.Pubkey, user *crypto.Keypair, amount uint64) (types.Signature, error) {
	addrs, u, err := derive(stakeMint, user.Pubkey())
	if err != nil {
		return types.Signature{}, err
	}
	return c.Send(ctx, []types.Instruction{staker.NewStakeInstruction(addrs, u, amount)}, user)
}

// Unstake withdraws amount, burning the same amount of position tokens.
func (c *Client) Unstake(ctx context.Context, stakeMint types.Pubkey, user *crypto.Keypair, amount uint64) (types.Signature, error) {
	addrs, u, err := derive(stakeMint, user.Pubkey())
	if err != nil {
		return types.Signature{}, err
	}
	return c.Send(ctx, []types.Instruction{staker.NewUnstakeInstruction(addrs, u, amount)}, user)
}

func derive(stakeMint, user types.Pubkey) (*staker.PoolAddresses, *staker.UserAccounts, error) {
	addrs, err := staker.DerivePoolAddresses(stakeMint)
	if err != nil {
		return nil, nil, err
	}
	u, err := staker.DeriveUserAccounts(addrs, user)
	if err != nil {
		return nil, nil, err
	}
	return addrs, u, nil
}

// PoolInfo is a decoded pool record with its custody and outstanding
// position supply.
type PoolInfo struct {
	Address        types.Pubkey
	State          *staker.PoolState
	VaultBalance   uint64
	PositionSupply uint64
}

// FetchPool reads the pool for stakeMint.
func (c *Client) FetchPool(ctx context.Context, stakeMint types.Pubkey) (*PoolInfo, error) {
	pool, _, err := staker.FindPool(stakeMint)
	if err != nil {
		return nil, err
	}
	acc, err := c.account(ctx, pool)
	if err != nil {
		return nil, err
	}
	state, err := staker.ReadPoolState(acc)
	if err != nil {
		return nil, err
	}
	info := &PoolInfo{Address: pool, State: state}
	if info.VaultBalance, err = c.TokenBalance(ctx, state.Vault); err != nil {
		return nil, err
	}
	if info.PositionSupply, err = c.TokenSupply(ctx, state.PosMint); err != nil {
		return nil, err
	}
	return info, nil
}

// TokenBalance returns the amount held by a token account.
func (c *Client) TokenBalance(ctx context.Context, holding types.Pubkey) (uint64, error) {
	acc, err := c.account(ctx, holding)
	if err != nil {
		return 0, err
	}
	ta, err := token.ReadTokenAccount(acc)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", holding, err)
	}
	return ta.Amount, nil
}

// TokenSupply returns the supply of a mint.
func (c *Client) TokenSupply(ctx context.Context, mint types.Pubkey) (uint64, error) {
	acc, err := c.account(ctx, mint)
	if err != nil {
		return 0, err
	}
	m, err := token.ReadMint(acc)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", mint, err)
	}
	return m.Supply, nil
}

// Balance returns the lamports of pubkey, zero if it does not exist.
func (c *Client) Balance(ctx context.Context, pubkey types.Pubkey) (types.Lamports, error) {
	acc, err := c.sender.GetAccount(ctx, pubkey)
	if err != nil || acc == nil {
		return 0, err
	}
	return acc.Lamports, nil
}

func (c *Client) account(ctx context.Context, pubkey types.Pubkey) (*types.Account, error) {
	acc, err := c.sender.GetAccount(ctx, pubkey)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, pubkey)
	}
	return acc, nil
}
