package client

import (
	"context"

	"github.com/fortiblox/x1-staker/pkg/bank"
	"github.com/fortiblox/x1-staker/pkg/types"
)

// Sender submits transactions and reads accounts. *rpc.Client implements
// it over HTTP; LocalSender drives a bank in process.
type Sender interface {
	LatestBlockhash(ctx context.Context) (types.Hash, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) (types.Signature, error)
	GetAccount(ctx context.Context, pubkey types.Pubkey) (*types.Account, error)
	RequestAirdrop(ctx context.Context, pubkey types.Pubkey, lamports uint64) (types.Signature, error)
}

// LocalSender is a Sender backed by an in-process bank.
type LocalSender struct {
	Bank *bank.Bank
}

// NewLocalSender creates a Sender over b.
func NewLocalSender(b *bank.Bank) *LocalSender {
	return &LocalSender{Bank: b}
}

func (s *LocalSender) LatestBlockhash(context.Context) (types.Hash, error) {
	h, _ := s.Bank.LatestBlockhash()
	return h, nil
}

func (s *LocalSender) SendTransaction(ctx context.Context, tx *types.Transaction) (types.Signature, error) {
	res, err := s.Bank.ExecuteTransaction(ctx, tx)
	if err != nil {
		return res.Signature, &TransactionError{Signature: res.Signature, Logs: res.Logs, Err: err}
	}
	return res.Signature, nil
}

func (s *LocalSender) GetAccount(_ context.Context, pubkey types.Pubkey) (*types.Account, error) {
	return s.Bank.GetAccount(pubkey)
}

// RequestAirdrop credits the faucet directly. The faucet does not issue a
// transaction, so the returned signature is zero.
func (s *LocalSender) RequestAirdrop(ctx context.Context, pubkey types.Pubkey, lamports uint64) (types.Signature, error) {
	_, err := s.Bank.Airdrop(ctx, pubkey, lamports)
	return types.Signature{}, err
}
