package bank

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fortiblox/x1-staker/pkg/crypto"
	"github.com/fortiblox/x1-staker/pkg/svm/programs/compute_budget"
	"github.com/fortiblox/x1-staker/pkg/svm/syscall"
	"github.com/fortiblox/x1-staker/pkg/types"
)

// ErrDuplicateAccountKey indicates a message lists the same key twice.
var ErrDuplicateAccountKey = errors.New("account key listed more than once")

// InstructionError contains details about an instruction execution failure.
type InstructionError struct {
	Index     int
	ProgramID types.Pubkey
	Err       error
}

// Error implements the error interface.
func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d (program %s) failed: %v", e.Index, e.ProgramID, e.Err)
}

// Unwrap returns the underlying error.
func (e *InstructionError) Unwrap() error {
	return e.Err
}

// ExecuteTransaction verifies, runs and commits tx. The result is always
// returned, carrying the program logs even when execution fails; the error
// is the reason the transaction was rejected, if any.
func (b *Bank) ExecuteTransaction(ctx context.Context, tx *types.Transaction) (*types.TransactionResult, error) {
	start := time.Now()
	result := &types.TransactionResult{Logs: make([]string, 0)}
	if tx != nil && len(tx.Signatures) > 0 {
		result.Signature = tx.Signatures[0]
	}

	err := b.process(ctx, tx, result)
	result.Success = err == nil
	result.Error = err
	b.observer.TransactionProcessed(result, time.Since(start))

	if err != nil {
		b.log.Debug("transaction failed", "signature", result.Signature.String(), "err", err)
		return result, err
	}
	b.log.Debug("transaction committed",
		"signature", result.Signature.String(),
		"compute_units", result.ComputeUnits,
		"accounts", len(result.AccountDeltas))
	return result, nil
}

// ExecuteBatch runs txs concurrently. Transactions on disjoint accounts
// proceed in parallel; conflicting ones are serialized by the account
// locks in an unspecified order. results[i] belongs to txs[i].
func (b *Bank) ExecuteBatch(ctx context.Context, txs []*types.Transaction) []*types.TransactionResult {
	results := make([]*types.TransactionResult, len(txs))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, tx := range txs {
		g.Go(func() error {
			results[i], _ = b.ExecuteTransaction(ctx, tx)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (b *Bank) process(ctx context.Context, tx *types.Transaction, result *types.TransactionResult) error {
	if tx == nil {
		return crypto.ErrMissingMessage
	}
	msg := &tx.Message
	if len(msg.Instructions) == 0 {
		return types.ErrNoInstructions
	}
	if err := crypto.VerifyTransaction(tx); err != nil {
		return fmt.Errorf("%w: %w", ErrSignatureFailure, err)
	}
	if !b.IsBlockhashValid(msg.RecentBlockhash) {
		return fmt.Errorf("%w: %s", ErrBlockhashNotFound, msg.RecentBlockhash)
	}

	budget, err := compute_budget.ParseBudget(msg, b.computeUnits)
	if err != nil {
		return fmt.Errorf("compute budget: %w", err)
	}

	sig := tx.Signatures[0]
	if !b.status.reserve(sig) {
		return fmt.Errorf("%w: %s", ErrAlreadyProcessed, sig)
	}
	committed := false
	defer func() {
		if committed {
			b.status.commit(sig)
		} else {
			b.status.cancel(sig)
		}
	}()

	var writable, readonly []types.Pubkey
	seen := make(map[types.Pubkey]struct{}, len(msg.AccountKeys))
	for i, key := range msg.AccountKeys {
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateAccountKey, key)
		}
		seen[key] = struct{}{}
		if msg.IsWritable(i) {
			writable = append(writable, key)
		} else {
			readonly = append(readonly, key)
		}
	}
	set, err := b.locks.Lock(ctx, writable, readonly)
	if err != nil {
		return err
	}
	defer set.Release()

	originals := make([]*types.Account, len(msg.AccountKeys))
	infos := make([]*syscall.AccountInfo, len(msg.AccountKeys))
	for i, key := range msg.AccountKeys {
		acc, err := b.db.GetAccount(key)
		if err != nil {
			return fmt.Errorf("load %s: %w", key, err)
		}
		originals[i] = acc
		infos[i] = syscall.NewAccountInfo(key, acc, msg.IsSigner(i), msg.IsWritable(i))
	}

	slot := b.Slot()
	var consumed uint64
	for i := range msg.Instructions {
		compiled := &msg.Instructions[i]
		if int(compiled.ProgramIDIndex) >= len(infos) {
			return &InstructionError{Index: i, Err: fmt.Errorf("%w: program %d", ErrInvalidAccount, compiled.ProgramIDIndex)}
		}
		programID := msg.AccountKeys[compiled.ProgramIDIndex]

		ixAccounts := make([]*syscall.AccountInfo, len(compiled.AccountIndices))
		for j, idx := range compiled.AccountIndices {
			if int(idx) >= len(infos) {
				return &InstructionError{Index: i, ProgramID: programID, Err: fmt.Errorf("%w: %d", ErrInvalidAccount, idx)}
			}
			ixAccounts[j] = infos[idx]
		}

		ectx := syscall.NewExecutionContext(b.programs, programID, ixAccounts, compiled.Data, budget.ComputeUnitLimit-consumed)
		ectx.Slot = slot
		err := ectx.ConsumeComputeUnits(uint64(types.ComputeUnitsPerInstruction))
		if err == nil {
			err = ectx.Execute()
		}
		result.Logs = append(result.Logs, ectx.GetLogs()...)
		consumed += ectx.GetComputeUnitsConsumed()
		result.ComputeUnits = types.ComputeUnits(consumed)
		b.observer.InstructionProcessed(b.programs.Name(programID), b.programs.InstructionName(programID, compiled.Data), err)
		if err != nil {
			return &InstructionError{Index: i, ProgramID: programID, Err: err}
		}
	}

	var updates []types.AccountRef
	for i, info := range infos {
		if !info.IsWritable {
			continue
		}
		after := info.Account()
		before := originals[i]
		if before == nil && after.IsEmpty() {
			continue
		}
		if before.Equal(after) {
			continue
		}
		delta := types.AccountDelta{Pubkey: info.Pubkey, OldAccount: before}
		if !after.IsEmpty() {
			delta.NewAccount = after
		}
		updates = append(updates, types.AccountRef{Pubkey: info.Pubkey, Account: delta.NewAccount})
		result.AccountDeltas = append(result.AccountDeltas, delta)
	}
	if err := b.db.Commit(updates); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}
