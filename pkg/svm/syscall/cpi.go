package syscall

import (
	"errors"
	"fmt"
	"slices"

	"github.com/fortiblox/x1-staker/pkg/types"
)

// CPI errors
var (
	ErrCPIDepthExceeded           = errors.New("CPI depth exceeded")
	ErrCPIAccountNotFound         = errors.New("account not found in caller instruction")
	ErrCPIWritablePrivilege       = errors.New("writable privilege escalation")
	ErrCPISignerPrivilege         = errors.New("signer privilege escalation")
	ErrCPIReentrancy              = errors.New("program reentrancy not allowed")
	ErrCPIInstructionDataTooLarge = errors.New("instruction data too large")
)

// MaxCPIDepth is the deepest nesting allowed below the top-level instruction.
const MaxCPIDepth = 4

// InvokeSigned invokes another program with the accounts of the current
// instruction. Every account in ix must be present in the caller. A callee
// account may be writable only if the caller holds it writable, and a
// signer only if the caller holds the signature or the address is derived
// from one of signerSeeds under the calling program.
//
// On success the writable accounts modified by the callee are copied back
// into the caller. On failure the caller's accounts are left untouched.
func (ctx *ExecutionContext) InvokeSigned(ix *types.Instruction, signerSeeds [][][]byte) error {
	if ctx.Depth >= MaxCPIDepth {
		return ErrCPIDepthExceeded
	}
	if len(ix.Data) > MaxInstructionData {
		return fmt.Errorf("%w: %d bytes", ErrCPIInstructionDataTooLarge, len(ix.Data))
	}
	if err := ctx.ConsumeComputeUnits(uint64(types.ComputeUnitsPerCPI)); err != nil {
		return err
	}
	if ix.ProgramID != ctx.ProgramID && slices.Contains(ctx.CallerStack, ix.ProgramID) {
		return fmt.Errorf("%w: %s", ErrCPIReentrancy, ix.ProgramID)
	}

	pdaSigners := make(map[types.Pubkey]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		pda, err := CreateProgramAddress(seeds, ctx.ProgramID)
		if err != nil {
			return err
		}
		pdaSigners[pda] = true
	}

	callee, err := ctx.resolveCalleeAccounts(ix.Accounts, pdaSigners)
	if err != nil {
		return err
	}

	// The caller's own changes so far are checked before the callee can
	// touch the same accounts.
	if err := ctx.verifyFrame(); err != nil {
		return err
	}

	callerProgram := ctx.ProgramID
	callerAccounts := ctx.Accounts
	callerIndex := ctx.accountIndex
	callerData := ctx.InstructionData
	callerPre := ctx.pre

	ctx.mu.Lock()
	ctx.CallerStack = append(ctx.CallerStack, callerProgram)
	ctx.Depth++
	ctx.mu.Unlock()

	ctx.ProgramID = ix.ProgramID
	ctx.setAccounts(callee)
	ctx.InstructionData = ix.Data

	err = ctx.Execute()

	ctx.ProgramID = callerProgram
	ctx.Accounts = callerAccounts
	ctx.accountIndex = callerIndex
	ctx.InstructionData = callerData
	ctx.pre = callerPre

	ctx.mu.Lock()
	ctx.CallerStack = ctx.CallerStack[:len(ctx.CallerStack)-1]
	ctx.Depth--
	ctx.mu.Unlock()

	if err != nil {
		return err
	}

	ctx.propagate(callee)
	return nil
}

// resolveCalleeAccounts clones the caller accounts named by metas. Repeated
// pubkeys share one clone whose privileges are the union of their metas.
func (ctx *ExecutionContext) resolveCalleeAccounts(metas []types.AccountMeta, pdaSigners map[types.Pubkey]bool) ([]*AccountInfo, error) {
	clones := make(map[types.Pubkey]*AccountInfo, len(metas))
	out := make([]*AccountInfo, len(metas))

	for i, meta := range metas {
		caller, err := ctx.GetAccount(meta.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrCPIAccountNotFound, meta.Pubkey)
		}
		if meta.IsWritable && !caller.IsWritable {
			return nil, fmt.Errorf("%w: %s", ErrCPIWritablePrivilege, meta.Pubkey)
		}
		if meta.IsSigner && !caller.IsSigner && !pdaSigners[meta.Pubkey] {
			return nil, fmt.Errorf("%w: %s", ErrCPISignerPrivilege, meta.Pubkey)
		}

		clone, ok := clones[meta.Pubkey]
		if !ok {
			clone = caller.Clone()
			clone.IsSigner = false
			clone.IsWritable = false
			clones[meta.Pubkey] = clone
		}
		clone.IsSigner = clone.IsSigner || meta.IsSigner
		clone.IsWritable = clone.IsWritable || meta.IsWritable
		out[i] = clone
	}
	return out, nil
}

// propagate copies writable callee state back into the caller and starts a
// fresh verification segment for the caller frame.
func (ctx *ExecutionContext) propagate(callee []*AccountInfo) {
	for _, acc := range callee {
		if !acc.IsWritable {
			continue
		}
		caller, err := ctx.GetAccount(acc.Pubkey)
		if err != nil {
			continue
		}
		*caller.Lamports = *acc.Lamports
		caller.Data = append(caller.Data[:0:0], acc.Data...)
		caller.Owner = acc.Owner
	}
	ctx.pre = make([]accountSnapshot, len(ctx.Accounts))
	for i, acc := range ctx.Accounts {
		ctx.pre[i] = snapshotOf(acc)
	}
}
