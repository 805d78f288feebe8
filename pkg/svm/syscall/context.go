// Package syscall provides the execution context native programs run in:
// account access, compute metering, program logs, PDA derivation and
// cross-program invocation.
package syscall

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/fortiblox/x1-staker/pkg/types"
)

// Context errors
var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountNotWritable   = errors.New("account is not writable")
	ErrAccountNotSigner     = errors.New("account is not a signer")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrComputeExhausted     = errors.New("compute units exhausted")
	ErrMaxLogsExceeded      = errors.New("maximum log entries exceeded")
	ErrLogTooLong           = errors.New("log message too long")
	ErrInvalidAccountIndex  = errors.New("invalid account index")
	ErrReadOnlyModified     = errors.New("read-only account was modified")
	ErrExternalDataModified = errors.New("instruction modified data of an account it does not own")
	ErrExternalLamportSpend = errors.New("instruction spent from an account it does not own")
	ErrModifiedProgramID    = errors.New("instruction modified the owner of an account it does not own")
	ErrNoProgramExecutor    = errors.New("no program executor configured")
	ErrLamportsNotConserved = errors.New("sum of account balances changed")
)

// Limits for execution
const (
	MaxLogMessages      = 128
	MaxLogMessageLength = 10000
	MaxInstructionData  = 1232
	MaxAccountDataSize  = 10 * 1024 * 1024 // 10MB
)

// AccountInfo is a program's view of one instruction account.
type AccountInfo struct {
	Pubkey     types.Pubkey
	Lamports   *uint64
	Data       []byte
	Owner      types.Pubkey
	Executable bool
	IsSigner   bool
	IsWritable bool
}

// NewAccountInfo builds an AccountInfo backed by a copy of account. A nil
// account yields an empty system-owned view.
func NewAccountInfo(pubkey types.Pubkey, account *types.Account, isSigner, isWritable bool) *AccountInfo {
	info := &AccountInfo{
		Pubkey:     pubkey,
		Lamports:   new(uint64),
		Owner:      types.SystemProgramID,
		IsSigner:   isSigner,
		IsWritable: isWritable,
	}
	if account != nil {
		*info.Lamports = uint64(account.Lamports)
		info.Owner = account.Owner
		info.Executable = account.Executable
		info.Data = append([]byte(nil), account.Data...)
	}
	return info
}

// Account returns the current state as a ledger account.
func (a *AccountInfo) Account() *types.Account {
	return &types.Account{
		Lamports:   types.Lamports(*a.Lamports),
		Data:       append([]byte(nil), a.Data...),
		Owner:      a.Owner,
		Executable: a.Executable,
	}
}

// Clone creates a deep copy of AccountInfo.
func (a *AccountInfo) Clone() *AccountInfo {
	if a == nil {
		return nil
	}
	lamports := *a.Lamports
	clone := &AccountInfo{
		Pubkey:     a.Pubkey,
		Lamports:   &lamports,
		Owner:      a.Owner,
		Executable: a.Executable,
		IsSigner:   a.IsSigner,
		IsWritable: a.IsWritable,
	}
	if a.Data != nil {
		clone.Data = make([]byte, len(a.Data))
		copy(clone.Data, a.Data)
	}
	return clone
}

// accountSnapshot is the pre-execution state of one account in a frame.
type accountSnapshot struct {
	lamports uint64
	owner    types.Pubkey
	data     []byte
}

func snapshotOf(a *AccountInfo) accountSnapshot {
	return accountSnapshot{lamports: *a.Lamports, owner: a.Owner, data: append([]byte(nil), a.Data...)}
}

// ProgramExecutor dispatches the instruction currently loaded in ctx to the
// program named by ctx.ProgramID.
type ProgramExecutor interface {
	ExecuteProgram(ctx *ExecutionContext) error
}

// ExecutionContext holds the state of one top-level instruction and every
// nested invocation it makes.
type ExecutionContext struct {
	mu sync.RWMutex

	// Program being executed
	ProgramID types.Pubkey

	// Accounts available to the instruction
	Accounts []*AccountInfo

	accountIndex map[types.Pubkey]int

	InstructionData []byte

	computeUnits    uint64
	maxComputeUnits uint64

	logs    []string
	maxLogs int

	// Depth of nested invocations; zero for the top-level instruction.
	Depth int

	// Programs currently on the invocation stack below ProgramID.
	CallerStack []types.Pubkey

	Slot types.Slot

	executor ProgramExecutor
	pre      []accountSnapshot
}

// NewExecutionContext creates a new execution context that dispatches
// through executor.
func NewExecutionContext(executor ProgramExecutor, programID types.Pubkey, accounts []*AccountInfo, instructionData []byte, computeUnits uint64) *ExecutionContext {
	ctx := &ExecutionContext{
		ProgramID:       programID,
		InstructionData: instructionData,
		computeUnits:    computeUnits,
		maxComputeUnits: computeUnits,
		logs:            make([]string, 0, 16),
		maxLogs:         MaxLogMessages,
		CallerStack:     make([]types.Pubkey, 0, MaxCPIDepth),
		executor:        executor,
	}
	ctx.setAccounts(accounts)
	return ctx
}

func (ctx *ExecutionContext) setAccounts(accounts []*AccountInfo) {
	ctx.Accounts = accounts
	ctx.accountIndex = make(map[types.Pubkey]int, len(accounts))
	for i, acc := range accounts {
		if _, dup := ctx.accountIndex[acc.Pubkey]; !dup {
			ctx.accountIndex[acc.Pubkey] = i
		}
	}
}

// Execute runs the loaded instruction and enforces the account rules for
// the frame: read-only accounts are untouched, only the owning program may
// change data, debit lamports or reassign an account, and total lamports
// are conserved.
func (ctx *ExecutionContext) Execute() error {
	if ctx.executor == nil {
		return ErrNoProgramExecutor
	}
	programID := ctx.ProgramID

	ctx.pre = make([]accountSnapshot, len(ctx.Accounts))
	for i, acc := range ctx.Accounts {
		ctx.pre[i] = snapshotOf(acc)
	}

	ctx.addLog(fmt.Sprintf("Program %s invoke [%d]", programID, ctx.Depth+1))

	err := ctx.executor.ExecuteProgram(ctx)
	if err == nil {
		err = ctx.verifyFrame()
	}
	if err != nil {
		ctx.addLog(fmt.Sprintf("Program %s failed: %v", programID, err))
		return err
	}
	ctx.addLog(fmt.Sprintf("Program %s success", programID))
	return nil
}

func (ctx *ExecutionContext) verifyFrame() error {
	if len(ctx.pre) != len(ctx.Accounts) {
		return nil
	}
	var before, after uint64
	seen := make(map[types.Pubkey]bool, len(ctx.Accounts))

	for i, acc := range ctx.Accounts {
		pre := ctx.pre[i]
		lamportsChanged := *acc.Lamports != pre.lamports
		dataChanged := !bytes.Equal(acc.Data, pre.data)
		ownerChanged := acc.Owner != pre.owner

		if !acc.IsWritable && (lamportsChanged || dataChanged || ownerChanged) {
			return fmt.Errorf("%w: %s", ErrReadOnlyModified, acc.Pubkey)
		}
		if pre.owner != ctx.ProgramID {
			if dataChanged {
				return fmt.Errorf("%w: %s", ErrExternalDataModified, acc.Pubkey)
			}
			if *acc.Lamports < pre.lamports {
				return fmt.Errorf("%w: %s", ErrExternalLamportSpend, acc.Pubkey)
			}
			if ownerChanged {
				return fmt.Errorf("%w: %s", ErrModifiedProgramID, acc.Pubkey)
			}
		}

		if seen[acc.Pubkey] {
			continue
		}
		seen[acc.Pubkey] = true
		before += pre.lamports
		after += *acc.Lamports
	}
	if before != after {
		return fmt.Errorf("%w: %d before, %d after", ErrLamportsNotConserved, before, after)
	}
	return nil
}

// ConsumeComputeUnits deducts compute units.
func (ctx *ExecutionContext) ConsumeComputeUnits(units uint64) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	if units > ctx.computeUnits {
		ctx.computeUnits = 0
		return ErrComputeExhausted
	}
	ctx.computeUnits -= units
	return nil
}

// GetComputeUnitsConsumed returns consumed compute units.
func (ctx *ExecutionContext) GetComputeUnitsConsumed() uint64 {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	return ctx.maxComputeUnits - ctx.computeUnits
}

// AddLog adds a log message.
func (ctx *ExecutionContext) AddLog(message string) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	if len(ctx.logs) >= ctx.maxLogs {
		return ErrMaxLogsExceeded
	}
	if len(message) > MaxLogMessageLength {
		return ErrLogTooLong
	}
	ctx.logs = append(ctx.logs, message)
	return nil
}

// addLog records runtime messages; overflow is silently dropped.
func (ctx *ExecutionContext) addLog(message string) {
	_ = ctx.AddLog(message)
}

// GetLogs returns all log messages.
func (ctx *ExecutionContext) GetLogs() []string {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	logs := make([]string, len(ctx.logs))
	copy(logs, ctx.logs)
	return logs
}

// GetAccount returns an account by pubkey.
func (ctx *ExecutionContext) GetAccount(pubkey types.Pubkey) (*AccountInfo, error) {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()

	idx, ok := ctx.accountIndex[pubkey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, pubkey)
	}
	return ctx.Accounts[idx], nil
}

// GetAccountByIndex returns an account by index.
func (ctx *ExecutionContext) GetAccountByIndex(index int) (*AccountInfo, error) {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()

	if index < 0 || index >= len(ctx.Accounts) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAccountIndex, index)
	}
	return ctx.Accounts[index], nil
}

// AccountCount returns the number of accounts.
func (ctx *ExecutionContext) AccountCount() int {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	return len(ctx.Accounts)
}

// IsProgramOwned checks if an account is owned by the executing program.
func (ctx *ExecutionContext) IsProgramOwned(pubkey types.Pubkey) bool {
	acc, err := ctx.GetAccount(pubkey)
	if err != nil {
		return false
	}
	return acc.Owner == ctx.ProgramID
}

// GetDepth returns the current invocation depth.
func (ctx *ExecutionContext) GetDepth() int {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	return ctx.Depth
}
