package bank

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fortiblox/x1-staker/pkg/svm/programs/compute_budget"
	"github.com/fortiblox/x1-staker/pkg/svm/programs/staker"
	"github.com/fortiblox/x1-staker/pkg/svm/programs/system"
	"github.com/fortiblox/x1-staker/pkg/svm/programs/token"
	"github.com/fortiblox/x1-staker/pkg/svm/syscall"
	"github.com/fortiblox/x1-staker/pkg/types"
)

// ErrProgramNotFound indicates the instruction names an unregistered program.
var ErrProgramNotFound = errors.New("program not found")

// Program is a native program the bank can run.
type Program interface {
	// GetProgramID returns the address the program is registered under.
	GetProgramID() types.Pubkey

	// Execute runs the instruction loaded in ctx.
	Execute(ctx *syscall.ExecutionContext) error

	// InstructionName names the instruction in data, or returns "unknown".
	InstructionName(data []byte) string
}

// ProgramRegistry maps program IDs to programs. It is the executor handed
// to every execution context, so cross-program invocations resolve
// through it too.
type ProgramRegistry struct {
	mu       sync.RWMutex
	programs map[types.Pubkey]Program
	names    map[types.Pubkey]string
}

// NewProgramRegistry creates an empty registry.
func NewProgramRegistry() *ProgramRegistry {
	return &ProgramRegistry{
		programs: make(map[types.Pubkey]Program),
		names:    make(map[types.Pubkey]string),
	}
}

// DefaultPrograms returns a registry holding the native programs.
func DefaultPrograms() *ProgramRegistry {
	r := NewProgramRegistry()
	r.Register("system", system.New())
	r.Register("token", token.New())
	r.Register("staker", staker.New())
	r.Register("compute_budget", compute_budget.New())
	return r
}

// Register adds p under its program ID with a short name for metrics.
func (r *ProgramRegistry) Register(name string, p Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[p.GetProgramID()] = p
	r.names[p.GetProgramID()] = name
}

// Get returns the program registered under id.
func (r *ProgramRegistry) Get(id types.Pubkey) (Program, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.programs[id]
	return p, ok
}

// Name returns the short name of id, or its base58 address if unknown.
func (r *ProgramRegistry) Name(id types.Pubkey) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name, ok := r.names[id]; ok {
		return name
	}
	return id.String()
}

// Has checks if a program is registered.
func (r *ProgramRegistry) Has(id types.Pubkey) bool {
	_, ok := r.Get(id)
	return ok
}

// InstructionName names the instruction for program id.
func (r *ProgramRegistry) InstructionName(id types.Pubkey, data []byte) string {
	p, ok := r.Get(id)
	if !ok {
		return "unknown"
	}
	return p.InstructionName(data)
}

// ExecuteProgram implements syscall.ProgramExecutor.
func (r *ProgramRegistry) ExecuteProgram(ctx *syscall.ExecutionContext) error {
	p, ok := r.Get(ctx.ProgramID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrProgramNotFound, ctx.ProgramID)
	}
	return p.Execute(ctx)
}
