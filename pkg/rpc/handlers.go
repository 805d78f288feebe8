package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fortiblox/x1-staker/pkg/bank"
	"github.com/fortiblox/x1-staker/pkg/svm/programs/staker"
	"github.com/fortiblox/x1-staker/pkg/svm/programs/token"
	"github.com/fortiblox/x1-staker/pkg/types"
)

// Version is reported by getVersion.
var Version = "0.1.0"

// Handler is the function signature for RPC method handlers.
type Handler func(ctx context.Context, params json.RawMessage) (any, *RPCError)

// Handlers serves RPC methods from a bank.
type Handlers struct {
	bank     *bank.Bank
	log      *slog.Logger
	handlers map[string]Handler
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(b *bank.Bank, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		bank:     b,
		log:      logger,
		handlers: make(map[string]Handler),
	}
	h.registerHandlers()
	return h
}

// GetHandler returns the handler for a method, or nil if not found.
func (h *Handlers) GetHandler(method string) Handler {
	return h.handlers[method]
}

func (h *Handlers) registerHandlers() {
	h.handlers["getHealth"] = h.handleGetHealth
	h.handlers["getVersion"] = h.handleGetVersion
	h.handlers["getSlot"] = h.handleGetSlot
	h.handlers["getLatestBlockhash"] = h.handleGetLatestBlockhash
	h.handlers["isBlockhashValid"] = h.handleIsBlockhashValid
	h.handlers["getAccountInfo"] = h.handleGetAccountInfo
	h.handlers["getBalance"] = h.handleGetBalance
	h.handlers["getTokenAccountBalance"] = h.handleGetTokenAccountBalance
	h.handlers["getTokenSupply"] = h.handleGetTokenSupply
	h.handlers["getPoolState"] = h.handleGetPoolState
	h.handlers["getStateHash"] = h.handleGetStateHash
	h.handlers["requestAirdrop"] = h.handleRequestAirdrop
	h.handlers["sendTransaction"] = h.handleSendTransaction
}

func parseParams(params json.RawMessage, required int) ([]json.RawMessage, *RPCError) {
	var raw []json.RawMessage
	if len(params) > 0 {
		if err := json.Unmarshal(params, &raw); err != nil {
			return nil, NewRPCError(InvalidParams, "invalid params: expected array")
		}
	}
	if len(raw) < required {
		return nil, NewRPCError(InvalidParams, fmt.Sprintf("expected at least %d params, got %d", required, len(raw)))
	}
	return raw, nil
}

func parsePubkey(raw json.RawMessage) (types.Pubkey, *RPCError) {
	var pk types.Pubkey
	if err := json.Unmarshal(raw, &pk); err != nil {
		return types.Pubkey{}, NewRPCError(InvalidParams, fmt.Sprintf("invalid pubkey: %v", err))
	}
	return pk, nil
}

func (h *Handlers) context() Context {
	return Context{Slot: uint64(h.bank.Slot())}
}

func internal(what string, err error) *RPCError {
	return NewRPCError(InternalError, fmt.Sprintf("%s: %v", what, err))
}

// Params: none
func (h *Handlers) handleGetHealth(context.Context, json.RawMessage) (any, *RPCError) {
	return "ok", nil
}

// Params: none
func (h *Handlers) handleGetVersion(context.Context, json.RawMessage) (any, *RPCError) {
	return VersionResult{StakerCore: Version}, nil
}

// Params: none
func (h *Handlers) handleGetSlot(context.Context, json.RawMessage) (any, *RPCError) {
	return uint64(h.bank.Slot()), nil
}

// Params: none
func (h *Handlers) handleGetLatestBlockhash(context.Context, json.RawMessage) (any, *RPCError) {
	hash, slot := h.bank.LatestBlockhash()
	return ContextualResult[BlockhashResult]{
		Context: Context{Slot: uint64(slot)},
		Value: BlockhashResult{
			Blockhash:            hash.String(),
			LastValidBlockHeight: uint64(slot) + uint64(h.bank.BlockhashWindow()),
		},
	}, nil
}

// Params: [blockhash]
func (h *Handlers) handleIsBlockhashValid(_ context.Context, params json.RawMessage) (any, *RPCError) {
	raw, rpcErr := parseParams(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var s string
	if err := json.Unmarshal(raw[0], &s); err != nil {
		return nil, NewRPCError(InvalidParams, "invalid blockhash parameter")
	}
	hash, err := types.HashFromBase58(s)
	if err != nil {
		return nil, NewRPCError(InvalidParams, fmt.Sprintf("invalid blockhash: %v", err))
	}
	return ContextualResult[bool]{Context: h.context(), Value: h.bank.IsBlockhashValid(hash)}, nil
}

// Params: [pubkey, {encoding, dataSlice}]
func (h *Handlers) handleGetAccountInfo(_ context.Context, params json.RawMessage) (any, *RPCError) {
	raw, rpcErr := parseParams(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pubkey, rpcErr := parsePubkey(raw[0])
	if rpcErr != nil {
		return nil, rpcErr
	}

	var options AccountInfoOptions
	if len(raw) > 1 {
		if err := json.Unmarshal(raw[1], &options); err != nil {
			return nil, NewRPCError(InvalidParams, "invalid options")
		}
	}

	account, err := h.bank.GetAccount(pubkey)
	if err != nil {
		return nil, internal("failed to get account", err)
	}
	if account == nil {
		return ContextualResult[*AccountInfoResult]{Context: h.context()}, nil
	}

	data, err := EncodeAccountData(SliceData(account.Data, options.DataSlice), options.Encoding)
	if err != nil {
		return nil, NewRPCError(UnsupportedEncoding, err.Error())
	}
	return ContextualResult[*AccountInfoResult]{
		Context: h.context(),
		Value: &AccountInfoResult{
			Lamports:   uint64(account.Lamports),
			Data:       data,
			Owner:      account.Owner.String(),
			Executable: account.Executable,
			Space:      uint64(len(account.Data)),
		},
	}, nil
}

// Params: [pubkey]
func (h *Handlers) handleGetBalance(_ context.Context, params json.RawMessage) (any, *RPCError) {
	raw, rpcErr := parseParams(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pubkey, rpcErr := parsePubkey(raw[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	balance, err := h.bank.GetBalance(pubkey)
	if err != nil {
		return nil, internal("failed to get balance", err)
	}
	return ContextualResult[uint64]{Context: h.context(), Value: uint64(balance)}, nil
}

func (h *Handlers) readMint(pubkey types.Pubkey) (*token.Mint, *RPCError) {
	acc, err := h.bank.GetAccount(pubkey)
	if err != nil {
		return nil, internal("failed to get mint", err)
	}
	if acc == nil {
		return nil, NewRPCError(AccountNotFound, fmt.Sprintf("mint not found: %s", pubkey))
	}
	mint, err := token.ReadMint(acc)
	if err != nil {
		return nil, NewRPCError(InvalidParams, fmt.Sprintf("not a mint: %s: %v", pubkey, err))
	}
	return mint, nil
}

func tokenAmount(amount uint64, decimals uint8) TokenAmountResult {
	return TokenAmountResult{
		Amount:         fmt.Sprintf("%d", amount),
		Decimals:       decimals,
		UIAmountString: FormatTokenAmount(amount, decimals),
	}
}

// Params: [token account]
func (h *Handlers) handleGetTokenAccountBalance(_ context.Context, params json.RawMessage) (any, *RPCError) {
	raw, rpcErr := parseParams(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pubkey, rpcErr := parsePubkey(raw[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	acc, err := h.bank.GetAccount(pubkey)
	if err != nil {
		return nil, internal("failed to get account", err)
	}
	if acc == nil {
		return nil, NewRPCError(AccountNotFound, fmt.Sprintf("token account not found: %s", pubkey))
	}
	holding, err := token.ReadTokenAccount(acc)
	if err != nil {
		return nil, NewRPCError(InvalidParams, fmt.Sprintf("not a token account: %s: %v", pubkey, err))
	}
	mint, rpcErr := h.readMint(holding.Mint)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return ContextualResult[TokenAmountResult]{Context: h.context(), Value: tokenAmount(holding.Amount, mint.Decimals)}, nil
}

// Params: [mint]
func (h *Handlers) handleGetTokenSupply(_ context.Context, params json.RawMessage) (any, *RPCError) {
	raw, rpcErr := parseParams(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pubkey, rpcErr := parsePubkey(raw[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	mint, rpcErr := h.readMint(pubkey)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return ContextualResult[TokenAmountResult]{Context: h.context(), Value: tokenAmount(mint.Supply, mint.Decimals)}, nil
}

// Params: [stake mint]
func (h *Handlers) handleGetPoolState(_ context.Context, params json.RawMessage) (any, *RPCError) {
	raw, rpcErr := parseParams(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	stakeMint, rpcErr := parsePubkey(raw[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	pool, _, err := staker.FindPool(stakeMint)
	if err != nil {
		return nil, internal("failed to derive pool", err)
	}
	acc, err := h.bank.GetAccount(pool)
	if err != nil {
		return nil, internal("failed to get pool", err)
	}
	if acc == nil {
		return ContextualResult[*PoolStateResult]{Context: h.context()}, nil
	}
	state, err := staker.ReadPoolState(acc)
	if err != nil {
		return nil, internal("failed to decode pool", err)
	}

	result := &PoolStateResult{
		Address:       pool.String(),
		Admin:         state.Admin.String(),
		StakeMint:     state.StakeMint.String(),
		PositionMint:  state.PosMint.String(),
		Vault:         state.Vault.String(),
		Bump:          state.Bump,
		VaultBump:     state.VaultBump,
		VaultAuthBump: state.VaultAuthBump,
		MintAuthBump:  state.MintAuthBump,
		PosMintBump:   state.PosMintBump,
	}
	if vault, err := h.bank.GetAccount(state.Vault); err == nil && vault != nil {
		if holding, err := token.ReadTokenAccount(vault); err == nil {
			result.VaultBalance = holding.Amount
		}
	}
	if mint, rpcErr := h.readMint(state.PosMint); rpcErr == nil {
		result.PositionSupply = mint.Supply
	}
	return ContextualResult[*PoolStateResult]{Context: h.context(), Value: result}, nil
}

// Params: none
func (h *Handlers) handleGetStateHash(context.Context, json.RawMessage) (any, *RPCError) {
	hash, err := h.bank.StateHash()
	if err != nil {
		return nil, internal("failed to compute state hash", err)
	}
	return StateHashResult{
		Hash:     hash.String(),
		Slot:     uint64(h.bank.Slot()),
		Accounts: h.bank.AccountsCount(),
	}, nil
}

// Params: [pubkey, lamports]
func (h *Handlers) handleRequestAirdrop(ctx context.Context, params json.RawMessage) (any, *RPCError) {
	raw, rpcErr := parseParams(params, 2)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pubkey, rpcErr := parsePubkey(raw[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	var lamports uint64
	if err := json.Unmarshal(raw[1], &lamports); err != nil {
		return nil, NewRPCError(InvalidParams, "invalid lamports parameter")
	}

	if _, err := h.bank.Airdrop(ctx, pubkey, lamports); err != nil {
		if errors.Is(err, bank.ErrAirdropDisabled) || errors.Is(err, bank.ErrAirdropTooLarge) {
			return nil, NewRPCError(AirdropError, err.Error())
		}
		return nil, internal("airdrop failed", err)
	}
	return types.Signature{}.String(), nil
}

// Params: [encoded transaction, {encoding}]
func (h *Handlers) handleSendTransaction(ctx context.Context, params json.RawMessage) (any, *RPCError) {
	raw, rpcErr := parseParams(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var encoded string
	if err := json.Unmarshal(raw[0], &encoded); err != nil {
		return nil, NewRPCError(InvalidParams, "invalid transaction parameter")
	}
	var options SendTransactionOptions
	if len(raw) > 1 {
		if err := json.Unmarshal(raw[1], &options); err != nil {
			return nil, NewRPCError(InvalidParams, "invalid options")
		}
	}

	wire, err := DecodeTransaction(encoded, options.Encoding)
	if err != nil {
		return nil, NewRPCError(InvalidParams, fmt.Sprintf("failed to decode transaction: %v", err))
	}
	tx, err := types.DeserializeTransaction(wire)
	if err != nil {
		return nil, NewRPCError(InvalidParams, fmt.Sprintf("failed to deserialize transaction: %v", err))
	}

	res, err := h.bank.ExecuteTransaction(ctx, tx)
	if err != nil {
		data := &TransactionErrorData{Logs: res.Logs}
		if data.Logs == nil {
			data.Logs = []string{}
		}
		data.Err = programErrorData(err)
		return nil, &RPCError{
			Code:    SendTransactionError,
			Message: "transaction failed: " + err.Error(),
			Data:    data,
		}
	}
	return res.Signature.String(), nil
}

func programErrorData(err error) *ProgramErrorData {
	pe, ok := staker.AsProgramError(err)
	if !ok {
		return nil
	}
	data := &ProgramErrorData{Code: pe.Code, Name: pe.Name, Message: pe.Msg}
	if c := pe.Category(); c != pe {
		data.Category = c.Name
	}
	return data
}
