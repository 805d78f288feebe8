// Package rpc provides a JSON-RPC 2.0 server and client for the staker
// ledger.
package rpc

import (
	"encoding/json"
)

// JSON-RPC 2.0 constants
const (
	JSONRPCVersion = "2.0"
)

// Standard JSON-RPC 2.0 error codes
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603

	// Ledger error codes
	SendTransactionError = -32002
	AirdropError         = -32003
	AccountNotFound      = -32004
	UnsupportedEncoding  = -32011
)

// RPCRequest represents a JSON-RPC 2.0 request.
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id"`
}

// RPCResponse represents a JSON-RPC 2.0 response.
type RPCResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
	ID      any       `json:"id"`
}

// RPCError represents a JSON-RPC 2.0 error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return e.Message
}

// NewRPCError creates a new RPC error.
func NewRPCError(code int, message string) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
	}
}

// TransactionErrorData is the data of a sendTransaction failure.
type TransactionErrorData struct {
	Err  *ProgramErrorData `json:"err,omitempty"`
	Logs []string          `json:"logs"`
}

// ProgramErrorData identifies a staker program error.
// Category names the broad error class when Name is a detailed error.
type ProgramErrorData struct {
	Code     uint32 `json:"code"`
	Name     string `json:"name"`
	Message  string `json:"message"`
	Category string `json:"category,omitempty"`
}

// Context represents the response context containing slot info.
type Context struct {
	Slot uint64 `json:"slot"`
}

// ContextualResult wraps a result with context.
type ContextualResult[T any] struct {
	Context Context `json:"context"`
	Value   T       `json:"value"`
}

// AccountInfoResult represents the result of getAccountInfo.
type AccountInfoResult struct {
	Lamports   uint64    `json:"lamports"`
	Data       [2]string `json:"data"` // [data, encoding]
	Owner      string    `json:"owner"`
	Executable bool      `json:"executable"`
	Space      uint64    `json:"space"`
}

// VersionResult represents the result of getVersion.
type VersionResult struct {
	StakerCore string `json:"staker-core"`
}

// BlockhashResult represents a blockhash with context.
type BlockhashResult struct {
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// TokenAmountResult is the value of getTokenAccountBalance and getTokenSupply.
type TokenAmountResult struct {
	Amount         string `json:"amount"`
	Decimals       uint8  `json:"decimals"`
	UIAmountString string `json:"uiAmountString"`
}

// PoolStateResult is the value of getPoolState.
type PoolStateResult struct {
	Address        string `json:"address"`
	Admin          string `json:"admin"`
	StakeMint      string `json:"stakeMint"`
	PositionMint   string `json:"positionMint"`
	Vault          string `json:"vault"`
	Bump           uint8  `json:"bump"`
	VaultBump      uint8  `json:"vaultBump"`
	VaultAuthBump  uint8  `json:"vaultAuthBump"`
	MintAuthBump   uint8  `json:"mintAuthBump"`
	PosMintBump    uint8  `json:"posMintBump"`
	VaultBalance   uint64 `json:"vaultBalance"`
	PositionSupply uint64 `json:"positionSupply"`
}

// StateHashResult is the result of getStateHash.
type StateHashResult struct {
	Hash     string `json:"hash"`
	Slot     uint64 `json:"slot"`
	Accounts uint64 `json:"accounts"`
}

// AccountInfoOptions represents optional parameters for getAccountInfo.
type AccountInfoOptions struct {
	Encoding  string     `json:"encoding,omitempty"` // base58, base64, base64+zstd
	DataSlice *DataSlice `json:"dataSlice,omitempty"`
}

// DataSlice represents a slice of account data.
type DataSlice struct {
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
}

// SendTransactionOptions represents optional parameters for sendTransaction.
type SendTransactionOptions struct {
	Encoding string `json:"encoding,omitempty"` // base58 or base64
}
