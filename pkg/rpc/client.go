package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ssgreg/repeat"

	"github.com/fortiblox/x1-staker/pkg/client"
	"github.com/fortiblox/x1-staker/pkg/svm/programs/staker"
	"github.com/fortiblox/x1-staker/pkg/types"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for calls.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithRetry sets how many attempts a call gets and the base backoff delay.
func WithRetry(maxTries int, baseDelay time.Duration) ClientOption {
	return func(c *Client) {
		c.maxTries = max(maxTries, 1)
		c.baseDelay = baseDelay
	}
}

// WithClientLogger sets the logger for retry warnings.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// Client is a JSON-RPC client for the staker ledger. It implements
// client.Sender.
type Client struct {
	url       string
	http      *http.Client
	maxTries  int
	baseDelay time.Duration
	log       *slog.Logger
	nextID    atomic.Uint64
}

var _ client.Sender = (*Client)(nil)

// NewClient creates a client for the server at url.
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url:       url,
		http:      &http.Client{Timeout: 30 * time.Second},
		maxTries:  5,
		baseDelay: 200 * time.Millisecond,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type wireError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type wireResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *wireError      `json:"error"`
}

// Call invokes method and decodes its result into out. Transport failures,
// 5xx and 429 responses are retried with jittered backoff; RPC errors are
// returned as *RPCError without retrying.
func (c *Client) Call(ctx context.Context, method string, params []any, out any) error {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(map[string]any{
		"jsonrpc": JSONRPCVersion,
		"id":      c.nextID.Add(1),
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	var resp wireResponse
	var lastErr error
	err = repeat.Repeat(
		repeat.Fn(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			resp, lastErr = c.post(ctx, body)
			if lastErr != nil && retryable(lastErr) {
				return repeat.HintTemporary(lastErr)
			}
			return lastErr
		}),
		repeat.StopOnSuccess(),
		repeat.LimitMaxTries(c.maxTries),
		repeat.FnOnError(func(err error) error {
			c.log.Warn("retrying rpc call", "method", method, "error", err)
			return err
		}),
		repeat.WithDelay(
			(&repeat.FullJitterBackoffBuilder{
				BaseDelay: c.baseDelay,
				MaxDelay:  10 * c.baseDelay,
			}).Set(),
		),
	)
	if err != nil {
		if lastErr != nil {
			return fmt.Errorf("%s: %w", method, lastErr)
		}
		return fmt.Errorf("%s: %w", method, err)
	}

	if resp.Error != nil {
		rpcErr := &RPCError{Code: resp.Error.Code, Message: resp.Error.Message}
		if len(resp.Error.Data) > 0 {
			rpcErr.Data = resp.Error.Data
		}
		return rpcErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.code, e.body)
}

func retryable(err error) bool {
	se, ok := err.(*statusError)
	return !ok || se.code == http.StatusTooManyRequests || se.code >= http.StatusInternalServerError
}

func (c *Client) post(ctx context.Context, body []byte) (wireResponse, error) {
	var resp wireResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return resp, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return resp, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return resp, &statusError{code: res.StatusCode, body: string(bytes.TrimSpace(msg))}
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return resp, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// LatestBlockhash returns the newest blockhash.
func (c *Client) LatestBlockhash(ctx context.Context) (types.Hash, error) {
	var res ContextualResult[BlockhashResult]
	if err := c.Call(ctx, "getLatestBlockhash", nil, &res); err != nil {
		return types.Hash{}, err
	}
	return types.HashFromBase58(res.Value.Blockhash)
}

// remoteError carries the server's message while unwrapping to the staker
// error it names.
type remoteError struct {
	msg   string
	cause error
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.cause }

// SendTransaction submits a signed transaction. Rejections are returned as
// *client.TransactionError; staker program failures unwrap to the matching
// *staker.ProgramError.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) (types.Signature, error) {
	wire, err := tx.Serialize()
	if err != nil {
		return types.Signature{}, err
	}
	encoded, _ := EncodeTransaction(wire, EncodingBase64)

	var sig string
	err = c.Call(ctx, "sendTransaction", []any{encoded, SendTransactionOptions{Encoding: EncodingBase64}}, &sig)
	if err != nil {
		return tx.ID(), txError(tx.ID(), err)
	}
	return types.SignatureFromBase58(sig)
}

func txError(sig types.Signature, err error) error {
	rpcErr, ok := err.(*RPCError)
	if !ok || rpcErr.Code != SendTransactionError {
		return err
	}
	txErr := &client.TransactionError{Signature: sig, Err: rpcErr}
	raw, ok := rpcErr.Data.(json.RawMessage)
	if !ok {
		return txErr
	}
	var data TransactionErrorData
	if json.Unmarshal(raw, &data) != nil {
		return txErr
	}
	txErr.Logs = data.Logs
	if data.Err != nil {
		if pe, ok := staker.ErrorByCode(data.Err.Code); ok {
			txErr.Err = &remoteError{msg: rpcErr.Message, cause: pe}
		}
	}
	return txErr
}

// GetAccount returns the account at pubkey, or nil if it does not exist.
func (c *Client) GetAccount(ctx context.Context, pubkey types.Pubkey) (*types.Account, error) {
	var res ContextualResult[*AccountInfoResult]
	opts := AccountInfoOptions{Encoding: EncodingBase64Zstd}
	if err := c.Call(ctx, "getAccountInfo", []any{pubkey.String(), opts}, &res); err != nil {
		return nil, err
	}
	if res.Value == nil {
		return nil, nil
	}
	data, err := DecodeAccountData(res.Value.Data[0], res.Value.Data[1])
	if err != nil {
		return nil, fmt.Errorf("decode account %s: %w", pubkey, err)
	}
	owner, err := types.PubkeyFromBase58(res.Value.Owner)
	if err != nil {
		return nil, err
	}
	return &types.Account{
		Lamports:   types.Lamports(res.Value.Lamports),
		Data:       data,
		Owner:      owner,
		Executable: res.Value.Executable,
	}, nil
}

// RequestAirdrop asks the server's faucet for lamports.
func (c *Client) RequestAirdrop(ctx context.Context, pubkey types.Pubkey, lamports uint64) (types.Signature, error) {
	var sig string
	if err := c.Call(ctx, "requestAirdrop", []any{pubkey.String(), lamports}, &sig); err != nil {
		return types.Signature{}, err
	}
	return types.SignatureFromBase58(sig)
}

// GetBalance returns the lamports held by pubkey.
func (c *Client) GetBalance(ctx context.Context, pubkey types.Pubkey) (uint64, error) {
	var res ContextualResult[uint64]
	if err := c.Call(ctx, "getBalance", []any{pubkey.String()}, &res); err != nil {
		return 0, err
	}
	return res.Value, nil
}

// GetPoolState returns the pool for stakeMint, or nil if there is none.
func (c *Client) GetPoolState(ctx context.Context, stakeMint types.Pubkey) (*PoolStateResult, error) {
	var res ContextualResult[*PoolStateResult]
	if err := c.Call(ctx, "getPoolState", []any{stakeMint.String()}, &res); err != nil {
		return nil, err
	}
	return res.Value, nil
}

// GetStateHash returns the server's state hash.
func (c *Client) GetStateHash(ctx context.Context) (*StateHashResult, error) {
	var res StateHashResult
	if err := c.Call(ctx, "getStateHash", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Health returns nil when the server reports ok.
func (c *Client) Health(ctx context.Context) error {
	var status string
	if err := c.Call(ctx, "getHealth", nil, &status); err != nil {
		return err
	}
	if status != "ok" {
		return fmt.Errorf("unhealthy: %s", status)
	}
	return nil
}
