package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-staker/pkg/accounts"
	"github.com/fortiblox/x1-staker/pkg/bank"
	"github.com/fortiblox/x1-staker/pkg/client"
	"github.com/fortiblox/x1-staker/pkg/crypto"
	"github.com/fortiblox/x1-staker/pkg/svm/programs/staker"
	"github.com/fortiblox/x1-staker/pkg/types"
)

func newTestServer(t *testing.T, configure ...func(*ServerConfig)) (*httptest.Server, *bank.Bank) {
	t.Helper()
	b := bank.New(accounts.NewMemoryDB(), bank.WithAirdrops(bank.DefaultMaxAirdrop))
	t.Cleanup(func() { _ = b.Close() })

	cfg := DefaultServerConfig()
	for _, fn := range configure {
		fn(cfg)
	}
	ts := httptest.NewServer(NewServer(cfg, b).Handler())
	t.Cleanup(ts.Close)
	return ts, b
}

func rawCall(t *testing.T, url, body string) (int, map[string]any) {
	t.Helper()
	res, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer res.Body.Close()
	var out map[string]any
	if res.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	}
	return res.StatusCode, out
}

func TestServer_Protocol(t *testing.T) {
	ts, _ := newTestServer(t)

	_, out := rawCall(t, ts.URL, `{"jsonrpc":"2.0","id":1,"method":"getHealth"}`)
	assert.Equal(t, "ok", out["result"])

	_, out = rawCall(t, ts.URL, `{"jsonrpc":"2.0","id":2,"method":"nope"}`)
	assert.Equal(t, float64(MethodNotFound), out["error"].(map[string]any)["code"])

	_, out = rawCall(t, ts.URL, `{"jsonrpc":"1.0","id":3,"method":"getHealth"}`)
	assert.Equal(t, float64(InvalidRequest), out["error"].(map[string]any)["code"])

	_, out = rawCall(t, ts.URL, `{not json`)
	assert.Equal(t, float64(ParseError), out["error"].(map[string]any)["code"])

	_, out = rawCall(t, ts.URL, `{"jsonrpc":"2.0","id":4,"method":"getBalance","params":["bad"]}`)
	assert.Equal(t, float64(InvalidParams), out["error"].(map[string]any)["code"])

	res, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestServer_Batch(t *testing.T) {
	ts, _ := newTestServer(t)

	res, err := http.Post(ts.URL, "application/json", bytes.NewBufferString(
		`[{"jsonrpc":"2.0","id":1,"method":"getSlot"},{"jsonrpc":"2.0","method":"getHealth"},{"jsonrpc":"2.0","id":2,"method":"getVersion"}]`))
	require.NoError(t, err)
	defer res.Body.Close()

	var out []map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	require.Len(t, out, 2, "notifications get no response")
	assert.Equal(t, float64(0), out[0]["result"])
	assert.Equal(t, Version, out[1]["result"].(map[string]any)["staker-core"])
}

func TestServer_CORS(t *testing.T) {
	ts, _ := newTestServer(t, func(c *ServerConfig) {
		c.AllowedOrigins = []string{"https://app.example"}
	})

	req, err := http.NewRequest(http.MethodOptions, ts.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, "https://app.example", res.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_RateLimit(t *testing.T) {
	ts, _ := newTestServer(t, func(c *ServerConfig) {
		c.EnableRateLimit = true
		c.RateLimitRPS = 0.001
		c.RateLimitBurst = 2
	})

	body := `{"jsonrpc":"2.0","id":1,"method":"getHealth"}`
	for range 2 {
		code, _ := rawCall(t, ts.URL, body)
		assert.Equal(t, http.StatusOK, code)
	}
	code, _ := rawCall(t, ts.URL, body)
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestServer_RateLimitIgnoresForwardedFor(t *testing.T) {
	body := `{"jsonrpc":"2.0","id":1,"method":"getHealth"}`
	post := func(url, forwarded string) int {
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewBufferString(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", forwarded)
		res, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		res.Body.Close()
		return res.StatusCode
	}
	limited := func(c *ServerConfig) {
		c.EnableRateLimit = true
		c.RateLimitRPS = 0.001
		c.RateLimitBurst = 1
	}

	ts, _ := newTestServer(t, limited)
	assert.Equal(t, http.StatusOK, post(ts.URL, "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, post(ts.URL, "10.0.0.2"), "spoofed header shares the peer's bucket")

	ts, _ = newTestServer(t, limited, func(c *ServerConfig) { c.TrustProxy = true })
	assert.Equal(t, http.StatusOK, post(ts.URL, "10.0.0.1"))
	assert.Equal(t, http.StatusOK, post(ts.URL, "10.0.0.2"))
	assert.Equal(t, http.StatusTooManyRequests, post(ts.URL, "10.0.0.1"))
}

func TestIPRateLimiter_EvictsIdle(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := newIPRateLimiter(0.001, 1)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
	assert.True(t, l.allow("b"))

	now = now.Add(limiterTTL + time.Second)
	assert.True(t, l.allow("a"), "idle limiter was evicted")
	assert.Len(t, l.limiters, 1)
}

func TestIPRateLimiter_SweepsPeriodically(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := newIPRateLimiter(0.001, 1)
	l.now = func() time.Time { return now }

	l.allow("a")
	now = now.Add(limiterTTL / 2)
	l.allow("b")
	assert.Len(t, l.limiters, 2)

	now = now.Add(limiterTTL/2 + time.Second)
	l.allow("c")
	assert.NotContains(t, l.limiters, "a")
	assert.Len(t, l.limiters, 2)

	// b is idle past the TTL, but the next sweep is not due yet.
	now = now.Add(limiterTTL / 2)
	l.allow("d")
	assert.Contains(t, l.limiters, "b")
	assert.Len(t, l.limiters, 3)

	now = now.Add(limiterTTL/2 + time.Second)
	l.allow("d")
	assert.Equal(t, []string{"d"}, keys(l.limiters))
}

func keys(m map[string]*clientLimiter) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestProgramErrorData(t *testing.T) {
	data := programErrorData(fmt.Errorf("instruction 0: %w", staker.ErrVaultMismatch))
	require.NotNil(t, data)
	assert.Equal(t, staker.ErrVaultMismatch.Code, data.Code)
	assert.Equal(t, "VaultMismatch", data.Name)
	assert.Equal(t, "AccountMismatch", data.Category)

	data = programErrorData(staker.ErrInsufficientFunds)
	require.NotNil(t, data)
	assert.Empty(t, data.Category, "classes carry no category")

	assert.Nil(t, programErrorData(errors.New("blockhash not found")))
}

func TestClient_StakingFlowOverHTTP(t *testing.T) {
	ctx := context.Background()
	ts, b := newTestServer(t)
	rc := NewClient(ts.URL, WithRetry(2, time.Millisecond))

	require.NoError(t, rc.Health(ctx))

	payer := crypto.MustNewKeypair()
	c := client.New(rc, payer, nil)
	require.NoError(t, c.Airdrop(ctx, payer.Pubkey(), 10_000_000_000))

	authority := crypto.MustNewKeypair()
	mint := crypto.MustNewKeypair()
	_, err := c.CreateMint(ctx, mint, 6, authority.Pubkey())
	require.NoError(t, err)
	addrs, _, err := c.InitializePool(ctx, mint.Pubkey())
	require.NoError(t, err)

	user := crypto.MustNewKeypair()
	require.NoError(t, c.Airdrop(ctx, user.Pubkey(), 1_000_000_000))
	u, _, err := c.RegisterStake(ctx, mint.Pubkey(), user)
	require.NoError(t, err)
	_, err = c.MintTo(ctx, mint.Pubkey(), u.StakeAccount, authority, 2_500_000)
	require.NoError(t, err)

	sig, err := c.Stake(ctx, mint.Pubkey(), user, 1_500_000)
	require.NoError(t, err)
	assert.True(t, b.HasProcessed(sig))

	pool, err := rc.GetPoolState(ctx, mint.Pubkey())
	require.NoError(t, err)
	require.NotNil(t, pool)
	assert.Equal(t, addrs.Pool.String(), pool.Address)
	assert.Equal(t, payer.Pubkey().String(), pool.Admin)
	assert.Equal(t, uint64(1_500_000), pool.VaultBalance)
	assert.Equal(t, uint64(1_500_000), pool.PositionSupply)

	b.AdvanceBlockhash()
	_, err = c.Unstake(ctx, mint.Pubkey(), user, 2_000_000)
	require.ErrorIs(t, err, staker.ErrInsufficientFunds)
	var txErr *client.TransactionError
	require.ErrorAs(t, err, &txErr)
	assert.NotEmpty(t, txErr.Logs)

	stake, err := c.TokenBalance(ctx, u.StakeAccount)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), stake)

	remote, err := rc.GetStateHash(ctx)
	require.NoError(t, err)
	local, err := b.StateHash()
	require.NoError(t, err)
	assert.Equal(t, local.String(), remote.Hash)
}

func TestClient_TokenQueries(t *testing.T) {
	ctx := context.Background()
	ts, b := newTestServer(t)
	rc := NewClient(ts.URL)

	payer := crypto.MustNewKeypair()
	c := client.New(client.NewLocalSender(b), payer, nil)
	require.NoError(t, c.Airdrop(ctx, payer.Pubkey(), 10_000_000_000))
	mint := crypto.MustNewKeypair()
	_, err := c.CreateMint(ctx, mint, 2, payer.Pubkey())
	require.NoError(t, err)

	var supply ContextualResult[TokenAmountResult]
	require.NoError(t, rc.Call(ctx, "getTokenSupply", []any{mint.Pubkey().String()}, &supply))
	assert.Equal(t, "0", supply.Value.Amount)
	assert.Equal(t, "0.00", supply.Value.UIAmountString)

	acc, err := rc.GetAccount(ctx, mint.Pubkey())
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, types.TokenProgramID, acc.Owner)
	local, err := b.GetAccount(mint.Pubkey())
	require.NoError(t, err)
	assert.Equal(t, local.Data, acc.Data)

	missing, err := rc.GetAccount(ctx, crypto.MustNewKeypair().Pubkey())
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = rc.RequestAirdrop(ctx, payer.Pubkey(), bank.DefaultMaxAirdrop+1)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, AirdropError, rpcErr.Code)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"ok"}`))
	}))
	defer ts.Close()

	rc := NewClient(ts.URL, WithRetry(5, time.Millisecond))
	require.NoError(t, rc.Health(context.Background()))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "too large", http.StatusRequestEntityTooLarge)
	}))
	defer ts.Close()

	rc := NewClient(ts.URL, WithRetry(5, time.Millisecond))
	require.Error(t, rc.Health(context.Background()))
	assert.Equal(t, int32(1), attempts.Load())
}

func TestEncoding(t *testing.T) {
	data := bytes.Repeat([]byte{7, 0, 0, 1}, 100)
	for _, enc := range []string{EncodingBase64, EncodingBase64Zstd} {
		encoded, err := EncodeAccountData(data, enc)
		require.NoError(t, err)
		assert.Equal(t, enc, encoded[1])
		decoded, err := DecodeAccountData(encoded[0], encoded[1])
		require.NoError(t, err)
		assert.Equal(t, data, decoded)
	}

	_, err := EncodeAccountData(data, EncodingBase58)
	require.Error(t, err, "base58 is limited to small accounts")
	_, err = EncodeAccountData(data, "jsonParsed")
	require.Error(t, err)

	assert.Equal(t, []byte{3, 4}, SliceData([]byte{1, 2, 3, 4}, &DataSlice{Offset: 2, Length: 10}))
	assert.Empty(t, SliceData([]byte{1, 2}, &DataSlice{Offset: 5, Length: 1}))

	assert.Equal(t, "1.500000", FormatTokenAmount(1_500_000, 6))
	assert.Equal(t, "42", FormatTokenAmount(42, 0))
}
