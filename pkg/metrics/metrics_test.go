package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-staker/pkg/accounts"
	"github.com/fortiblox/x1-staker/pkg/bank"
	"github.com/fortiblox/x1-staker/pkg/client"
	"github.com/fortiblox/x1-staker/pkg/crypto"
	"github.com/fortiblox/x1-staker/pkg/svm/programs/staker"
	"github.com/fortiblox/x1-staker/pkg/svm/programs/token"
	"github.com/fortiblox/x1-staker/pkg/types"
)

type stakedLedger struct {
	bank      *bank.Bank
	metrics   *Metrics
	stakeMint types.Pubkey
}

// newStakedLedger runs a pool with one user who staked 700 of 1000.
func newStakedLedger(t *testing.T) *stakedLedger {
	t.Helper()
	ctx := context.Background()
	m := New()
	b := bank.New(accounts.NewMemoryDB(), bank.WithAirdrops(bank.DefaultMaxAirdrop), bank.WithObserver(m))
	t.Cleanup(func() { _ = b.Close() })

	payer := crypto.MustNewKeypair()
	c := client.New(client.NewLocalSender(b), payer, nil)
	require.NoError(t, c.Airdrop(ctx, payer.Pubkey(), 10_000_000_000))

	mint := crypto.MustNewKeypair()
	_, err := c.CreateMint(ctx, mint, 0, payer.Pubkey())
	require.NoError(t, err)
	_, _, err = c.InitializePool(ctx, mint.Pubkey())
	require.NoError(t, err)

	user := crypto.MustNewKeypair()
	require.NoError(t, c.Airdrop(ctx, user.Pubkey(), 1_000_000_000))
	u, _, err := c.RegisterStake(ctx, mint.Pubkey(), user)
	require.NoError(t, err)
	_, err = c.MintTo(ctx, mint.Pubkey(), u.StakeAccount, payer, 1_000)
	require.NoError(t, err)
	_, err = c.Stake(ctx, mint.Pubkey(), user, 700)
	require.NoError(t, err)

	b.AdvanceBlockhash()
	_, err = c.Unstake(ctx, mint.Pubkey(), user, 701)
	require.ErrorIs(t, err, staker.ErrInsufficientFunds)

	return &stakedLedger{bank: b, metrics: m, stakeMint: mint.Pubkey()}
}

func TestObserver(t *testing.T) {
	l := newStakedLedger(t)
	m := l.metrics

	assert.Equal(t, float64(5), testutil.ToFloat64(m.Transactions.WithLabelValues(ResultSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Transactions.WithLabelValues(ResultFailure)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Instructions.WithLabelValues("staker", "stake", ResultSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Instructions.WithLabelValues("staker", "unstake", ResultFailure)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ProgramErrors.WithLabelValues("InsufficientFunds")))

	mint := l.stakeMint.String()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StakeMovements.WithLabelValues(staker.EventStaked, mint)))
	assert.Equal(t, float64(700), testutil.ToFloat64(m.StakeVolume.WithLabelValues(staker.EventStaked, mint)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StakeMovements), "failed unstake emits no event")
}

func TestLedgerCollector(t *testing.T) {
	l := newStakedLedger(t)
	m := l.metrics

	c := NewLedgerCollector(m, l.bank, time.Minute, nil)
	require.NoError(t, c.Collect())

	mint := l.stakeMint.String()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PoolCount))
	assert.Equal(t, float64(700), testutil.ToFloat64(m.PoolStaked.WithLabelValues(mint)))
	assert.Equal(t, float64(700), testutil.ToFloat64(m.PoolPositions.WithLabelValues(mint)))
	assert.Equal(t, float64(l.bank.Slot()), testutil.ToFloat64(m.Slot))
	assert.Equal(t, float64(l.bank.AccountsCount()), testutil.ToFloat64(m.Accounts))
}

func TestScanPools(t *testing.T) {
	l := newStakedLedger(t)

	pools, err := ScanPools(l.bank)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	addrs, err := staker.DerivePoolAddresses(l.stakeMint)
	require.NoError(t, err)
	assert.Equal(t, addrs.Pool, pools[0].Address)
	assert.True(t, pools[0].Conserved())
}

func TestHealthChecker(t *testing.T) {
	l := newStakedLedger(t)

	h := NewHealthChecker(l.bank)
	status := h.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.True(t, status.Ready)
	assert.Contains(t, status.Checks, "accounts_store")
	assert.Contains(t, status.Checks, "pool_conservation")
	assert.NotContains(t, status.Checks, "blockhash_freshness")
}

func TestHealthChecker_PoolConservation(t *testing.T) {
	l := newStakedLedger(t)

	// Credit the vault behind the program's back.
	addrs, err := staker.DerivePoolAddresses(l.stakeMint)
	require.NoError(t, err)
	acc, err := l.bank.GetAccount(addrs.Vault)
	require.NoError(t, err)
	vault, err := token.ReadTokenAccount(acc)
	require.NoError(t, err)
	vault.Amount++
	acc.Data = vault.Serialize()
	db := accounts.NewMemoryDB()
	require.NoError(t, l.bank.ForEachAccount(func(pk types.Pubkey, a *types.Account) error {
		if pk == addrs.Vault {
			a = acc
		}
		return db.Commit([]types.AccountRef{{Pubkey: pk, Account: a}})
	}))
	tampered := bank.New(db)

	status := NewHealthChecker(tampered).Check(context.Background())
	assert.False(t, status.Healthy)
	assert.False(t, status.Checks["pool_conservation"].Healthy)
	assert.Contains(t, status.Message, "701")
}

func TestHealthChecker_Freshness(t *testing.T) {
	l := newStakedLedger(t)
	h := NewHealthChecker(l.bank, WithBlockhashFreshness(time.Second))
	now := time.Now()
	h.now = func() time.Time { return now }

	assert.True(t, h.Check(context.Background()).Healthy)

	now = now.Add(2 * time.Second)
	status := h.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.False(t, status.Checks["blockhash_freshness"].Healthy)

	l.bank.AdvanceBlockhash()
	assert.True(t, h.Check(context.Background()).Healthy)
}

func TestServer_Endpoints(t *testing.T) {
	l := newStakedLedger(t)
	h := NewHealthChecker(l.bank)
	h.Check(context.Background())

	ts := httptest.NewServer(NewServer(l.metrics, WithHealthChecker(h)).Handler())
	defer ts.Close()

	res, err := http.Get(ts.URL + DefaultMetricsPath)
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), `staker_transactions_total{result="success"} 5`)
	assert.Contains(t, string(body), "go_goroutines")

	res, err = http.Get(ts.URL + DefaultHealthPath)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(ts.URL + DefaultReadyPath)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestServer_StartStop(t *testing.T) {
	s := NewServer(New(), WithAddr("127.0.0.1:0"))
	require.NoError(t, s.Start())
	require.Error(t, s.Start())

	res, err := http.Get("http://" + s.Addr() + DefaultReadyPath)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
