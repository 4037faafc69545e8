package purchase_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessella/bazaar/internal/catalog"
	"github.com/tessella/bazaar/internal/ledger"
	"github.com/tessella/bazaar/internal/listing"
	"github.com/tessella/bazaar/internal/market"
	"github.com/tessella/bazaar/internal/purchase"
	"github.com/tessella/bazaar/internal/session"
	"github.com/tessella/bazaar/internal/testutil"
	"github.com/tessella/bazaar/internal/trace"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticSource struct{ sess *session.Session }

func (s staticSource) Current() (*session.Session, bool) { return s.sess, s.sess != nil }

// world bundles the collaborators for one buyer account.
type world struct {
	ledger  *testutil.FakeLedger
	store   *testutil.FakeStore
	manager *session.Manager
	loader  *catalog.Loader
}

func newWorld(t *testing.T, buyer string, balance int64) *world {
	t.Helper()
	l := testutil.NewFakeLedger()
	l.SetBalance(buyer, big.NewInt(balance))
	store := testutil.NewFakeStore()

	provider := testutil.NewFakeProvider(l, 31337, buyer)
	mgr := session.NewManager(provider,
		session.BinderFunc(func(account string, chainID uint64) (ledger.Registry, ledger.Market, error) {
			return l.Registry(account), l.Market(account), nil
		}),
		session.WithLogger(quietLogger()),
	)
	_, err := mgr.Connect(context.Background())
	require.NoError(t, err)

	return &world{
		ledger:  l,
		store:   store,
		manager: mgr,
		loader:  catalog.New(mgr, store, catalog.WithLogger(quietLogger())),
	}
}

func (w *world) pipeline(opts ...purchase.Option) *purchase.Pipeline {
	opts = append([]purchase.Option{purchase.WithLogger(quietLogger())}, opts...)
	return purchase.New(w.manager, w.manager, w.loader, opts...)
}

// seed lists one asset for the seller and returns its catalog entry.
func (w *world) seed(t *testing.T, seller, name string, price int64) market.CatalogEntry {
	t.Helper()
	src := staticSource{sess: &session.Session{
		Account:  seller,
		ChainID:  31337,
		Registry: w.ledger.Registry(seller),
		Market:   w.ledger.Market(seller),
	}}
	p := listing.New(src, w.store, listing.WithLogger(quietLogger()))
	id, err := p.Create(context.Background(), listing.Input{
		Name:        name,
		Description: "about " + name,
		Price:       big.NewInt(price),
		Binary:      strings.NewReader("bytes-of-" + name),
	})
	require.NoError(t, err)

	entries, err := w.loader.Load(context.Background())
	require.NoError(t, err)
	for _, e := range entries {
		if e.ID == id {
			return e
		}
	}
	t.Fatalf("listing %d not in catalog", id)
	return market.CatalogEntry{}
}

func TestBuy_SettlesAndRefreshes(t *testing.T) {
	w := newWorld(t, "0xbuyer", 5000)
	entry := w.seed(t, "0xseller", "Nebula", 1000)

	receipt, err := w.pipeline().Buy(context.Background(), entry)
	require.NoError(t, err)
	require.NotNil(t, receipt)

	assert.Equal(t, entry.ID, receipt.ListingID)
	assert.Equal(t, "0xbuyer", receipt.Buyer)
	assert.NotEmpty(t, receipt.TxRef)
	require.NoError(t, receipt.RefreshErr)

	// The refreshed catalog no longer carries the settled listing.
	require.NotNil(t, receipt.Catalog)
	assert.False(t, receipt.Catalog.Contains(entry.ID))

	// Balance was re-queried from the ledger after the debit.
	expected := new(big.Int).Sub(big.NewInt(5000), entry.TotalPrice)
	assert.Equal(t, expected, receipt.Balance)

	items := w.ledger.Items()
	assert.True(t, items[entry.ID-1].Sold)
	assert.Equal(t, "0xbuyer", items[entry.ID-1].Buyer)
}

func TestBuy_InsufficientFundsIssuesNoTransaction(t *testing.T) {
	w := newWorld(t, "0xbuyer", 100)
	entry := w.seed(t, "0xseller", "Nebula", 1000)

	receipt, err := w.pipeline().Buy(context.Background(), entry)
	require.Error(t, err)
	assert.True(t, market.IsInsufficientFunds(err))
	assert.Nil(t, receipt)

	// Zero transactions issued: nothing settled, nothing debited.
	assert.False(t, w.ledger.Items()[entry.ID-1].Sold)
	assert.Equal(t, big.NewInt(100), w.ledger.BalanceOf("0xbuyer"))
}

func TestBuy_ExactBalanceSucceeds(t *testing.T) {
	w := newWorld(t, "0xbuyer", 1010) // price 1000 + 1% fee
	entry := w.seed(t, "0xseller", "Nebula", 1000)
	require.Equal(t, big.NewInt(1010), entry.TotalPrice)

	receipt, err := w.pipeline().Buy(context.Background(), entry)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(0), receipt.Balance)
}

func TestBuy_RejectionSurfacesTxError(t *testing.T) {
	w := newWorld(t, "0xbuyer", 5000)
	entry := w.seed(t, "0xseller", "Nebula", 1000)
	w.ledger.FailPurchase = errors.New("execution reverted")

	receipt, err := w.pipeline().Buy(context.Background(), entry)
	require.Error(t, err)
	assert.True(t, market.IsTx(err))
	assert.ErrorContains(t, err, "execution reverted")
	assert.Nil(t, receipt)
	assert.False(t, w.ledger.Items()[entry.ID-1].Sold)
}

func TestBuy_AlreadySettledListing(t *testing.T) {
	w := newWorld(t, "0xbuyer", 5000)
	entry := w.seed(t, "0xseller", "Nebula", 1000)

	// Another buyer settles between catalog load and purchase; the stale
	// entry is caught at confirmation time, not prevented.
	w.ledger.SetBalance("0xrival", big.NewInt(5000))
	rival := w.ledger.Market("0xrival")
	total, err := rival.TotalPrice(context.Background(), entry.ID)
	require.NoError(t, err)
	tx, err := rival.Purchase(context.Background(), entry.ID, total)
	require.NoError(t, err)
	_, err = tx.Wait(context.Background())
	require.NoError(t, err)

	receipt, err := w.pipeline().Buy(context.Background(), entry)
	require.Error(t, err)
	assert.True(t, market.IsTx(err))
	assert.ErrorContains(t, err, "already sold")
	assert.Nil(t, receipt)
}

func TestBuy_RefreshFailureDoesNotConflateOutcomes(t *testing.T) {
	w := newWorld(t, "0xbuyer", 5000)
	entry := w.seed(t, "0xseller", "Nebula", 1000)

	// The settlement will confirm, then the catalog reload will fail.
	w.store.FetchErr = errors.New("gateway down")

	receipt, err := w.pipeline().Buy(context.Background(), entry)

	// Settlement occurred, so the purchase reports success...
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.True(t, w.ledger.Items()[entry.ID-1].Sold)

	// ...while the refresh failure is signaled separately.
	require.Error(t, receipt.RefreshErr)
	assert.True(t, market.IsSync(receipt.RefreshErr))
	assert.Nil(t, receipt.Catalog)
	assert.Nil(t, receipt.Balance)
}

func TestBuy_BalanceReadFailure(t *testing.T) {
	w := newWorld(t, "0xbuyer", 5000)
	entry := w.seed(t, "0xseller", "Nebula", 1000)

	// Balance becomes unreadable after the session is established.
	provider := testutil.NewFakeProvider(w.ledger, 31337, "0xbuyer")
	provider.BalanceErr = errors.New("rpc unavailable")
	mgr := session.NewManager(provider,
		session.BinderFunc(func(account string, chainID uint64) (ledger.Registry, ledger.Market, error) {
			return w.ledger.Registry(account), w.ledger.Market(account), nil
		}),
		session.WithLogger(quietLogger()),
	)
	_, err := mgr.Connect(context.Background())
	require.NoError(t, err)

	p := purchase.New(mgr, mgr, w.loader, purchase.WithLogger(quietLogger()))
	_, err = p.Buy(context.Background(), entry)
	require.Error(t, err)
	assert.True(t, market.IsTx(err))
	assert.False(t, w.ledger.Items()[entry.ID-1].Sold)
}

func TestBuy_NoSession(t *testing.T) {
	w := newWorld(t, "0xbuyer", 5000)
	entry := w.seed(t, "0xseller", "Nebula", 1000)

	p := purchase.New(staticSource{}, w.manager, w.loader, purchase.WithLogger(quietLogger()))
	_, err := p.Buy(context.Background(), entry)
	assert.True(t, market.IsNoProvider(err))
}

func TestBuy_RecordsTrace(t *testing.T) {
	w := newWorld(t, "0xbuyer", 5000)
	entry := w.seed(t, "0xseller", "Nebula", 1000)

	rec, err := trace.Open(":memory:")
	require.NoError(t, err)
	defer rec.Close()

	p := w.pipeline(
		purchase.WithRecorder(rec),
		purchase.WithTokens(testutil.NewFixedTokens("run-buy-1")),
	)
	_, err = p.Buy(context.Background(), entry)
	require.NoError(t, err)

	events, err := rec.List(context.Background(), "run-buy-1")
	require.NoError(t, err)
	steps := make([]string, len(events))
	for i, ev := range events {
		steps[i] = ev.Step
		assert.Equal(t, "purchase", ev.Pipeline)
	}
	assert.Equal(t, []string{"balance", "purchase", "refresh"}, steps)
}
