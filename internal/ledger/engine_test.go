package ledger

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"gold_ledger/internal/apperr"
	"gold_ledger/internal/db"
	"gold_ledger/internal/domain"
	"gold_ledger/internal/rates"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	mock.Mock
}

// Publish implements Notifier
func (m *MockNotifier) Publish(ctx context.Context, topic string, payload any) error {
	args := m.Called(ctx, topic, payload)
	return args.Error(0)
}

// countingResolver records lookups so tests can prove validation ran first
type countingResolver struct {
	next  RateResolver
	mu    sync.Mutex
	calls int
}

func (r *countingResolver) GetActiveRate(ctx context.Context, preferLive bool) (*domain.GoldRate, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return r.next.GetActiveRate(ctx, preferLive)
}

// flippingResolver publishes a new rate right after handing out the current one
type flippingResolver struct {
	store *rates.Store
}

func (r *flippingResolver) GetActiveRate(ctx context.Context, preferLive bool) (*domain.GoldRate, error) {
	rate, err := r.store.GetActiveRate(ctx, preferLive)
	if err != nil {
		return nil, err
	}
	if _, err := r.store.SetActiveRate(ctx, d("9999"), d("9000"), 1); err != nil {
		return nil, err
	}
	return rate, nil
}

type fixture struct {
	conn   *gorm.DB
	store  *rates.Store
	engine *Engine
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.OpenSQLite("file:"+uuid.NewString()+"?mode=memory&cache=shared", nil)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

// newFixture seeds the active rate at 6245.50 / 6145.50
func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	conn := newTestDB(t)
	store := rates.NewStore(conn, nil, rates.RateResolutionPolicy{Strategy: rates.StoredOnly}, quietLogger())
	_, err := store.SetActiveRate(context.Background(), d("6245.50"), d("6145.50"), 1)
	require.NoError(t, err)
	return &fixture{conn: conn, store: store, engine: NewEngine(conn, store, opts, quietLogger())}
}

func (f *fixture) wallet(t *testing.T, userID uint) domain.Wallet {
	t.Helper()
	var w domain.Wallet
	require.NoError(t, f.conn.Where("user_id = ?", userID).First(&w).Error)
	return w
}

func (f *fixture) testWallet(t *testing.T, userID uint) domain.TestWallet {
	t.Helper()
	var tw domain.TestWallet
	require.NoError(t, f.conn.Where("user_id = ?", userID).First(&tw).Error)
	return tw
}

func (f *fixture) ledgerRows(t *testing.T, userID uint) []domain.GoldTransaction {
	t.Helper()
	var rows []domain.GoldTransaction
	require.NoError(t, f.conn.Where("user_id = ?", userID).Order("id asc").Find(&rows).Error)
	return rows
}

func failLedgerInserts(t *testing.T, conn *gorm.DB) {
	t.Helper()
	require.NoError(t, conn.Callback().Create().Before("gorm:create").Register("test:fail_ledger_insert", func(tx *gorm.DB) {
		if tx.Statement.Table == "gold_transactions" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))
}

func TestBuy_SettlesAtBuyRateWithGST(t *testing.T) {
	f := newFixture(t, Options{})

	s, err := f.engine.Buy(context.Background(), BuyRequest{UserID: 1, AmountInRupees: d("6245.50"), GoldGrams: d("1")})
	require.NoError(t, err)

	tx := s.Transaction
	assert.Equal(t, domain.TxBuy, tx.Type)
	assert.Equal(t, domain.StatusCompleted, tx.Status)
	assert.Equal(t, domain.DefaultPaymentMode, tx.PaymentMode)
	assert.Equal(t, domain.DefaultStorageType, tx.StorageType)
	assert.True(t, d("6245.50").Equal(tx.RatePerGram))
	assert.True(t, d("6245.50").Equal(tx.TotalAmount))
	assert.True(t, d("187.365").Equal(tx.GST))
	assert.True(t, d("6432.865").Equal(tx.FinalAmount))
	_, err = uuid.Parse(tx.Reference)
	assert.NoError(t, err)

	assert.True(t, d("3567.135").Equal(s.TestWallet.VirtualBalance))
	assert.True(t, d("1").Equal(s.Wallet.GoldBalance))

	// Stored state matches the returned settlement
	assert.True(t, d("3567.135").Equal(f.testWallet(t, 1).VirtualBalance))
	assert.True(t, d("1").Equal(f.wallet(t, 1).GoldBalance))
	assert.Len(t, f.ledgerRows(t, 1), 1)
}

func TestBuy_KeepsRequestedStorageAndPaymentMode(t *testing.T) {
	f := newFixture(t, Options{})
	s, err := f.engine.Buy(context.Background(), BuyRequest{
		UserID: 1, AmountInRupees: d("100"), GoldGrams: d("0.016"), StorageType: "home_delivery", PaymentMode: "UPI",
	})
	require.NoError(t, err)
	assert.Equal(t, "home_delivery", s.Transaction.StorageType)
	assert.Equal(t, "UPI", s.Transaction.PaymentMode)
}

func TestBuy_RejectsNonPositiveInputBeforeLookup(t *testing.T) {
	f := newFixture(t, Options{})
	resolver := &countingResolver{next: f.store}
	engine := NewEngine(f.conn, resolver, Options{}, quietLogger())

	cases := []BuyRequest{
		{UserID: 1, AmountInRupees: d("0"), GoldGrams: d("1")},
		{UserID: 1, AmountInRupees: d("-5"), GoldGrams: d("1")},
		{UserID: 1, AmountInRupees: d("100"), GoldGrams: d("0")},
		{UserID: 1, AmountInRupees: d("100"), GoldGrams: d("-1")},
	}
	for _, req := range cases {
		_, err := engine.Buy(context.Background(), req)
		assert.True(t, apperr.Is(err, apperr.KindValidation), "amount=%s grams=%s", req.AmountInRupees, req.GoldGrams)
	}
	assert.Equal(t, 0, resolver.calls)
	assert.Empty(t, f.ledgerRows(t, 1))
}

func TestBuy_InsufficientFundsChangesNothing(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.engine.Buy(context.Background(), BuyRequest{UserID: 1, AmountInRupees: d("9800"), GoldGrams: d("1.5")})
	assert.True(t, apperr.Is(err, apperr.KindInsufficientFunds))

	tw, err := f.engine.TestWallet(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, domain.DefaultVirtualBalance.Equal(tw.VirtualBalance))
	assert.Empty(t, f.ledgerRows(t, 1))
	var wallets int64
	require.NoError(t, f.conn.Model(&domain.Wallet{}).Count(&wallets).Error)
	assert.Zero(t, wallets)
}

func TestBuy_NoRateIsSurfaced(t *testing.T) {
	conn := newTestDB(t)
	store := rates.NewStore(conn, nil, rates.RateResolutionPolicy{Strategy: rates.StoredOnly}, quietLogger())
	engine := NewEngine(conn, store, Options{}, quietLogger())

	_, err := engine.Buy(context.Background(), BuyRequest{UserID: 1, AmountInRupees: d("100"), GoldGrams: d("0.01")})
	assert.True(t, apperr.Is(err, apperr.KindNoRate))
}

func TestSell_SettlesAtSellRateNetOfGST(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.engine.Buy(ctx, BuyRequest{UserID: 1, AmountInRupees: d("6245.50"), GoldGrams: d("1")})
	require.NoError(t, err)

	s, err := f.engine.Sell(ctx, SellRequest{UserID: 1, GoldGrams: d("1")})
	require.NoError(t, err)

	tx := s.Transaction
	assert.Equal(t, domain.TxSell, tx.Type)
	assert.True(t, d("6145.50").Equal(tx.RatePerGram))
	assert.True(t, d("6145.50").Equal(tx.TotalAmount))
	assert.True(t, d("184.365").Equal(tx.GST))
	assert.True(t, d("5961.135").Equal(tx.FinalAmount))

	assert.True(t, s.Wallet.GoldBalance.IsZero())
	assert.True(t, d("9528.27").Equal(s.TestWallet.VirtualBalance), "3567.135 + 5961.135")
	assert.True(t, d("9528.27").Equal(f.testWallet(t, 1).VirtualBalance))
}

func TestSell_ZeroGramsRejectedBeforeLookup(t *testing.T) {
	f := newFixture(t, Options{})
	resolver := &countingResolver{next: f.store}
	engine := NewEngine(f.conn, resolver, Options{}, quietLogger())

	for _, grams := range []string{"0", "-0.5"} {
		s, err := engine.Sell(context.Background(), SellRequest{UserID: 1, GoldGrams: d(grams)})
		assert.Nil(t, s)
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	}
	assert.Equal(t, 0, resolver.calls)
}

func TestSell_InsufficientGold(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	// No wallet at all
	_, err := f.engine.Sell(ctx, SellRequest{UserID: 1, GoldGrams: d("0.1")})
	assert.True(t, apperr.Is(err, apperr.KindInsufficientGold))

	_, err = f.engine.Buy(ctx, BuyRequest{UserID: 1, AmountInRupees: d("3122.75"), GoldGrams: d("0.5")})
	require.NoError(t, err)
	_, err = f.engine.Sell(ctx, SellRequest{UserID: 1, GoldGrams: d("0.50000001")})
	assert.True(t, apperr.Is(err, apperr.KindInsufficientGold))
	assert.True(t, d("0.5").Equal(f.wallet(t, 1).GoldBalance))
}

func TestSell_PledgedGoldIsNotSellable(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.engine.Buy(ctx, BuyRequest{UserID: 1, AmountInRupees: d("6245.50"), GoldGrams: d("1")})
	require.NoError(t, err)
	require.NoError(t, f.conn.Model(&domain.Wallet{}).Where("user_id = ?", 1).Update("pledged_gold", d("0.6")).Error)

	_, err = f.engine.Sell(ctx, SellRequest{UserID: 1, GoldGrams: d("0.5")})
	assert.True(t, apperr.Is(err, apperr.KindInsufficientGold))

	_, err = f.engine.Sell(ctx, SellRequest{UserID: 1, GoldGrams: d("0.4")})
	assert.NoError(t, err)
}

func TestSettlement_LedgerInsertFailureRollsBack(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.engine.Buy(ctx, BuyRequest{UserID: 1, AmountInRupees: d("6245.50"), GoldGrams: d("1")})
	require.NoError(t, err)
	beforeGold := f.wallet(t, 1).GoldBalance
	beforeCash := f.testWallet(t, 1).VirtualBalance

	failLedgerInserts(t, f.conn)

	_, err = f.engine.Buy(ctx, BuyRequest{UserID: 1, AmountInRupees: d("1000"), GoldGrams: d("0.16")})
	assert.True(t, apperr.Is(err, apperr.KindSettlementAborted))
	_, err = f.engine.Sell(ctx, SellRequest{UserID: 1, GoldGrams: d("0.5")})
	assert.True(t, apperr.Is(err, apperr.KindSettlementAborted))

	assert.True(t, beforeGold.Equal(f.wallet(t, 1).GoldBalance))
	assert.True(t, beforeCash.Equal(f.testWallet(t, 1).VirtualBalance))
	assert.Len(t, f.ledgerRows(t, 1), 1)
}

func TestSettlement_RateIsFrozenAtLookup(t *testing.T) {
	f := newFixture(t, Options{})
	original, err := f.store.Current(context.Background())
	require.NoError(t, err)
	engine := NewEngine(f.conn, &flippingResolver{store: f.store}, Options{}, quietLogger())

	s, err := engine.Buy(context.Background(), BuyRequest{UserID: 1, AmountInRupees: d("6245.50"), GoldGrams: d("1")})
	require.NoError(t, err)

	current, err := f.store.Current(context.Background())
	require.NoError(t, err)
	assert.True(t, d("9999").Equal(current.BuyRate), "rate moved during the trade")

	rows := f.ledgerRows(t, 1)
	require.Len(t, rows, 1)
	assert.True(t, d("6245.50").Equal(rows[0].RatePerGram))
	assert.Equal(t, original.ID, rows[0].RateID)
	assert.Equal(t, original.ID, s.Rate.ID)
}

func TestConservationAcrossMixedTrades(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.engine.TopUp(ctx, 1, d("50000"))
	require.NoError(t, err)

	steps := []struct {
		buy    bool
		grams  string
		amount string
	}{
		{true, "1.25", "7806.875"},
		{true, "0.75", "4684.125"},
		{false, "0.4", ""},
		{true, "2", "12491"},
		{false, "1.6", ""},
	}
	for _, step := range steps {
		if step.buy {
			_, err = f.engine.Buy(ctx, BuyRequest{UserID: 1, AmountInRupees: d(step.amount), GoldGrams: d(step.grams)})
		} else {
			_, err = f.engine.Sell(ctx, SellRequest{UserID: 1, GoldGrams: d(step.grams)})
		}
		require.NoError(t, err)
	}

	gold := decimal.Zero
	cash := domain.DefaultVirtualBalance.Add(d("50000"))
	for _, row := range f.ledgerRows(t, 1) {
		if row.Type == domain.TxBuy {
			gold = gold.Add(row.GoldGrams)
			cash = cash.Sub(row.FinalAmount)
		} else {
			gold = gold.Sub(row.GoldGrams)
			cash = cash.Add(row.FinalAmount)
		}
	}
	assert.True(t, gold.Equal(f.wallet(t, 1).GoldBalance), "gold %s", gold)
	assert.True(t, cash.Equal(f.testWallet(t, 1).VirtualBalance), "cash %s", cash)
	assert.True(t, d("2").Equal(gold))
}

func TestConcurrentSellsNeverOverdraw(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.engine.Buy(ctx, BuyRequest{UserID: 1, AmountInRupees: d("6245.50"), GoldGrams: d("1")})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Sell(ctx, SellRequest{UserID: 1, GoldGrams: d("0.3")})
			if err != nil {
				assert.True(t, apperr.Is(err, apperr.KindInsufficientGold), "unexpected error: %v", err)
				return
			}
			mu.Lock()
			succeeded++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	w := f.wallet(t, 1)
	assert.False(t, w.GoldBalance.IsNegative())
	assert.True(t, d("0.1").Equal(w.GoldBalance))
	assert.Len(t, f.ledgerRows(t, 1), 4)
}

func TestConcurrentFirstTradesCreateOneWallet(t *testing.T) {
	f := newFixture(t, Options{})
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Buy(context.Background(), BuyRequest{UserID: 9, AmountInRupees: d("624.55"), GoldGrams: d("0.1")})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var wallets, testWallets int64
	require.NoError(t, f.conn.Model(&domain.Wallet{}).Where("user_id = ?", 9).Count(&wallets).Error)
	require.NoError(t, f.conn.Model(&domain.TestWallet{}).Where("user_id = ?", 9).Count(&testWallets).Error)
	assert.Equal(t, int64(1), wallets)
	assert.Equal(t, int64(1), testWallets)
	assert.True(t, d("0.5").Equal(f.wallet(t, 9).GoldBalance))
}

func TestNotifierReceivesCommittedTrades(t *testing.T) {
	notifier := new(MockNotifier)
	notifier.On("Publish", mock.Anything, TopicTradeSettled, mock.MatchedBy(func(ev TradeEvent) bool {
		return ev.Type == domain.TxBuy && ev.UserID == 1 && ev.Reference != ""
	})).Return(errors.New("broker down")).Once()
	f := newFixture(t, Options{Notifier: notifier})

	// A failing notifier never undoes the trade
	_, err := f.engine.Buy(context.Background(), BuyRequest{UserID: 1, AmountInRupees: d("100"), GoldGrams: d("0.016")})
	require.NoError(t, err)
	assert.Len(t, f.ledgerRows(t, 1), 1)

	// Rejected trades are not announced
	_, err = f.engine.Sell(context.Background(), SellRequest{UserID: 1, GoldGrams: d("5")})
	assert.Error(t, err)
	notifier.AssertExpectations(t)
}

func TestTestWalletTopUpAndReset(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	tw, err := f.engine.TestWallet(ctx, 3)
	require.NoError(t, err)
	assert.True(t, domain.DefaultVirtualBalance.Equal(tw.VirtualBalance))

	tw, err = f.engine.TopUp(ctx, 3, d("2500.25"))
	require.NoError(t, err)
	assert.True(t, d("12500.25").Equal(tw.VirtualBalance))

	tw, err = f.engine.TopUp(ctx, 3, decimal.Zero)
	require.NoError(t, err)
	assert.True(t, d("22500.25").Equal(tw.VirtualBalance), "zero tops up the default amount")

	_, err = f.engine.TopUp(ctx, 3, d("-1"))
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	tw, err = f.engine.Reset(ctx, 3)
	require.NoError(t, err)
	assert.True(t, domain.DefaultVirtualBalance.Equal(tw.VirtualBalance))
	assert.True(t, domain.DefaultVirtualBalance.Equal(f.testWallet(t, 3).VirtualBalance))
}
