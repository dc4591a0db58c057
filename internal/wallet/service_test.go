package wallet

import (
	"context"
	"io"
	"testing"
	"time"

	"gold_ledger/internal/apperr"
	"gold_ledger/internal/db"
	"gold_ledger/internal/domain"
	"gold_ledger/internal/ledger"
	"gold_ledger/internal/rates"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	conn    *gorm.DB
	store   *rates.Store
	engine  *ledger.Engine
	service *Service
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newFixture(t *testing.T, seedRate bool) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	conn, err := db.OpenSQLite("file:"+uuid.NewString()+"?mode=memory&cache=shared", nil)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	store := rates.NewStore(conn, nil, rates.RateResolutionPolicy{Strategy: rates.StoredOnly}, logger)
	if seedRate {
		_, err = store.SetActiveRate(context.Background(), d("6000"), d("5900"), 1)
		require.NoError(t, err)
	}
	return &fixture{
		conn:    conn,
		store:   store,
		engine:  ledger.NewEngine(conn, store, ledger.Options{}, logger),
		service: NewService(conn, store, logger),
	}
}

func (f *fixture) buy(t *testing.T, userID uint, grams, amount string) {
	t.Helper()
	_, err := f.engine.Buy(context.Background(), ledger.BuyRequest{UserID: userID, AmountInRupees: d(amount), GoldGrams: d(grams)})
	require.NoError(t, err)
}

func (f *fixture) sell(t *testing.T, userID uint, grams string) {
	t.Helper()
	_, err := f.engine.Sell(context.Background(), ledger.SellRequest{UserID: userID, GoldGrams: d(grams)})
	require.NoError(t, err)
}

func TestBalance_UnknownUserReadsZeroWithoutCreatingRows(t *testing.T) {
	f := newFixture(t, true)

	b, err := f.service.Balance(context.Background(), 99)
	require.NoError(t, err)
	assert.True(t, b.GoldBalance.IsZero())
	assert.True(t, b.CurrentValue.IsZero())
	assert.Empty(t, b.RecentTransactions)
	require.NotNil(t, b.CurrentRate)

	var n int64
	require.NoError(t, f.conn.Model(&domain.Wallet{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestBalance_ValuesHoldingsAtBuyRate(t *testing.T) {
	f := newFixture(t, true)
	for i := 0; i < 7; i++ {
		f.buy(t, 1, "0.1", "600")
	}

	b, err := f.service.Balance(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, d("0.7").Equal(b.GoldBalance))
	assert.True(t, d("4200").Equal(b.CurrentValue))
	assert.True(t, d("6000").Equal(b.CurrentRate.BuyRate))
	assert.Len(t, b.RecentTransactions, RecentLimit)
}

func TestBalance_NoRateStillReportsHoldings(t *testing.T) {
	f := newFixture(t, false)
	b, err := f.service.Balance(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, b.CurrentRate)
	assert.True(t, b.CurrentValue.IsZero())
}

func TestStats_ZerosWithoutBuys(t *testing.T) {
	f := newFixture(t, false)
	s, err := f.service.Stats(context.Background(), 1)
	require.NoError(t, err)
	for _, v := range []decimal.Decimal{s.TotalBought, s.TotalSold, s.AvgBuyPrice, s.ProfitLoss, s.ProfitLossPercent} {
		assert.True(t, v.IsZero())
	}
}

func TestStats_VolumeWeightedCostBasis(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.engine.TopUp(context.Background(), 1, d("5000"))
	require.NoError(t, err)
	f.buy(t, 1, "1", "5000")
	f.buy(t, 1, "1", "7000")
	f.sell(t, 1, "0.5")

	// Price moves after the trades
	_, err = f.store.SetActiveRate(context.Background(), d("6600"), d("6500"), 1)
	require.NoError(t, err)

	s, err := f.service.Stats(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, d("2").Equal(s.TotalBought))
	assert.True(t, d("0.5").Equal(s.TotalSold))
	assert.True(t, d("6000").Equal(s.AvgBuyPrice))
	assert.True(t, d("1.5").Equal(s.GoldBalance))
	assert.True(t, d("6600").Equal(s.CurrentPrice))
	assert.True(t, d("900").Equal(s.ProfitLoss), "1.5 x (6600 - 6000)")
	assert.True(t, d("10").Equal(s.ProfitLossPercent), "900 / 9000 x 100")
}

func TestStats_NoRateWithBuysIsSurfaced(t *testing.T) {
	f := newFixture(t, true)
	f.buy(t, 1, "1", "6000")
	require.NoError(t, f.conn.Model(&domain.GoldRate{}).Where("is_active = ?", true).Update("is_active", false).Error)

	_, err := f.service.Stats(context.Background(), 1)
	assert.True(t, apperr.Is(err, apperr.KindNoRate))
}

func TestTransactions_NewestFirstAndUserScoped(t *testing.T) {
	f := newFixture(t, true)
	f.buy(t, 1, "1", "6000")
	f.buy(t, 2, "2", "100")
	f.sell(t, 1, "0.25")

	txs, err := f.service.Transactions(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, domain.TxSell, txs[0].Type)
	assert.Equal(t, domain.TxBuy, txs[1].Type)
	for _, tx := range txs {
		assert.Equal(t, uint(1), tx.UserID)
	}

	none, err := f.service.Transactions(context.Background(), 42, 10)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestAllTransactions_FiltersAndPaginates(t *testing.T) {
	f := newFixture(t, true)
	for i := 0; i < 5; i++ {
		f.buy(t, 1, "0.1", "100")
	}
	f.buy(t, 2, "0.1", "100")
	f.sell(t, 1, "0.2")
	ctx := context.Background()

	page, err := f.service.AllTransactions(ctx, Filter{PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(7), page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.Len(t, page.Transactions, 3)
	assert.Equal(t, domain.TxSell, page.Transactions[0].Type)

	last, err := f.service.AllTransactions(ctx, Filter{Page: 3, PageSize: 3})
	require.NoError(t, err)
	assert.Len(t, last.Transactions, 1)

	buys, err := f.service.AllTransactions(ctx, Filter{UserID: 1, Type: domain.TxBuy})
	require.NoError(t, err)
	assert.Equal(t, int64(5), buys.Total)
	assert.Equal(t, DefaultPageSize, buys.PageSize)

	_, err = f.service.AllTransactions(ctx, Filter{Type: "GIFT"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestAllTransactions_OrderIsStableForSameTimestamp(t *testing.T) {
	f := newFixture(t, true)
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.conn.Create(&domain.GoldTransaction{
			Reference: uuid.NewString(), UserID: 1, Type: domain.TxBuy, GoldGrams: d("1"), RatePerGram: d("6000"),
			TotalAmount: d("6000"), GST: d("180"), FinalAmount: d("6180"), PaymentMode: domain.DefaultPaymentMode,
			Status: domain.StatusCompleted, StorageType: domain.DefaultStorageType, CreatedAt: at,
		}).Error)
	}
	page, err := f.service.AllTransactions(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 3)
	assert.Greater(t, page.Transactions[0].ID, page.Transactions[1].ID)
	assert.Greater(t, page.Transactions[1].ID, page.Transactions[2].ID)
}
