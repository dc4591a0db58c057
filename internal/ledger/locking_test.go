package ledger

import (
	"context"
	"testing"

	"gold_ledger/internal/apperr"
	"gold_ledger/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fixedResolver struct {
	rate domain.GoldRate
}

func (r fixedResolver) GetActiveRate(context.Context, bool) (*domain.GoldRate, error) {
	rate := r.rate
	return &rate, nil
}

func newMySQLMock(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	conn, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	return conn, mock
}

func expectWalletLock(mock sqlmock.Sqlmock, create bool, gold string) {
	if create {
		mock.ExpectExec("INSERT INTO `wallets`.*ON DUPLICATE KEY UPDATE").
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectQuery("SELECT \\* FROM `wallets` WHERE user_id = \\?.*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "gold_balance", "rupee_balance", "pledged_gold"}).
			AddRow(1, 42, gold, "0", "0"))
}

func expectTestWalletLock(mock sqlmock.Sqlmock, balance string) {
	mock.ExpectExec("INSERT INTO `test_wallets`.*ON DUPLICATE KEY UPDATE").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT \\* FROM `test_wallets` WHERE user_id = \\?.*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "virtual_balance"}).
			AddRow(7, 42, balance))
}

func TestSell_LocksWalletThenTestWalletOnMySQL(t *testing.T) {
	conn, mock := newMySQLMock(t)
	engine := NewEngine(conn, fixedResolver{rate: domain.GoldRate{ID: 4, BuyRate: d("6245.50"), SellRate: d("6145.50")}}, Options{}, quietLogger())

	mock.ExpectBegin()
	expectWalletLock(mock, false, "0.25")
	expectTestWalletLock(mock, "10000")
	mock.ExpectRollback()

	_, err := engine.Sell(context.Background(), SellRequest{UserID: 42, GoldGrams: d("1")})
	assert.True(t, apperr.Is(err, apperr.KindInsufficientGold))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuy_LocksWalletThenTestWalletOnMySQL(t *testing.T) {
	conn, mock := newMySQLMock(t)
	engine := NewEngine(conn, fixedResolver{rate: domain.GoldRate{ID: 4, BuyRate: d("6245.50"), SellRate: d("6145.50")}}, Options{}, quietLogger())

	mock.ExpectBegin()
	expectWalletLock(mock, true, "0")
	expectTestWalletLock(mock, "50")
	mock.ExpectRollback()

	_, err := engine.Buy(context.Background(), BuyRequest{UserID: 42, AmountInRupees: d("100"), GoldGrams: d("0.016")})
	assert.True(t, apperr.Is(err, apperr.KindInsufficientFunds))
	assert.NoError(t, mock.ExpectationsWereMet())
}
