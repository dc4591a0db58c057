package ledger

import (
	"context"
	"errors"
	"time"

	"gold_ledger/internal/apperr"
	"gold_ledger/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TopicTradeSettled is published after every committed trade
const TopicTradeSettled = "trade.settled"

// DefaultGSTRate is the 3% fee applied to both sides
var DefaultGSTRate = decimal.RequireFromString("0.03")

// RateResolver supplies the rate a trade is frozen at
type RateResolver interface {
	GetActiveRate(ctx context.Context, preferLive bool) (*domain.GoldRate, error)
}

// Notifier receives post-commit trade events
type Notifier interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Options tune settlement
type Options struct {
	PreferLive bool            // Try the live feed before settling
	GSTRate    decimal.Decimal // Fee rate, DefaultGSTRate when zero
	Notifier   Notifier        // Optional
}

// Engine settles buys and sells. It is the only writer of wallet balances.
type Engine struct {
	db     *gorm.DB
	rates  RateResolver
	opts   Options
	logger logrus.FieldLogger
	now    func() time.Time
}

// BuyRequest describes a purchase of gold with virtual rupees
type BuyRequest struct {
	UserID         uint
	AmountInRupees decimal.Decimal
	GoldGrams      decimal.Decimal
	StorageType    string
	PaymentMode    string
}

// SellRequest describes a sale of gold for virtual rupees
type SellRequest struct {
	UserID    uint
	GoldGrams decimal.Decimal
}

// Settlement is returned only after the trade has committed
type Settlement struct {
	Transaction domain.GoldTransaction `json:"transaction"`
	Wallet      domain.Wallet          `json:"wallet"`
	TestWallet  domain.TestWallet      `json:"testWallet"`
	Rate        domain.GoldRate        `json:"rate"`
}

// TradeEvent is the payload of TopicTradeSettled
type TradeEvent struct {
	Reference   string          `json:"reference"`
	UserID      uint            `json:"userId"`
	Type        string          `json:"type"`
	GoldGrams   decimal.Decimal `json:"goldGrams"`
	RatePerGram decimal.Decimal `json:"ratePerGram"`
	FinalAmount decimal.Decimal `json:"finalAmount"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// NewEngine creates a ledger engine
func NewEngine(db *gorm.DB, rates RateResolver, opts Options, logger logrus.FieldLogger) *Engine {
	if opts.GSTRate.IsZero() {
		opts.GSTRate = DefaultGSTRate
	}
	return &Engine{
		db:     db,
		rates:  rates,
		opts:   opts,
		logger: logger.WithField("component", "ledger"),
		now:    time.Now,
	}
}

// Buy debits finalAmount = amount + GST from the TestWallet and credits goldGrams
func (e *Engine) Buy(ctx context.Context, req BuyRequest) (*Settlement, error) {
	if !req.AmountInRupees.IsPositive() {
		return nil, apperr.New(apperr.KindValidation, "Amount must be greater than 0")
	}
	if !req.GoldGrams.IsPositive() {
		return nil, apperr.New(apperr.KindValidation, "Gold grams must be greater than 0")
	}
	if req.StorageType == "" {
		req.StorageType = domain.DefaultStorageType
	}
	if req.PaymentMode == "" {
		req.PaymentMode = domain.DefaultPaymentMode
	}

	rate, err := e.rates.GetActiveRate(ctx, e.opts.PreferLive)
	if err != nil {
		return nil, err
	}

	total := req.AmountInRupees
	gst := total.Mul(e.opts.GSTRate)
	final := total.Add(gst)

	var out Settlement
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock order is wallets then test_wallets on every path
		wallet, err := lockWallet(tx, req.UserID, true)
		if err != nil {
			return err
		}
		testWallet, err := lockTestWallet(tx, req.UserID, true)
		if err != nil {
			return err
		}
		if testWallet.VirtualBalance.LessThan(final) {
			return apperr.New(apperr.KindInsufficientFunds, "Insufficient test wallet balance")
		}

		testWallet.VirtualBalance = testWallet.VirtualBalance.Sub(final)
		if err := tx.Model(testWallet).Update("virtual_balance", testWallet.VirtualBalance).Error; err != nil {
			return err
		}
		wallet.GoldBalance = wallet.GoldBalance.Add(req.GoldGrams)
		if err := tx.Model(wallet).Update("gold_balance", wallet.GoldBalance).Error; err != nil {
			return err
		}

		entry := e.newEntry(req.UserID, domain.TxBuy, req.GoldGrams, rate.BuyRate, rate.ID, total, gst, final)
		entry.PaymentMode = req.PaymentMode
		entry.StorageType = req.StorageType
		if err := tx.Create(entry).Error; err != nil {
			return err
		}

		out = Settlement{Transaction: *entry, Wallet: *wallet, TestWallet: *testWallet, Rate: *rate}
		return nil
	})
	if err != nil {
		return nil, e.settlementFailed(err, domain.TxBuy, req.UserID, req.GoldGrams)
	}

	e.committed(ctx, &out)
	return &out, nil
}

// Sell debits goldGrams and credits finalAmount = grams x sellRate - GST to the TestWallet
func (e *Engine) Sell(ctx context.Context, req SellRequest) (*Settlement, error) {
	// Reject before any rate lookup
	if !req.GoldGrams.IsPositive() {
		return nil, apperr.New(apperr.KindValidation, "Gold grams must be greater than 0")
	}

	rate, err := e.rates.GetActiveRate(ctx, e.opts.PreferLive)
	if err != nil {
		return nil, err
	}

	total := req.GoldGrams.Mul(rate.SellRate)
	gst := total.Mul(e.opts.GSTRate)
	final := total.Sub(gst)

	var out Settlement
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wallet, err := lockWallet(tx, req.UserID, false)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.New(apperr.KindInsufficientGold, "Insufficient gold balance")
		}
		if err != nil {
			return err
		}
		testWallet, err := lockTestWallet(tx, req.UserID, true)
		if err != nil {
			return err
		}
		if wallet.AvailableGold().LessThan(req.GoldGrams) {
			return apperr.New(apperr.KindInsufficientGold, "Insufficient gold balance")
		}

		wallet.GoldBalance = wallet.GoldBalance.Sub(req.GoldGrams)
		if err := tx.Model(wallet).Update("gold_balance", wallet.GoldBalance).Error; err != nil {
			return err
		}
		testWallet.VirtualBalance = testWallet.VirtualBalance.Add(final)
		if err := tx.Model(testWallet).Update("virtual_balance", testWallet.VirtualBalance).Error; err != nil {
			return err
		}

		entry := e.newEntry(req.UserID, domain.TxSell, req.GoldGrams, rate.SellRate, rate.ID, total, gst, final)
		if err := tx.Create(entry).Error; err != nil {
			return err
		}

		out = Settlement{Transaction: *entry, Wallet: *wallet, TestWallet: *testWallet, Rate: *rate}
		return nil
	})
	if err != nil {
		return nil, e.settlementFailed(err, domain.TxSell, req.UserID, req.GoldGrams)
	}

	e.committed(ctx, &out)
	return &out, nil
}

func (e *Engine) newEntry(userID uint, txType string, grams, ratePerGram decimal.Decimal, rateID uint, total, gst, final decimal.Decimal) *domain.GoldTransaction {
	return &domain.GoldTransaction{
		Reference:   uuid.NewString(),
		UserID:      userID,
		Type:        txType,
		GoldGrams:   grams,
		RatePerGram: ratePerGram,
		RateID:      rateID,
		TotalAmount: total,
		GST:         gst,
		FinalAmount: final,
		PaymentMode: domain.DefaultPaymentMode,
		Status:      domain.StatusCompleted,
		StorageType: domain.DefaultStorageType,
		CreatedAt:   e.now().UTC(),
	}
}

// settlementFailed passes user-caused failures through and turns everything else into
// SettlementAborted. Either way the transaction has rolled back.
func (e *Engine) settlementFailed(err error, txType string, userID uint, grams decimal.Decimal) error {
	fields := logrus.Fields{
		"user_id":    userID,
		"type":       txType,
		"gold_grams": grams.String(),
	}
	switch apperr.KindOf(err) {
	case apperr.KindInsufficientFunds, apperr.KindInsufficientGold:
		e.logger.WithFields(fields).Info(apperr.Message(err))
		return err
	}
	e.logger.WithFields(fields).WithError(err).Error("Settlement failed")
	return apperr.Wrap(apperr.KindSettlementAborted, "Settlement failed, no changes were made", err)
}

// committed logs and notifies after a successful commit
func (e *Engine) committed(ctx context.Context, s *Settlement) {
	tx := s.Transaction
	e.logger.WithFields(logrus.Fields{
		"reference":     tx.Reference,
		"user_id":       tx.UserID,
		"type":          tx.Type,
		"gold_grams":    tx.GoldGrams.String(),
		"rate_per_gram": tx.RatePerGram.String(),
		"final_amount":  tx.FinalAmount.String(),
	}).Info("Gold trade settled")

	if e.opts.Notifier == nil {
		return
	}
	event := TradeEvent{
		Reference:   tx.Reference,
		UserID:      tx.UserID,
		Type:        tx.Type,
		GoldGrams:   tx.GoldGrams,
		RatePerGram: tx.RatePerGram,
		FinalAmount: tx.FinalAmount,
		CreatedAt:   tx.CreatedAt,
	}
	if err := e.opts.Notifier.Publish(ctx, TopicTradeSettled, event); err != nil {
		e.logger.WithError(err).WithField("reference", tx.Reference).Warn("Failed to publish trade event")
	}
}
