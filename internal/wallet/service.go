package wallet

import (
	"context"
	"errors"

	"gold_ledger/internal/apperr"
	"gold_ledger/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Query limits
const (
	DefaultHistoryLimit = 20
	RecentLimit         = 5
	DefaultPageSize     = 20
	MaxPageSize         = 100
)

var hundred = decimal.NewFromInt(100)

// RateReader returns the stored active rate
type RateReader interface {
	Current(ctx context.Context) (*domain.GoldRate, error)
}

// Service answers read-only questions about wallets and the ledger. It never creates rows.
type Service struct {
	db     *gorm.DB
	rates  RateReader
	logger logrus.FieldLogger
}

// Balance is a user's holdings valued at the current buy rate
type Balance struct {
	GoldBalance        decimal.Decimal          `json:"goldBalance"`
	RupeeBalance       decimal.Decimal          `json:"rupeeBalance"`
	PledgedGold        decimal.Decimal          `json:"pledgedGold"`
	AvailableGold      decimal.Decimal          `json:"availableGold"`
	CurrentValue       decimal.Decimal          `json:"currentValue"`
	CurrentRate        *domain.GoldRate         `json:"currentRate"`
	RecentTransactions []domain.GoldTransaction `json:"recentTransactions"`
}

// Stats is the cost basis of a user's buys
type Stats struct {
	GoldBalance       decimal.Decimal `json:"goldBalance"`
	TotalBought       decimal.Decimal `json:"totalBought"`
	TotalSold         decimal.Decimal `json:"totalSold"`
	TotalInvested     decimal.Decimal `json:"totalInvested"`
	AvgBuyPrice       decimal.Decimal `json:"avgBuyPrice"`
	CurrentPrice      decimal.Decimal `json:"currentPrice"`
	CurrentValue      decimal.Decimal `json:"currentValue"`
	ProfitLoss        decimal.Decimal `json:"profitLoss"`
	ProfitLossPercent decimal.Decimal `json:"profitLossPercent"`
}

// Filter narrows the admin ledger view
type Filter struct {
	UserID   uint
	Type     string
	Page     int
	PageSize int
}

// Page is one page of ledger rows
type Page struct {
	Transactions []domain.GoldTransaction `json:"transactions"`
	Page         int                      `json:"page"`
	PageSize     int                      `json:"page_size"`
	Total        int64                    `json:"total"`
	TotalPages   int                      `json:"total_pages"`
}

// NewService creates a wallet service
func NewService(db *gorm.DB, rates RateReader, logger logrus.FieldLogger) *Service {
	return &Service{db: db, rates: rates, logger: logger.WithField("component", "wallet")}
}

// Balance reports holdings. A user who never traded reads as zeros.
func (s *Service) Balance(ctx context.Context, userID uint) (*Balance, error) {
	w, err := s.wallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	recent, err := s.Transactions(ctx, userID, RecentLimit)
	if err != nil {
		return nil, err
	}
	out := &Balance{
		GoldBalance:        w.GoldBalance,
		RupeeBalance:       w.RupeeBalance,
		PledgedGold:        w.PledgedGold,
		AvailableGold:      w.AvailableGold(),
		CurrentValue:       decimal.Zero,
		RecentTransactions: recent,
	}

	// Holdings are still reported while no rate is published
	rate, err := s.rates.Current(ctx)
	switch {
	case err == nil:
		out.CurrentRate = rate
		out.CurrentValue = w.GoldBalance.Mul(rate.BuyRate)
	case apperr.Is(err, apperr.KindNoRate):
		s.logger.WithField("user_id", userID).Warn("No gold rate to value balance")
	default:
		return nil, err
	}
	return out, nil
}

// Stats computes volume-weighted cost basis and unrealised P/L over BUY rows
func (s *Service) Stats(ctx context.Context, userID uint) (*Stats, error) {
	var rows []domain.GoldTransaction
	if err := s.db.WithContext(ctx).
		Select("type", "gold_grams", "total_amount").
		Where("user_id = ? AND status = ?", userID, domain.StatusCompleted).
		Find(&rows).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "Failed to load transactions", err)
	}

	out := &Stats{
		GoldBalance:       decimal.Zero,
		TotalBought:       decimal.Zero,
		TotalSold:         decimal.Zero,
		TotalInvested:     decimal.Zero,
		AvgBuyPrice:       decimal.Zero,
		CurrentPrice:      decimal.Zero,
		CurrentValue:      decimal.Zero,
		ProfitLoss:        decimal.Zero,
		ProfitLossPercent: decimal.Zero,
	}
	for _, row := range rows {
		switch row.Type {
		case domain.TxBuy:
			out.TotalBought = out.TotalBought.Add(row.GoldGrams)
			out.TotalInvested = out.TotalInvested.Add(row.TotalAmount)
		case domain.TxSell:
			out.TotalSold = out.TotalSold.Add(row.GoldGrams)
		}
	}
	if out.TotalBought.IsZero() {
		return out, nil
	}

	w, err := s.wallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	rate, err := s.rates.Current(ctx)
	if err != nil {
		return nil, err
	}

	out.GoldBalance = w.GoldBalance
	out.AvgBuyPrice = out.TotalInvested.Div(out.TotalBought)
	out.CurrentPrice = rate.BuyRate
	out.CurrentValue = w.GoldBalance.Mul(rate.BuyRate)
	out.ProfitLoss = w.GoldBalance.Mul(rate.BuyRate.Sub(out.AvgBuyPrice))
	if invested := w.GoldBalance.Mul(out.AvgBuyPrice); !invested.IsZero() {
		out.ProfitLossPercent = out.ProfitLoss.Div(invested).Mul(hundred)
	}
	return out, nil
}

// Transactions returns the user's ledger, newest first
func (s *Service) Transactions(ctx context.Context, userID uint, limit int) ([]domain.GoldTransaction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	txs := []domain.GoldTransaction{}
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&txs).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "Failed to load transactions", err)
	}
	return txs, nil
}

// AllTransactions is the paginated admin view across users
func (s *Service) AllTransactions(ctx context.Context, f Filter) (*Page, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 || f.PageSize > MaxPageSize {
		f.PageSize = DefaultPageSize
	}
	if f.Type != "" && f.Type != domain.TxBuy && f.Type != domain.TxSell {
		return nil, apperr.New(apperr.KindValidation, "Type must be BUY or SELL")
	}

	query := s.db.WithContext(ctx).Model(&domain.GoldTransaction{})
	if f.UserID != 0 {
		query = query.Where("user_id = ?", f.UserID)
	}
	if f.Type != "" {
		query = query.Where("type = ?", f.Type)
	}

	out := &Page{Transactions: []domain.GoldTransaction{}, Page: f.Page, PageSize: f.PageSize}
	if err := query.Count(&out.Total).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "Failed to count transactions", err)
	}
	if err := query.
		Order("created_at desc, id desc").
		Offset((f.Page - 1) * f.PageSize).
		Limit(f.PageSize).
		Find(&out.Transactions).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "Failed to fetch transactions", err)
	}
	out.TotalPages = (int(out.Total) + f.PageSize - 1) / f.PageSize
	return out, nil
}

// wallet loads without creating. Missing reads as an empty wallet.
func (s *Service) wallet(ctx context.Context, userID uint) (*domain.Wallet, error) {
	var w domain.Wallet
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.Wallet{UserID: userID}, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "Failed to load wallet", err)
	}
	return &w, nil
}
