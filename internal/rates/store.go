package rates

import (
	"context"
	"errors"
	"sync"

	"gold_ledger/internal/apperr"
	"gold_ledger/internal/domain"
	"gold_ledger/internal/goldapi"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// History limits
const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 100
)

// LiveSource is the feed the store refreshes from
type LiveSource interface {
	Configured() bool
	FetchLiveRate(ctx context.Context) (*goldapi.LiveRate, error)
}

// Store owns the gold_rates table and the single-active-rate invariant
type Store struct {
	db     *gorm.DB
	source LiveSource
	policy RateResolutionPolicy
	logger logrus.FieldLogger

	// mu serialises retire/insert pairs issued from this process
	mu sync.Mutex
}

// NewStore creates a rate store. source may be nil when no feed exists.
func NewStore(db *gorm.DB, source LiveSource, policy RateResolutionPolicy, logger logrus.FieldLogger) *Store {
	if policy.SeedBuy.IsZero() {
		policy.SeedBuy = DefaultSeedBuy
	}
	if policy.SeedSell.IsZero() {
		policy.SeedSell = DefaultSeedSell
	}
	return &Store{
		db:     db,
		source: source,
		policy: policy,
		logger: logger.WithField("component", "rate_store"),
	}
}

// GetActiveRate returns the rate new trades should use. With preferLive the feed is tried
// first and a fresh quote becomes the active row, marked Fresh; feed failures fall back to
// the stored row unless the policy is LiveOnly. Stored and seeded rows are never Fresh.
func (s *Store) GetActiveRate(ctx context.Context, preferLive bool) (*domain.GoldRate, error) {
	if preferLive && s.policy.triesLive() && s.source != nil {
		rate, err := s.refreshFromFeed(ctx)
		if err == nil {
			return rate, nil
		}
		if apperr.Is(err, apperr.KindRateInvariant) {
			return nil, err
		}
		if !s.policy.fallsBack() {
			return nil, apperr.Wrap(apperr.KindNoRate, "Live gold rate unavailable", err)
		}
		s.logger.WithError(err).Warn("Live gold rate unavailable, using stored rate")
	}
	return s.storedOrSeed(ctx)
}

// Current returns the stored active rate without touching the feed
func (s *Store) Current(ctx context.Context) (*domain.GoldRate, error) {
	var rate domain.GoldRate
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at desc, id desc").
		First(&rate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.KindNoRate, "No gold rate available")
	}
	if err != nil {
		return nil, err
	}
	return &rate, nil
}

// SetActiveRate is the administrator override
func (s *Store) SetActiveRate(ctx context.Context, buyRate, sellRate decimal.Decimal, actorID uint) (*domain.GoldRate, error) {
	if !buyRate.IsPositive() || !sellRate.IsPositive() {
		return nil, apperr.New(apperr.KindValidation, "Buy rate and sell rate must be greater than 0")
	}
	if buyRate.LessThan(sellRate) {
		return nil, apperr.New(apperr.KindValidation, "Buy rate must not be below sell rate")
	}
	actor := actorID
	rate, err := s.rotate(ctx, &domain.GoldRate{
		BuyRate:   buyRate,
		SellRate:  sellRate,
		Source:    domain.RateSourceManual,
		CreatedBy: &actor,
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"rate_id":   rate.ID,
		"buy_rate":  rate.BuyRate.String(),
		"sell_rate": rate.SellRate.String(),
		"actor_id":  actorID,
	}).Info("Gold rate overridden")
	return rate, nil
}

// History returns up to limit rates, most recent first
func (s *Store) History(ctx context.Context, limit int) ([]domain.GoldRate, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	var history []domain.GoldRate
	err := s.db.WithContext(ctx).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&history).Error
	return history, err
}

func (s *Store) refreshFromFeed(ctx context.Context) (*domain.GoldRate, error) {
	live, err := s.source.FetchLiveRate(ctx)
	if err != nil {
		return nil, err
	}
	rate, err := s.rotate(ctx, &domain.GoldRate{
		BuyRate:  live.BuyRate,
		SellRate: live.SellRate,
		RawPrice: decimal.NewNullDecimal(live.RawPrice),
		Source:   domain.RateSourceLive,
	})
	if err != nil {
		return nil, err
	}
	rate.Fresh = true
	return rate, nil
}

func (s *Store) storedOrSeed(ctx context.Context) (*domain.GoldRate, error) {
	rate, err := s.Current(ctx)
	if !apperr.Is(err, apperr.KindNoRate) {
		return rate, err
	}
	if !s.policy.AllowBootstrap || (s.source != nil && s.source.Configured()) {
		return nil, err
	}
	s.logger.Warn("No gold rate stored and no feed configured, seeding default rate")
	return s.rotate(ctx, &domain.GoldRate{
		BuyRate:  s.policy.SeedBuy,
		SellRate: s.policy.SeedSell,
		Source:   domain.RateSourceSeed,
	})
}

// rotate retires the active row and inserts next as the only active row, atomically
func (s *Store) rotate(ctx context.Context, next *domain.GoldRate) (*domain.GoldRate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next.ID = 0
	next.IsActive = true
	next.Spread = next.BuyRate.Sub(next.SellRate)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.GoldRate{}).
			Where("is_active = ?", true).
			Update("is_active", false).Error; err != nil {
			return err
		}
		if err := tx.Create(next).Error; err != nil {
			return err
		}
		var active int64
		if err := tx.Model(&domain.GoldRate{}).Where("is_active = ?", true).Count(&active).Error; err != nil {
			return err
		}
		if active != 1 {
			return apperr.New(apperr.KindRateInvariant, "Active gold rate count is not one")
		}
		return nil
	})
	if err != nil {
		if apperr.Is(err, apperr.KindRateInvariant) {
			s.logger.WithError(err).Error("Rate store invariant violated")
			return nil, err
		}
		return nil, apperr.Wrap(apperr.KindInternal, "Failed to store gold rate", err)
	}
	return next, nil
}
