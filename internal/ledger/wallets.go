package ledger

import (
	"context"

	"gold_ledger/internal/apperr"
	"gold_ledger/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TestWallet returns the user's virtual balance, creating it with the default on first access
func (e *Engine) TestWallet(ctx context.Context, userID uint) (*domain.TestWallet, error) {
	var out *domain.TestWallet
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tw, err := lockTestWallet(tx, userID, true)
		out = tw
		return err
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "Failed to load test wallet", err)
	}
	return out, nil
}

// TopUp credits virtual rupees. A zero amount credits DefaultVirtualBalance.
func (e *Engine) TopUp(ctx context.Context, userID uint, amount decimal.Decimal) (*domain.TestWallet, error) {
	if amount.IsZero() {
		amount = domain.DefaultVirtualBalance
	}
	if !amount.IsPositive() {
		return nil, apperr.New(apperr.KindValidation, "Amount must be greater than 0")
	}
	return e.adjustTestWallet(ctx, userID, "Test wallet credited", func(balance decimal.Decimal) decimal.Decimal {
		return balance.Add(amount)
	})
}

// Reset puts the virtual balance back to DefaultVirtualBalance
func (e *Engine) Reset(ctx context.Context, userID uint) (*domain.TestWallet, error) {
	return e.adjustTestWallet(ctx, userID, "Test wallet reset", func(decimal.Decimal) decimal.Decimal {
		return domain.DefaultVirtualBalance
	})
}

func (e *Engine) adjustTestWallet(ctx context.Context, userID uint, msg string, next func(decimal.Decimal) decimal.Decimal) (*domain.TestWallet, error) {
	var out *domain.TestWallet
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tw, err := lockTestWallet(tx, userID, true)
		if err != nil {
			return err
		}
		tw.VirtualBalance = next(tw.VirtualBalance)
		if err := tx.Model(tw).Update("virtual_balance", tw.VirtualBalance).Error; err != nil {
			return err
		}
		out = tw
		return nil
	})
	if err != nil {
		e.logger.WithError(err).WithField("user_id", userID).Error("Failed to update test wallet")
		return nil, apperr.Wrap(apperr.KindInternal, "Failed to update test wallet", err)
	}
	e.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"balance": out.VirtualBalance.String(),
	}).Info(msg)
	return out, nil
}

// lockTestWallet loads the row FOR UPDATE, inserting the default first when create is set
func lockTestWallet(tx *gorm.DB, userID uint, create bool) (*domain.TestWallet, error) {
	if create {
		seed := domain.TestWallet{UserID: userID, VirtualBalance: domain.DefaultVirtualBalance}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).Create(&seed).Error; err != nil {
			return nil, err
		}
	}
	var tw domain.TestWallet
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&tw).Error; err != nil {
		return nil, err
	}
	return &tw, nil
}

// lockWallet loads the row FOR UPDATE, inserting an empty wallet first when create is set
func lockWallet(tx *gorm.DB, userID uint, create bool) (*domain.Wallet, error) {
	if create {
		seed := domain.Wallet{UserID: userID}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).Create(&seed).Error; err != nil {
			return nil, err
		}
	}
	var w domain.Wallet
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}
