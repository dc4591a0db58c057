package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultVirtualBalance is the balance a TestWallet starts with and returns to on reset
var DefaultVirtualBalance = decimal.NewFromInt(10000)

// Wallet holds a user's gold. Only the ledger engine writes GoldBalance.
type Wallet struct {
	ID           uint            `gorm:"primaryKey" json:"id"`                                         // Primary key
	UserID       uint            `gorm:"uniqueIndex;not null" json:"userId"`                           // Owning user
	GoldBalance  decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"goldBalance"`     // Grams held
	RupeeBalance decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"rupeeBalance"`    // Reserved for real settlement
	PledgedGold  decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"pledgedGold"`     // Grams reserved against loans
	CreatedAt    time.Time       `json:"createdAt"`                                                     // Creation time
	UpdatedAt    time.Time       `json:"updatedAt"`                                                     // Last mutation
}

// AvailableGold is the part of the balance that can be sold
func (w Wallet) AvailableGold() decimal.Decimal {
	return w.GoldBalance.Sub(w.PledgedGold)
}

// TestWallet is the virtual cash balance standing in for a payment rail
type TestWallet struct {
	ID             uint            `gorm:"primaryKey" json:"id"`                                        // Primary key
	UserID         uint            `gorm:"uniqueIndex;not null" json:"userId"`                          // Owning user
	VirtualBalance decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"virtualBalance"` // Spendable virtual rupees
	CreatedAt      time.Time       `json:"createdAt"`                                                    // Creation time
	UpdatedAt      time.Time       `json:"updatedAt"`                                                    // Last mutation
}
