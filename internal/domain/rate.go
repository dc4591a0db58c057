package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rate sources recorded on each GoldRate row
const (
	RateSourceLive   = "goldapi" // Fetched from the external feed
	RateSourceManual = "manual"  // Administrator override
	RateSourceSeed   = "seed"    // Bootstrap default
)

// RateSourceStored labels a broadcast of a stored row served while the feed is down
const RateSourceStored = "database"

// GoldRate is an immutable price snapshot. Only IsActive ever changes, and only through
// the rate store's retire/insert pair.
type GoldRate struct {
	ID        uint                `gorm:"primaryKey" json:"id"`                                  // Primary key
	BuyRate   decimal.Decimal     `gorm:"type:decimal(20,8);not null" json:"buyRate"`            // Price users pay per gram
	SellRate  decimal.Decimal     `gorm:"type:decimal(20,8);not null" json:"sellRate"`           // Price users receive per gram
	Spread    decimal.Decimal     `gorm:"type:decimal(20,8);not null;default:0" json:"spread"`   // BuyRate - SellRate
	RawPrice  decimal.NullDecimal `gorm:"type:decimal(20,8)" json:"rawPrice"`                    // Feed price per troy ounce, if live
	IsActive  bool                `gorm:"index;not null;default:false" json:"isActive"`          // Current rate flag
	Source    string              `gorm:"size:32;not null;default:manual" json:"source"`         // goldapi, manual or seed
	CreatedBy *uint               `json:"createdBy,omitempty"`                                   // Administrator who set it
	CreatedAt time.Time           `gorm:"index" json:"createdAt"`                                // Insertion time
	Fresh     bool                `gorm:"-" json:"-"`                                            // Fetched from the feed by this lookup, never persisted
}
