package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types
const (
	TxBuy  = "BUY"
	TxSell = "SELL"
)

// Transaction statuses. Only COMPLETED is written today.
const (
	StatusCompleted = "COMPLETED"
	StatusPending   = "PENDING"
	StatusFailed    = "FAILED"
)

// Defaults applied when a request leaves them empty
const (
	DefaultPaymentMode = "TEST_WALLET"
	DefaultStorageType = "vault"
)

// GoldTransaction Model. Rows are append-only.
type GoldTransaction struct {
	ID          uint            `gorm:"primaryKey" json:"id"`                                  // Primary key
	Reference   string          `gorm:"size:36;uniqueIndex;not null" json:"reference"`         // Public UUID
	UserID      uint            `gorm:"index;not null" json:"userId"`                          // Owning user
	Type        string          `gorm:"size:8;not null" json:"type"`                           // BUY or SELL
	GoldGrams   decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"goldGrams"`          // Grams moved
	RatePerGram decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"ratePerGram"`        // Rate frozen at settlement
	RateID      uint            `gorm:"not null" json:"rateId"`                                // GoldRate row used
	TotalAmount decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"totalAmount"`        // Gross amount
	GST         decimal.Decimal `gorm:"column:gst;type:decimal(20,8);not null" json:"gst"`     // Fee
	FinalAmount decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"finalAmount"`        // Cash actually moved
	PaymentMode string          `gorm:"size:32;not null" json:"paymentMode"`                   // Funding source
	Status      string          `gorm:"size:16;not null" json:"status"`                        // COMPLETED
	StorageType string          `gorm:"size:32;not null" json:"storageType"`                   // Where the gold sits
	CreatedAt   time.Time       `gorm:"index" json:"createdAt"`                                // Commit time
}
