package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction kinds
const (
	TxCredit = "credit"
	TxDebit  = "debit"
)

// WalletTransaction Model. Append-only ledger: the sum of a student's
// amounts must equal the stored wallet balance at all times. Amount is
// signed (positive for credits, negative for debits) and BalanceAfter
// records the projected balance when the row was written.
type WalletTransaction struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Reference    string          `gorm:"size:36;uniqueIndex;not null" json:"reference"` // UUID for audit lookups
	UserID       uint            `gorm:"not null;index" json:"user_id"`
	Amount       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Kind         string          `gorm:"size:50;not null" json:"kind"`
	Description  string          `gorm:"size:255" json:"description,omitempty"`
	BalanceAfter decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"balance_after"`
	AttendanceID *uint           `json:"attendance_id,omitempty"` // Set for meal debits and refund credits
	CreatedAt    time.Time       `json:"created_at"`
}
