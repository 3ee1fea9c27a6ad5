package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Refund request states
const (
	RefundPending  = "pending"
	RefundApproved = "approved"
	RefundRejected = "rejected"
)

// RefundRequest Model. At most one request per attendance record; approval
// books a compensating credit on the ledger, it never deletes the
// attendance row.
type RefundRequest struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	UserID       uint            `gorm:"not null;index" json:"user_id"`
	AttendanceID uint            `gorm:"not null;uniqueIndex" json:"attendance_id"`
	Amount       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Reason       string          `gorm:"type:text" json:"reason,omitempty"`
	Status       string          `gorm:"size:20;not null;default:pending" json:"status"`
	AdminRemarks string          `gorm:"type:text" json:"admin_remarks,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`

	User       User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Attendance Attendance `gorm:"foreignKey:AttendanceID" json:"attendance,omitempty"`
}
