package domain

import (
	"time"

	"github.com/shopspring/decimal" // Exact fixed-point money
)

// Roles
const (
	RoleAdmin   = "admin"
	RoleStudent = "student"
)

// User Model. Students are identified by their roll number (stored in
// Username); admins use a plain username. The wallet balance lives on the
// student row and is a materialized projection of the transaction ledger.
type User struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Username      string          `gorm:"size:100;uniqueIndex;not null" json:"username"` // Roll number for students
	Password      string          `gorm:"size:255;not null" json:"-"`                    // bcrypt hash
	Name          string          `gorm:"size:200;not null" json:"name"`
	Role          string          `gorm:"size:20;not null;default:student" json:"role"`
	RoomNumber    string          `gorm:"size:50" json:"room_number,omitempty"`
	WalletBalance decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"wallet_balance"`
	QRCodePath    string          `gorm:"size:255" json:"qr_code_path,omitempty"`
	IsActive      bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
}
