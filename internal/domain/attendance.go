package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Attendance Model. The composite unique index on (user_id, meal_id) is the
// storage-level guarantee that a student is charged at most once per meal:
// concurrent duplicate scans serialize on it.
type Attendance struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	UserID     uint            `gorm:"not null;uniqueIndex:idx_attendance_user_meal" json:"user_id"`
	MealID     uint            `gorm:"not null;uniqueIndex:idx_attendance_user_meal" json:"meal_id"`
	AmountPaid decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount_paid"`
	ScannedAt  time.Time       `gorm:"autoCreateTime" json:"scanned_at"`

	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Meal Meal `gorm:"foreignKey:MealID" json:"meal,omitempty"`
}
