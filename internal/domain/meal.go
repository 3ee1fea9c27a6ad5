package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Meal types
const (
	MealBreakfast = "breakfast"
	MealLunch     = "lunch"
	MealDinner    = "dinner"
)

// Meal Model. One meal per (date, type); meals referenced by attendance
// records may be toggled inactive but never deleted.
type Meal struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Date      time.Time       `gorm:"type:date;not null;uniqueIndex:idx_meals_date_type" json:"date"`
	MealType  string          `gorm:"size:50;not null;uniqueIndex:idx_meals_date_type" json:"meal_type"`
	Price     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	MenuItems string          `gorm:"type:text" json:"menu_items,omitempty"`
	IsActive  bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
}

// ValidMealType reports whether t is one of the served meal types.
func ValidMealType(t string) bool {
	return t == MealBreakfast || t == MealLunch || t == MealDinner
}
