package mess

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hmid0478/scan2eat/internal/domain"
)

// Service owns every wallet-mutating operation: meal-scan debits, admin
// top-ups and refund credits. The balance column on the student row is
// only ever written inside a transaction here, with the attendance
// uniqueness constraint as the serialization point for duplicate scans.
type Service struct {
	db    *gorm.DB
	loc   *time.Location
	grace time.Duration
	now   func() time.Time
}

// NewService creates the transaction service. grace extends a meal's
// serving window past midnight so late dinner scans still settle against
// the right day.
func NewService(db *gorm.DB, loc *time.Location, grace time.Duration) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{db: db, loc: loc, grace: grace, now: time.Now}
}

// Scan statuses
const (
	StatusScanned       = "scanned"
	StatusAlreadyMarked = "already_marked"
)

// ScanResult is the outcome of a successful or idempotently repeated scan.
type ScanResult struct {
	Status      string          `json:"status"`
	StudentID   uint            `json:"student_id"`
	StudentName string          `json:"student_name"`
	RollNumber  string          `json:"roll_number"`
	MealID      uint            `json:"meal_id"`
	MealType    string          `json:"meal_type"`
	AmountPaid  decimal.Decimal `json:"amount_paid"`
	NewBalance  decimal.Decimal `json:"new_balance"`
	MarkedAt    time.Time       `json:"marked_at"` // Original scan time for already_marked
}

// CreditResult reports a booked wallet credit.
type CreditResult struct {
	Reference  string          `json:"reference"`
	StudentID  uint            `json:"student_id"`
	Amount     decimal.Decimal `json:"amount"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// RecordMealScan resolves a scanned roll number against a meal and, in a
// single transaction, debits the wallet, appends the ledger row and
// inserts the attendance record. A repeat scan for the same (student,
// meal) returns an already_marked result carrying the original timestamp
// and mutates nothing, whether it is caught by the fast-path lookup or by
// the unique constraint under a concurrent race.
func (s *Service) RecordMealScan(ctx context.Context, scannedIdentifier string, mealID uint) (*ScanResult, error) {
	roll := strings.ToUpper(strings.TrimSpace(scannedIdentifier))
	if roll == "" {
		return nil, ErrUnknownStudent
	}

	var student domain.User
	err := s.db.WithContext(ctx).
		Where("username = ? AND role = ?", roll, domain.RoleStudent).
		First(&student).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownStudent
	} else if err != nil {
		return nil, fmt.Errorf("lookup student: %w", err)
	}
	if !student.IsActive {
		return nil, ErrInactiveStudent
	}

	var meal domain.Meal
	err = s.db.WithContext(ctx).First(&meal, mealID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownMeal
	} else if err != nil {
		return nil, fmt.Errorf("lookup meal: %w", err)
	}
	if !meal.IsActive {
		return nil, ErrInactiveMeal
	}
	if !s.withinWindow(meal) {
		return nil, ErrMealWindowClosed
	}

	// Fast path: a prior scan means a friendlier answer without opening a
	// transaction. The unique index remains the actual enforcement.
	var existing domain.Attendance
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND meal_id = ?", student.ID, meal.ID).
		First(&existing).Error
	if err == nil {
		return s.alreadyMarked(ctx, student, meal, existing)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup attendance: %w", err)
	}

	scannedAt := s.now()
	var att domain.Attendance
	var newBalance decimal.Decimal
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked domain.User
		if err := lockForUpdate(tx).First(&locked, student.ID).Error; err != nil {
			return err
		}
		att = domain.Attendance{
			UserID:     locked.ID,
			MealID:     meal.ID,
			AmountPaid: meal.Price,
			ScannedAt:  scannedAt,
		}
		// The insert comes before the balance check: a duplicate racing
		// past the fast path must fail on the unique index and surface as
		// already_marked, not as an insufficient-balance rejection after
		// the winner drained the wallet.
		if err := tx.Create(&att).Error; err != nil {
			return err
		}
		if locked.WalletBalance.LessThan(meal.Price) {
			return ErrInsufficientBalance // rolls back the attendance row
		}
		newBalance = locked.WalletBalance.Sub(meal.Price)
		if err := tx.Model(&domain.User{}).Where("id = ?", locked.ID).
			Update("wallet_balance", newBalance).Error; err != nil {
			return err
		}
		wt := domain.WalletTransaction{
			Reference:    uuid.NewString(),
			UserID:       locked.ID,
			Amount:       meal.Price.Neg(),
			Kind:         domain.TxDebit,
			Description:  mealDescription(meal),
			BalanceAfter: newBalance,
			AttendanceID: &att.ID,
		}
		return tx.Create(&wt).Error
	})
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrDuplicatedKey):
		// A concurrent scan won the race; report its record instead.
		if err := s.db.WithContext(ctx).
			Where("user_id = ? AND meal_id = ?", student.ID, meal.ID).
			First(&existing).Error; err != nil {
			return nil, fmt.Errorf("lookup winning scan: %w", err)
		}
		return s.alreadyMarked(ctx, student, meal, existing)
	case errors.Is(err, ErrInsufficientBalance):
		return nil, ErrInsufficientBalance
	default:
		return nil, fmt.Errorf("record meal scan: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"student_id": student.ID,
		"roll":       student.Username,
		"meal_id":    meal.ID,
		"amount":     meal.Price.String(),
		"balance":    newBalance.String(),
	}).Info("Meal scan recorded")

	return &ScanResult{
		Status:      StatusScanned,
		StudentID:   student.ID,
		StudentName: student.Name,
		RollNumber:  student.Username,
		MealID:      meal.ID,
		MealType:    meal.MealType,
		AmountPaid:  meal.Price,
		NewBalance:  newBalance,
		MarkedAt:    att.ScannedAt,
	}, nil
}

// alreadyMarked reads the current balance so the station shows up-to-date
// numbers even though nothing was charged.
func (s *Service) alreadyMarked(ctx context.Context, student domain.User, meal domain.Meal, existing domain.Attendance) (*ScanResult, error) {
	var fresh domain.User
	if err := s.db.WithContext(ctx).First(&fresh, student.ID).Error; err != nil {
		return nil, fmt.Errorf("refresh balance: %w", err)
	}
	return &ScanResult{
		Status:      StatusAlreadyMarked,
		StudentID:   student.ID,
		StudentName: student.Name,
		RollNumber:  student.Username,
		MealID:      meal.ID,
		MealType:    meal.MealType,
		AmountPaid:  existing.AmountPaid,
		NewBalance:  fresh.WalletBalance,
		MarkedAt:    existing.ScannedAt,
	}, nil
}

// CreditWallet books an admin top-up: credit ledger row plus balance
// increment, atomically.
func (s *Service) CreditWallet(ctx context.Context, studentID uint, amount decimal.Decimal, description string) (*CreditResult, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if description == "" {
		description = "Balance added by admin"
	}
	ref := uuid.NewString()
	var newBalance decimal.Decimal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var student domain.User
		err := lockForUpdate(tx).
			Where("id = ? AND role = ?", studentID, domain.RoleStudent).
			First(&student).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUnknownStudent
		} else if err != nil {
			return err
		}
		newBalance = student.WalletBalance.Add(amount)
		if err := tx.Model(&domain.User{}).Where("id = ?", student.ID).
			Update("wallet_balance", newBalance).Error; err != nil {
			return err
		}
		wt := domain.WalletTransaction{
			Reference:    ref,
			UserID:       student.ID,
			Amount:       amount,
			Kind:         domain.TxCredit,
			Description:  description,
			BalanceAfter: newBalance,
		}
		return tx.Create(&wt).Error
	})
	if errors.Is(err, ErrUnknownStudent) {
		return nil, ErrUnknownStudent
	} else if err != nil {
		return nil, fmt.Errorf("credit wallet: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"student_id": studentID,
		"amount":     amount.String(),
		"balance":    newBalance.String(),
		"reference":  ref,
	}).Info("Wallet credited")

	return &CreditResult{
		Reference:  ref,
		StudentID:  studentID,
		Amount:     amount,
		NewBalance: newBalance,
	}, nil
}

// lockForUpdate applies a SELECT FOR UPDATE row lock where the dialect
// supports it. SQLite serializes writers on its own and rejects the
// syntax.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// withinWindow reports whether the meal may still be scanned: from the
// start of its date until midnight plus the configured grace.
func (s *Service) withinWindow(meal domain.Meal) bool {
	d := meal.Date.In(s.loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, s.loc)
	end := start.Add(24*time.Hour + s.grace)
	now := s.now().In(s.loc)
	return !now.Before(start) && now.Before(end)
}

func mealDescription(meal domain.Meal) string {
	t := meal.MealType
	if t != "" {
		t = strings.ToUpper(t[:1]) + t[1:]
	}
	return t + " on " + meal.Date.Format("2006-01-02")
}
