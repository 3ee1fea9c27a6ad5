package mess

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hmid0478/scan2eat/internal/domain"
)

// scanTime is "now" for every test; meals dated the same day are inside
// their serving window.
var scanTime = time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection serializes concurrent transactions the way row
	// locks do on MySQL.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&domain.User{},
		&domain.Meal{},
		&domain.Attendance{},
		&domain.WalletTransaction{},
		&domain.RefundRequest{},
	))
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	svc := NewService(db, time.UTC, 30*time.Minute)
	svc.now = func() time.Time { return scanTime }
	return svc, db
}

func seedStudent(t *testing.T, svc *Service, db *gorm.DB, roll string, balance string) domain.User {
	t.Helper()
	student := domain.User{
		Username: roll,
		Password: "x",
		Name:     "Student " + roll,
		Role:     domain.RoleStudent,
		IsActive: true,
	}
	require.NoError(t, db.Create(&student).Error)
	amount := decimal.RequireFromString(balance)
	if amount.IsPositive() {
		_, err := svc.CreditWallet(context.Background(), student.ID, amount, "Initial wallet balance")
		require.NoError(t, err)
	}
	require.NoError(t, db.First(&student, student.ID).Error)
	return student
}

func seedMeal(t *testing.T, db *gorm.DB, date time.Time, mealType, price string) domain.Meal {
	t.Helper()
	meal := domain.Meal{
		Date:     date,
		MealType: mealType,
		Price:    decimal.RequireFromString(price),
		IsActive: true,
	}
	require.NoError(t, db.Create(&meal).Error)
	return meal
}

func mealDay(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

func TestRecordMealScan(t *testing.T) {
	svc, db := newTestService(t)
	student := seedStudent(t, svc, db, "2024-CS-562", "150.00")
	meal := seedMeal(t, db, mealDay(scanTime), domain.MealLunch, "50.00")

	result, err := svc.RecordMealScan(context.Background(), "2024-cs-562", meal.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScanned, result.Status)
	assert.Equal(t, student.Name, result.StudentName)
	assert.True(t, result.NewBalance.Equal(decimal.RequireFromString("100.00")),
		"new balance = %s", result.NewBalance)

	var fresh domain.User
	require.NoError(t, db.First(&fresh, student.ID).Error)
	assert.True(t, fresh.WalletBalance.Equal(decimal.RequireFromString("100.00")))

	var att domain.Attendance
	require.NoError(t, db.Where("user_id = ? AND meal_id = ?", student.ID, meal.ID).First(&att).Error)
	assert.True(t, att.AmountPaid.Equal(meal.Price))

	var debit domain.WalletTransaction
	require.NoError(t, db.Where("user_id = ? AND kind = ?", student.ID, domain.TxDebit).First(&debit).Error)
	assert.True(t, debit.Amount.Equal(meal.Price.Neg()))
	assert.True(t, debit.BalanceAfter.Equal(fresh.WalletBalance))
	require.NotNil(t, debit.AttendanceID)
	assert.Equal(t, att.ID, *debit.AttendanceID)
}

func TestRecordMealScanRepeatIsIdempotent(t *testing.T) {
	svc, db := newTestService(t)
	student := seedStudent(t, svc, db, "2024-CS-562", "150.00")
	meal := seedMeal(t, db, mealDay(scanTime), domain.MealLunch, "50.00")

	first, err := svc.RecordMealScan(context.Background(), student.Username, meal.ID)
	require.NoError(t, err)
	require.Equal(t, StatusScanned, first.Status)

	second, err := svc.RecordMealScan(context.Background(), student.Username, meal.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyMarked, second.Status)
	assert.Equal(t, first.MarkedAt.Unix(), second.MarkedAt.Unix())
	assert.True(t, second.NewBalance.Equal(decimal.RequireFromString("100.00")),
		"repeat scan must not debit again, balance = %s", second.NewBalance)

	var attCount, txCount int64
	require.NoError(t, db.Model(&domain.Attendance{}).Where("user_id = ?", student.ID).Count(&attCount).Error)
	require.NoError(t, db.Model(&domain.WalletTransaction{}).
		Where("user_id = ? AND kind = ?", student.ID, domain.TxDebit).Count(&txCount).Error)
	assert.EqualValues(t, 1, attCount)
	assert.EqualValues(t, 1, txCount)
}

func TestRecordMealScanConcurrentDuplicates(t *testing.T) {
	svc, db := newTestService(t)
	student := seedStudent(t, svc, db, "2024-CS-562", "500.00")
	meal := seedMeal(t, db, mealDay(scanTime), domain.MealDinner, "50.00")

	const scanners = 8
	results := make([]*ScanResult, scanners)
	errs := make([]error, scanners)
	var wg sync.WaitGroup
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.RecordMealScan(context.Background(), student.Username, meal.ID)
		}(i)
	}
	wg.Wait()

	scanned := 0
	for i := 0; i < scanners; i++ {
		require.NoError(t, errs[i])
		if results[i].Status == StatusScanned {
			scanned++
		}
	}
	assert.Equal(t, 1, scanned, "exactly one scan may charge the wallet")

	var attCount, txCount int64
	require.NoError(t, db.Model(&domain.Attendance{}).Where("user_id = ?", student.ID).Count(&attCount).Error)
	require.NoError(t, db.Model(&domain.WalletTransaction{}).
		Where("user_id = ? AND kind = ?", student.ID, domain.TxDebit).Count(&txCount).Error)
	assert.EqualValues(t, 1, attCount)
	assert.EqualValues(t, 1, txCount)

	var fresh domain.User
	require.NoError(t, db.First(&fresh, student.ID).Error)
	assert.True(t, fresh.WalletBalance.Equal(decimal.RequireFromString("450.00")),
		"balance debited once, got %s", fresh.WalletBalance)
}

func TestRecordMealScanRaceAfterFastPath(t *testing.T) {
	svc, db := newTestService(t)
	student := seedStudent(t, svc, db, "2024-CS-562", "50.00")
	meal := seedMeal(t, db, mealDay(scanTime), domain.MealLunch, "50.00")

	// A rival station scans the same student in the window between the
	// duplicate fast path and the transaction, draining the wallet to
	// exactly zero. The clock hook fires on its second call, which sits
	// in that window.
	rival := NewService(db, time.UTC, 30*time.Minute)
	rival.now = func() time.Time { return scanTime }
	calls := 0
	svc.now = func() time.Time {
		calls++
		if calls == 2 {
			result, err := rival.RecordMealScan(context.Background(), student.Username, meal.ID)
			require.NoError(t, err)
			require.Equal(t, StatusScanned, result.Status)
		}
		return scanTime
	}

	result, err := svc.RecordMealScan(context.Background(), student.Username, meal.ID)
	require.NoError(t, err, "raced scan of a marked student must not be an error")
	assert.Equal(t, StatusAlreadyMarked, result.Status)
	assert.True(t, result.NewBalance.IsZero(), "balance = %s", result.NewBalance)

	var attCount, txCount int64
	require.NoError(t, db.Model(&domain.Attendance{}).Where("user_id = ?", student.ID).Count(&attCount).Error)
	require.NoError(t, db.Model(&domain.WalletTransaction{}).
		Where("user_id = ? AND kind = ?", student.ID, domain.TxDebit).Count(&txCount).Error)
	assert.EqualValues(t, 1, attCount)
	assert.EqualValues(t, 1, txCount)
}

func TestRecordMealScanInsufficientBalance(t *testing.T) {
	svc, db := newTestService(t)
	student := seedStudent(t, svc, db, "2024-EE-101", "20.00")
	meal := seedMeal(t, db, mealDay(scanTime), domain.MealLunch, "50.00")

	_, err := svc.RecordMealScan(context.Background(), student.Username, meal.ID)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	var fresh domain.User
	require.NoError(t, db.First(&fresh, student.ID).Error)
	assert.True(t, fresh.WalletBalance.Equal(decimal.RequireFromString("20.00")))
	var attCount int64
	require.NoError(t, db.Model(&domain.Attendance{}).Where("user_id = ?", student.ID).Count(&attCount).Error)
	assert.Zero(t, attCount)
}

func TestRecordMealScanRejections(t *testing.T) {
	svc, db := newTestService(t)
	student := seedStudent(t, svc, db, "2024-CS-562", "150.00")
	meal := seedMeal(t, db, mealDay(scanTime), domain.MealLunch, "50.00")

	t.Run("unknown student", func(t *testing.T) {
		_, err := svc.RecordMealScan(context.Background(), "2099-ZZ-999", meal.ID)
		assert.ErrorIs(t, err, ErrUnknownStudent)
	})
	t.Run("empty identifier", func(t *testing.T) {
		_, err := svc.RecordMealScan(context.Background(), "   ", meal.ID)
		assert.ErrorIs(t, err, ErrUnknownStudent)
	})
	t.Run("unknown meal", func(t *testing.T) {
		_, err := svc.RecordMealScan(context.Background(), student.Username, 9999)
		assert.ErrorIs(t, err, ErrUnknownMeal)
	})
	t.Run("inactive meal", func(t *testing.T) {
		inactive := seedMeal(t, db, mealDay(scanTime), domain.MealDinner, "60.00")
		require.NoError(t, db.Model(&inactive).Update("is_active", false).Error)
		_, err := svc.RecordMealScan(context.Background(), student.Username, inactive.ID)
		assert.ErrorIs(t, err, ErrInactiveMeal)
	})
	t.Run("inactive student", func(t *testing.T) {
		require.NoError(t, db.Model(&domain.User{}).Where("id = ?", student.ID).Update("is_active", false).Error)
		_, err := svc.RecordMealScan(context.Background(), student.Username, meal.ID)
		assert.ErrorIs(t, err, ErrInactiveStudent)
	})
}

func TestRecordMealScanServingWindow(t *testing.T) {
	svc, db := newTestService(t)
	student := seedStudent(t, svc, db, "2024-CS-562", "500.00")

	t.Run("past meal closed", func(t *testing.T) {
		old := seedMeal(t, db, mealDay(scanTime).AddDate(0, 0, -2), domain.MealLunch, "50.00")
		_, err := svc.RecordMealScan(context.Background(), student.Username, old.ID)
		assert.ErrorIs(t, err, ErrMealWindowClosed)
	})
	t.Run("future meal closed", func(t *testing.T) {
		future := seedMeal(t, db, mealDay(scanTime).AddDate(0, 0, 1), domain.MealLunch, "50.00")
		_, err := svc.RecordMealScan(context.Background(), student.Username, future.ID)
		assert.ErrorIs(t, err, ErrMealWindowClosed)
	})
	t.Run("yesterday within grace", func(t *testing.T) {
		// 00:10, ten minutes past midnight: yesterday's dinner is still
		// inside the 30 minute grace.
		svc.now = func() time.Time {
			return time.Date(2026, 3, 11, 0, 10, 0, 0, time.UTC)
		}
		defer func() { svc.now = func() time.Time { return scanTime } }()
		dinner := seedMeal(t, db, mealDay(scanTime), domain.MealDinner, "50.00")
		result, err := svc.RecordMealScan(context.Background(), student.Username, dinner.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusScanned, result.Status)
	})
	t.Run("yesterday past grace", func(t *testing.T) {
		svc.now = func() time.Time {
			return time.Date(2026, 3, 11, 1, 0, 0, 0, time.UTC)
		}
		defer func() { svc.now = func() time.Time { return scanTime } }()
		breakfast := seedMeal(t, db, mealDay(scanTime), domain.MealBreakfast, "30.00")
		_, err := svc.RecordMealScan(context.Background(), student.Username, breakfast.ID)
		assert.ErrorIs(t, err, ErrMealWindowClosed)
	})
}

func TestCreditWallet(t *testing.T) {
	svc, db := newTestService(t)
	student := seedStudent(t, svc, db, "2024-CS-562", "0")

	result, err := svc.CreditWallet(context.Background(), student.ID, decimal.RequireFromString("250.50"), "")
	require.NoError(t, err)
	assert.True(t, result.NewBalance.Equal(decimal.RequireFromString("250.50")))
	assert.NotEmpty(t, result.Reference)

	var tx domain.WalletTransaction
	require.NoError(t, db.Where("user_id = ?", student.ID).First(&tx).Error)
	assert.Equal(t, domain.TxCredit, tx.Kind)
	assert.Equal(t, "Balance added by admin", tx.Description)
	assert.True(t, tx.BalanceAfter.Equal(result.NewBalance))
}

func TestCreditWalletRejections(t *testing.T) {
	svc, db := newTestService(t)
	student := seedStudent(t, svc, db, "2024-CS-562", "0")

	_, err := svc.CreditWallet(context.Background(), student.ID, decimal.Zero, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.CreditWallet(context.Background(), student.ID, decimal.RequireFromString("-5"), "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.CreditWallet(context.Background(), 9999, decimal.RequireFromString("10"), "")
	assert.ErrorIs(t, err, ErrUnknownStudent)

	var count int64
	require.NoError(t, db.Model(&domain.WalletTransaction{}).Where("user_id = ?", student.ID).Count(&count).Error)
	assert.Zero(t, count, "rejected credits must not touch the ledger")
}

func TestLedgerStaysConsistent(t *testing.T) {
	svc, db := newTestService(t)
	student := seedStudent(t, svc, db, "2024-CS-562", "200.00")
	lunch := seedMeal(t, db, mealDay(scanTime), domain.MealLunch, "45.50")
	dinner := seedMeal(t, db, mealDay(scanTime), domain.MealDinner, "60.00")

	_, err := svc.RecordMealScan(context.Background(), student.Username, lunch.ID)
	require.NoError(t, err)
	_, err = svc.RecordMealScan(context.Background(), student.Username, dinner.ID)
	require.NoError(t, err)
	_, err = svc.CreditWallet(context.Background(), student.ID, decimal.RequireFromString("100.00"), "top-up")
	require.NoError(t, err)

	report, err := svc.ReconcileLedger(context.Background(), student.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent, "balance %s vs ledger sum %s", report.Balance, report.LedgerSum)
	assert.True(t, report.Balance.Equal(decimal.RequireFromString("194.50")))
	assert.Len(t, report.Transactions, 4) // initial credit + 2 debits + top-up
}

func TestReconcileLedgerDetectsDrift(t *testing.T) {
	svc, db := newTestService(t)
	student := seedStudent(t, svc, db, "2024-CS-562", "100.00")

	// A writer bypassing the service corrupts the projection.
	require.NoError(t, db.Model(&domain.User{}).Where("id = ?", student.ID).
		Update("wallet_balance", decimal.RequireFromString("999.00")).Error)

	report, err := svc.ReconcileLedger(context.Background(), student.ID)
	require.NoError(t, err)
	assert.False(t, report.Consistent)
	assert.True(t, report.LedgerSum.Equal(decimal.RequireFromString("100.00")))

	_, err = svc.ReconcileLedger(context.Background(), 9999)
	assert.True(t, errors.Is(err, ErrUnknownStudent))
}
