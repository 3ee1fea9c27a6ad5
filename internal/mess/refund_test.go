package mess

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hmid0478/scan2eat/internal/domain"
)

func scanOnce(t *testing.T, svc *Service, db *gorm.DB, roll string, mealID uint) domain.Attendance {
	t.Helper()
	result, err := svc.RecordMealScan(context.Background(), roll, mealID)
	require.NoError(t, err)
	require.Equal(t, StatusScanned, result.Status)
	var att domain.Attendance
	require.NoError(t, db.Where("user_id = ? AND meal_id = ?", result.StudentID, mealID).First(&att).Error)
	return att
}

func TestRequestRefund(t *testing.T) {
	svc, db := newTestService(t)
	student := seedStudent(t, svc, db, "2024-CS-562", "150.00")
	meal := seedMeal(t, db, mealDay(scanTime), domain.MealLunch, "50.00")
	att := scanOnce(t, svc, db, student.Username, meal.ID)

	req, err := svc.RequestRefund(context.Background(), student.ID, att.ID, "wrong meal")
	require.NoError(t, err)
	assert.Equal(t, domain.RefundPending, req.Status)
	assert.True(t, req.Amount.Equal(meal.Price))

	// One request per attendance.
	_, err = svc.RequestRefund(context.Background(), student.ID, att.ID, "again")
	assert.ErrorIs(t, err, ErrRefundExists)
}

func TestRequestRefundRejections(t *testing.T) {
	svc, db := newTestService(t)
	student := seedStudent(t, svc, db, "2024-CS-562", "150.00")
	other := seedStudent(t, svc, db, "2024-EE-101", "150.00")
	meal := seedMeal(t, db, mealDay(scanTime), domain.MealLunch, "50.00")
	att := scanOnce(t, svc, db, student.Username, meal.ID)

	t.Run("unknown attendance", func(t *testing.T) {
		_, err := svc.RequestRefund(context.Background(), student.ID, 9999, "")
		assert.ErrorIs(t, err, ErrUnknownAttendance)
	})
	t.Run("someone else's attendance", func(t *testing.T) {
		_, err := svc.RequestRefund(context.Background(), other.ID, att.ID, "")
		assert.ErrorIs(t, err, ErrUnknownAttendance)
	})
	t.Run("window closed", func(t *testing.T) {
		svc.now = func() time.Time { return scanTime.Add(25 * time.Hour) }
		defer func() { svc.now = func() time.Time { return scanTime } }()
		_, err := svc.RequestRefund(context.Background(), student.ID, att.ID, "")
		assert.ErrorIs(t, err, ErrRefundWindowClosed)
	})
}

func TestProcessRefundApprove(t *testing.T) {
	svc, db := newTestService(t)
	student := seedStudent(t, svc, db, "2024-CS-562", "150.00")
	meal := seedMeal(t, db, mealDay(scanTime), domain.MealLunch, "50.00")
	att := scanOnce(t, svc, db, student.Username, meal.ID)
	req, err := svc.RequestRefund(context.Background(), student.ID, att.ID, "wrong meal")
	require.NoError(t, err)

	processed, err := svc.ProcessRefund(context.Background(), req.ID, "approve", "ok")
	require.NoError(t, err)
	assert.Equal(t, domain.RefundApproved, processed.Status)
	require.NotNil(t, processed.ProcessedAt)

	// The compensating credit restores the balance and lands on the
	// ledger; the attendance record stays.
	var fresh domain.User
	require.NoError(t, db.First(&fresh, student.ID).Error)
	assert.True(t, fresh.WalletBalance.Equal(decimal.RequireFromString("150.00")))

	report, err := svc.ReconcileLedger(context.Background(), student.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Len(t, report.Transactions, 3) // initial credit, debit, refund credit

	var attCount int64
	require.NoError(t, db.Model(&domain.Attendance{}).Where("id = ?", att.ID).Count(&attCount).Error)
	assert.EqualValues(t, 1, attCount)

	// Approval is terminal: a second decision must not pay out again.
	_, err = svc.ProcessRefund(context.Background(), req.ID, "approve", "")
	assert.ErrorIs(t, err, ErrRefundProcessed)
	require.NoError(t, db.First(&fresh, student.ID).Error)
	assert.True(t, fresh.WalletBalance.Equal(decimal.RequireFromString("150.00")))
}

func TestProcessRefundReject(t *testing.T) {
	svc, db := newTestService(t)
	student := seedStudent(t, svc, db, "2024-CS-562", "150.00")
	meal := seedMeal(t, db, mealDay(scanTime), domain.MealLunch, "50.00")
	att := scanOnce(t, svc, db, student.Username, meal.ID)
	req, err := svc.RequestRefund(context.Background(), student.ID, att.ID, "")
	require.NoError(t, err)

	processed, err := svc.ProcessRefund(context.Background(), req.ID, "reject", "no grounds")
	require.NoError(t, err)
	assert.Equal(t, domain.RefundRejected, processed.Status)
	assert.Equal(t, "no grounds", processed.AdminRemarks)

	var fresh domain.User
	require.NoError(t, db.First(&fresh, student.ID).Error)
	assert.True(t, fresh.WalletBalance.Equal(decimal.RequireFromString("100.00")),
		"rejection must not credit anything")
}

func TestProcessRefundRejections(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ProcessRefund(context.Background(), 1, "maybe", "")
	assert.ErrorIs(t, err, ErrInvalidAction)
	_, err = svc.ProcessRefund(context.Background(), 9999, "approve", "")
	assert.ErrorIs(t, err, ErrUnknownAttendance)
}
