package mess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/hmid0478/scan2eat/internal/domain"
)

// RefundWindow is how long after a scan a student may still ask for a
// refund.
const RefundWindow = 24 * time.Hour

// RequestRefund opens a pending refund request for one of the student's
// own attendance records. One request per attendance, within the window.
func (s *Service) RequestRefund(ctx context.Context, studentID, attendanceID uint, reason string) (*domain.RefundRequest, error) {
	var att domain.Attendance
	err := s.db.WithContext(ctx).First(&att, attendanceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownAttendance
	} else if err != nil {
		return nil, fmt.Errorf("lookup attendance: %w", err)
	}
	if att.UserID != studentID {
		return nil, ErrUnknownAttendance
	}
	if s.now().Sub(att.ScannedAt) > RefundWindow {
		return nil, ErrRefundWindowClosed
	}

	req := domain.RefundRequest{
		UserID:       studentID,
		AttendanceID: attendanceID,
		Amount:       att.AmountPaid,
		Reason:       reason,
		Status:       domain.RefundPending,
	}
	if err := s.db.WithContext(ctx).Create(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrRefundExists
		}
		return nil, fmt.Errorf("create refund request: %w", err)
	}
	return &req, nil
}

// ProcessRefund approves or rejects a pending request. Approval books a
// compensating credit on the ledger inside the same transaction that
// flips the request status, so a request can never be paid out twice.
func (s *Service) ProcessRefund(ctx context.Context, requestID uint, action, remarks string) (*domain.RefundRequest, error) {
	if action != "approve" && action != "reject" {
		return nil, ErrInvalidAction
	}
	var req domain.RefundRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := lockForUpdate(tx).First(&req, requestID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUnknownAttendance
		} else if err != nil {
			return err
		}
		if req.Status != domain.RefundPending {
			return ErrRefundProcessed
		}

		now := s.now()
		req.AdminRemarks = remarks
		req.ProcessedAt = &now
		if action == "reject" {
			req.Status = domain.RefundRejected
			return tx.Save(&req).Error
		}

		var student domain.User
		if err := lockForUpdate(tx).First(&student, req.UserID).Error; err != nil {
			return err
		}
		newBalance := student.WalletBalance.Add(req.Amount)
		if err := tx.Model(&domain.User{}).Where("id = ?", student.ID).
			Update("wallet_balance", newBalance).Error; err != nil {
			return err
		}
		wt := domain.WalletTransaction{
			Reference:    uuid.NewString(),
			UserID:       student.ID,
			Amount:       req.Amount,
			Kind:         domain.TxCredit,
			Description:  "Refund for attendance #" + fmt.Sprint(req.AttendanceID),
			BalanceAfter: newBalance,
			AttendanceID: &req.AttendanceID,
		}
		if err := tx.Create(&wt).Error; err != nil {
			return err
		}
		req.Status = domain.RefundApproved
		return tx.Save(&req).Error
	})
	if err != nil {
		if errors.Is(err, ErrUnknownAttendance) || errors.Is(err, ErrRefundProcessed) {
			return nil, err
		}
		return nil, fmt.Errorf("process refund: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"request_id": req.ID,
		"student_id": req.UserID,
		"status":     req.Status,
		"amount":     req.Amount.String(),
	}).Info("Refund request processed")
	return &req, nil
}
