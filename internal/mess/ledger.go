package mess

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/hmid0478/scan2eat/internal/domain"
)

// LedgerReport is an audit view of one student's ledger: the transaction
// sum recomputed in exact arithmetic against the stored balance.
type LedgerReport struct {
	StudentID    uint                       `json:"student_id"`
	Balance      decimal.Decimal            `json:"balance"`
	LedgerSum    decimal.Decimal            `json:"ledger_sum"`
	Consistent   bool                       `json:"consistent"`
	Transactions []domain.WalletTransaction `json:"transactions"`
}

// ReconcileLedger recomputes the sum of a student's wallet transactions
// and flags drift against the materialized balance. Drift means a writer
// bypassed the service and is worth an alarm, not an auto-correction.
func (s *Service) ReconcileLedger(ctx context.Context, studentID uint) (*LedgerReport, error) {
	var student domain.User
	err := s.db.WithContext(ctx).
		Where("id = ? AND role = ?", studentID, domain.RoleStudent).
		First(&student).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownStudent
	} else if err != nil {
		return nil, fmt.Errorf("lookup student: %w", err)
	}

	var txs []domain.WalletTransaction
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", studentID).
		Order("created_at asc, id asc").
		Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	sum := decimal.Zero
	for _, t := range txs {
		sum = sum.Add(t.Amount)
	}
	return &LedgerReport{
		StudentID:    studentID,
		Balance:      student.WalletBalance,
		LedgerSum:    sum,
		Consistent:   sum.Equal(student.WalletBalance),
		Transactions: txs,
	}, nil
}
