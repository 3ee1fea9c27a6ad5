package mess

import "errors"

// Outcomes a caller is expected to handle and present to the scanning
// station. Anything else coming out of the service is a storage failure
// and maps to a retryable 503 at the HTTP layer.
var (
	ErrUnknownStudent      = errors.New("student not found")
	ErrInactiveStudent     = errors.New("student account is deactivated")
	ErrUnknownMeal         = errors.New("meal not found")
	ErrInactiveMeal        = errors.New("meal is not active")
	ErrMealWindowClosed    = errors.New("meal is outside its serving window")
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	ErrInvalidAmount       = errors.New("amount must be positive")

	ErrUnknownAttendance  = errors.New("attendance record not found")
	ErrRefundWindowClosed = errors.New("refund window has closed")
	ErrRefundExists       = errors.New("refund already requested for this attendance")
	ErrRefundProcessed    = errors.New("refund request already processed")
	ErrInvalidAction      = errors.New("invalid refund action")
)
