package api

import (
	"context"  // Context for Redis invalidation
	"errors"   // Sentinel error matching
	"net/http" // HTTP status codes
	"strconv"  // String conversion

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library

	"github.com/hmid0478/scan2eat/internal/mess"  // Transaction service
	"github.com/hmid0478/scan2eat/internal/utils" // Utility functions
)

// ScanRequest is what the scanner station posts after decoding a QR
// image: the plain roll number string and the selected meal.
type ScanRequest struct {
	RollNumber string `json:"roll_number" binding:"required"`
	MealID     uint   `json:"meal_id" binding:"required"`
}

// ScanHandler runs the attendance/wallet transaction and maps every
// taxonomy outcome to a distinct status the station can toast. A repeat
// scan is a 200 with status already_marked, never an error.
func ScanHandler(svc *mess.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		result, err := svc.RecordMealScan(c.Request.Context(), req.RollNumber, req.MealID)
		if err != nil {
			status, msg := scanErrorStatus(err)
			if status == http.StatusServiceUnavailable {
				logrus.WithFields(logrus.Fields{
					"roll":    req.RollNumber,
					"meal_id": req.MealID,
					"error":   err.Error(),
				}).Error("Scan failed")
			}
			c.JSON(status, gin.H{"error": msg})
			return
		}
		if result.Status == mess.StatusScanned {
			invalidateStudentCaches(rdb, result.StudentID)
		}
		c.JSON(http.StatusOK, gin.H{
			"status":       result.Status,
			"student_name": result.StudentName,
			"roll_number":  result.RollNumber,
			"meal_type":    result.MealType,
			"amount":       result.AmountPaid,
			"new_balance":  result.NewBalance,
			"marked_at":    result.MarkedAt,
		})
	}
}

// scanErrorStatus translates the service taxonomy into HTTP responses.
// Unrecognized errors are storage failures: 503, retryable by the
// caller.
func scanErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, mess.ErrUnknownStudent):
		return http.StatusNotFound, "Student not found"
	case errors.Is(err, mess.ErrInactiveStudent):
		return http.StatusForbidden, "Student account is deactivated"
	case errors.Is(err, mess.ErrUnknownMeal):
		return http.StatusNotFound, "Meal not found"
	case errors.Is(err, mess.ErrInactiveMeal):
		return http.StatusConflict, "Meal is not active"
	case errors.Is(err, mess.ErrMealWindowClosed):
		return http.StatusConflict, "Meal is outside its serving window"
	case errors.Is(err, mess.ErrInsufficientBalance):
		return http.StatusPaymentRequired, "Insufficient wallet balance"
	default:
		return http.StatusServiceUnavailable, "Storage unavailable, please retry"
	}
}

// invalidateStudentCaches drops the cached wallet, history and stats
// views after any balance mutation.
func invalidateStudentCaches(rdb *redis.Client, studentID uint) {
	if rdb == nil {
		return
	}
	ctx := context.Background()
	id := strconv.Itoa(int(studentID))
	_ = utils.DeleteCache(ctx, rdb, "wallet:user:"+id)
	_ = utils.DeleteCachePattern(ctx, rdb, "txhistory:user:"+id+":*")
	_ = utils.DeleteCachePattern(ctx, rdb, "stats:*")
	_ = utils.DeleteCachePattern(ctx, rdb, "admin:students:*")
}
