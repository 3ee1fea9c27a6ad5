package api

import (
	"errors"   // Sentinel error matching
	"net/http" // HTTP status codes

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"gorm.io/gorm"                 // GORM ORM library

	"github.com/hmid0478/scan2eat/internal/domain" // Importing domain models
	"github.com/hmid0478/scan2eat/internal/mess"   // Transaction service
)

// RefundRequestBody opens a refund request for one attendance record.
type RefundRequestBody struct {
	AttendanceID uint   `json:"attendance_id" binding:"required"`
	Reason       string `json:"reason"`
}

// RequestRefundHandler lets a student ask for a refund of a recent scan.
func RequestRefundHandler(svc *mess.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var req RefundRequestBody
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		refund, err := svc.RequestRefund(c.Request.Context(), userID.(uint), req.AttendanceID, req.Reason)
		switch {
		case errors.Is(err, mess.ErrUnknownAttendance):
			c.JSON(http.StatusNotFound, gin.H{"error": "Attendance record not found"})
			return
		case errors.Is(err, mess.ErrRefundWindowClosed):
			c.JSON(http.StatusConflict, gin.H{"error": "Refund can only be requested within 24 hours of scanning"})
			return
		case errors.Is(err, mess.ErrRefundExists):
			c.JSON(http.StatusConflict, gin.H{"error": "Refund already requested for this meal"})
			return
		case err != nil:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Storage unavailable, please retry"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "Refund request submitted successfully", "request": refund})
	}
}

// MyRefundsHandler lists the authenticated student's refund requests.
func MyRefundsHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var requests []domain.RefundRequest
		if err := db.Where("user_id = ?", userID).
			Order("created_at desc").Find(&requests).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch refund requests"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"requests": requests})
	}
}

// ListRefundsHandler returns pending requests plus the 50 most recently
// processed ones, for the admin review screen.
func ListRefundsHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var pending []domain.RefundRequest
		if err := db.Preload("User").Preload("Attendance").
			Where("status = ?", domain.RefundPending).
			Order("created_at desc").Find(&pending).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch refund requests"})
			return
		}
		var processed []domain.RefundRequest
		if err := db.Preload("User").
			Where("status <> ?", domain.RefundPending).
			Order("processed_at desc").Limit(50).Find(&processed).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch refund requests"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"pending": pending, "processed": processed})
	}
}

// ProcessRefundBody carries the admin's decision.
type ProcessRefundBody struct {
	Action  string `json:"action" binding:"required"` // approve or reject
	Remarks string `json:"remarks"`
}

// ProcessRefundHandler approves or rejects a pending refund request;
// approval credits the wallet through the transaction service.
func ProcessRefundHandler(svc *mess.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUintParam(c, "id")
		if !ok {
			return
		}
		var req ProcessRefundBody
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		refund, err := svc.ProcessRefund(c.Request.Context(), id, req.Action, req.Remarks)
		switch {
		case errors.Is(err, mess.ErrInvalidAction):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Action must be approve or reject"})
			return
		case errors.Is(err, mess.ErrUnknownAttendance):
			c.JSON(http.StatusNotFound, gin.H{"error": "Refund request not found"})
			return
		case errors.Is(err, mess.ErrRefundProcessed):
			c.JSON(http.StatusConflict, gin.H{"error": "Request already processed"})
			return
		case err != nil:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Storage unavailable, please retry"})
			return
		}
		if refund.Status == domain.RefundApproved {
			invalidateStudentCaches(rdb, refund.UserID)
		}
		c.JSON(http.StatusOK, gin.H{"message": "Refund request " + refund.Status, "request": refund})
	}
}
