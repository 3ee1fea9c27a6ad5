package api

import (
	"context"  // Context for Redis operations
	"errors"   // Sentinel error matching
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"time"     // Cache TTLs

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Exact money amounts
	"gorm.io/gorm"                  // GORM ORM library

	"github.com/hmid0478/scan2eat/internal/domain" // Importing domain models
	"github.com/hmid0478/scan2eat/internal/mess"   // Transaction service
	"github.com/hmid0478/scan2eat/internal/utils"  // Utility functions
)

// CreditRequest is the admin top-up form.
type CreditRequest struct {
	StudentID   uint            `json:"student_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Description string          `json:"description"`
}

// CreditWalletHandler books an admin top-up through the transaction
// service.
func CreditWalletHandler(svc *mess.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreditRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		result, err := svc.CreditWallet(c.Request.Context(), req.StudentID, req.Amount, req.Description)
		switch {
		case errors.Is(err, mess.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Amount must be positive"})
			return
		case errors.Is(err, mess.ErrUnknownStudent):
			c.JSON(http.StatusNotFound, gin.H{"error": "Student not found"})
			return
		case err != nil:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Storage unavailable, please retry"})
			return
		}
		invalidateStudentCaches(rdb, req.StudentID)
		c.JSON(http.StatusOK, gin.H{
			"message":     "Balance added successfully",
			"reference":   result.Reference,
			"new_balance": result.NewBalance,
		})
	}
}

// WalletHandler returns the authenticated student's balance, briefly
// cached.
func WalletHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		ctx := context.Background()
		cacheKey := "wallet:user:" + strconv.Itoa(int(userID.(uint)))
		var student domain.User
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &student); err == nil && found {
			c.JSON(http.StatusOK, gin.H{"balance": student.WalletBalance, "cached": true})
			return
		}
		if err := db.First(&student, userID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Student not found"})
			return
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, student, 60*time.Second)
		c.JSON(http.StatusOK, gin.H{"balance": student.WalletBalance, "cached": false})
	}
}

// TransactionHistoryHandler returns the authenticated student's ledger,
// paginated and cached.
func TransactionHistoryHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		page, pageSize := parsePagination(c)
		ctx := context.Background()
		cacheKey := "txhistory:user:" + strconv.Itoa(int(userID.(uint))) +
			":page:" + strconv.Itoa(page) + ":size:" + strconv.Itoa(pageSize)
		var cached gin.H
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			cached["cached"] = true
			c.JSON(http.StatusOK, cached)
			return
		}

		var total int64
		if err := db.Model(&domain.WalletTransaction{}).
			Where("user_id = ?", userID).Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count transactions"})
			return
		}
		var txs []domain.WalletTransaction
		if err := db.Where("user_id = ?", userID).
			Order("created_at desc, id desc").
			Offset((page - 1) * pageSize).Limit(pageSize).
			Find(&txs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transactions"})
			return
		}
		resp := gin.H{
			"transactions": txs,
			"page":         page,
			"page_size":    pageSize,
			"total":        total,
			"total_pages":  totalPages(total, pageSize),
			"cached":       false,
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, 60*time.Second)
		c.JSON(http.StatusOK, resp)
	}
}

// AttendanceHistoryHandler lists the authenticated student's meal
// attendance, newest first.
func AttendanceHistoryHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		page, pageSize := parsePagination(c)
		var attendances []domain.Attendance
		if err := db.Preload("Meal").
			Where("user_id = ?", userID).
			Order("scanned_at desc").
			Offset((page - 1) * pageSize).Limit(pageSize).
			Find(&attendances).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch attendance"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"attendances": attendances, "page": page, "page_size": pageSize})
	}
}

// DashboardHandler returns the student landing view: balance, today's
// meals and the five most recent ledger entries.
func DashboardHandler(db *gorm.DB, loc *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var student domain.User
		if err := db.First(&student, userID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Student not found"})
			return
		}
		today := time.Now().In(loc).Format(dateLayout)
		var meals []domain.Meal
		if err := db.Where("date = ? AND is_active = ?", today, true).
			Order("meal_type").Find(&meals).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch meals"})
			return
		}
		var recent []domain.WalletTransaction
		if err := db.Where("user_id = ?", userID).
			Order("created_at desc, id desc").Limit(5).
			Find(&recent).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transactions"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"balance":             student.WalletBalance,
			"today_meals":         meals,
			"recent_transactions": recent,
		})
	}
}
