package api

import (
	"context"  // Context for Redis operations
	"errors"   // Sentinel error matching
	"net/http" // HTTP status codes
	"regexp"   // Roll number validation
	"strings"  // String manipulation
	"time"     // Cache TTLs

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Exact money amounts
	"github.com/sirupsen/logrus"    // Logging library
	"golang.org/x/crypto/bcrypt"    // Password hashing
	"gorm.io/gorm"                  // GORM ORM library

	"github.com/hmid0478/scan2eat/internal/domain" // Importing domain models
	"github.com/hmid0478/scan2eat/internal/mess"   // Transaction service
	"github.com/hmid0478/scan2eat/internal/utils"  // Utility functions
)

// Roll numbers follow YYYY-DEPT-XXX, e.g. 2024-CS-562.
var rollPattern = regexp.MustCompile(`^\d{4}-[A-Za-z]{2,5}-\d{1,4}$`)

// RegisterStudentRequest is the admin registration form.
type RegisterStudentRequest struct {
	Name           string          `json:"name" binding:"required"`
	RollNumber     string          `json:"roll_number" binding:"required"`
	RoomNumber     string          `json:"room_number"`
	Password       string          `json:"password" binding:"required"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

// RegisterStudentHandler creates a student account with a generated QR
// code. A non-zero opening balance is booked through the wallet service
// so it shows up on the ledger like any other credit.
func RegisterStudentHandler(db *gorm.DB, svc *mess.Service, rdb *redis.Client, qrDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterStudentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if !rollPattern.MatchString(req.RollNumber) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid roll number format. Use format: YYYY-DEPT-XXX (e.g., 2024-CS-562)"})
			return
		}
		if req.InitialBalance.IsNegative() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Initial balance cannot be negative"})
			return
		}
		roll := strings.ToUpper(req.RollNumber)

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}

		student := domain.User{
			Username:   roll,
			Password:   string(hash),
			Name:       req.Name,
			Role:       domain.RoleStudent,
			RoomNumber: req.RoomNumber,
			IsActive:   true,
		}
		if err := db.Create(&student).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				c.JSON(http.StatusConflict, gin.H{"error": "Roll number already registered"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register student"})
			return
		}
		// QR generation waits for the insert so a duplicate-roll conflict
		// leaves nothing on disk.
		qrPath, err := utils.GenerateQRCode(qrDir, roll)
		if err != nil {
			logrus.WithFields(logrus.Fields{"roll": roll, "error": err.Error()}).Error("QR code generation failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Student created but QR code generation failed"})
			return
		}
		if err := db.Model(&student).Update("qr_code_path", qrPath).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register student"})
			return
		}
		student.QRCodePath = qrPath
		if req.InitialBalance.IsPositive() {
			if _, err := svc.CreditWallet(c.Request.Context(), student.ID, req.InitialBalance, "Initial wallet balance"); err != nil {
				logrus.WithFields(logrus.Fields{"student_id": student.ID, "error": err.Error()}).Error("Initial balance credit failed")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Student created but initial balance credit failed"})
				return
			}
			student.WalletBalance = req.InitialBalance
		}
		if rdb != nil {
			_ = utils.DeleteCachePattern(context.Background(), rdb, "admin:students:*")
			_ = utils.DeleteCachePattern(context.Background(), rdb, "stats:*")
		}
		c.JSON(http.StatusCreated, gin.H{"message": "Student registered successfully", "student": student})
	}
}

// ListStudentsHandler returns students with status filtering and
// pagination, cached briefly in Redis.
func ListStudentsHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.Background()
		status := c.DefaultQuery("status", "active")
		cacheKey := "admin:students:status=" + status + ":page=" + c.DefaultQuery("page", "1") + ":size=" + c.DefaultQuery("page_size", "20")
		var cached gin.H
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			cached["cached"] = true
			c.JSON(http.StatusOK, cached)
			return
		}

		page, pageSize := parsePagination(c)
		query := db.Model(&domain.User{}).Where("role = ?", domain.RoleStudent)
		switch status {
		case "all":
		case "inactive":
			query = query.Where("is_active = ?", false)
		default:
			query = query.Where("is_active = ?", true)
		}
		var total int64
		if err := query.Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count students"})
			return
		}
		var students []domain.User
		if err := query.Order("name").Offset((page - 1) * pageSize).Limit(pageSize).Find(&students).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch students"})
			return
		}
		resp := gin.H{
			"students":    students,
			"page":        page,
			"page_size":   pageSize,
			"total":       total,
			"total_pages": totalPages(total, pageSize),
			"cached":      false,
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, 60*time.Second)
		c.JSON(http.StatusOK, resp)
	}
}

// SearchStudentsHandler backs the admin AJAX search box: name, roll
// number or room, capped at 20 rows.
func SearchStudentsHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := c.Query("q")
		like := "%" + q + "%"
		var students []domain.User
		if err := db.Where("role = ?", domain.RoleStudent).
			Where("name LIKE ? OR username LIKE ? OR room_number LIKE ?", like, like, like).
			Order("name").Limit(20).Find(&students).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"students": students})
	}
}

// CheckRollHandler backs the registration form's live availability
// check.
func CheckRollHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		roll := strings.ToUpper(strings.TrimSpace(c.Query("roll")))
		if !rollPattern.MatchString(roll) {
			c.JSON(http.StatusOK, gin.H{"exists": false, "valid": false})
			return
		}
		var count int64
		if err := db.Model(&domain.User{}).Where("username = ?", roll).Count(&count).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check roll number"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"exists": count > 0, "valid": true})
	}
}

// GetStudentHandler returns one student with their meal count.
func GetStudentHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var student domain.User
		if err := db.Where("role = ?", domain.RoleStudent).First(&student, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Student not found"})
			return
		}
		var totalMeals int64
		if err := db.Model(&domain.Attendance{}).Where("user_id = ?", student.ID).Count(&totalMeals).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count meals"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"student": student, "total_meals": totalMeals})
	}
}

// UpdateStudentRequest edits name, room and optionally the password.
type UpdateStudentRequest struct {
	Name       string `json:"name" binding:"required"`
	RoomNumber string `json:"room_number"`
	Password   string `json:"password"`
}

// UpdateStudentHandler edits student details. The roll number and
// balance are immutable here: the roll is the QR identity and the
// balance only moves through the ledger.
func UpdateStudentHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var student domain.User
		if err := db.Where("role = ?", domain.RoleStudent).First(&student, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Student not found"})
			return
		}
		var req UpdateStudentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		updates := map[string]any{"name": req.Name, "room_number": req.RoomNumber}
		if req.Password != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
				return
			}
			updates["password"] = string(hash)
		}
		if err := db.Model(&student).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update student"})
			return
		}
		_ = utils.DeleteCachePattern(context.Background(), rdb, "admin:students:*")
		c.JSON(http.StatusOK, gin.H{"message": "Student updated successfully"})
	}
}

// ToggleStudentHandler flips the active flag.
func ToggleStudentHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return setStudentActive(db, rdb, nil)
}

// DeactivateStudentHandler soft-deletes: the account and its history
// stay, only the active flag drops.
func DeactivateStudentHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	inactive := false
	return setStudentActive(db, rdb, &inactive)
}

func setStudentActive(db *gorm.DB, rdb *redis.Client, force *bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var student domain.User
		if err := db.Where("role = ?", domain.RoleStudent).First(&student, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Student not found"})
			return
		}
		next := !student.IsActive
		if force != nil {
			next = *force
		}
		if err := db.Model(&student).Update("is_active", next).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update student"})
			return
		}
		_ = utils.DeleteCachePattern(context.Background(), rdb, "admin:students:*")
		state := "deactivated"
		if next {
			state = "activated"
		}
		c.JSON(http.StatusOK, gin.H{"message": "Student " + student.Name + " has been " + state, "is_active": next})
	}
}

// StudentLedgerHandler returns the full ledger with the reconciliation
// verdict, for auditing a student's balance against the transaction sum.
func StudentLedgerHandler(svc *mess.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUintParam(c, "id")
		if !ok {
			return
		}
		report, err := svc.ReconcileLedger(c.Request.Context(), id)
		if errors.Is(err, mess.ErrUnknownStudent) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Student not found"})
			return
		} else if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Storage unavailable, please retry"})
			return
		}
		if !report.Consistent {
			logrus.WithFields(logrus.Fields{
				"student_id": report.StudentID,
				"balance":    report.Balance.String(),
				"ledger_sum": report.LedgerSum.String(),
			}).Error("Ledger drift detected")
		}
		c.JSON(http.StatusOK, report)
	}
}
