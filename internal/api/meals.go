package api

import (
	"errors"   // Sentinel error matching
	"net/http" // HTTP status codes
	"time"     // Date parsing

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/shopspring/decimal" // Exact money amounts
	"gorm.io/gorm"                  // GORM ORM library

	"github.com/hmid0478/scan2eat/internal/domain" // Importing domain models
)

const dateLayout = "2006-01-02"

// MealRequest creates or updates a meal definition.
type MealRequest struct {
	Date      string          `json:"date" binding:"required"` // YYYY-MM-DD
	MealType  string          `json:"meal_type" binding:"required"`
	Price     decimal.Decimal `json:"price" binding:"required"`
	MenuItems string          `json:"menu_items"`
	IsActive  *bool           `json:"is_active"`
}

func (r *MealRequest) validate(c *gin.Context, loc *time.Location) (time.Time, bool) {
	date, err := time.ParseInLocation(dateLayout, r.Date, loc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date, expected YYYY-MM-DD"})
		return time.Time{}, false
	}
	if !domain.ValidMealType(r.MealType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Meal type must be breakfast, lunch or dinner"})
		return time.Time{}, false
	}
	if !r.Price.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Price must be positive"})
		return time.Time{}, false
	}
	return date, true
}

// CreateMealHandler defines a meal; one per (date, type), enforced by
// the unique index.
func CreateMealHandler(db *gorm.DB, loc *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req MealRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		date, ok := req.validate(c, loc)
		if !ok {
			return
		}
		meal := domain.Meal{
			Date:      date,
			MealType:  req.MealType,
			Price:     req.Price,
			MenuItems: req.MenuItems,
			IsActive:  true,
		}
		if err := db.Create(&meal).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				c.JSON(http.StatusConflict, gin.H{"error": "This meal already exists for the selected date"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create meal"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "Meal added successfully", "meal": meal})
	}
}

// ListMealsHandler returns the 50 most recent meal definitions.
func ListMealsHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var meals []domain.Meal
		if err := db.Order("date desc, meal_type").Limit(50).Find(&meals).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch meals"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"meals": meals})
	}
}

// TodayMealsHandler returns today's active meals, for the scan station
// dropdown and the student dashboard.
func TodayMealsHandler(db *gorm.DB, loc *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		today := time.Now().In(loc).Format(dateLayout)
		var meals []domain.Meal
		if err := db.Where("date = ? AND is_active = ?", today, true).
			Order("meal_type").Find(&meals).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch meals"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"meals": meals})
	}
}

// UpcomingMealsHandler lists active meals from today onward for the
// student view.
func UpcomingMealsHandler(db *gorm.DB, loc *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		today := time.Now().In(loc).Format(dateLayout)
		var meals []domain.Meal
		if err := db.Where("date >= ? AND is_active = ?", today, true).
			Order("date, meal_type").Find(&meals).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch meals"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"meals": meals})
	}
}

// UpdateMealHandler edits a meal definition.
func UpdateMealHandler(db *gorm.DB, loc *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		var meal domain.Meal
		if err := db.First(&meal, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Meal not found"})
			return
		}
		var req MealRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		date, ok := req.validate(c, loc)
		if !ok {
			return
		}
		meal.Date = date
		meal.MealType = req.MealType
		meal.Price = req.Price
		meal.MenuItems = req.MenuItems
		if req.IsActive != nil {
			meal.IsActive = *req.IsActive
		}
		if err := db.Save(&meal).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				c.JSON(http.StatusConflict, gin.H{"error": "Another meal already exists for this date and type"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update meal"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Meal updated successfully", "meal": meal})
	}
}

// ToggleMealHandler flips the active flag.
func ToggleMealHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var meal domain.Meal
		if err := db.First(&meal, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Meal not found"})
			return
		}
		if err := db.Model(&meal).Update("is_active", !meal.IsActive).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update meal"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"is_active": !meal.IsActive})
	}
}

// DeleteMealHandler removes a meal only when nothing references it;
// a meal with attendance is part of the ledger history and must stay.
func DeleteMealHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var meal domain.Meal
		if err := db.First(&meal, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Meal not found"})
			return
		}
		var count int64
		if err := db.Model(&domain.Attendance{}).Where("meal_id = ?", meal.ID).Count(&count).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check attendance"})
			return
		}
		if count > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "Cannot delete meal with attendance records"})
			return
		}
		if err := db.Delete(&meal).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete meal"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Meal deleted"})
	}
}
