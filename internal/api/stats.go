package api

import (
	"context"  // Context for Redis operations
	"net/http" // HTTP status codes
	"time"     // Date math and cache TTLs

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Exact money amounts
	"gorm.io/gorm"                  // GORM ORM library

	"github.com/hmid0478/scan2eat/internal/domain" // Importing domain models
	"github.com/hmid0478/scan2eat/internal/utils"  // Utility functions
)

// DashboardStatsHandler returns the admin dashboard counters, cached for
// the polling refresh.
func DashboardStatsHandler(db *gorm.DB, rdb *redis.Client, loc *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.Background()
		today := time.Now().In(loc).Format(dateLayout)
		cacheKey := "stats:dashboard:" + today
		var cached gin.H
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			cached["cached"] = true
			c.JSON(http.StatusOK, cached)
			return
		}

		var totalStudents, mealsToday, attendanceToday int64
		if err := db.Model(&domain.User{}).Where("role = ?", domain.RoleStudent).Count(&totalStudents).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
			return
		}
		if err := db.Model(&domain.Meal{}).Where("date = ?", today).Count(&mealsToday).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
			return
		}
		if err := db.Model(&domain.Attendance{}).
			Joins("JOIN meals ON meals.id = attendances.meal_id").
			Where("meals.date = ?", today).Count(&attendanceToday).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
			return
		}
		revenue, err := revenueForDate(db, today)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
			return
		}
		resp := gin.H{
			"total_students":   totalStudents,
			"total_meals":      mealsToday,
			"today_attendance": attendanceToday,
			"today_revenue":    revenue,
			"cached":           false,
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, 30*time.Second)
		c.JSON(http.StatusOK, resp)
	}
}

// MealTypeStatsHandler returns today's attendance split by meal type,
// for the dashboard pie chart.
func MealTypeStatsHandler(db *gorm.DB, rdb *redis.Client, loc *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.Background()
		today := time.Now().In(loc).Format(dateLayout)
		cacheKey := "stats:mealtypes:" + today
		var cached map[string]int64
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			c.JSON(http.StatusOK, cached)
			return
		}

		rows, err := db.Model(&domain.Attendance{}).
			Select("meals.meal_type, COUNT(attendances.id)").
			Joins("JOIN meals ON meals.id = attendances.meal_id").
			Where("meals.date = ?", today).
			Group("meals.meal_type").Rows()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
			return
		}
		defer rows.Close()

		result := map[string]int64{domain.MealBreakfast: 0, domain.MealLunch: 0, domain.MealDinner: 0}
		for rows.Next() {
			var mealType string
			var count int64
			if err := rows.Scan(&mealType, &count); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
				return
			}
			result[mealType] = count
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, result, 30*time.Second)
		c.JSON(http.StatusOK, result)
	}
}

// RevenueStatsHandler returns the last seven days of revenue for the
// dashboard chart.
func RevenueStatsHandler(db *gorm.DB, rdb *redis.Client, loc *time.Location) gin.HandlerFunc {
	return weekSeriesHandler(db, rdb, loc, "stats:revenue:", func(db *gorm.DB, day string) (any, error) {
		return revenueForDate(db, day)
	})
}

// WeeklyTrendHandler returns the last seven days of attendance counts.
func WeeklyTrendHandler(db *gorm.DB, rdb *redis.Client, loc *time.Location) gin.HandlerFunc {
	return weekSeriesHandler(db, rdb, loc, "stats:trend:", func(db *gorm.DB, day string) (any, error) {
		var count int64
		err := db.Model(&domain.Attendance{}).
			Joins("JOIN meals ON meals.id = attendances.meal_id").
			Where("meals.date = ?", day).Count(&count).Error
		return count, err
	})
}

// weekSeriesHandler builds a labels/values series over the last seven
// days, cached per day.
func weekSeriesHandler(db *gorm.DB, rdb *redis.Client, loc *time.Location, keyPrefix string, valueFor func(*gorm.DB, string) (any, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.Background()
		now := time.Now().In(loc)
		cacheKey := keyPrefix + now.Format(dateLayout)
		var cached gin.H
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			c.JSON(http.StatusOK, cached)
			return
		}

		labels := make([]string, 0, 7)
		values := make([]any, 0, 7)
		for i := 6; i >= 0; i-- {
			day := now.AddDate(0, 0, -i)
			v, err := valueFor(db, day.Format(dateLayout))
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
				return
			}
			labels = append(labels, day.Format("Mon"))
			values = append(values, v)
		}
		resp := gin.H{"labels": labels, "values": values}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, 60*time.Second)
		c.JSON(http.StatusOK, resp)
	}
}

// revenueForDate sums attendance payments for meals on one date, in
// exact arithmetic.
func revenueForDate(db *gorm.DB, day string) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := db.Model(&domain.Attendance{}).
		Joins("JOIN meals ON meals.id = attendances.meal_id").
		Where("meals.date = ?", day).
		Pluck("attendances.amount_paid", &amounts).Error
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, a := range amounts {
		sum = sum.Add(a)
	}
	return sum, nil
}
