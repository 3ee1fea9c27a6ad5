package main

import (
	"context" // context package is needed for Redis operations
	"log"     // log package is needed for logging
	"time"    // Background maintenance interval

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
	"gorm.io/driver/mysql"         // MySQL driver for GORM
	"gorm.io/gorm"                 // GORM ORM library

	"github.com/hmid0478/scan2eat/internal/api"        // API handlers
	"github.com/hmid0478/scan2eat/internal/config"     // Configuration
	"github.com/hmid0478/scan2eat/internal/domain"     // Domain models
	"github.com/hmid0478/scan2eat/internal/mess"       // Attendance/wallet transaction service
	"github.com/hmid0478/scan2eat/internal/middleware" // Middleware
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Setup logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Connect to the database; TranslateError turns unique violations
	// into gorm.ErrDuplicatedKey, which the scan path relies on.
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{TranslateError: true})
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err)
	}

	// Setup Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}

	loc := cfg.Location()
	svc := mess.NewService(db, loc, cfg.ScanGrace)

	// Deactivate meals whose date has passed so they stop showing up on
	// scan stations and dashboards.
	go expirePastMeals(db, loc)

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default() // Gin router instance
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	// QR code images are served statically; scanners decode them back to
	// roll numbers client-side.
	r.Static("/static", "static")

	// Auth routes
	r.POST("/auth/login", api.LoginHandler(db, cfg.JWTSecret))

	authed := r.Group("")
	authed.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
	authed.POST("/auth/change-password", api.ChangePasswordHandler(db))

	// Admin routes (protected, admin only)
	admin := authed.Group("/admin")
	admin.Use(middleware.AdminOnlyMiddleware(db))
	admin.POST("/students", api.RegisterStudentHandler(db, svc, redisClient, cfg.QRCodeDir))
	admin.GET("/students", api.ListStudentsHandler(db, redisClient))
	admin.GET("/students/search", api.SearchStudentsHandler(db))
	admin.GET("/students/check-roll", api.CheckRollHandler(db))
	admin.GET("/students/:id", api.GetStudentHandler(db))
	admin.PUT("/students/:id", api.UpdateStudentHandler(db, redisClient))
	admin.POST("/students/:id/toggle", api.ToggleStudentHandler(db, redisClient))
	admin.DELETE("/students/:id", api.DeactivateStudentHandler(db, redisClient))
	admin.GET("/students/:id/ledger", api.StudentLedgerHandler(svc))
	admin.POST("/wallet/credit", api.CreditWalletHandler(svc, redisClient))
	admin.POST("/meals", api.CreateMealHandler(db, loc))
	admin.GET("/meals", api.ListMealsHandler(db))
	admin.GET("/meals/today", api.TodayMealsHandler(db, loc))
	admin.PUT("/meals/:id", api.UpdateMealHandler(db, loc))
	admin.POST("/meals/:id/toggle", api.ToggleMealHandler(db))
	admin.DELETE("/meals/:id", api.DeleteMealHandler(db))
	admin.POST("/scan", api.ScanHandler(svc, redisClient))
	admin.GET("/refunds", api.ListRefundsHandler(db))
	admin.POST("/refunds/:id", api.ProcessRefundHandler(svc, redisClient))
	admin.GET("/stats/dashboard", api.DashboardStatsHandler(db, redisClient, loc))
	admin.GET("/stats/meal-attendance", api.MealTypeStatsHandler(db, redisClient, loc))
	admin.GET("/stats/revenue", api.RevenueStatsHandler(db, redisClient, loc))
	admin.GET("/stats/weekly-trend", api.WeeklyTrendHandler(db, redisClient, loc))
	admin.GET("/reports", api.ReportsHandler(db, loc))
	admin.GET("/reports/export", api.ExportReportHandler(db, loc))

	// Student routes (protected, student only)
	student := authed.Group("/student")
	student.Use(middleware.StudentOnlyMiddleware(db))
	student.GET("/dashboard", api.DashboardHandler(db, loc))
	student.GET("/wallet", api.WalletHandler(db, redisClient))
	student.GET("/wallet/transactions", api.TransactionHistoryHandler(db, redisClient))
	student.GET("/attendance", api.AttendanceHistoryHandler(db))
	student.GET("/meals", api.UpcomingMealsHandler(db, loc))
	student.GET("/refunds", api.MyRefundsHandler(db))
	student.POST("/refunds", api.RequestRefundHandler(svc))

	log.Println("Server running on " + cfg.AppPort)
	r.Run(":" + cfg.AppPort) // Start the server on port cfg.AppPort
}

// expirePastMeals periodically deactivates meals dated before today.
func expirePastMeals(db *gorm.DB, loc *time.Location) {
	for {
		today := time.Now().In(loc).Format("2006-01-02")
		res := db.Model(&domain.Meal{}).
			Where("date < ? AND is_active = ?", today, true).
			Update("is_active", false)
		if res.Error != nil {
			logrus.WithField("error", res.Error.Error()).Error("Failed to deactivate past meals")
		} else if res.RowsAffected > 0 {
			logrus.WithField("count", res.RowsAffected).Info("Deactivated past meals")
		}
		time.Sleep(5 * time.Minute)
	}
}
