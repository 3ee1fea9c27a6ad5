package db

import (
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"gorm.io/driver/mysql" // MySQL driver for GORM
	"gorm.io/gorm"         // GORM ORM library

	"github.com/hmid0478/scan2eat/internal/domain" // Importing domain models
)

// Migrate performs automatic migration for the database schema and seeds
// the default admin account.
func Migrate(dsn string) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		logrus.Fatalf("failed to connect database: %v", err)
	}
	// AutoMigrate will create tables, missing foreign keys, constraints, columns and indexes
	err = db.AutoMigrate(
		&domain.User{},
		&domain.Meal{},
		&domain.Attendance{},
		&domain.WalletTransaction{},
		&domain.RefundRequest{},
	)
	if err != nil {
		logrus.Fatalf("migration failed: %v", err)
	}
	if err := SeedAdmin(db); err != nil {
		logrus.Fatalf("admin seed failed: %v", err)
	}
	logrus.Info("Migration completed.")
}

// SeedAdmin creates the default administrator if no admin account exists.
// The password must be changed after first login.
func SeedAdmin(db *gorm.DB) error {
	var admin domain.User
	err := db.Where("role = ?", domain.RoleAdmin).First(&admin).Error
	if err == nil {
		return nil // Admin already exists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin = domain.User{
		Username: "admin",
		Password: string(hash),
		Name:     "Administrator",
		Role:     domain.RoleAdmin,
		IsActive: true,
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}
	logrus.Warn("Default admin user created (admin/admin123) - change the password after first login")
	return nil
}
