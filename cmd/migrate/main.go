package main

import (
	"github.com/hmid0478/scan2eat/internal/config" // Custom import path (Config)
	"github.com/hmid0478/scan2eat/internal/db"     // Custom import path (Database)
)

// Main entry point for migration
func main() {
	cfg := config.LoadConfig() // Load configuration
	db.Migrate(cfg.DSN())
}
