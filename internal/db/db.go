package db

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/suPer8Hu/gemini-chat/internal/chat"
	"github.com/suPer8Hu/gemini-chat/internal/logger"
	"github.com/suPer8Hu/gemini-chat/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// Open connects with the configured driver ("mysql" or "sqlite").
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "", "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER=%q", driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	return gdb, nil
}

// Connect opens the database and migrates the tables, exiting on failure.
func Connect(driver, dsn string) *gorm.DB {
	gdb, err := Open(driver, dsn)
	if err != nil {
		logger.Fatal("db connect failed", "driver", driver, "err", err)
	}
	if err := Migrate(gdb); err != nil {
		logger.Fatal("db migrate failed", "err", err)
	}
	return gdb
}

// Migrate creates the users table and the SQL history tables.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(&models.User{}); err != nil {
		return err
	}
	return chat.NewRepo(gdb).AutoMigrate()
}
