// Package store provides MySQL persistence for fill retry records and
// expiring-prescription flags.
package store

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to MySQL and returns a gorm handle.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}
	return db, nil
}

// Migrate creates or updates the persistence tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&FillError{}, &ExpiringRx{})
}
