package db

import (
	"gold_ledger/internal/domain" // Importing domain models

	"github.com/sirupsen/logrus"
	"gorm.io/gorm" // GORM ORM library
)

// Models lists every table owned by the service
var Models = []any{
	&domain.User{},
	&domain.Wallet{},
	&domain.TestWallet{},
	&domain.GoldRate{},
	&domain.GoldTransaction{},
}

// Migrate performs automatic migration for the database schema
func Migrate(conn *gorm.DB) error {
	// AutoMigrate will create tables, missing foreign keys, constraints, columns and indexes
	if err := conn.AutoMigrate(Models...); err != nil {
		logrus.WithError(err).Error("Migration failed")
		return err
	}
	logrus.Info("Migration completed.") // Log successful migration
	return nil
}
