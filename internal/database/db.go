package database

import (
	"faturacao/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewConnection opens the PostgreSQL connection pool and runs migrations.
func NewConnection(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate auto-migrates every model. Exported so tests can run the same
// schema against their own database handle.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Client{},
		&model.Series{},
		&model.FiscalDocument{},
		&model.DocumentLine{},
		&model.SalesOrder{},
		&model.SalesOrderItem{},
		&model.AuditLog{},
	)
}
