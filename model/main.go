// Package model owns persistent state: organizations, projects, API keys,
// provider credentials, the transaction ledger, and request logs. Storage is
// gorm over sqlite (default), mysql, or postgres selected by SQL_DSN.
package model

import (
	"strings"

	"github.com/Laisky/errors/v2"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/shinmentakezo07/shinway-sub001/common/config"
	"github.com/shinmentakezo07/shinway-sub001/common/logger"
)

// DB is the shared gorm handle.
var DB *gorm.DB

// InitDB opens the database and, when RUN_MIGRATIONS is set, migrates the
// schema. A failure here is fatal at boot.
func InitDB() error {
	dialector, err := chooseDialector()
	if err != nil {
		return err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLogLevel()),
	})
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	DB = db

	if config.RunMigrations {
		if err := migrate(db); err != nil {
			return err
		}
	}
	logger.Logger.Info("database ready")
	return nil
}

func chooseDialector() (gorm.Dialector, error) {
	dsn := config.SQLDSN
	switch {
	case dsn == "":
		return sqlite.Open(config.SQLitePath), nil
	case strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://"):
		return postgres.Open(dsn), nil
	case strings.HasPrefix(dsn, "mysql://"):
		return mysql.Open(strings.TrimPrefix(dsn, "mysql://")), nil
	default:
		// Bare DSNs (user:pass@tcp(...)/db) are mysql by convention.
		return mysql.Open(dsn), nil
	}
}

func gormLogLevel() gormlogger.LogLevel {
	if config.DebugEnabled {
		return gormlogger.Info
	}
	return gormlogger.Warn
}

func migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Organization{},
		&Project{},
		&ApiKey{},
		&ProviderCredential{},
		&Transaction{},
		&RequestCost{},
		&RequestLog{},
	)
	return errors.Wrap(err, "run migrations")
}

// CloseDB releases the underlying connection pool during shutdown.
func CloseDB() {
	if DB == nil {
		return
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return
	}
	_ = sqlDB.Close()
}
