package db

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects with the named driver (mysql, postgres or sqlite) and tunes
// the connection pool.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "", "mysql":
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported db driver: %s", driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// a single writer avoids SQLITE_BUSY under concurrent inserts
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	}
	return gdb, nil
}

// Connect is Open for process startup: failure is fatal.
func Connect(log logrus.FieldLogger, driver, dsn string) *gorm.DB {
	gdb, err := Open(driver, dsn)
	if err != nil {
		log.WithError(err).WithField("driver", driver).Fatal("db connect failed")
	}
	return gdb
}

// Migrate creates or updates the given tables.
func Migrate(gdb *gorm.DB, models ...any) error {
	return gdb.AutoMigrate(models...)
}
