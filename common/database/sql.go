package database

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tilerush/scoreboard/common/config"
	"github.com/tilerush/scoreboard/common/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// OpenSQL opens a gorm connection for postgres or sqlite, retrying with
// exponential backoff until cfg.ConnectTimeout elapses.
func OpenSQL(ctx context.Context, driver string, cfg config.SQLConfig, log *logger.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 10 * time.Second
	policy.MaxElapsedTime = cfg.ConnectTimeout

	var db *gorm.DB
	attempt := 0
	open := func() error {
		attempt++
		conn, err := gorm.Open(dialector, &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			log.Warn("SQL connect failed", "driver", driver, "attempt", attempt, "error", err)
			return err
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			log.Warn("SQL ping failed", "driver", driver, "attempt", attempt, "error", err)
			return err
		}

		if driver == DriverSQLite {
			// sqlite allows a single writer; one connection avoids SQLITE_BUSY under load
			sqlDB.SetMaxOpenConns(1)
		} else {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
			sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}

		db = conn
		return nil
	}

	if err := backoff.Retry(open, backoff.WithContext(policy, ctx)); err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	log.Info("SQL database connected", "driver", driver, "attempts", attempt)
	return db, nil
}
