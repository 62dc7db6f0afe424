// Package db opens the engine's Postgres connection, grounded on
// internal/db/postgres.go's NewPostgresService: same env-var names and
// defaults, same GORM logger tuned to ignore "record not found" (expected
// noise for a polling fetchDueJobs), same uuid-ossp bootstrap since every
// domain model's primary key defaults to uuid_generate_v4().
package db

import (
	stdlog "log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/brightloop/schedulerd/internal/domain"
	"github.com/brightloop/schedulerd/internal/platform/logger"
)

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// Open connects to Postgres using POSTGRES_HOST/PORT/USER/PASSWORD/NAME
// (defaulting to a local dev database) and runs AutoMigrate against every
// GORM-backed domain model the Data Store Gateway reads and writes.
func Open(log *logger.Logger) (*gorm.DB, error) {
	dsn := "postgres://" +
		getEnv("POSTGRES_USER", "postgres") + ":" +
		getEnv("POSTGRES_PASSWORD", "") + "@" +
		getEnv("POSTGRES_HOST", "localhost") + ":" +
		getEnv("POSTGRES_PORT", "5432") + "/" +
		getEnv("POSTGRES_NAME", "schedulerd") + "?sslmode=disable"

	gormLog := gormlogger.New(
		stdlog.New(os.Stdout, "\r\n", stdlog.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	log.Info("connecting to postgres")
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, err
	}

	if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return nil, err
	}

	log.Info("running automigrate")
	if err := gdb.AutoMigrate(
		&domain.Job{},
		&domain.Endpoint{},
		&domain.JobExecution{},
		&domain.JobError{},
	); err != nil {
		return nil, err
	}
	return gdb, nil
}
