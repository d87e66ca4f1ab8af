package storage

import (
	"context"
	"fmt"
	"time"

	"roomrelay/backend/internal/config"
	"roomrelay/backend/internal/models"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	embeddedDataPath = "./db_data"
	embeddedPort     = 5433
	embeddedPassword = "postgres"
)

// DB wraps gorm.DB and the embedded PostgreSQL process when one was started.
type DB struct {
	*gorm.DB
	embedded *embeddedpostgres.EmbeddedPostgres
}

// Connect opens PostgreSQL. With cfg.Embedded a local PostgreSQL is started
// under ./db_data for development and the DSN points at it.
func Connect(cfg config.DatabaseConfig) (*DB, error) {
	var embedded *embeddedpostgres.EmbeddedPostgres

	if cfg.Embedded {
		logrus.Info("storage: starting embedded PostgreSQL")
		embedded = embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
			DataPath(embeddedDataPath).
			Port(uint32(embeddedPort)).
			Database(cfg.Name).
			Username(cfg.User).
			Password(embeddedPassword))

		if err := embedded.Start(); err != nil {
			return nil, fmt.Errorf("failed to start embedded database: %w", err)
		}

		cfg.URL = ""
		cfg.Host = "localhost"
		cfg.Port = fmt.Sprint(embeddedPort)
		cfg.Password = embeddedPassword
		cfg.SSLMode = "disable"
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		stopEmbedded(embedded)
		return nil, fmt.Errorf("failed to connect PostgreSQL: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		stopEmbedded(embedded)
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		stopEmbedded(embedded)
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	logrus.WithField("embedded", cfg.Embedded).Info("storage: PostgreSQL connected")
	return &DB{DB: db, embedded: embedded}, nil
}

// Migrate creates or updates the relay tables.
func (d *DB) Migrate() error {
	if err := d.AutoMigrate(&models.Room{}, &models.Membership{}, &models.Message{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close releases the pool and stops the embedded database if any.
func (d *DB) Close() error {
	if d == nil {
		return nil
	}
	var firstErr error
	if sqlDB, err := d.DB.DB(); err == nil {
		firstErr = sqlDB.Close()
	}
	if d.embedded != nil {
		if err := d.embedded.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func stopEmbedded(e *embeddedpostgres.EmbeddedPostgres) {
	if e == nil {
		return
	}
	if err := e.Stop(); err != nil {
		logrus.WithError(err).Warn("storage: failed to stop embedded PostgreSQL")
	}
}

// ConnectRedis returns nil, nil when no address is configured.
func ConnectRedis(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect Redis: %w", err)
	}
	logrus.WithField("addr", cfg.Addr).Info("storage: Redis connected")
	return rdb, nil
}
