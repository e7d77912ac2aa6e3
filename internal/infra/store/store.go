package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"ai-answering-machine/internal/live"
)

// SchemaVersion is bumped whenever a row type changes shape. Migrations are
// additive (AutoMigrate) and the recorded version only moves forward.
const SchemaVersion = 2

type schemaMeta struct {
	ID        uint `gorm:"primaryKey"`
	Version   int  `gorm:"not null"`
	UpdatedAt time.Time
}

func (schemaMeta) TableName() string { return "schema_meta" }

// Store owns the embedded database and the invalidation hub shared by the
// collection repositories.
type Store struct {
	db  *gorm.DB
	hub *live.Hub
	now func() time.Time
}

// Open opens (or creates) the sqlite file at path and migrates it.
func Open(path string, hub *live.Hub, logger *zerolog.Logger) (*Store, error) {
	cfg := &gorm.Config{Logger: gormlogger.Discard}
	if logger != nil {
		l := logger.With().Str("component", "store").Logger()
		cfg.Logger = gormlogger.New(&l, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// sqlite serialises writers; one connection avoids SQLITE_BUSY.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if hub == nil {
		hub = live.NewHub()
	}
	s := &Store{db: db, hub: hub, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&schemaMeta{}, &taskRow{}, &conversationRow{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		var meta schemaMeta
		err := tx.First(&meta).Error
		switch {
		case err == gorm.ErrRecordNotFound:
			return tx.Create(&schemaMeta{Version: SchemaVersion, UpdatedAt: s.now()}).Error
		case err != nil:
			return fmt.Errorf("read schema version: %w", err)
		case meta.Version > SchemaVersion:
			return fmt.Errorf("database schema v%d is newer than supported v%d", meta.Version, SchemaVersion)
		case meta.Version < SchemaVersion:
			return tx.Model(&meta).Updates(map[string]any{"version": SchemaVersion, "updated_at": s.now()}).Error
		}
		return nil
	})
}

// Version returns the schema version recorded in the database.
func (s *Store) Version(ctx context.Context) (int, error) {
	var meta schemaMeta
	if err := s.db.WithContext(ctx).First(&meta).Error; err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return meta.Version, nil
}

// Hub returns the invalidation hub mutations are published on.
func (s *Store) Hub() *live.Hub { return s.hub }

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
