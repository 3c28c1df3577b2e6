// Package sqlstore implements the store ports on gorm with the pure-Go
// sqlite driver.
package sqlstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"guild-dashboard/internal/model"
	"guild-dashboard/internal/store"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open connects to the sqlite database at path and migrates the schema.
func Open(path string, log *zap.Logger) (*Store, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "create database directory")
		}
	}

	gormLogger := logger.New(
		zap.NewStdLog(log.Named("gorm")),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}

	if path == MemoryPath {
		// every pooled connection would otherwise get its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "sqlite handle")
		}
		sqlDB.SetMaxOpenConns(1)
	}

	err = db.AutoMigrate(
		&model.User{},
		&model.GuildMembership{},
		&model.Guild{},
		&model.DailyStat{},
		&model.Command{},
		&model.Role{},
		&model.Log{},
		&model.BannedIP{},
		&model.Setting{},
	)
	if err != nil {
		return nil, errors.Wrap(err, "migrate schema")
	}

	return &Store{db: db, now: utcNow}, nil
}

// DB exposes the underlying handle for tests and maintenance tooling.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Totals(ctx context.Context) (*store.Totals, error) {
	db := s.db.WithContext(ctx)
	var t store.Totals
	if err := db.Model(&model.Guild{}).Count(&t.Servers).Error; err != nil {
		return nil, errors.Wrap(err, "count guilds")
	}
	if err := db.Model(&model.User{}).Count(&t.Users).Error; err != nil {
		return nil, errors.Wrap(err, "count users")
	}
	if err := db.Model(&model.Log{}).Count(&t.Logs).Error; err != nil {
		return nil, errors.Wrap(err, "count logs")
	}
	var sums struct {
		Commands int64
		Messages int64
	}
	err := db.Model(&model.Guild{}).
		Select("COALESCE(SUM(stats_total_commands), 0) AS commands, COALESCE(SUM(stats_total_messages), 0) AS messages").
		Scan(&sums).Error
	if err != nil {
		return nil, errors.Wrap(err, "sum guild stats")
	}
	t.TotalCommands = sums.Commands
	t.TotalMessages = sums.Messages
	return &t, nil
}

// sqlite compares timestamps as text, so every stored and queried time is UTC.
func utcNow() time.Time { return time.Now().UTC() }

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// escapeLike escapes the LIKE wildcards of s for use with ESCAPE '\'.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
