package db

import (
	"fmt"
	"time"

	"github.com/KAsare1/Kodefx-capital/cmd/models"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type PSQLOptions struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	Logger       zerolog.Logger
}

func NewPSQLStorage(opts PSQLOptions) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(opts.URL), &gorm.Config{
		TranslateError: true,
		Logger:         NewGormLogger(opts.Logger),
	})
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// NewGormLogger routes gorm's warnings and slow queries through zerolog.
func NewGormLogger(l zerolog.Logger) logger.Interface {
	return logger.New(gormWriter{l: l.With().Str("component", "gorm").Logger()}, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

type gormWriter struct {
	l zerolog.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.l.Warn().Msgf(format, args...)
}

// Migrate creates or updates every ledger table.
func Migrate(db *gorm.DB, log zerolog.Logger) error {
	for _, model := range models.All() {
		name := tableName(db, model)
		log.Info().Str("table", name).Msg("migrating table")
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("migrating %s: %w", name, err)
		}
	}
	return nil
}

// DropTables drops the named ledger tables, or all of them when names is empty.
// Unknown names are an error and nothing is dropped.
func DropTables(db *gorm.DB, names []string, log zerolog.Logger) error {
	byName := make(map[string]interface{})
	var all []interface{}
	for _, model := range models.All() {
		byName[tableName(db, model)] = model
		all = append(all, model)
	}

	tables := all
	if len(names) > 0 {
		tables = nil
		for _, name := range names {
			model, ok := byName[name]
			if !ok {
				return fmt.Errorf("unknown table %q", name)
			}
			tables = append(tables, model)
		}
	}

	// Reverse dependency order.
	for i := len(tables) - 1; i >= 0; i-- {
		name := tableName(db, tables[i])
		if err := db.Migrator().DropTable(tables[i]); err != nil {
			return fmt.Errorf("dropping %s: %w", name, err)
		}
		log.Info().Str("table", name).Msg("table dropped")
	}
	return nil
}

func tableName(db *gorm.DB, model interface{}) string {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(model); err != nil {
		return fmt.Sprintf("%T", model)
	}
	return stmt.Schema.Table
}
