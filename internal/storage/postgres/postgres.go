package postgres

import (
	"NetFlowRollup/internal/config"
	"NetFlowRollup/internal/storage"
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store implements storage.Store on top of a pooled GORM connection.
type Store struct {
	db      *gorm.DB
	timeout time.Duration
}

var _ storage.Store = (*Store)(nil)

// Open connects to PostgreSQL, configures the connection pool and verifies the
// connection.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		// Every statement is either standalone or inside an explicit InTx.
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to open database connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, xerrors.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Lifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StmtTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, xerrors.Errorf("failed to ping database: %w", err)
	}

	log.Println("Successfully connected to the database!")
	return New(db, cfg.StmtTimeout), nil
}

// New wraps an existing GORM handle. Statements are bounded by timeout when it
// is positive.
func New(db *gorm.DB, timeout time.Duration) *Store {
	return &Store{db: db, timeout: timeout}
}

// DB returns the underlying GORM handle for read paths.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Exec runs one statement on a pooled connection.
func (s *Store) Exec(ctx context.Context, query string, args ...any) error {
	ctx, cancel := s.deadline(ctx)
	defer cancel()
	return s.db.WithContext(ctx).Exec(query, args...).Error
}

// InTx runs fn in a single transaction. GORM rolls back when fn returns an error
// or panics and commits otherwise.
func (s *Store) InTx(ctx context.Context, fn func(tx storage.Execer) error) error {
	ctx, cancel := s.deadline(ctx)
	defer cancel()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(txExecer{tx: tx})
	})
}

// TableExists looks the table up in the metadata catalog.
func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	ctx, cancel := s.deadline(ctx)
	defer cancel()

	var count int64
	err := s.db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?", name).
		Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return err
	}
	log.Println("Database connection closed.")
	return nil
}

func (s *Store) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

type txExecer struct {
	tx *gorm.DB
}

func (t txExecer) Exec(ctx context.Context, query string, args ...any) error {
	return t.tx.WithContext(ctx).Exec(query, args...).Error
}
