// Package db implements the repository layer of the marketplace on top of a
// fixed pool of pinned database connections.
//
// Every repository call borrows exactly one handle from the pool for its
// duration. Calls that need several statements (nested reads, cascades,
// purchases) run through WithConn or WithTransaction, which bind a repository
// to the handle already held so no call ever acquires a second one.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/gartstein/coupons/internal/coupons/db/models"
	e "github.com/gartstein/coupons/internal/coupons/errors"
	"github.com/gartstein/coupons/internal/coupons/pool"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	// Path is the sqlite file or DSN, used when Driver is DriverSQLite.
	// SQLiteDSN adds the locking options purchases rely on.
	Path string
	// PoolSize is the fixed number of connection handles.
	PoolSize int
}

func (c *Config) dialector(conn gorm.ConnPool) (gorm.Dialector, error) {
	switch c.Driver {
	case DriverSQLite:
		if conn != nil {
			return &sqlite.Dialector{DriverName: sqlite.DriverName, Conn: conn}, nil
		}
		return sqlite.Open(SQLiteDSN(c.Path)), nil
	case DriverPostgres, "":
		if conn != nil {
			return postgres.New(postgres.Config{Conn: conn}), nil
		}
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("%w: unknown database driver %q", e.ErrInvalidInput, c.Driver)
	}
}

// sqliteOptions let concurrent purchases queue instead of failing: writers wait
// on the lock, readers do not block the writer, and every transaction takes the
// write lock at BEGIN so two of them never both hold a read lock and deadlock.
var sqliteOptions = []struct{ key, value string }{
	{"_busy_timeout", "10000"},
	{"_journal_mode", "WAL"},
	{"_txlock", "immediate"},
}

// SQLiteDSN turns a file path or DSN into a "file:" URI carrying the locking
// options. Options already present in path are kept as given.
func SQLiteDSN(path string) string {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	base, query, _ := strings.Cut(dsn, "?")
	params := []string{}
	if query != "" {
		params = strings.Split(query, "&")
	}
	present := make(map[string]bool, len(params))
	for _, p := range params {
		key, _, _ := strings.Cut(p, "=")
		present[key] = true
	}
	for _, opt := range sqliteOptions {
		if !present[opt.key] {
			params = append(params, opt.key+"="+opt.value)
		}
	}
	return base + "?" + strings.Join(params, "&")
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	}
}

// Conn is one pooled handle: a pinned connection and the gorm session bound to it.
type Conn struct {
	raw *sql.Conn
	db  *gorm.DB
}

// Close returns the pinned connection to the driver.
func (c *Conn) Close() error {
	return c.raw.Close()
}

type Repository struct {
	pool   *pool.Pool[*Conn]
	sqlDB  *sql.DB
	logger *zap.Logger
	// db is set on repositories bound to a handle the caller already holds.
	db *gorm.DB
}

// NewRepository opens the database, migrates the schema and pins cfg.PoolSize
// connections into the handle pool.
func NewRepository(ctx context.Context, cfg *Config, logger *zap.Logger) (*Repository, error) {
	if cfg.PoolSize < 1 {
		return nil, fmt.Errorf("%w: pool size must be positive", e.ErrInvalidInput)
	}
	dialector, err := cfg.dialector(nil)
	if err != nil {
		return nil, err
	}

	root, err := gorm.Open(dialector, gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := root.AutoMigrate(models.All()...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	sqlDB, err := root.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.PoolSize)
	sqlDB.SetMaxIdleConns(cfg.PoolSize)

	conns := make([]*Conn, 0, cfg.PoolSize)
	cleanup := func() {
		for _, c := range conns {
			_ = c.Close()
		}
		_ = sqlDB.Close()
	}
	for i := 0; i < cfg.PoolSize; i++ {
		conn, err := pinConn(ctx, cfg, sqlDB)
		if err != nil {
			cleanup()
			return nil, err
		}
		conns = append(conns, conn)
	}

	p, err := pool.New(conns, (*Conn).Close, logger)
	if err != nil {
		cleanup()
		return nil, err
	}

	logger.Info("Database ready",
		zap.String("driver", cfg.Driver),
		zap.Int("pool_size", cfg.PoolSize),
	)
	return &Repository{
		pool:   p,
		sqlDB:  sqlDB,
		logger: logger.Named("repository"),
	}, nil
}

func pinConn(ctx context.Context, cfg *Config, sqlDB *sql.DB) (*Conn, error) {
	raw, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open pooled connection: %w", err)
	}
	dialector, err := cfg.dialector(raw)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	session, err := gorm.Open(dialector, gormConfig())
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("failed to bind pooled connection: %w", err)
	}
	return &Conn{raw: raw, db: session}, nil
}

// Connect calls NewRepository, retrying with exponential backoff up to retries times.
func Connect(ctx context.Context, cfg *Config, retries uint64, logger *zap.Logger) (*Repository, error) {
	var repo *Repository
	operation := func() error {
		var err error
		repo, err = NewRepository(ctx, cfg, logger)
		if errors.Is(err, e.ErrInvalidInput) {
			return backoff.Permanent(err)
		}
		if err != nil {
			logger.Warn("Database not ready, retrying", zap.Error(err))
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return repo, nil
}

// PoolSize returns the number of pooled handles.
func (r *Repository) PoolSize() int {
	return r.pool.Size()
}

func (r *Repository) bind(db *gorm.DB) *Repository {
	return &Repository{pool: r.pool, sqlDB: r.sqlDB, logger: r.logger, db: db}
}

// run executes fn on the bound handle, or on one handle borrowed for the call.
func (r *Repository) run(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	if r.db != nil {
		return e.Storage(op, fn(r.db.WithContext(ctx)))
	}
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer r.pool.Release(conn)
	return e.Storage(op, fn(conn.db.WithContext(ctx)))
}

// WithConn runs fn with a repository bound to a single borrowed handle.
// Inside fn every repository call shares that handle.
func (r *Repository) WithConn(ctx context.Context, fn func(repo *Repository) error) error {
	if r.db != nil {
		return fn(r)
	}
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer r.pool.Release(conn)
	return fn(r.bind(conn.db))
}

// WithTransaction is WithConn inside a database transaction: fn's effects are
// committed together or not at all.
func (r *Repository) WithTransaction(ctx context.Context, fn func(repo *Repository) error) error {
	return r.WithConn(ctx, func(repo *Repository) error {
		err := repo.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(repo.bind(tx))
		})
		return e.Storage("transaction", err)
	})
}

// Ping checks that a pooled connection is alive.
func (r *Repository) Ping(ctx context.Context) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer r.pool.Release(conn)
	return e.Storage("ping", conn.raw.PingContext(ctx))
}

// Close waits for every handle to be released, closes them and the database.
// The database is closed even when ctx ends first; handles still borrowed then
// are closed as they come back.
func (r *Repository) Close(ctx context.Context) error {
	drainErr := r.pool.Shutdown(ctx)
	return errors.Join(drainErr, r.sqlDB.Close())
}
