package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sethvargo/go-retry"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/disbursement/internal"
	auditmodel "github.com/frahmantamala/disbursement/internal/core/datamodel/audit"
	fspmodel "github.com/frahmantamala/disbursement/internal/core/datamodel/fsp"
	paymentmodel "github.com/frahmantamala/disbursement/internal/core/datamodel/payment"
	reconmodel "github.com/frahmantamala/disbursement/internal/core/datamodel/reconciliation"
)

// DB bundles the two handles opened over the same connection pool: sqlx for
// hand-written queries and gorm for repositories.
type DB struct {
	SQL  *sqlx.DB
	Gorm *gorm.DB
}

func (d *DB) Close() error {
	return d.SQL.Close()
}

// Models lists every persisted model, used for AutoMigrate on SQLite.
func Models() []interface{} {
	return []interface{}{
		&paymentmodel.PaymentBatch{},
		&paymentmodel.Payment{},
		&paymentmodel.NumberSequence{},
		&auditmodel.Entry{},
		&reconmodel.Result{},
		&reconmodel.Discrepancy{},
		&fspmodel.Configuration{},
	}
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Connect opens the configured database, retrying the initial ping with
// exponential backoff so the service tolerates a database that starts late.
func Connect(ctx context.Context, cfg internal.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	if cfg.Driver == "sqlite" {
		return OpenSQLite(cfg.Source)
	}

	const driver = "pgx"

	attempts := cfg.ConnectAttempts
	if attempts == 0 {
		attempts = 5
	}
	backoff := retry.WithMaxRetries(attempts, retry.NewExponential(500*time.Millisecond))

	var dbConn *sqlx.DB
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		conn, err := sqlx.ConnectContext(ctx, driver, cfg.Source)
		if err != nil {
			logger.Warn("database not ready, retrying", "error", err)
			return retry.RetryableError(err)
		}
		dbConn = conn
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: dbConn.DB}), gormConfig())
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to open gorm on database: %w", err)
	}

	return &DB{SQL: dbConn, Gorm: gdb}, nil
}

// OpenSQLite opens a SQLite database and migrates the schema from the
// models. A single connection is used, so an in-memory DSN stays one database.
func OpenSQLite(dsn string) (*DB, error) {
	sqlDB, err := sqlx.Open(sqlite.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	gdb, err := gorm.Open(sqlite.New(sqlite.Config{Conn: sqlDB.DB}), gormConfig())
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to open gorm on sqlite: %w", err)
	}

	if err := gdb.AutoMigrate(Models()...); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}

	return &DB{SQL: sqlDB, Gorm: gdb}, nil
}

// OpenInMemory returns a fresh private in-memory database.
func OpenInMemory() (*DB, error) {
	return OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String()))
}
