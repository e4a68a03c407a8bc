package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PoolConfig holds connection pool limits shared by every driver.
type PoolConfig struct {
	// Default: 25
	MaxOpenConnections int `yaml:"maxOpenConnections"`
	// Default: 5
	MaxIdleConnections int `yaml:"maxIdleConnections"`
	// Default: 5 minutes
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	// Default: 10 minutes
	ConnMaxIdleTime time.Duration `yaml:"connMaxIdleTime"`
}

func (p *PoolConfig) applyDefaults() {
	if p.MaxOpenConnections == 0 {
		p.MaxOpenConnections = 25
	}
	if p.MaxIdleConnections == 0 {
		p.MaxIdleConnections = 5
	}
	if p.ConnMaxLifetime == 0 {
		p.ConnMaxLifetime = 5 * time.Minute
	}
	if p.ConnMaxIdleTime == 0 {
		p.ConnMaxIdleTime = 10 * time.Minute
	}
}

// SQLDatabase implements Database on top of database/sql for any registered driver.
// Queries are written with '?' placeholders and rebound for the dialect.
type SQLDatabase struct {
	db      *sql.DB
	dialect Dialect
}

func openSQL(driver, dsn string, pool PoolConfig, dialect Dialect) (*SQLDatabase, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DSN cannot be empty")
	}
	pool.applyDefaults()

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	conn.SetMaxOpenConns(pool.MaxOpenConnections)
	conn.SetMaxIdleConns(pool.MaxIdleConnections)
	conn.SetConnMaxLifetime(pool.ConnMaxLifetime)
	conn.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &SQLDatabase{db: conn, dialect: dialect}, nil
}

// NewSQLDatabase wraps an already opened *sql.DB.
func NewSQLDatabase(conn *sql.DB, dialect Dialect) *SQLDatabase {
	return &SQLDatabase{db: conn, dialect: dialect}
}

func (d *SQLDatabase) Dialect() Dialect {
	return d.dialect
}

func (d *SQLDatabase) Query(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	rows, err := d.db.QueryContext(ctx, d.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return &sqlRows{rows: rows}, nil
}

func (d *SQLDatabase) QueryRow(ctx context.Context, query string, args ...interface{}) Row {
	return &sqlRow{row: d.db.QueryRowContext(ctx, d.dialect.Rebind(query), args...)}
}

func (d *SQLDatabase) Exec(ctx context.Context, query string, args ...interface{}) (Result, error) {
	result, err := d.db.ExecContext(ctx, d.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("exec failed: %w", err)
	}
	return result, nil
}

func (d *SQLDatabase) Transaction(ctx context.Context, fn func(tx Transaction) error) error {
	return d.TransactionWithOptions(ctx, nil, fn)
}

func (d *SQLDatabase) TransactionWithOptions(ctx context.Context, opts *TxOptions, fn func(tx Transaction) error) error {
	tx, err := d.db.BeginTx(ctx, convertTxOptions(opts))
	if err != nil {
		return fmt.Errorf("begin transaction failed: %w", err)
	}
	wrapped := &sqlTransaction{tx: tx, dialect: d.dialect}
	if err := fn(wrapped); err != nil {
		_ = wrapped.Rollback()
		return err
	}
	return wrapped.Commit()
}

func (d *SQLDatabase) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

func (d *SQLDatabase) Close() error {
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("close failed: %w", err)
	}
	return nil
}

type sqlRows struct {
	rows *sql.Rows
}

func (r *sqlRows) Next() bool { return r.rows.Next() }

func (r *sqlRows) Scan(dest ...interface{}) error {
	if err := r.rows.Scan(dest...); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	return nil
}

func (r *sqlRows) Close() error { return r.rows.Close() }

func (r *sqlRows) Err() error { return r.rows.Err() }

type sqlRow struct {
	row *sql.Row
}

// Scan keeps sql.ErrNoRows reachable through errors.Is so IsNoRows works.
func (r *sqlRow) Scan(dest ...interface{}) error {
	if err := r.row.Scan(dest...); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	return nil
}

type sqlTransaction struct {
	tx      *sql.Tx
	dialect Dialect
}

func (t *sqlTransaction) Query(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	rows, err := t.tx.QueryContext(ctx, t.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return &sqlRows{rows: rows}, nil
}

func (t *sqlTransaction) QueryRow(ctx context.Context, query string, args ...interface{}) Row {
	return &sqlRow{row: t.tx.QueryRowContext(ctx, t.dialect.Rebind(query), args...)}
}

func (t *sqlTransaction) Exec(ctx context.Context, query string, args ...interface{}) (Result, error) {
	result, err := t.tx.ExecContext(ctx, t.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("exec failed: %w", err)
	}
	return result, nil
}

func (t *sqlTransaction) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

func (t *sqlTransaction) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	return nil
}
