package db

import (
	"context"
	"database/sql"
)

// Database is a pooled SQL connection that repositories talk to.
type Database interface {
	Querier

	// Transaction runs fn inside a transaction, committing when fn returns nil.
	Transaction(ctx context.Context, fn func(tx Transaction) error) error

	// TransactionWithOptions is Transaction with explicit isolation settings.
	TransactionWithOptions(ctx context.Context, opts *TxOptions, fn func(tx Transaction) error) error

	// Dialect reports the SQL flavour behind the connection.
	Dialect() Dialect

	Ping(ctx context.Context) error
	Close() error
}

// Transaction is a running database transaction.
type Transaction interface {
	Querier
	Commit() error
	Rollback() error
}

// Rows is the cursor returned by Query.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close() error
	Err() error
}

// Row is the single row returned by QueryRow.
type Row interface {
	Scan(dest ...interface{}) error
}

// Result summarizes an Exec.
type Result interface {
	RowsAffected() (int64, error)
}

// IsolationLevel mirrors sql.IsolationLevel without leaking database/sql to callers.
type IsolationLevel int

const (
	IsolationDefault IsolationLevel = iota
	IsolationReadCommitted
	IsolationRepeatableRead
	IsolationSerializable
)

// TxOptions holds transaction options.
type TxOptions struct {
	Isolation IsolationLevel
	ReadOnly  bool
}

func convertTxOptions(opts *TxOptions) *sql.TxOptions {
	if opts == nil {
		return nil
	}
	level := sql.LevelDefault
	switch opts.Isolation {
	case IsolationReadCommitted:
		level = sql.LevelReadCommitted
	case IsolationRepeatableRead:
		level = sql.LevelRepeatableRead
	case IsolationSerializable:
		level = sql.LevelSerializable
	}
	return &sql.TxOptions{Isolation: level, ReadOnly: opts.ReadOnly}
}
