package db

import (
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// MySQLConfig holds the configuration for a MySQL connection pool.
type MySQLConfig struct {
	// DSN format: "user:password@tcp(host:port)/dbname?parseTime=true&loc=Local"
	DSN  string     `yaml:"dsn"`
	Pool PoolConfig `yaml:"pool"`
}

// NewMySQLWithConfig opens a MySQL pool. parseTime is forced on since timestamps are scanned into time.Time.
func NewMySQLWithConfig(config *MySQLConfig) (*SQLDatabase, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	dsn, err := normalizeMySQLDSN(config.DSN)
	if err != nil {
		return nil, err
	}
	return openSQL("mysql", dsn, config.Pool, DialectMySQL)
}

func normalizeMySQLDSN(dsn string) (string, error) {
	if dsn == "" {
		return "", fmt.Errorf("DSN cannot be empty")
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql DSN: %w", err)
	}
	parsed.ParseTime = true
	return parsed.FormatDSN(), nil
}
