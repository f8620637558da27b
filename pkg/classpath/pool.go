package classpath

import (
	"context"
	"database/sql"
	"time"

	// Archive drivers: sqlite3, postgres and pgx.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/fluxorio/jvm/pkg/config"
)

// Drivers lists the database/sql driver names a Store accepts.
var Drivers = []string{"sqlite3", "postgres", "pgx"}

// PoolConfig configures the class archive connection pool.
type PoolConfig struct {
	// Driver is one of Drivers.
	Driver string

	// DSN is the driver-specific connection string.
	DSN string

	MaxOpenConns int
	MaxIdleConns int

	// ConnMaxLifetime and ConnMaxIdleTime bound connection reuse; zero
	// means no limit.
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig returns a small pool suited to a read-mostly archive.
func DefaultPoolConfig(driver, dsn string) PoolConfig {
	return PoolConfig{
		Driver:          driver,
		DSN:             dsn,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// PoolConfigFrom converts the store section of the VM configuration.
func PoolConfigFrom(c config.StoreConfig) PoolConfig {
	return PoolConfig{
		Driver:          c.Driver,
		DSN:             c.DSN,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
	}
}

// Error is a store configuration or state error.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Validate fails fast on a configuration the pool cannot honour.
func (c PoolConfig) Validate() error {
	if c.DSN == "" {
		return &Error{Code: "INVALID_CONFIG", Message: "DSN cannot be empty"}
	}
	if c.Driver == "" {
		return &Error{Code: "INVALID_CONFIG", Message: "Driver cannot be empty"}
	}
	if !knownDriver(c.Driver) {
		return &Error{Code: "INVALID_CONFIG", Message: "unsupported driver " + c.Driver}
	}
	if c.MaxOpenConns <= 0 {
		return &Error{Code: "INVALID_CONFIG", Message: "MaxOpenConns must be positive"}
	}
	if c.MaxIdleConns < 0 {
		return &Error{Code: "INVALID_CONFIG", Message: "MaxIdleConns cannot be negative"}
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return &Error{Code: "INVALID_CONFIG", Message: "MaxIdleConns cannot exceed MaxOpenConns"}
	}
	if c.ConnMaxLifetime < 0 {
		return &Error{Code: "INVALID_CONFIG", Message: "ConnMaxLifetime cannot be negative"}
	}
	if c.ConnMaxIdleTime < 0 {
		return &Error{Code: "INVALID_CONFIG", Message: "ConnMaxIdleTime cannot be negative"}
	}
	return nil
}

func knownDriver(name string) bool {
	for _, d := range Drivers {
		if d == name {
			return true
		}
	}
	return false
}

// openPool opens and pings the database. A pool that cannot reach its
// database is closed and reported.
func openPool(ctx context.Context, c PoolConfig) (*sql.DB, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open(c.Driver, c.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(c.MaxOpenConns)
	db.SetMaxIdleConns(c.MaxIdleConns)
	db.SetConnMaxLifetime(c.ConnMaxLifetime)
	db.SetConnMaxIdleTime(c.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
