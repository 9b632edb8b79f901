// Copyright 2026 The wirej Authors.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package connector opens database/sql handles for the databases wirej
// supports: SQLite through github.com/mattn/go-sqlite3, PostgreSQL through
// the pgx stdlib driver and MySQL through github.com/go-sql-driver/mysql.
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Driver names accepted in Config.Driver.
const (
	SQLite   = "sqlite3"
	Postgres = "pgx"
	MySQL    = "mysql"
)

// Config describes a database connection. Either DSN is set, or the DSN is
// built from the individual fields.
type Config struct {
	Driver   string            `json:"driver" yaml:"driver"`
	DSN      string            `json:"dsn" yaml:"dsn"`
	Host     string            `json:"host" yaml:"host"`
	Port     int               `json:"port" yaml:"port"`
	Database string            `json:"database" yaml:"database"`
	Username string            `json:"username" yaml:"username"`
	Password string            `json:"password" yaml:"password"`
	Params   map[string]string `json:"params" yaml:"params"`
	Pool     PoolConfig        `json:"pool" yaml:"pool"`
	Retry    RetryConfig       `json:"retry" yaml:"retry"`
}

// PoolConfig defines connection pool settings. Zero values keep the
// database/sql defaults.
type PoolConfig struct {
	MaxOpen     int           `json:"max_open" yaml:"max_open"`
	MaxIdle     int           `json:"max_idle" yaml:"max_idle"`
	MaxLifetime time.Duration `json:"max_lifetime" yaml:"max_lifetime"`
	MaxIdleTime time.Duration `json:"max_idle_time" yaml:"max_idle_time"`
}

// RetryConfig defines how the first ping is retried. The delay doubles after
// every attempt up to MaxDelay.
type RetryConfig struct {
	MaxRetries int           `json:"max_retries" yaml:"max_retries"`
	BaseDelay  time.Duration `json:"base_delay" yaml:"base_delay"`
	MaxDelay   time.Duration `json:"max_delay" yaml:"max_delay"`
}

// DriverName returns the database/sql driver name for the configured driver.
// "postgres" and "postgresql" are accepted for pgx and "sqlite" for sqlite3.
func (c *Config) DriverName() (string, error) {
	switch strings.ToLower(c.Driver) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "pgx", "postgres", "postgresql":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	case "":
		return "", fmt.Errorf("driver is required")
	}
	return "", fmt.Errorf("unsupported driver %q", c.Driver)
}

// DataSourceName returns the DSN for the configured driver.
func (c *Config) DataSourceName() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}
	driver, err := c.DriverName()
	if err != nil {
		return "", err
	}
	switch driver {
	case SQLite:
		if c.Database == "" {
			return "", fmt.Errorf("database is required")
		}
		dsn := "file:" + c.Database
		if q := queryString(c.Params); q != "" {
			dsn += "?" + q
		}
		return dsn, nil
	case Postgres:
		if c.Host == "" {
			return "", fmt.Errorf("host is required")
		}
		u := url.URL{Scheme: "postgres", Host: c.hostPort(5432), Path: "/" + c.Database}
		if c.Username != "" {
			u.User = url.UserPassword(c.Username, c.Password)
		}
		u.RawQuery = queryString(c.Params)
		return u.String(), nil
	default:
		if c.Host == "" {
			return "", fmt.Errorf("host is required")
		}
		mc := mysql.NewConfig()
		mc.Net = "tcp"
		mc.Addr = c.hostPort(3306)
		mc.User = c.Username
		mc.Passwd = c.Password
		mc.DBName = c.Database
		mc.ParseTime = true
		if len(c.Params) > 0 {
			mc.Params = map[string]string{}
			for k, v := range c.Params {
				mc.Params[k] = v
			}
		}
		return mc.FormatDSN(), nil
	}
}

func (c *Config) hostPort(defaultPort int) string {
	port := c.Port
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

func queryString(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	v := url.Values{}
	for k, p := range params {
		v.Set(k, p)
	}
	return v.Encode()
}

// Open opens the configured database, applies the pool settings and pings
// it, retrying as configured. The returned driver name is the one to pass to
// wirej.NewDB.
func Open(ctx context.Context, cfg Config) (*sql.DB, string, error) {
	driver, err := cfg.DriverName()
	if err != nil {
		return nil, "", fmt.Errorf("cannot open database: %w", err)
	}
	dsn, err := cfg.DataSourceName()
	if err != nil {
		return nil, "", fmt.Errorf("cannot open database: %w", err)
	}

	var db *sql.DB
	if driver == Postgres {
		cc, err := pgx.ParseConfig(dsn)
		if err != nil {
			return nil, "", fmt.Errorf("cannot open database: %w", err)
		}
		db = stdlib.OpenDB(*cc)
	} else {
		if driver == MySQL {
			if _, err := mysql.ParseDSN(dsn); err != nil {
				return nil, "", fmt.Errorf("cannot open database: %w", err)
			}
		}
		if db, err = sql.Open(driver, dsn); err != nil {
			return nil, "", fmt.Errorf("cannot open database: %w", err)
		}
	}
	cfg.Pool.apply(db)

	if err := ping(ctx, db, cfg.Retry); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("cannot open database: %w", err)
	}
	return db, driver, nil
}

func (p PoolConfig) apply(db *sql.DB) {
	if p.MaxOpen > 0 {
		db.SetMaxOpenConns(p.MaxOpen)
	}
	if p.MaxIdle > 0 {
		db.SetMaxIdleConns(p.MaxIdle)
	}
	if p.MaxLifetime > 0 {
		db.SetConnMaxLifetime(p.MaxLifetime)
	}
	if p.MaxIdleTime > 0 {
		db.SetConnMaxIdleTime(p.MaxIdleTime)
	}
}

// pinger is the part of sql.DB used by ping.
type pinger interface {
	PingContext(ctx context.Context) error
}

// ping pings db once, then up to opts.MaxRetries more times.
func ping(ctx context.Context, db pinger, opts RetryConfig) error {
	delay := opts.BaseDelay
	if delay == 0 {
		delay = time.Second
	}
	err := db.PingContext(ctx)
	for i := 0; err != nil && i < opts.MaxRetries; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay *= 2
			if opts.MaxDelay > 0 && delay > opts.MaxDelay {
				delay = opts.MaxDelay
			}
		}
		err = db.PingContext(ctx)
	}
	if err != nil && opts.MaxRetries > 0 {
		return fmt.Errorf("ping failed after %d retries: %w", opts.MaxRetries, err)
	}
	return err
}
