package sql

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"github.com/syssam/tabula/dialect"
)

// ConnConfig describes how to connect to a source.
type ConnConfig struct {
	Dialect string `yaml:"dialect" msgpack:"dialect"`
	// Driver overrides the database/sql driver of the dialect, such as
	// "pgx" for postgres.
	Driver   string            `yaml:"driver,omitempty" msgpack:"driver,omitempty"`
	DSN      string            `yaml:"dsn,omitempty" msgpack:"dsn,omitempty"`
	Host     string            `yaml:"host,omitempty" msgpack:"host,omitempty"`
	Port     int               `yaml:"port,omitempty" msgpack:"port,omitempty"`
	User     string            `yaml:"user,omitempty" msgpack:"user,omitempty"`
	Password string            `yaml:"password,omitempty" msgpack:"password,omitempty"`
	Database string            `yaml:"database,omitempty" msgpack:"database,omitempty"`
	File     string            `yaml:"file,omitempty" msgpack:"file,omitempty"`
	Params   map[string]string `yaml:"params,omitempty" msgpack:"params,omitempty"`

	MaxOpenConns    int           `yaml:"max_open_conns,omitempty" msgpack:"max_open_conns,omitempty"`
	MaxIdleConns    int           `yaml:"max_idle_conns,omitempty" msgpack:"max_idle_conns,omitempty"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime,omitempty" msgpack:"conn_max_lifetime,omitempty"`
}

// poolNamespace scopes the SHA-1 UUIDs derived from connection configs.
var poolNamespace = uuid.MustParse("5b0b7f5e-3c1d-4d4e-9a43-8f3c2b6c1a10")

// Key returns a deterministic identifier of the configuration. Equal
// configurations share a key regardless of map ordering.
func (c ConnConfig) Key() (string, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(c); err != nil {
		return "", fmt.Errorf("sql: encode connection config: %w", err)
	}
	return uuid.NewSHA1(poolNamespace, buf.Bytes()).String(), nil
}

// DataSourceName returns the database/sql data source name of the configuration.
func (c ConnConfig) DataSourceName() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}
	switch dialect.Normalize(c.Dialect) {
	case dialect.Postgres:
		u := url.URL{
			Scheme:   "postgres",
			Host:     hostPort(c.Host, c.Port, 5432),
			Path:     "/" + c.Database,
			RawQuery: encodeParams(c.Params),
		}
		if c.User != "" {
			u.User = url.UserPassword(c.User, c.Password)
		}
		return u.String(), nil
	case dialect.MySQL:
		cfg := mysql.NewConfig()
		cfg.User = c.User
		cfg.Passwd = c.Password
		cfg.Net = "tcp"
		cfg.Addr = hostPort(c.Host, c.Port, 3306)
		cfg.DBName = c.Database
		cfg.ParseTime = true
		if len(c.Params) > 0 {
			cfg.Params = c.Params
		}
		return cfg.FormatDSN(), nil
	case dialect.SQLite:
		if c.File == "" {
			return "", errors.New("sql: sqlite source requires a file")
		}
		dsn := "file:" + c.File
		if q := encodeParams(c.Params); q != "" {
			dsn += "?" + q
		}
		return dsn, nil
	case dialect.MSSQL:
		q := url.Values{}
		for k, v := range c.Params {
			q.Set(k, v)
		}
		if c.Database != "" {
			q.Set("database", c.Database)
		}
		u := url.URL{
			Scheme:   "sqlserver",
			Host:     hostPort(c.Host, c.Port, 1433),
			RawQuery: q.Encode(),
		}
		if c.User != "" {
			u.User = url.UserPassword(c.User, c.Password)
		}
		return u.String(), nil
	}
	return "", fmt.Errorf("sql: dialect %q requires an explicit dsn", c.Dialect)
}

func hostPort(host string, port, def int) string {
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = def
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func encodeParams(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	q := url.Values{}
	for _, k := range keys {
		q.Set(k, params[k])
	}
	return q.Encode()
}

// Opener opens the database of a connection configuration.
type Opener func(ctx context.Context, cfg ConnConfig) (*sql.DB, error)

// Pool is a process-wide map of open drivers keyed by the hash of their
// connection configuration. Drivers are opened on first use and live
// until they are evicted or the pool is closed.
type Pool struct {
	mu      sync.Mutex
	drivers map[string]dialect.Driver
	group   singleflight.Group
	open    Opener
	wrap    func(*Driver) dialect.Driver
	closed  bool
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithOpener sets the function used to open databases.
func WithOpener(open Opener) PoolOption {
	return func(p *Pool) {
		p.open = open
	}
}

// WithDriverWrapper wraps every opened driver, e.g. with NewStatsDriver.
func WithDriverWrapper(wrap func(*Driver) dialect.Driver) PoolOption {
	return func(p *Pool) {
		p.wrap = wrap
	}
}

// NewPool returns a new Pool.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		drivers: make(map[string]dialect.Driver),
		open:    openDB,
		wrap:    func(d *Driver) dialect.Driver { return d },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DefaultPool is the process-wide pool used when no pool is configured.
var DefaultPool = NewPool()

func openDB(_ context.Context, cfg ConnConfig) (*sql.DB, error) {
	dsn, err := cfg.DataSourceName()
	if err != nil {
		return nil, err
	}
	return sql.Open(cfg.DriverName(), dsn)
}

// DriverName returns the database/sql driver opening the configuration.
func (c ConnConfig) DriverName() string {
	if c.Driver != "" {
		return c.Driver
	}
	return DriverName(dialect.Normalize(c.Dialect))
}

// Get returns the driver of the given configuration, opening it if needed.
// Concurrent callers for the same configuration share a single open.
func (p *Pool) Get(ctx context.Context, cfg ConnConfig) (dialect.Driver, error) {
	key, err := cfg.Key()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errors.New("sql: pool is closed")
	}
	if drv, ok := p.drivers[key]; ok {
		p.mu.Unlock()
		return drv, nil
	}
	p.mu.Unlock()
	v, err, _ := p.group.Do(key, func() (any, error) {
		p.mu.Lock()
		if drv, ok := p.drivers[key]; ok {
			p.mu.Unlock()
			return drv, nil
		}
		p.mu.Unlock()
		db, err := p.open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("sql: open %s source: %w", cfg.Dialect, err)
		}
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
		drv := p.wrap(OpenDB(dialect.Normalize(cfg.Dialect), db))
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed {
			return nil, errors.Join(errors.New("sql: pool is closed"), drv.Close())
		}
		p.drivers[key] = drv
		return drv, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(dialect.Driver), nil
}

// Evict closes and removes the driver of the given configuration.
// It is a no-op if the configuration was never opened.
func (p *Pool) Evict(cfg ConnConfig) error {
	key, err := cfg.Key()
	if err != nil {
		return err
	}
	p.mu.Lock()
	drv, ok := p.drivers[key]
	delete(p.drivers, key)
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return drv.Close()
}

// Len returns the number of open drivers.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.drivers)
}

// Close closes all drivers. The pool cannot be used afterwards.
func (p *Pool) Close() error {
	p.mu.Lock()
	drivers := p.drivers
	p.drivers = make(map[string]dialect.Driver)
	p.closed = true
	p.mu.Unlock()
	var errs []error
	for _, drv := range drivers {
		errs = append(errs, drv.Close())
	}
	return errors.Join(errs...)
}
