package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/config"
	"github.com/syssam/tabula/dialect"
	"github.com/syssam/tabula/dialect/sql"
	"github.com/syssam/tabula/dialect/sql/sqlgraph"
	"github.com/syssam/tabula/filter"
	"github.com/syssam/tabula/formula"
	"github.com/syssam/tabula/rollup"
	"github.com/syssam/tabula/schema"
)

// Engine compiles and runs the queries of the views of a registry.
// An Engine is safe for concurrent use.
type Engine struct {
	reg    atomic.Pointer[schema.Registry]
	cfg    *config.Config
	logger *slog.Logger
	clock  func() time.Time

	pool     *sql.Pool
	ownPool  bool
	proxy    sqlgraph.RemoteProxy
	cache    tabula.Cache
	notifier SourceNotifier
	formulas *formula.Compiler
	rollups  *rollup.Generator
	filters  *filter.Builder
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the configuration. The default is config.Default().
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithClock sets the clock giving the reference time of relative date
// filters and of NOW() in formulas.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.clock = now
	}
}

// WithPool sets the connection pool. The engine does not close it.
func WithPool(p *sql.Pool) Option {
	return func(e *Engine) {
		e.pool = p
	}
}

// WithRemoteProxy sets the proxy fetching relations that live in another
// source. The default runs the fetch on the pooled connection of the source.
func WithRemoteProxy(p sqlgraph.RemoteProxy) Option {
	return func(e *Engine) {
		e.proxy = p
	}
}

// WithRemoteCache caches the rows of remote fetches for config.Remote.CacheTTL.
func WithRemoteCache(c tabula.Cache) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// SourceNotifier is told about sources whose connection changed on Reload,
// so other processes sharing the sources can evict them too.
type SourceNotifier interface {
	SourceChanged(ctx context.Context, sourceID string) error
}

// WithSourceNotifier sets the notifier called by Reload.
func WithSourceNotifier(n SourceNotifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// New returns an engine over the given registry.
func New(reg *schema.Registry, opts ...Option) (*Engine, error) {
	if reg == nil {
		return nil, errors.New("engine: nil registry")
	}
	e := &Engine{clock: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg == nil {
		e.cfg = config.Default()
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	if e.pool == nil {
		e.pool = sql.NewPool(sql.WithDriverWrapper(e.wrapDriver))
		e.ownPool = true
	}
	if e.proxy == nil {
		e.proxy = sqlgraph.ProxyFunc(e.fetch)
	}
	if e.cache != nil {
		e.proxy = &cachingProxy{next: e.proxy, cache: e.cache, ttl: e.cfg.Remote.CacheTTL, logger: e.logger}
	}
	cache, err := formula.NewCache(e.cfg.Formula.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	e.formulas = formula.NewCompiler(cache)
	e.rollups = rollup.New()
	e.filters = filter.New()
	e.reg.Store(reg)
	return e, nil
}

// wrapDriver adds slow query and statement logging to the drivers of the
// engine's pool.
func (e *Engine) wrapDriver(d *sql.Driver) dialect.Driver {
	var drv dialect.Driver = d
	if e.cfg.SlowQuery > 0 {
		drv = sql.NewStatsDriver(d, sql.WithSlowThreshold(e.cfg.SlowQuery), sql.WithSlowQueryLog(e.logger))
	}
	if e.cfg.Log.Statements {
		drv = sql.NewDebugDriver(drv, e.logger)
	}
	return drv
}

// Registry returns the current metadata snapshot.
func (e *Engine) Registry() *schema.Registry { return e.reg.Load() }

// Reload swaps the metadata snapshot. Connections of sources whose
// configuration changed or that were removed are closed, and their cached
// remote rows dropped.
func (e *Engine) Reload(ctx context.Context, reg *schema.Registry) error {
	if reg == nil {
		return errors.New("engine: nil registry")
	}
	old := e.reg.Swap(reg)
	var errs []error
	for _, src := range old.Sources() {
		if next, err := reg.Source(src.ID); err == nil && sameConn(src.Conn, next.Conn) {
			continue
		}
		e.logger.InfoContext(ctx, "source changed", "source", src.ID)
		errs = append(errs, e.evict(ctx, src))
		if e.notifier != nil {
			errs = append(errs, e.notifier.SourceChanged(ctx, src.ID))
		}
	}
	return errors.Join(errs...)
}

// EvictSource closes the pooled connection of a source and drops its cached
// remote rows. Unknown sources are ignored.
func (e *Engine) EvictSource(ctx context.Context, sourceID string) error {
	src, err := e.Registry().Source(sourceID)
	if err != nil {
		if tabula.IsNotFound(err) {
			return nil
		}
		return err
	}
	return e.evict(ctx, src)
}

func (e *Engine) evict(ctx context.Context, src *schema.Source) error {
	errs := []error{e.pool.Evict(src.Conn)}
	if e.cache != nil {
		errs = append(errs, e.cache.DeletePrefix(ctx, tabula.SourcePrefix(src.ID)))
	}
	return errors.Join(errs...)
}

func sameConn(a, b sql.ConnConfig) bool {
	ka, err := a.Key()
	if err != nil {
		return false
	}
	kb, err := b.Key()
	return err == nil && ka == kb
}

// WatchSchema reloads the metadata snapshot at path whenever it changes.
// Snapshots failing to load are logged and skipped. It blocks until ctx
// is done.
func (e *Engine) WatchSchema(ctx context.Context, path string) error {
	return config.Watch(ctx, func(p string) {
		reg, err := schema.LoadFile(p)
		if err != nil {
			e.logger.ErrorContext(ctx, "schema reload failed", "path", p, "error", err)
			return
		}
		if err := e.Reload(ctx, reg); err != nil {
			e.logger.ErrorContext(ctx, "schema reload failed", "path", p, "error", err)
			return
		}
		e.logger.InfoContext(ctx, "schema reloaded", "path", p)
	}, path)
}

// Close closes the connections opened by the engine. A pool set with
// WithPool is left open.
func (e *Engine) Close() error {
	if !e.ownPool {
		return nil
	}
	return e.pool.Close()
}

// scope returns a compile scope for statements running on src.
func (e *Engine) scope(reg *schema.Registry, src *schema.Source, now time.Time) (*sqlgraph.Scope, error) {
	s, err := sqlgraph.NewScope(reg, src)
	if err != nil {
		return nil, err
	}
	s.Columns = &resolver{e: e}
	s.Conds = e.filters
	s.Proxy = e.proxy
	s.RemoteTimeout = e.cfg.Remote.Timeout
	s.RemoteMaxRows = e.cfg.Remote.MaxRows
	s.Now = now
	s.Logger = e.logger
	return s, nil
}

// fetch runs a remote fetch on the pooled connection of the source.
func (e *Engine) fetch(ctx context.Context, src *schema.Source, query string, args []any) ([]string, [][]any, error) {
	drv, err := e.pool.Get(ctx, src.Conn)
	if err != nil {
		return nil, nil, err
	}
	return sql.QueryValues(ctx, drv, query, args)
}

// exec runs a statement on the source and returns its rows.
func (e *Engine) exec(ctx context.Context, src *schema.Source, model *schema.Model, op string, st *Statement) ([]string, [][]any, error) {
	drv, err := e.pool.Get(ctx, src.Conn)
	if err != nil {
		return nil, nil, tabula.NewQueryError(model.Title, op, err)
	}
	if t := e.cfg.StatementTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
		if e.cfg.ServerTimeout {
			ctx = sql.WithStatementTimeout(ctx, t)
		}
	}
	start := time.Now()
	e.logger.DebugContext(ctx, "executing statement", "model", model.ID, "op", op, "sql", st.SQL, "args", len(st.Args))
	columns, rows, err := sql.QueryValues(ctx, drv, st.SQL, st.Args)
	if err != nil {
		e.logger.ErrorContext(ctx, "statement failed",
			"model", model.ID,
			"op", op,
			"kind", sqlgraph.Classify(err).String(),
			"error", err,
		)
		return nil, nil, tabula.NewQueryError(model.Title, op, err)
	}
	e.logger.DebugContext(ctx, "statement done", "model", model.ID, "op", op, "rows", len(rows), "duration", time.Since(start))
	return columns, rows, nil
}
