package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/dialect/sql"
	"github.com/syssam/tabula/dialect/sql/sqlgraph"
	"github.com/syssam/tabula/formula"
	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/field"
)

// resolver renders the columns referenced by filters, sorts, formulas
// and aggregations.
type resolver struct {
	e *Engine
}

// ColumnExpr implements sqlgraph.ColumnResolver.
func (r *resolver) ColumnExpr(ctx context.Context, s *sqlgraph.Scope, t *sqlgraph.Table, c *schema.Column) (sql.Querier, error) {
	switch {
	case c.Type == field.Formula || c.Type == field.Button:
		compiled, err := r.e.formula(ctx, s, t, c)
		if err != nil {
			return nil, err
		}
		if compiled.Host != nil {
			return nil, tabula.NewUnsupportedError(fmt.Sprintf("formula %q evaluated on the host outside of a projection", c.Title), s.Dialect())
		}
		return compiled.SQL, nil
	case c.Type == field.Rollup:
		return r.e.rollups.Column(ctx, s, t, c)
	case c.Type == field.Lookup:
		return sqlgraph.Lookup(ctx, s, t, c)
	case c.Type.Relation():
		return sqlgraph.LinkValue(ctx, s, t, c)
	case c.Virtual():
		return nil, tabula.NewValidationError(c.ID, fmt.Errorf("virtual column %s cannot be resolved", c.Type))
	}
	return t.C(c), nil
}

// formula compiles a formula column. Stored formulas failing to compile
// do not fail the statement: the error is recorded on the scope and the
// column yields NULL. Formulas unsupported by the dialect still fail.
func (e *Engine) formula(ctx context.Context, s *sqlgraph.Scope, t *sqlgraph.Table, c *schema.Column) (*formula.Compiled, error) {
	if _, ok := formula.Expression(c); !ok {
		// Buttons without a formula have no value.
		return &formula.Compiled{SQL: sql.Null}, nil
	}
	compiled, err := e.formulas.Compile(ctx, s, t, c)
	switch {
	case err == nil:
		return compiled, nil
	case tabula.IsValidationError(err) && !tabula.IsUnsupported(err):
		ferr := tabula.NewFormulaError(c.ID, err.Error())
		s.AddFormulaError(ferr)
		e.logger.WarnContext(ctx, "formula failed to compile", "column", c.ID, "error", err)
		return &formula.Compiled{SQL: sql.Null, Errors: []error{ferr}}, nil
	default:
		return nil, err
	}
}

// cachingProxy serves remote fetches from a cache. Concurrent misses of
// the same fetch share one call to the remote source.
type cachingProxy struct {
	next   sqlgraph.RemoteProxy
	cache  tabula.Cache
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

type cachedRows struct {
	Columns []string `msgpack:"c"`
	Rows    [][]any  `msgpack:"r"`
}

// Fetch implements sqlgraph.RemoteProxy. Cache failures fall back to the
// remote source.
func (p *cachingProxy) Fetch(ctx context.Context, src *schema.Source, query string, args []any) ([]string, [][]any, error) {
	key, err := tabula.CacheKey{Source: src.ID, Query: query, Args: args}.Key()
	if err != nil {
		return p.next.Fetch(ctx, src, query, args)
	}
	if data, err := p.cache.Get(ctx, key); err != nil {
		p.logger.WarnContext(ctx, "remote cache get failed", "source", src.ID, "error", err)
	} else if data != nil {
		var cr cachedRows
		if err := msgpack.Unmarshal(data, &cr); err == nil {
			p.logger.DebugContext(ctx, "remote cache hit", "source", src.ID, "rows", len(cr.Rows))
			return cr.Columns, cr.Rows, nil
		}
	}
	v, err, shared := p.group.Do(key, func() (any, error) {
		columns, rows, err := p.next.Fetch(ctx, src, query, args)
		if err != nil {
			return nil, err
		}
		data, err := msgpack.Marshal(cachedRows{Columns: columns, Rows: rows})
		if err == nil {
			err = p.cache.Set(ctx, key, data, p.ttl)
		}
		if err != nil {
			p.logger.WarnContext(ctx, "remote cache set failed", "source", src.ID, "error", err)
		}
		return cachedRows{Columns: columns, Rows: rows}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	if shared {
		p.logger.DebugContext(ctx, "remote fetch shared", "source", src.ID)
	}
	cr := v.(cachedRows)
	return cr.Columns, cr.Rows, nil
}
