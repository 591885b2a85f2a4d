package sqlgraph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/dialect/sql"
	"github.com/syssam/tabula/schema"
)

// remoteFetch is the target of a relation living in another source. Its
// rows are fetched by Scope.Materialize once the statement is compiled,
// reading only the columns the statement references.
type remoteFetch struct {
	src   *schema.Source
	link  *schema.Column
	table *Table
	// key is the column of the target joined to the driving table.
	key *schema.Column
	// anchor is the column of the root table whose values narrow the
	// fetch, if the relation is narrowable.
	anchor *schema.Column
	used   map[string]bool
}

func (f *remoteFetch) use(c *schema.Column) { f.used[c.ID] = true }

// KeyFunc returns the values of the anchor columns over the driving rows
// of a statement, keyed by column id.
type KeyFunc func(ctx context.Context, anchors []*schema.Column) (map[string][]any, error)

// deferFetch binds the target of j to a values table filled by Materialize.
func (s *Scope) deferFetch(j *JoinFragment) error {
	src, err := s.Registry.Source(j.Target.Model.SourceID)
	if err != nil {
		return err
	}
	last := j.Hops[len(j.Hops)-1]
	f := &remoteFetch{
		src:   src,
		link:  j.Link,
		table: j.Target,
		key:   last.To.Column,
		used:  map[string]bool{last.To.Column.ID: true},
	}
	if s.Narrow && len(j.Hops) == 1 && s.root != nil && j.From == s.root {
		f.anchor = j.Hops[0].From.Column
	}
	j.Target.values = s.Client.LiteralRowsAsTable(nil, nil, j.Target.Alias)
	j.Target.remote = f
	s.pending = append(s.pending, f)
	return nil
}

// Pending returns the number of remote relations waiting for Materialize.
func (s *Scope) Pending() int { return len(s.pending) }

// Materialize fetches the remote relations of the compiled statement and
// fills their tables with the fetched rows. It runs before the statement
// is built. Narrowable relations are fetched only for the anchor values
// returned by keys, after the other relations so keys may run a statement
// reading them. With a nil keys every relation is fetched whole.
func (s *Scope) Materialize(ctx context.Context, keys KeyFunc) error {
	pending := s.pending
	s.pending = nil
	var narrow []*remoteFetch
	for _, f := range pending {
		if f.anchor != nil && keys != nil {
			narrow = append(narrow, f)
			continue
		}
		if err := s.fetch(ctx, f, nil, false); err != nil {
			return err
		}
	}
	if len(narrow) == 0 {
		return nil
	}
	var (
		anchors []*schema.Column
		seen    = make(map[string]bool)
	)
	for _, f := range narrow {
		if !seen[f.anchor.ID] {
			seen[f.anchor.ID] = true
			anchors = append(anchors, f.anchor)
		}
	}
	values, err := keys(ctx, anchors)
	if err != nil {
		return err
	}
	for _, f := range narrow {
		if err := s.fetch(ctx, f, values[f.anchor.ID], true); err != nil {
			return err
		}
	}
	return nil
}

// fetch selects the referenced columns of the target from its source.
// Narrowed fetches read the rows whose key is in keys.
func (s *Scope) fetch(ctx context.Context, f *remoteFetch, keys []any, narrowed bool) error {
	m := f.table.Model
	var names []string
	for _, c := range m.Columns {
		if f.used[c.ID] && !c.Virtual() {
			names = append(names, c.ColumnName())
		}
	}
	f.table.values.Columns = names
	if narrowed && len(keys) == 0 {
		return nil
	}
	if s.Proxy == nil {
		return tabula.NewExternalSourceError(f.src.ID, f.link.ID, false, errors.New("no remote proxy configured"))
	}
	t := sql.Table(m.Table)
	if m.Schema != "" {
		t.Schema(m.Schema)
	}
	selection := make([]any, len(names))
	for i := range names {
		selection[i] = names[i]
	}
	sel := sql.Dialect(f.src.Dialect()).Select(selection...).From(t)
	if narrowed {
		sel.Where(sql.In(f.key.ColumnName(), keys...))
	}
	if s.RemoteMaxRows > 0 {
		sel.Limit(s.RemoteMaxRows + 1)
	}
	query, args, err := sql.Build(f.src.Dialect(), sel)
	if err != nil {
		return err
	}
	fctx := ctx
	if s.RemoteTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, s.RemoteTimeout)
		defer cancel()
	}
	start := time.Now()
	_, rows, err := s.Proxy.Fetch(fctx, f.src, query, args)
	if err != nil {
		timeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(fctx.Err(), context.DeadlineExceeded)
		return tabula.NewExternalSourceError(f.src.ID, f.link.ID, timeout, err)
	}
	if s.RemoteMaxRows > 0 && len(rows) > s.RemoteMaxRows {
		return tabula.NewExternalSourceError(f.src.ID, f.link.ID, false, fmt.Errorf("remote relation returned more than %d rows", s.RemoteMaxRows))
	}
	s.logger().DebugContext(ctx, "remote relation materialized",
		"source", f.src.ID,
		"model", m.ID,
		"columns", len(names),
		"keys", len(keys),
		"rows", len(rows),
		"duration", time.Since(start),
	)
	f.table.values.Rows = rows
	return nil
}

// ProxyFunc adapts a function to the RemoteProxy interface.
type ProxyFunc func(ctx context.Context, src *schema.Source, query string, args []any) ([]string, [][]any, error)

// Fetch calls f(ctx, src, query, args).
func (f ProxyFunc) Fetch(ctx context.Context, src *schema.Source, query string, args []any) ([]string, [][]any, error) {
	return f(ctx, src, query, args)
}
