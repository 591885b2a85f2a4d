package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/filter"
	"github.com/syssam/tabula/querylanguage"
	"github.com/syssam/tabula/rollup"
)

// Aggregation is one metric of BulkAggregate.
type Aggregation struct {
	// Column is the id or title of the aggregated column. Count may leave
	// it empty to count rows.
	Column string
	Func   string
	// Alias keys the metric in the result. It defaults to Column, or to
	// Func when Column is empty.
	Alias string
	// Filter narrows the rows of this metric only.
	Filter querylanguage.Node
}

func (a Aggregation) name() string {
	switch {
	case a.Alias != "":
		return a.Alias
	case a.Column != "":
		return a.Column
	default:
		return a.Func
	}
}

// AggregateOptions lists the metrics computed by BulkAggregate.
type AggregateOptions struct {
	Aggregations []Aggregation
	// Filter is ANDed with the filter of the view.
	Filter querylanguage.Node
}

// BulkAggregate computes the metrics over the rows of a view in a single
// statement. The result is keyed by metric alias.
func (e *Engine) BulkAggregate(ctx context.Context, viewID string, opts AggregateOptions) (map[string]any, error) {
	q, err := e.compileAggregate(ctx, viewID, opts)
	if err != nil {
		return nil, err
	}
	columns, rows, err := e.exec(ctx, q.src, q.model, "aggregate", q.stmt)
	if err != nil {
		return nil, err
	}
	res := make(map[string]any, len(columns))
	for i, name := range columns {
		var v any
		if len(rows) > 0 && i < len(rows[0]) {
			v = rows[0][i]
		}
		res[name] = v
	}
	return res, nil
}

// CompileAggregate returns the statement BulkAggregate runs.
func (e *Engine) CompileAggregate(ctx context.Context, viewID string, opts AggregateOptions) (*Statement, error) {
	q, err := e.compileAggregate(ctx, viewID, opts)
	if err != nil {
		return nil, err
	}
	return q.stmt, nil
}

func (e *Engine) compileAggregate(ctx context.Context, viewID string, opts AggregateOptions) (*query, error) {
	reg := e.Registry()
	v, m, src, err := e.target(reg, viewID)
	if err != nil {
		return nil, err
	}
	where := querylanguage.Merge(v.Filter, opts.Filter)
	reqs := make([]rollup.Request, len(opts.Aggregations))
	for i, a := range opts.Aggregations {
		r := rollup.Request{Alias: a.name(), Func: rollup.Func(a.Func), Filter: a.Filter}
		if a.Column != "" {
			if r.Column, err = column(m, a.Column); err != nil {
				return nil, err
			}
		}
		if err := filter.Validate(reg, querylanguage.Merge(where, a.Filter)); err != nil {
			return nil, err
		}
		reqs[i] = r
	}
	s, err := e.scope(reg, src, e.clock())
	if err != nil {
		return nil, err
	}
	sel, err := e.rollups.Bulk(ctx, s, m, where, reqs)
	if err != nil {
		return nil, err
	}
	q := &query{view: v, model: m, src: src, scope: s}
	if err := e.prepare(ctx, q, sel, nil, nil); err != nil {
		return nil, err
	}
	return q, nil
}

// ParseAggregateParams decodes the query parameters of a bulk aggregation:
//
//	filter:      a filter tree, ANDed with the view filter
//	aggregation: [{"field": "<column id or title>", "type": "<function>"}]
//	filterList:  [{"alias": "<prefix>", "where": <filter tree>}]
//
// Each entry of the filter list repeats every aggregation under its own
// filter, keyed "<prefix>.<field>". Malformed input is a validation error.
// Empty parameters are ignored.
func ParseAggregateParams(filterJSON, aggregationJSON, filterListJSON string) (AggregateOptions, error) {
	var opts AggregateOptions
	if filterJSON != "" {
		n, err := querylanguage.ParseJSON([]byte(filterJSON))
		if err != nil {
			return opts, tabula.NewValidationError("", fmt.Errorf("filter: %w", err))
		}
		opts.Filter = n
	}
	var aggs []struct {
		Field string `json:"field"`
		Type  string `json:"type"`
	}
	if aggregationJSON != "" {
		if err := json.Unmarshal([]byte(aggregationJSON), &aggs); err != nil {
			return opts, tabula.NewValidationError("", fmt.Errorf("aggregation: %w", err))
		}
	}
	for i, a := range aggs {
		if a.Type == "" {
			return opts, tabula.NewValidationError(a.Field, fmt.Errorf("aggregation %d has no type", i))
		}
		if _, err := rollup.ParseFunc(a.Type); err != nil {
			return opts, tabula.NewValidationError(a.Field, err)
		}
	}
	var list []struct {
		Alias string          `json:"alias"`
		Where json.RawMessage `json:"where"`
	}
	if filterListJSON != "" {
		if err := json.Unmarshal([]byte(filterListJSON), &list); err != nil {
			return opts, tabula.NewValidationError("", fmt.Errorf("filterList: %w", err))
		}
	}
	if len(list) == 0 {
		for _, a := range aggs {
			opts.Aggregations = append(opts.Aggregations, Aggregation{Column: a.Field, Func: a.Type})
		}
		return opts, nil
	}
	for i, l := range list {
		if l.Alias == "" {
			return opts, tabula.NewValidationError("", fmt.Errorf("filterList entry %d has no alias", i))
		}
		var where querylanguage.Node
		if len(l.Where) > 0 {
			n, err := querylanguage.ParseJSON(l.Where)
			if err != nil {
				return opts, tabula.NewValidationError("", fmt.Errorf("filterList %s: %w", l.Alias, err))
			}
			where = n
		}
		for _, a := range aggs {
			opts.Aggregations = append(opts.Aggregations, Aggregation{
				Column: a.Field,
				Func:   a.Type,
				Alias:  l.Alias + "." + Aggregation{Column: a.Field, Func: a.Type}.name(),
				Filter: where,
			})
		}
	}
	return opts, nil
}
