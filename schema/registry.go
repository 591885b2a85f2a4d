package schema

import (
	"fmt"
	"sort"
	"sync"

	"github.com/syssam/tabula"
)

// Registry is a read-only snapshot of the metadata consumed by one engine.
// Objects are stored in flat tables addressed by their ids, and relations
// between models are id pairs held in LinkOptions.
//
// Registries are built once, validated, and then shared between goroutines.
// Add methods must not be called concurrently with lookups.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]*Source
	models  map[string]*Model
	columns map[string]*Column
	views   map[string]*View
	order   []string // model ids in insertion order
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]*Source),
		models:  make(map[string]*Model),
		columns: make(map[string]*Column),
		views:   make(map[string]*View),
	}
}

// AddSource adds a source to the registry.
func (r *Registry) AddSource(s *Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == "" {
		return fmt.Errorf("schema: source without id")
	}
	if _, ok := r.sources[s.ID]; ok {
		return fmt.Errorf("schema: duplicate source %q", s.ID)
	}
	r.sources[s.ID] = s
	return nil
}

// AddModel adds a model and its columns to the registry. Column ids are
// global: a column id may appear only once across all models.
func (r *Registry) AddModel(m *Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == "" {
		return fmt.Errorf("schema: model without id")
	}
	if _, ok := r.models[m.ID]; ok {
		return fmt.Errorf("schema: duplicate model %q", m.ID)
	}
	seen := make(map[string]bool, len(m.Columns))
	for _, c := range m.Columns {
		if c.ID == "" {
			return fmt.Errorf("schema: column %q of model %q without id", c.Title, m.ID)
		}
		if _, ok := r.columns[c.ID]; ok || seen[c.ID] {
			return fmt.Errorf("schema: duplicate column %q in model %q", c.ID, m.ID)
		}
		seen[c.ID] = true
	}
	for _, c := range m.Columns {
		c.ModelID = m.ID
		r.columns[c.ID] = c
	}
	r.models[m.ID] = m
	r.order = append(r.order, m.ID)
	return nil
}

// AddView adds a view to the registry.
func (r *Registry) AddView(v *View) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v.ID == "" {
		return fmt.Errorf("schema: view without id")
	}
	if _, ok := r.views[v.ID]; ok {
		return fmt.Errorf("schema: duplicate view %q", v.ID)
	}
	r.views[v.ID] = v
	return nil
}

// Source returns the source with the given id.
func (r *Registry) Source(id string) (*Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sources[id]; ok {
		return s, nil
	}
	return nil, tabula.NewNotFoundErrorWithID("source", id)
}

// Model returns the model with the given id.
func (r *Registry) Model(id string) (*Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.models[id]; ok {
		return m, nil
	}
	return nil, tabula.NewNotFoundErrorWithID("model", id)
}

// Column returns the column with the given id.
func (r *Registry) Column(id string) (*Column, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.columns[id]; ok {
		return c, nil
	}
	return nil, tabula.NewNotFoundErrorWithID("column", id)
}

// View returns the view with the given id.
func (r *Registry) View(id string) (*View, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.views[id]; ok {
		return v, nil
	}
	return nil, tabula.NewNotFoundErrorWithID("view", id)
}

// ModelOf returns the model owning the column.
func (r *Registry) ModelOf(columnID string) (*Model, error) {
	c, err := r.Column(columnID)
	if err != nil {
		return nil, err
	}
	return r.Model(c.ModelID)
}

// SourceOf returns the source of the model.
func (r *Registry) SourceOf(modelID string) (*Source, error) {
	m, err := r.Model(modelID)
	if err != nil {
		return nil, err
	}
	return r.Source(m.SourceID)
}

// Models returns the models in insertion order.
func (r *Registry) Models() []*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ms := make([]*Model, len(r.order))
	for i, id := range r.order {
		ms[i] = r.models[id]
	}
	return ms
}

// Sources returns all sources ordered by id.
func (r *Registry) Sources() []*Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ss := make([]*Source, 0, len(r.sources))
	for _, s := range r.sources {
		ss = append(ss, s)
	}
	sort.Slice(ss, func(i, j int) bool { return ss[i].ID < ss[j].ID })
	return ss
}

// Views returns all views ordered by id.
func (r *Registry) Views() []*View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vs := make([]*View, 0, len(r.views))
	for _, v := range r.views {
		vs = append(vs, v)
	}
	sort.Slice(vs, func(i, j int) bool { return vs[i].ID < vs[j].ID })
	return vs
}
