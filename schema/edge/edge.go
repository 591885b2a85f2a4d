package edge

import (
	"fmt"
	"strings"
)

// Rel is the kind of a relation between two models.
type Rel uint8

// Relation kinds.
const (
	Unknown    Rel = iota
	HasMany        // parent row owns many child rows through a foreign key on the child
	BelongsTo      // child row points at one parent row through its own foreign key
	ManyToMany     // rows on both sides are paired through a junction model
)

var names = [...]string{
	Unknown:    "unknown",
	HasMany:    "hm",
	BelongsTo:  "bt",
	ManyToMany: "mm",
}

// String returns the short name of the relation (hm, bt, mm).
func (r Rel) String() string {
	if int(r) < len(names) {
		return names[r]
	}
	return fmt.Sprintf("Rel(%d)", r)
}

// Inverse returns the relation seen from the other side.
func (r Rel) Inverse() Rel {
	switch r {
	case HasMany:
		return BelongsTo
	case BelongsTo:
		return HasMany
	}
	return r
}

// Many reports if the relation can yield more than one related row.
func (r Rel) Many() bool { return r == HasMany || r == ManyToMany }

// ParseRel parses a relation name. Long forms are accepted.
func ParseRel(s string) (Rel, error) {
	switch strings.ToLower(s) {
	case "hm", "has_many", "hasmany":
		return HasMany, nil
	case "bt", "belongs_to", "belongsto":
		return BelongsTo, nil
	case "mm", "many_to_many", "manytomany":
		return ManyToMany, nil
	}
	return Unknown, fmt.Errorf("edge: unknown relation %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Rel) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Rel) UnmarshalText(b []byte) error {
	v, err := ParseRel(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}
