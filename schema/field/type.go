package field

import (
	"fmt"
	"strings"
)

// Type is the UI type of a column. The set is closed: every type has an
// entry in the capability table and unknown names fail to parse.
type Type uint8

// UI types.
const (
	TypeInvalid Type = iota
	ID
	ForeignKey
	SingleLineText
	LongText
	Email
	URL
	PhoneNumber
	Number
	Decimal
	Currency
	Percent
	Rating
	Duration
	AutoNumber
	Year
	Checkbox
	Date
	DateTime
	Time
	CreatedTime
	LastModifiedTime
	SingleSelect
	MultiSelect
	JSON
	Attachment
	Formula
	Lookup
	Rollup
	LinkToAnotherRecord
	Links
	Button
	endTypes
)

// capability flags.
const (
	numeric uint16 = 1 << iota
	integral
	text
	temporal
	boolean
	virtual
	choice
	relation
	key
	system
)

type traits struct {
	name  string
	flags uint16
}

var table = [endTypes]traits{
	TypeInvalid:         {"invalid", 0},
	ID:                  {"ID", key | system},
	ForeignKey:          {"ForeignKey", key | system},
	SingleLineText:      {"SingleLineText", text},
	LongText:            {"LongText", text},
	Email:               {"Email", text},
	URL:                 {"URL", text},
	PhoneNumber:         {"PhoneNumber", text},
	Number:              {"Number", numeric | integral},
	Decimal:             {"Decimal", numeric},
	Currency:            {"Currency", numeric},
	Percent:             {"Percent", numeric},
	Rating:              {"Rating", numeric | integral},
	Duration:            {"Duration", numeric},
	AutoNumber:          {"AutoNumber", numeric | integral | system},
	Year:                {"Year", numeric | integral},
	Checkbox:            {"Checkbox", boolean},
	Date:                {"Date", temporal},
	DateTime:            {"DateTime", temporal},
	Time:                {"Time", text},
	CreatedTime:         {"CreatedTime", temporal | system},
	LastModifiedTime:    {"LastModifiedTime", temporal | system},
	SingleSelect:        {"SingleSelect", choice | text},
	MultiSelect:         {"MultiSelect", choice | text},
	JSON:                {"JSON", text},
	Attachment:          {"Attachment", 0},
	Formula:             {"Formula", virtual},
	Lookup:              {"Lookup", virtual},
	Rollup:              {"Rollup", virtual},
	LinkToAnotherRecord: {"LinkToAnotherRecord", virtual | relation},
	Links:               {"Links", virtual | relation},
	Button:              {"Button", virtual},
}

// String returns the name of the type.
func (t Type) String() string {
	if t < endTypes {
		return table[t].name
	}
	return fmt.Sprintf("Type(%d)", t)
}

// Valid reports if the type is one of the known UI types.
func (t Type) Valid() bool { return t > TypeInvalid && t < endTypes }

func (t Type) has(f uint16) bool { return t.Valid() && table[t].flags&f != 0 }

// Numeric reports if values of the type are numbers.
func (t Type) Numeric() bool { return t.has(numeric) }

// Integral reports if values of the type are whole numbers.
func (t Type) Integral() bool { return t.has(integral) }

// Text reports if values of the type are stored as strings.
func (t Type) Text() bool { return t.has(text) }

// Temporal reports if values of the type are dates or timestamps.
func (t Type) Temporal() bool { return t.has(temporal) }

// Boolean reports if values of the type are booleans.
func (t Type) Boolean() bool { return t.has(boolean) }

// Virtual reports if the type is computed rather than stored.
func (t Type) Virtual() bool { return t.has(virtual) }

// Choice reports if the type holds options from a fixed list.
func (t Type) Choice() bool { return t.has(choice) }

// Relation reports if the type links to another model.
func (t Type) Relation() bool { return t.has(relation) }

// Key reports if the type is a primary or foreign key.
func (t Type) Key() bool { return t.has(key) }

// System reports if the type is maintained by the system.
func (t Type) System() bool { return t.has(system) }

// Parse returns the type with the given name. Names are case-insensitive.
func Parse(name string) (Type, error) {
	for t := ID; t < endTypes; t++ {
		if strings.EqualFold(table[t].name, name) {
			return t, nil
		}
	}
	return TypeInvalid, fmt.Errorf("field: unknown type %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("field: invalid type %d", t)
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Types returns all valid types.
func Types() []Type {
	ts := make([]Type, 0, endTypes-1)
	for t := ID; t < endTypes; t++ {
		ts = append(ts, t)
	}
	return ts
}
