package types

import (
	"context"
	"fmt"
)

// Direction selects which way a migration reshapes stored content.
type Direction int

const (
	Forwards Direction = iota
	Backwards
)

func (d Direction) String() string {
	if d == Backwards {
		return "backwards"
	}
	return "forwards"
}

// MarshalText encodes the direction by name.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText accepts the names ParseDirection accepts.
func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ParseDirection parses "forwards" or "backwards".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "forwards", "forward", "up":
		return Forwards, nil
	case "backwards", "backward", "down":
		return Backwards, nil
	}
	return Forwards, fmt.Errorf("unknown direction %q", s)
}

// Reversibility documents whether Backwards undoes Forwards.
type Reversibility int

const (
	// Invertible rules satisfy Backwards(Forwards(v)) == v for every
	// well-formed value v.
	Invertible Reversibility = iota
	// Lossy rules cannot restore the previous value. Their Backwards is a
	// no-op and runs that go backwards through them report the loss.
	Lossy
)

func (r Reversibility) String() string {
	if r == Lossy {
		return "lossy"
	}
	return "invertible"
}

// BlockRule rewrites the value of every block whose type is listed in
// BlockTypes. Forwards and Backwards receive a private copy of the value and
// return the rewritten value; they must not retain it.
//
// A rule returns ErrAlreadyMigrated when the value is already in the target
// shape, ErrMalformedBlock when the value does not have the expected shape,
// and an error wrapping ErrParse when a sub-field cannot be parsed.
type BlockRule interface {
	Name() string
	BlockTypes() []string
	Reversibility() Reversibility
	Forwards(value any) (any, error)
	Backwards(value any) (any, error)
}

// TreeRule rewrites a whole content tree, for changes that move blocks
// rather than reshape a single value.
type TreeRule interface {
	Name() string
	Reversibility() Reversibility
	Forwards(tree ContentTree) (ContentTree, error)
	Backwards(tree ContentTree) (ContentTree, error)
}

// Lookup reads single rows. Record rules use it to follow references.
type Lookup interface {
	Get(ctx context.Context, table, key string, id int64, fields []string) (Row, error)
}

// RecordRule rewrites plain columns of a row. Fields lists the columns the
// rule reads; the returned map holds only the columns to persist. An empty
// map means the row is left as is.
type RecordRule interface {
	Name() string
	Fields() []string
	Reversibility() Reversibility
	Forwards(ctx context.Context, rec Record, lookup Lookup) (map[string]any, error)
	Backwards(ctx context.Context, rec Record, lookup Lookup) (map[string]any, error)
}
