package schema

import (
	"fmt"
	"slices"
	"strings"
)

// Projector selects and reorders the fields of an input record into the
// data type's output column order. It holds no per-row state.
type Projector struct {
	dataType *DataType
	indices  []int
}

// NewProjector resolves every output column to its input position. An
// output column that is not an input column is a configuration error.
func NewProjector(dt *DataType) (*Projector, error) {
	indices := make([]int, len(dt.OutputColumns))
	for i, col := range dt.OutputColumns {
		idx := slices.Index(dt.InputColumns, col)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, dt.Name, col)
		}
		indices[i] = idx
	}
	return &Projector{dataType: dt, indices: indices}, nil
}

// Header returns the output header row.
func (p *Projector) Header() []string {
	return p.dataType.OutputColumns
}

// CheckHeader compares a file's header record with the declared input
// columns, ignoring surrounding whitespace.
func (p *Projector) CheckHeader(header []string) error {
	want := p.dataType.InputColumns
	if len(header) != len(want) {
		return fmt.Errorf("%w: header has %d columns, %s declares %d", ErrSchemaMismatch, len(header), p.dataType.Name, len(want))
	}
	for i, col := range header {
		if strings.TrimSpace(col) != want[i] {
			return fmt.Errorf("%w: header column %d is %q, expected %q", ErrSchemaMismatch, i+1, col, want[i])
		}
	}
	return nil
}

// Project returns the output fields for record. Values are passed through
// untouched.
func (p *Projector) Project(record []string) ([]string, error) {
	out := make([]string, len(p.indices))
	for i, idx := range p.indices {
		if idx >= len(record) {
			return nil, fmt.Errorf("%w: record has no %s column", ErrSchemaMismatch, p.dataType.OutputColumns[i])
		}
		out[i] = record[idx]
	}
	return out, nil
}
