// Package executor implements the query execution engine: the Executor
// contract operators implement, the row iterator types and combinators
// that move rows between them, and the handful of operators (currently
// RollUpApply) built directly on top of them.
package executor

import (
	"errors"

	"github.com/cuemby/graphd/pkg/value"
)

// Row is one row of an iterator: an ordered tuple of column values.
type Row []value.Value

// ErrPeekUnsupported is returned by Peek on iterator kinds that cannot look
// ahead without consuming (Zip, Filter, Map, Skip).
var ErrPeekUnsupported = errors.New("executor: peek not supported by this iterator")

// IteratorType identifies the concrete row-production strategy behind a
// RowIterator, primarily for logging and stats.
type IteratorType uint8

const (
	IterDefault IteratorType = iota
	IterSequential
	IterGetNeighbors
	IterProp
	IterEmpty
)

func (t IteratorType) String() string {
	switch t {
	case IterDefault:
		return "Default"
	case IterSequential:
		return "Sequential"
	case IterGetNeighbors:
		return "GetNeighbors"
	case IterProp:
		return "Prop"
	case IterEmpty:
		return "Empty"
	default:
		return "Unknown"
	}
}

// RowIterator is the row-production contract every operator and combinator
// in this package satisfies. Next advances and returns the next row; ok is
// false once the iterator is exhausted. Peek returns the next row without
// consuming it, where supported. SizeHint gives a cheap (lower bound, upper
// bound) estimate used by combinators to size their own buffers.
type RowIterator interface {
	Type() IteratorType
	Next() (row Row, ok bool, err error)
	Peek() (row Row, ok bool, err error)
	Reset() error
	SizeHint() (lower int, upper int, hasUpper bool)
	Nth(n int) (row Row, ok bool, err error)
	Last() (row Row, ok bool, err error)
	Size() int
	IsEmpty() bool
}

// sliceIterator is the shared implementation behind DefaultIterator,
// SequentialIterator and PropIterator: all three are a plain index walk
// over a pre-materialized slice of rows, differing only in IteratorType.
type sliceIterator struct {
	kind  IteratorType
	rows  []Row
	index int
}

func newSliceIterator(kind IteratorType, rows []Row) *sliceIterator {
	return &sliceIterator{kind: kind, rows: rows}
}

func (s *sliceIterator) Type() IteratorType { return s.kind }

func (s *sliceIterator) Next() (Row, bool, error) {
	if s.index >= len(s.rows) {
		return nil, false, nil
	}
	row := s.rows[s.index]
	s.index++
	return row, true, nil
}

func (s *sliceIterator) Peek() (Row, bool, error) {
	if s.index >= len(s.rows) {
		return nil, false, nil
	}
	return s.rows[s.index], true, nil
}

func (s *sliceIterator) Reset() error {
	s.index = 0
	return nil
}

func (s *sliceIterator) SizeHint() (int, int, bool) {
	remaining := len(s.rows) - s.index
	if remaining < 0 {
		remaining = 0
	}
	return remaining, remaining, true
}

func (s *sliceIterator) Nth(n int) (Row, bool, error) {
	s.index += n
	return s.Next()
}

func (s *sliceIterator) Last() (Row, bool, error) {
	if s.index >= len(s.rows) {
		return nil, false, nil
	}
	row := s.rows[len(s.rows)-1]
	s.index = len(s.rows)
	return row, true, nil
}

func (s *sliceIterator) Size() int { return len(s.rows) }

func (s *sliceIterator) IsEmpty() bool { return len(s.rows) == 0 }

// AddRow appends a row to the underlying slice, for builders that fill an
// iterator incrementally before it's handed off to the executor tree.
func (s *sliceIterator) AddRow(row Row) { s.rows = append(s.rows, row) }

// Rows returns the iterator's full backing slice.
func (s *sliceIterator) Rows() []Row { return s.rows }

// DefaultIterator is the plain row-at-a-time iterator most operators
// produce: a materialized slice walked front to back.
type DefaultIterator struct{ *sliceIterator }

func NewDefaultIterator(rows []Row) *DefaultIterator {
	return &DefaultIterator{newSliceIterator(IterDefault, rows)}
}

// SequentialIterator behaves identically to DefaultIterator; it exists as a
// distinct type so operators that specifically require ordered, one-pass
// delivery (e.g. sorted input to a merge) can assert on IteratorType.
type SequentialIterator struct{ *sliceIterator }

func NewSequentialIterator(rows []Row) *SequentialIterator {
	return &SequentialIterator{newSliceIterator(IterSequential, rows)}
}

// PropIterator walks rows of property values, e.g. the output of a FETCH
// PROP query.
type PropIterator struct{ *sliceIterator }

func NewPropIterator(rows []Row) *PropIterator {
	return &PropIterator{newSliceIterator(IterProp, rows)}
}

// EmptyIterator never yields a row: the iterator operators producing no
// row output (DDL, pure side-effect statements) hand their parents.
type EmptyIterator struct{ *sliceIterator }

func NewEmptyIterator() *EmptyIterator {
	return &EmptyIterator{newSliceIterator(IterEmpty, nil)}
}

// GetNeighborsIterator pairs a vertex with the edge that reached it, one
// (vertex, edge...) row per neighbor. Unlike the slice iterators it tracks
// two independent cursors because a GO FROM step can have more vertices
// than edges (isolated starts) or vice versa.
type GetNeighborsIterator struct {
	vertices    []value.Value
	edges       []Row
	vertexIndex int
	edgeIndex   int
}

func NewGetNeighborsIterator(vertices []value.Value, edges []Row) *GetNeighborsIterator {
	return &GetNeighborsIterator{vertices: vertices, edges: edges}
}

func (g *GetNeighborsIterator) Type() IteratorType { return IterGetNeighbors }

func (g *GetNeighborsIterator) Next() (Row, bool, error) {
	if g.vertexIndex >= len(g.vertices) {
		return nil, false, nil
	}
	row := Row{g.vertices[g.vertexIndex]}
	g.vertexIndex++
	if g.edgeIndex < len(g.edges) {
		row = append(row, g.edges[g.edgeIndex]...)
		g.edgeIndex++
	}
	return row, true, nil
}

func (g *GetNeighborsIterator) Peek() (Row, bool, error) {
	if g.vertexIndex >= len(g.vertices) {
		return nil, false, nil
	}
	row := Row{g.vertices[g.vertexIndex]}
	if g.edgeIndex < len(g.edges) {
		row = append(row, g.edges[g.edgeIndex]...)
	}
	return row, true, nil
}

func (g *GetNeighborsIterator) Reset() error {
	g.vertexIndex, g.edgeIndex = 0, 0
	return nil
}

func (g *GetNeighborsIterator) SizeHint() (int, int, bool) {
	remaining := len(g.vertices) - g.vertexIndex
	if remaining < 0 {
		remaining = 0
	}
	return remaining, remaining, true
}

func (g *GetNeighborsIterator) Nth(n int) (Row, bool, error) {
	for i := 0; i < n; i++ {
		if _, ok, err := g.Next(); err != nil || !ok {
			return nil, false, err
		}
	}
	return g.Next()
}

func (g *GetNeighborsIterator) Last() (Row, bool, error) {
	var last Row
	ok := false
	for {
		row, hasNext, err := g.Next()
		if err != nil {
			return nil, false, err
		}
		if !hasNext {
			break
		}
		last, ok = row, true
	}
	return last, ok, nil
}

func (g *GetNeighborsIterator) Size() int { return len(g.vertices) }

func (g *GetNeighborsIterator) IsEmpty() bool { return len(g.vertices) == 0 }

func (g *GetNeighborsIterator) AddVertex(v value.Value) { g.vertices = append(g.vertices, v) }
func (g *GetNeighborsIterator) AddEdge(e Row)           { g.edges = append(g.edges, e) }
