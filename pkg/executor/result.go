package executor

import (
	"sync/atomic"
	"time"

	"github.com/cuemby/graphd/pkg/value"
)

// ResultState reports how far a query got before producing this Result.
type ResultState uint8

const (
	StateUnexecuted ResultState = iota
	StatePartialSuccess
	StateSuccess
	StateFailed
	StateCancelled
)

func (s ResultState) String() string {
	switch s {
	case StateUnexecuted:
		return "UnExecuted"
	case StatePartialSuccess:
		return "PartialSuccess"
	case StateSuccess:
		return "Success"
	case StateFailed:
		return "Failed"
	case StateCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Result is the top-level handle a completed (or partially completed)
// query hands back to its caller: a state, an optional message, the final
// scalar value and, if the query produced rows, the iterator over them.
// AccessCount tracks how many times Value has been read, used by the
// memory/caching layer to decide what's worth keeping warm.
type Result struct {
	state        ResultState
	msg          string
	val          value.Value
	iter         RowIterator
	creationTime time.Time
	accessCount  atomic.Uint64
}

// NewResult wraps val as a completed result with the given state.
func NewResult(val value.Value, state ResultState) *Result {
	return &Result{state: state, val: val, creationTime: time.Now()}
}

// EmptyResultValue returns an unexecuted, valueless Result.
func EmptyResultValue() *Result { return NewResult(value.Null(), StateUnexecuted) }

func (r *Result) State() ResultState { return r.state }
func (r *Result) Msg() string        { return r.msg }

// Value returns the result's scalar value, counting this as an access.
func (r *Result) Value() value.Value {
	r.accessCount.Add(1)
	return r.val
}

func (r *Result) Iterator() RowIterator   { return r.iter }
func (r *Result) CreationTime() time.Time { return r.creationTime }
func (r *Result) AccessCount() uint64     { return r.accessCount.Load() }

// Size reports the row count of the result's iterator, or 0 if it has none.
func (r *Result) Size() int {
	if r.iter == nil {
		return 0
	}
	return r.iter.Size()
}

// ResultBuilder assembles a Result from its optional components.
type ResultBuilder struct {
	state ResultState
	msg   string
	val   value.Value
	iter  RowIterator
	set   bool
}

func NewResultBuilder() *ResultBuilder {
	return &ResultBuilder{state: StateSuccess, val: value.Null()}
}

func (b *ResultBuilder) Value(v value.Value) *ResultBuilder {
	b.val, b.set = v, true
	return b
}

func (b *ResultBuilder) State(s ResultState) *ResultBuilder {
	b.state = s
	return b
}

func (b *ResultBuilder) Msg(msg string) *ResultBuilder {
	b.msg = msg
	return b
}

func (b *ResultBuilder) Iterator(iter RowIterator) *ResultBuilder {
	b.iter = iter
	return b
}

// Build produces the final Result. When an iterator was set but no
// explicit value was, the value becomes the first column of the iterator's
// first row.
func (b *ResultBuilder) Build() *Result {
	val := b.val
	if b.iter != nil && !b.set && !b.iter.IsEmpty() {
		if row, ok, _ := b.iter.Peek(); ok && len(row) > 0 {
			val = row[0]
		}
	}
	return &Result{
		state:        b.state,
		msg:          b.msg,
		val:          val,
		iter:         b.iter,
		creationTime: time.Now(),
	}
}
