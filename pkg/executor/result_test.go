package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/graphd/pkg/value"
)

func TestResultAccessCount(t *testing.T) {
	r := NewResult(value.Int(42), StateSuccess)
	assert.Equal(t, uint64(0), r.AccessCount())
	assert.Equal(t, value.Int(42), r.Value())
	assert.Equal(t, uint64(1), r.AccessCount())
	_ = r.Value()
	assert.Equal(t, uint64(2), r.AccessCount())
}

func TestResultBuilderBasic(t *testing.T) {
	r := NewResultBuilder().
		Value(value.String("x")).
		State(StateSuccess).
		Msg("ok").
		Build()
	assert.Equal(t, StateSuccess, r.State())
	assert.Equal(t, "ok", r.Msg())
	assert.Equal(t, value.String("x"), r.Value())
}

func TestResultBuilderDerivesValueFromIterator(t *testing.T) {
	iter := NewDefaultIterator([]Row{{value.Int(7), value.Int(8)}})
	r := NewResultBuilder().Iterator(iter).Build()
	assert.Equal(t, value.Int(7), r.Value())
	assert.Equal(t, 1, r.Size())
}
