package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/graphd/pkg/value"
)

func TestDefaultIterator(t *testing.T) {
	iter := NewDefaultIterator([]Row{
		{value.Int(1), value.String("Alice")},
		{value.Int(2), value.String("Bob")},
	})
	assert.Equal(t, IterDefault, iter.Type())
	assert.Equal(t, 2, iter.Size())

	row, ok, err := iter.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, value.Int(1), row[0])

	row, ok, err = iter.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, value.Int(2), row[0])

	_, ok, err = iter.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDefaultIteratorReset(t *testing.T) {
	iter := NewDefaultIterator([]Row{{value.Int(1)}})
	_, _, _ = iter.Next()
	_, ok, _ := iter.Next()
	assert.False(t, ok)

	require.NoError(t, iter.Reset())
	row, ok, _ := iter.Next()
	require.True(t, ok)
	assert.Equal(t, value.Int(1), row[0])
}

func TestGetNeighborsIterator(t *testing.T) {
	vertices := []value.Value{value.Int(1), value.Int(2)}
	edges := []Row{{value.String("edge1")}, {value.String("edge2")}}
	iter := NewGetNeighborsIterator(vertices, edges)

	assert.Equal(t, IterGetNeighbors, iter.Type())
	assert.Equal(t, 2, iter.Size())

	row1, ok, err := iter.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, value.Int(1), row1[0])
	assert.Equal(t, value.String("edge1"), row1[1])

	row2, ok, err := iter.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, value.Int(2), row2[0])
	assert.Equal(t, value.String("edge2"), row2[1])
}

func TestEmptyIterator(t *testing.T) {
	iter := NewEmptyIterator()
	assert.Equal(t, IterEmpty, iter.Type())
	assert.True(t, iter.IsEmpty())
	_, ok, err := iter.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIteratorIsEmpty(t *testing.T) {
	assert.True(t, NewDefaultIterator(nil).IsEmpty())
	assert.False(t, NewDefaultIterator([]Row{{value.Int(1)}}).IsEmpty())
}
