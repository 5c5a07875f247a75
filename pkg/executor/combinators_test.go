package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/graphd/pkg/value"
)

func rows(ns ...int64) []Row {
	out := make([]Row, len(ns))
	for i, n := range ns {
		out[i] = Row{value.Int(n)}
	}
	return out
}

func drain(t *testing.T, iter RowIterator) []Row {
	t.Helper()
	var out []Row
	for {
		row, ok, err := iter.Next()
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, row)
	}
}

func TestZipStopsAtShorterSide(t *testing.T) {
	z := Zip(NewDefaultIterator(rows(1, 2, 3)), NewDefaultIterator(rows(10, 20)))
	out := drain(t, z)
	require.Len(t, out, 2)
	assert.Equal(t, Row{value.Int(1), value.Int(10)}, out[0])
	assert.Equal(t, Row{value.Int(2), value.Int(20)}, out[1])

	_, _, err := z.Peek()
	assert.ErrorIs(t, err, ErrPeekUnsupported)
}

func TestChainDeliversBothSides(t *testing.T) {
	c := Chain(NewDefaultIterator(rows(1, 2)), NewDefaultIterator(rows(3)))
	out := drain(t, c)
	require.Len(t, out, 3)
	assert.Equal(t, value.Int(3), out[2][0])
}

func TestFilterKeepsMatching(t *testing.T) {
	f := Filter(NewDefaultIterator(rows(1, 2, 3, 4)), func(r Row) bool {
		return r[0].Int%2 == 0
	})
	out := drain(t, f)
	require.Len(t, out, 2)
	assert.Equal(t, value.Int(2), out[0][0])
	assert.Equal(t, value.Int(4), out[1][0])
}

func TestMapTransformsRows(t *testing.T) {
	m := Map(NewDefaultIterator(rows(1, 2)), func(r Row) Row {
		return Row{value.Int(r[0].Int * 10)}
	})
	out := drain(t, m)
	require.Len(t, out, 2)
	assert.Equal(t, value.Int(10), out[0][0])
	assert.Equal(t, value.Int(20), out[1][0])
}

func TestTakeLimitsRows(t *testing.T) {
	tk := Take(NewDefaultIterator(rows(1, 2, 3)), 2)
	out := drain(t, tk)
	assert.Len(t, out, 2)
}

func TestSkipDropsLeadingRows(t *testing.T) {
	sk := Skip(NewDefaultIterator(rows(1, 2, 3)), 1)
	out := drain(t, sk)
	require.Len(t, out, 2)
	assert.Equal(t, value.Int(2), out[0][0])
}
