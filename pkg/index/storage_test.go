package index

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/graphd/pkg/value"
)

func TestStorageExactLookup(t *testing.T) {
	s := NewStorage()
	require.NoError(t, s.Insert("name", value.String("Alice"), "v1"))
	require.NoError(t, s.Insert("name", value.String("Bob"), "v2"))

	got, err := s.LookupExact("name", value.String("Alice"))
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, got)

	got, err = s.LookupExact("name", value.String("Carol"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStorageExactLookupMultiplePostings(t *testing.T) {
	s := NewStorage()
	require.NoError(t, s.Insert("city", value.String("Lisbon"), "v1"))
	require.NoError(t, s.Insert("city", value.String("Lisbon"), "v2"))

	got, err := s.LookupExact("city", value.String("Lisbon"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v1", "v2"}, got)
}

func TestStorageRangeLookup(t *testing.T) {
	s := NewStorage()
	require.NoError(t, s.Insert("age", value.Int(20), "v1"))
	require.NoError(t, s.Insert("age", value.Int(30), "v2"))
	require.NoError(t, s.Insert("age", value.Int(40), "v3"))

	got, err := s.LookupRange("age", value.Int(25), value.Int(35))
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, got)

	// Half-open: the low endpoint is included, the high one is not.
	got, err = s.LookupRange("age", value.Int(20), value.Int(40))
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, got)
}

func TestStoragePrefixLookup(t *testing.T) {
	s := NewStorage()
	require.NoError(t, s.Insert("name", value.String("Alice"), "v1"))
	require.NoError(t, s.Insert("name", value.String("Alfred"), "v2"))
	require.NoError(t, s.Insert("name", value.String("Bob"), "v3"))

	got, err := s.LookupPrefix("name", "Al")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v1", "v2"}, got)
}

func TestStorageDelete(t *testing.T) {
	s := NewStorage()
	require.NoError(t, s.Insert("name", value.String("Alice"), "v1"))
	require.NoError(t, s.Insert("name", value.String("Alice"), "v2"))

	require.NoError(t, s.Delete("name", value.String("Alice"), "v1"))
	got, err := s.LookupExact("name", value.String("Alice"))
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, got)

	require.NoError(t, s.Delete("name", value.String("Alice"), "v2"))
	got, err = s.LookupExact("name", value.String("Alice"))
	require.NoError(t, err)
	assert.Empty(t, got)

	// Deleting an absent posting is a no-op.
	assert.NoError(t, s.Delete("name", value.String("Alice"), "v2"))
}

func TestStorageQueryStats(t *testing.T) {
	s := NewStorage()
	require.NoError(t, s.Insert("name", value.String("Alice"), "v1"))

	_, _ = s.LookupExact("name", value.String("Alice"))
	_, _ = s.LookupExact("name", value.String("Alice"))
	_, _ = s.LookupPrefix("name", "Al")
	_, _ = s.LookupRange("name", value.String("A"), value.String("B"))

	qs := s.QueryStatsFor("name")
	assert.Equal(t, uint64(2), qs.Exact)
	assert.Equal(t, uint64(1), qs.Prefix)
	assert.Equal(t, uint64(1), qs.Range)
	assert.Equal(t, QueryStats{}, s.QueryStatsFor("other"))
}

func TestStorageConcurrentFields(t *testing.T) {
	s := NewStorage()
	var wg sync.WaitGroup
	for f := 0; f < 4; f++ {
		field := fmt.Sprintf("field%d", f)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = s.Insert(field, value.Int(int64(i)), fmt.Sprintf("v%d", i))
			}
		}()
	}
	wg.Wait()

	for f := 0; f < 4; f++ {
		got, err := s.LookupRange(fmt.Sprintf("field%d", f), value.Int(0), value.Int(100))
		require.NoError(t, err)
		assert.Len(t, got, 100)
	}
}
