package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/graphd/pkg/kvstore"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	store, err := kvstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewCatalog(store)
}

func TestCatalogCreateAndGet(t *testing.T) {
	c := newTestCatalog(t)

	def, err := c.Create(1, "person_name_idx", KindVertex, "person", []string{"name"})
	require.NoError(t, err)
	assert.NotEmpty(t, def.ID)
	assert.Equal(t, StatusCreating, def.Status)

	got, err := c.Get(1, def.ID)
	require.NoError(t, err)
	assert.Equal(t, "person_name_idx", got.Name)
	assert.Equal(t, []string{"name"}, got.Fields)
}

func TestCatalogDuplicateName(t *testing.T) {
	c := newTestCatalog(t)

	_, err := c.Create(1, "idx", KindVertex, "person", []string{"name"})
	require.NoError(t, err)

	_, err = c.Create(1, "idx", KindVertex, "person", []string{"age"})
	assert.ErrorIs(t, err, ErrNameExists)

	// Same name in another space is fine.
	_, err = c.Create(2, "idx", KindVertex, "person", []string{"name"})
	assert.NoError(t, err)
}

func TestCatalogInvalidParameters(t *testing.T) {
	c := newTestCatalog(t)

	_, err := c.Create(1, "", KindVertex, "person", []string{"name"})
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = c.Create(1, "idx", KindVertex, "", []string{"name"})
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = c.Create(1, "idx", KindVertex, "person", nil)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestCatalogStatusTransitions(t *testing.T) {
	c := newTestCatalog(t)

	def, err := c.Create(1, "idx", KindVertex, "person", []string{"name"})
	require.NoError(t, err)

	require.NoError(t, c.Activate(1, def.ID))
	got, err := c.Get(1, def.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
	assert.Greater(t, got.Version, def.Version)

	require.NoError(t, c.Drop(1, def.ID))
	got, err = c.Get(1, def.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDropped, got.Status)

	// A dropped index's name becomes reusable.
	_, err = c.Create(1, "idx", KindVertex, "person", []string{"name"})
	assert.NoError(t, err)
}

func TestCatalogSeqMonotonic(t *testing.T) {
	c := newTestCatalog(t)

	a, err := c.Create(1, "a", KindVertex, "person", []string{"name"})
	require.NoError(t, err)
	b, err := c.Create(1, "b", KindEdge, "knows", []string{"since"})
	require.NoError(t, err)
	assert.Greater(t, b.Seq, a.Seq)
}

func TestCatalogGetMissing(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.Get(1, "no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
}
