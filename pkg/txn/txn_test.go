package txn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/graphd/pkg/graph"
	"github.com/cuemby/graphd/pkg/index"
	"github.com/cuemby/graphd/pkg/kvstore"
	"github.com/cuemby/graphd/pkg/lock"
	"github.com/cuemby/graphd/pkg/mvcc"
	"github.com/cuemby/graphd/pkg/storage"
	"github.com/cuemby/graphd/pkg/value"
)

const space = uint32(1)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	store, err := kvstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mvccMgr := mvcc.NewManager(mvcc.DefaultGcConfig())
	t.Cleanup(mvccMgr.Close)

	engine := storage.New(store)
	catalog := index.NewCatalog(store)
	updater := index.NewUpdater(catalog, index.NewStorage())

	cfg := DefaultConfig()
	cfg.LockTimeout = 2 * time.Second
	return NewCoordinator(cfg, engine, mvccMgr, lock.NewManager(lock.DefaultConfig()), catalog, updater)
}

func person(vid graph.VID, name string) *graph.Vertex {
	return &graph.Vertex{VID: vid, Tags: []graph.Tag{{Name: "person", Properties: map[string]any{"name": name}}}}
}

func knows(src, dst graph.VID) *graph.Edge {
	return &graph.Edge{EdgeKey: graph.EdgeKey{Src: src, Dst: dst, EdgeType: "KNOWS", Ranking: 0}}
}

func TestCommitPublishesWrites(t *testing.T) {
	c := newTestCoordinator(t)

	tx := c.Begin()
	require.NoError(t, tx.UpsertVertex(space, person("1", "alice")))
	require.NoError(t, c.Commit(tx))
	assert.Equal(t, StateCommitted, tx.State())

	got, err := c.Engine().GetVertex(space, "1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Tags[0].Properties["name"])
}

func TestRollbackDiscardsWrites(t *testing.T) {
	c := newTestCoordinator(t)

	tx := c.Begin()
	require.NoError(t, tx.UpsertVertex(space, person("1", "alice")))
	require.NoError(t, c.Rollback(tx))
	assert.Equal(t, StateAborted, tx.State())

	_, err := c.Engine().GetVertex(space, "1")
	assert.ErrorIs(t, err, storage.ErrNodeNotFound)
}

func TestOwnWritesVisibleBeforeCommit(t *testing.T) {
	c := newTestCoordinator(t)

	tx := c.Begin()
	require.NoError(t, tx.UpsertVertex(space, person("1", "alice")))

	got, err := tx.GetVertex(space, "1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Tags[0].Properties["name"])

	// Not visible to a concurrent transaction yet.
	other := c.Begin()
	_, err = other.GetVertex(space, "1")
	assert.ErrorIs(t, err, storage.ErrNodeNotFound)
	require.NoError(t, c.Rollback(other))
	require.NoError(t, c.Commit(tx))
}

func TestCascadeDeleteVertex(t *testing.T) {
	c := newTestCoordinator(t)

	setup := c.Begin()
	require.NoError(t, setup.UpsertVertex(space, person("1", "a")))
	require.NoError(t, setup.UpsertVertex(space, person("2", "b")))
	require.NoError(t, setup.UpsertVertex(space, person("3", "c")))
	require.NoError(t, setup.UpsertEdge(space, knows("1", "2")))
	require.NoError(t, setup.UpsertEdge(space, knows("2", "3")))
	require.NoError(t, c.Commit(setup))

	del := c.Begin()
	require.NoError(t, del.DeleteVertex(space, "2"))
	require.NoError(t, c.Commit(del))

	_, err := c.Engine().GetVertex(space, "2")
	assert.ErrorIs(t, err, storage.ErrNodeNotFound)

	out1, err := c.Engine().GetNodeEdges(space, "1", graph.DirOutgoing)
	require.NoError(t, err)
	assert.Empty(t, out1)

	in3, err := c.Engine().GetNodeEdges(space, "3", graph.DirIncoming)
	require.NoError(t, err)
	assert.Empty(t, in3)
}

func TestWriteWriteConflict(t *testing.T) {
	c := newTestCoordinator(t)

	setup := c.Begin()
	require.NoError(t, setup.UpsertVertex(space, person("1", "orig")))
	require.NoError(t, c.Commit(setup))

	txA := c.Begin()
	_, err := txA.GetVertex(space, "1")
	require.NoError(t, err)

	txB := c.Begin()
	require.NoError(t, txB.UpsertVertex(space, person("1", "from-b")))
	require.NoError(t, c.Commit(txB))

	// A's snapshot predates B's commit; its write must fail.
	err = txA.UpsertVertex(space, person("1", "from-a"))
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, c.Rollback(txA))

	got, err := c.Engine().GetVertex(space, "1")
	require.NoError(t, err)
	assert.Equal(t, "from-b", got.Tags[0].Properties["name"])
}

func TestSnapshotStability(t *testing.T) {
	c := newTestCoordinator(t)

	setup := c.Begin()
	require.NoError(t, setup.UpsertVertex(space, person("1", "orig")))
	require.NoError(t, c.Commit(setup))

	reader := c.Begin()
	first, err := reader.GetVertex(space, "1")
	require.NoError(t, err)
	assert.Equal(t, "orig", first.Tags[0].Properties["name"])

	writer := c.Begin()
	require.NoError(t, writer.UpsertVertex(space, person("1", "updated")))
	require.NoError(t, c.Commit(writer))

	// The reader's snapshot must not move.
	second, err := reader.GetVertex(space, "1")
	require.NoError(t, err)
	assert.Equal(t, "orig", second.Tags[0].Properties["name"])
	require.NoError(t, c.Rollback(reader))

	// A fresh transaction sees the new value.
	fresh := c.Begin()
	third, err := fresh.GetVertex(space, "1")
	require.NoError(t, err)
	assert.Equal(t, "updated", third.Tags[0].Properties["name"])
	require.NoError(t, c.Rollback(fresh))
}

func TestDeadlockDetection(t *testing.T) {
	c := newTestCoordinator(t)

	setup := c.Begin()
	require.NoError(t, setup.UpsertVertex(space, person("x", "x")))
	require.NoError(t, setup.UpsertVertex(space, person("y", "y")))
	require.NoError(t, c.Commit(setup))

	txA := c.Begin()
	txB := c.Begin()

	require.NoError(t, txA.UpsertVertex(space, person("x", "ax")))
	require.NoError(t, txB.UpsertVertex(space, person("y", "by")))

	aDone := make(chan error, 1)
	go func() {
		// Blocks behind B's lock on y until B aborts.
		aDone <- txA.UpsertVertex(space, person("y", "ay"))
	}()

	// Give A a moment to enqueue as a waiter, then close the cycle.
	time.Sleep(100 * time.Millisecond)
	err := txB.UpsertVertex(space, person("x", "bx"))
	assert.ErrorIs(t, err, ErrDeadlock)
	require.NoError(t, c.Rollback(txB))

	// With B gone, A's blocked request is granted and A can commit.
	require.NoError(t, <-aDone)
	require.NoError(t, c.Commit(txA))
}

func TestMarkAbortingCancelsOperations(t *testing.T) {
	c := newTestCoordinator(t)

	tx := c.Begin()
	require.NoError(t, tx.UpsertVertex(space, person("1", "a")))
	tx.MarkAborting()

	err := tx.UpsertVertex(space, person("2", "b"))
	assert.ErrorIs(t, err, ErrAlreadyAborted)
	_, err = tx.GetVertex(space, "1")
	assert.ErrorIs(t, err, ErrAlreadyAborted)

	require.NoError(t, c.Rollback(tx))
}

func TestCommitAfterRollbackFails(t *testing.T) {
	c := newTestCoordinator(t)

	tx := c.Begin()
	require.NoError(t, tx.UpsertVertex(space, person("1", "a")))
	require.NoError(t, c.Rollback(tx))

	err := c.Commit(tx)
	assert.ErrorIs(t, err, ErrAlreadyAborted)
}

func TestCreateIndexBackfillsAndServesLookups(t *testing.T) {
	c := newTestCoordinator(t)

	// Records committed before the index exists are picked up by backfill.
	setup := c.Begin()
	require.NoError(t, setup.UpsertVertex(space, person("1", "alice")))
	require.NoError(t, c.Commit(setup))

	def, err := c.CreateIndex(space, "person_name_idx", index.KindVertex, "person", []string{"name"})
	require.NoError(t, err)
	assert.Equal(t, index.StatusActive, def.Status)

	hits, err := c.LookupExact(space, "person_name_idx", "name", value.String("alice"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, hits)

	hits, err = c.LookupExact(space, "person_name_idx", "name", value.String("bob"))
	require.NoError(t, err)
	assert.Empty(t, hits)

	// Records committed after activation flow through the index batch.
	tx := c.Begin()
	require.NoError(t, tx.UpsertVertex(space, person("2", "bob")))
	require.NoError(t, c.Commit(tx))

	hits, err = c.LookupExact(space, "person_name_idx", "name", value.String("bob"))
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, hits)
}

func TestDropIndexRemovesPostings(t *testing.T) {
	c := newTestCoordinator(t)

	setup := c.Begin()
	require.NoError(t, setup.UpsertVertex(space, person("1", "alice")))
	require.NoError(t, c.Commit(setup))

	_, err := c.CreateIndex(space, "person_name_idx", index.KindVertex, "person", []string{"name"})
	require.NoError(t, err)
	require.NoError(t, c.DropIndex(space, "person_name_idx"))

	hits, err := c.LookupExact(space, "person_name_idx", "name", value.String("alice"))
	require.NoError(t, err)
	assert.Empty(t, hits)

	assert.ErrorIs(t, c.DropIndex(space, "no_such_idx"), index.ErrNotFound)
}

func TestInsertAndDeleteEdgeWithinOneTransaction(t *testing.T) {
	c := newTestCoordinator(t)

	tx := c.Begin()
	require.NoError(t, tx.UpsertVertex(space, person("1", "a")))
	require.NoError(t, tx.UpsertVertex(space, person("2", "b")))
	require.NoError(t, tx.UpsertEdge(space, knows("1", "2")))
	require.NoError(t, tx.DeleteVertex(space, "2"))
	require.NoError(t, c.Commit(tx))

	out, err := c.Engine().GetNodeEdges(space, "1", graph.DirOutgoing)
	require.NoError(t, err)
	assert.Empty(t, out)
}
