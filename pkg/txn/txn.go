// Package txn implements the transaction coordinator: the component that
// sequences the lock manager, the MVCC manager, the storage engine and the
// index updater behind a begin/commit/rollback surface. All write contention
// funnels through the lock manager; snapshot reads go through MVCC; durable
// state changes hit the storage engine only at commit, after which the index
// batch is applied (deletes before inserts).
package txn

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/graphd/pkg/graph"
	"github.com/cuemby/graphd/pkg/index"
	"github.com/cuemby/graphd/pkg/lock"
	"github.com/cuemby/graphd/pkg/mvcc"
	"github.com/cuemby/graphd/pkg/storage"
)

// State is the lifecycle state of a transaction.
type State uint8

const (
	StateActive State = iota
	StatePreparing
	StateCommitted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "Active"
	case StatePreparing:
		return "Preparing"
	case StateCommitted:
		return "Committed"
	case StateAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Transaction error taxonomy.
var (
	ErrConflict       = errors.New("txn: write-write conflict")
	ErrDeadlock       = errors.New("txn: deadlock, transaction chosen as victim")
	ErrTimeout        = errors.New("txn: lock wait timed out")
	ErrAlreadyAborted = errors.New("txn: transaction already aborted")
	ErrNotActive      = errors.New("txn: transaction is not active")
)

// writeKind distinguishes the buffered mutations a transaction holds until
// commit.
type writeKind uint8

const (
	writeUpsertVertex writeKind = iota
	writeDeleteVertex
	writeUpsertEdge
	writeDeleteEdge
)

type pendingWrite struct {
	kind    writeKind
	key     string // mvcc chain key
	spaceID uint32
	vertex  *graph.Vertex
	vid     graph.VID
	edge    *graph.Edge
	edgeKey graph.EdgeKey
	data    []byte
}

// Transaction is one unit of work. It buffers writes until Commit so a
// rolled-back transaction never touches the durable store, and keeps its
// read snapshot stable for its whole lifetime.
type Transaction struct {
	id          uint64
	coord       *Coordinator
	readVersion mvcc.Version
	snapshot    mvcc.VersionVec
	deadline    time.Time

	mu         sync.Mutex
	state      State
	aborting   atomic.Bool
	writes     []pendingWrite
	writeSet   map[string]int      // mvcc key -> index into writes (latest wins)
	registered map[string]struct{} // chain keys holding this tx's active-writer registration
	batch      *index.Batch
}

func (t *Transaction) ID() uint64                { return t.id }
func (t *Transaction) ReadVersion() mvcc.Version { return t.readVersion }

// Snapshot returns the consistent multi-key snapshot vector this
// transaction reads at: the committed vector as of Begin merged with its
// own read version.
func (t *Transaction) Snapshot() mvcc.VersionVec { return t.snapshot }

func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// MarkAborting flags the transaction for cancellation. In-flight operations
// observe the flag between steps and fail with ErrAlreadyAborted; the
// caller is expected to follow up with Rollback.
func (t *Transaction) MarkAborting() { t.aborting.Store(true) }

// IsAborting reports whether the transaction has been flagged for abort,
// checked by row-producing iterators between productions.
func (t *Transaction) IsAborting() bool { return t.aborting.Load() }

func (t *Transaction) checkActive() error {
	if t.aborting.Load() {
		return ErrAlreadyAborted
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case StateActive:
	case StateAborted:
		return ErrAlreadyAborted
	default:
		return ErrNotActive
	}
	if !t.deadline.IsZero() && time.Now().After(t.deadline) {
		return ErrTimeout
	}
	return nil
}

// MVCC chain keys. Record kind is part of the key so a vertex and an edge
// can never collide.
func vertexChainKey(spaceID uint32, vid graph.VID) string {
	return fmt.Sprintf("v:%d:%s", spaceID, vid)
}

func edgeChainKey(spaceID uint32, k graph.EdgeKey) string {
	return fmt.Sprintf("e:%d:%s", spaceID, k.String())
}

// acquire maps a lock manager result to the transaction error taxonomy.
func (t *Transaction) acquire(key lock.Key, mode lock.Type) error {
	res := t.coord.locks.TryLock(t.id, key, mode, lock.Options{Timeout: t.coord.lockTimeout})
	switch res {
	case lock.ResultGranted:
		return nil
	case lock.ResultDeadlock:
		return ErrDeadlock
	default:
		return ErrTimeout
	}
}

// conflictCheck enforces first-updater-wins and registers this transaction
// as the key's active writer. The version comparison catches a key whose
// newest committed version is past this transaction's snapshot (writing it
// would overwrite an update the transaction never observed); the
// active-writer registration catches a concurrent uncommitted writer that
// slipped past the lock manager.
func (t *Transaction) conflictCheck(chainKey string) error {
	if latest := t.coord.mvcc.LatestVersion(chainKey); latest > t.readVersion {
		return ErrConflict
	}
	if err := t.coord.mvcc.BeginWrite(chainKey, t.id); err != nil {
		return ErrConflict
	}
	t.mu.Lock()
	t.registered[chainKey] = struct{}{}
	t.mu.Unlock()
	return nil
}

// seedVertexBase copies the pre-transactional store value of a vertex into
// the MVCC chain before its first transactional write, so concurrent
// readers with older snapshots keep seeing it.
func (t *Transaction) seedVertexBase(spaceID uint32, vid graph.VID, chainKey string) {
	if t.coord.mvcc.LatestVersion(chainKey) > 0 {
		return
	}
	cur, err := t.coord.engine.GetVertex(spaceID, vid)
	if err != nil {
		return
	}
	if data, err := json.Marshal(cur); err == nil {
		t.coord.mvcc.SeedBase(chainKey, data)
	}
}

func (t *Transaction) seedEdgeBase(spaceID uint32, k graph.EdgeKey, chainKey string) {
	if t.coord.mvcc.LatestVersion(chainKey) > 0 {
		return
	}
	cur, err := t.coord.engine.GetEdge(spaceID, k)
	if err != nil {
		return
	}
	if data, err := json.Marshal(cur); err == nil {
		t.coord.mvcc.SeedBase(chainKey, data)
	}
}

// GetVertex reads a vertex at the transaction's snapshot: its own buffered
// writes first, then the MVCC chain, then the durable store for keys never
// written through a transaction.
func (t *Transaction) GetVertex(spaceID uint32, vid graph.VID) (*graph.Vertex, error) {
	if err := t.checkActive(); err != nil {
		return nil, err
	}
	chainKey := vertexChainKey(spaceID, vid)

	t.mu.Lock()
	if i, ok := t.writeSet[chainKey]; ok {
		w := t.writes[i]
		t.mu.Unlock()
		if w.kind == writeDeleteVertex {
			return nil, storage.ErrNodeNotFound
		}
		return w.vertex, nil
	}
	t.mu.Unlock()

	// Snapshot reads are lock-free: visibility comes from the MVCC chain,
	// not from the lock manager, so readers never block writers.
	data, found := t.coord.mvcc.Read(chainKey, t.id, t.readVersion)
	if found {
		var v graph.Vertex
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("txn: decode vertex version: %w", err)
		}
		return &v, nil
	}
	if t.coord.mvcc.LatestVersion(chainKey) > 0 {
		// The chain exists but nothing is visible: the key was deleted (or
		// created) past our snapshot.
		return nil, storage.ErrNodeNotFound
	}
	return t.coord.engine.GetVertex(spaceID, vid)
}

// UpsertVertex buffers a vertex write, visible to this transaction's own
// reads immediately and to others at commit.
func (t *Transaction) UpsertVertex(spaceID uint32, v *graph.Vertex) error {
	if err := t.checkActive(); err != nil {
		return err
	}
	if err := t.acquire(lock.VertexKey(string(v.VID)), lock.Exclusive); err != nil {
		return err
	}
	chainKey := vertexChainKey(spaceID, v.VID)
	if err := t.conflictCheck(chainKey); err != nil {
		return err
	}
	t.seedVertexBase(spaceID, v.VID, chainKey)

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("txn: encode vertex: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.addWriteLocked(pendingWrite{
		kind: writeUpsertVertex, key: chainKey, spaceID: spaceID, vertex: v, vid: v.VID, data: data,
	})
	t.batch.DeleteVertex(spaceID, v.VID)
	t.batch.UpdateVertex(spaceID, v.VID, v.Tags)
	return nil
}

// DeleteVertex buffers a vertex delete plus the cascade over every incident
// edge, so the same commit removes the vertex, its edges, and their index
// postings. Commit applies each buffered delete as its own store update.
func (t *Transaction) DeleteVertex(spaceID uint32, vid graph.VID) error {
	if err := t.checkActive(); err != nil {
		return err
	}
	if err := t.acquire(lock.VertexKey(string(vid)), lock.Exclusive); err != nil {
		return err
	}
	chainKey := vertexChainKey(spaceID, vid)
	if err := t.conflictCheck(chainKey); err != nil {
		return err
	}
	t.seedVertexBase(spaceID, vid, chainKey)
	if _, err := t.GetVertex(spaceID, vid); err != nil {
		return err
	}

	// Cascade: buffer a delete for every incident edge as of this snapshot.
	edges, err := t.coord.engine.GetNodeEdges(spaceID, vid, graph.DirBoth)
	if err != nil {
		return err
	}
	for _, e := range edges {
		if err := t.DeleteEdge(spaceID, e.EdgeKey); err != nil {
			return err
		}
	}

	// Edges inserted by this very transaction aren't in the store yet; the
	// cascade has to cover them too.
	t.mu.Lock()
	var pendingEdges []graph.EdgeKey
	for _, w := range t.writes {
		if w.kind == writeUpsertEdge && w.spaceID == spaceID && (w.edgeKey.Src == vid || w.edgeKey.Dst == vid) {
			pendingEdges = append(pendingEdges, w.edgeKey)
		}
	}
	t.mu.Unlock()
	for _, ek := range pendingEdges {
		if err := t.DeleteEdge(spaceID, ek); err != nil {
			return err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.addWriteLocked(pendingWrite{kind: writeDeleteVertex, key: chainKey, spaceID: spaceID, vid: vid})
	t.batch.DeleteVertex(spaceID, vid)
	return nil
}

// GetEdge reads an edge at the transaction's snapshot.
func (t *Transaction) GetEdge(spaceID uint32, k graph.EdgeKey) (*graph.Edge, error) {
	if err := t.checkActive(); err != nil {
		return nil, err
	}
	chainKey := edgeChainKey(spaceID, k)

	t.mu.Lock()
	if i, ok := t.writeSet[chainKey]; ok {
		w := t.writes[i]
		t.mu.Unlock()
		if w.kind == writeDeleteEdge {
			return nil, storage.ErrEdgeNotFound
		}
		return w.edge, nil
	}
	t.mu.Unlock()

	data, found := t.coord.mvcc.Read(chainKey, t.id, t.readVersion)
	if found {
		var e graph.Edge
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("txn: decode edge version: %w", err)
		}
		return &e, nil
	}
	if t.coord.mvcc.LatestVersion(chainKey) > 0 {
		return nil, storage.ErrEdgeNotFound
	}
	return t.coord.engine.GetEdge(spaceID, k)
}

// UpsertEdge buffers an edge write.
func (t *Transaction) UpsertEdge(spaceID uint32, e *graph.Edge) error {
	if err := t.checkActive(); err != nil {
		return err
	}
	if err := t.acquire(lock.EdgeKey(e.EdgeKey.String()), lock.Exclusive); err != nil {
		return err
	}
	chainKey := edgeChainKey(spaceID, e.EdgeKey)
	if err := t.conflictCheck(chainKey); err != nil {
		return err
	}
	t.seedEdgeBase(spaceID, e.EdgeKey, chainKey)

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("txn: encode edge: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.addWriteLocked(pendingWrite{
		kind: writeUpsertEdge, key: chainKey, spaceID: spaceID, edge: e, edgeKey: e.EdgeKey, data: data,
	})
	t.batch.DeleteEdge(spaceID, e)
	t.batch.UpdateEdge(spaceID, e)
	return nil
}

// DeleteEdge buffers an edge delete.
func (t *Transaction) DeleteEdge(spaceID uint32, k graph.EdgeKey) error {
	if err := t.checkActive(); err != nil {
		return err
	}
	if err := t.acquire(lock.EdgeKey(k.String()), lock.Exclusive); err != nil {
		return err
	}
	chainKey := edgeChainKey(spaceID, k)
	if err := t.conflictCheck(chainKey); err != nil {
		return err
	}
	t.seedEdgeBase(spaceID, k, chainKey)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.addWriteLocked(pendingWrite{kind: writeDeleteEdge, key: chainKey, spaceID: spaceID, edgeKey: k})
	t.batch.DeleteEdge(spaceID, &graph.Edge{EdgeKey: k})
	return nil
}

// addWriteLocked appends a pending write, superseding any earlier write to
// the same key so the write set reflects only the latest intent per key.
// Caller holds t.mu.
func (t *Transaction) addWriteLocked(w pendingWrite) {
	if i, ok := t.writeSet[w.key]; ok {
		t.writes[i] = w
		return
	}
	t.writes = append(t.writes, w)
	t.writeSet[w.key] = len(t.writes) - 1
}
