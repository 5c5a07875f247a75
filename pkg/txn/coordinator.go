package txn

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/graphd/pkg/index"
	"github.com/cuemby/graphd/pkg/lock"
	"github.com/cuemby/graphd/pkg/log"
	"github.com/cuemby/graphd/pkg/metrics"
	"github.com/cuemby/graphd/pkg/mvcc"
	"github.com/cuemby/graphd/pkg/storage"
	"github.com/cuemby/graphd/pkg/value"
)

// Config carries the coordinator's tunables.
type Config struct {
	// LockTimeout bounds every individual lock wait inside a transaction.
	LockTimeout time.Duration
	// TxTimeout is the overall transaction deadline; zero means none.
	TxTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		LockTimeout: 10 * time.Second,
		TxTimeout:   time.Minute,
	}
}

// Coordinator owns the transaction id counter and wires the lock manager,
// the MVCC manager, the storage engine and the index updater together. It is
// the only component allowed to mutate all four.
type Coordinator struct {
	engine  *storage.Engine
	mvcc    *mvcc.Manager
	locks   *lock.Manager
	catalog *index.Catalog
	updater *index.Updater
	logger  zerolog.Logger

	lockTimeout time.Duration
	txTimeout   time.Duration

	nextTxID atomic.Uint64

	mu          sync.Mutex
	committed   mvcc.VersionVec // txID -> commit version of recently committed txs
	activeCount int
}

func NewCoordinator(cfg Config, engine *storage.Engine, mvccMgr *mvcc.Manager, locks *lock.Manager, catalog *index.Catalog, updater *index.Updater) *Coordinator {
	return &Coordinator{
		engine:      engine,
		mvcc:        mvccMgr,
		locks:       locks,
		catalog:     catalog,
		updater:     updater,
		logger:      log.WithComponent("txn"),
		lockTimeout: cfg.LockTimeout,
		txTimeout:   cfg.TxTimeout,
		committed:   make(mvcc.VersionVec),
	}
}

// Begin opens a new transaction with a fresh read snapshot.
func (c *Coordinator) Begin() *Transaction {
	id := c.nextTxID.Add(1)
	readVersion := c.mvcc.NextVersion()
	c.mvcc.RegisterRead(id, readVersion)

	c.mu.Lock()
	snapshot := c.committed.Merge(mvcc.VersionVec{id: readVersion})
	c.activeCount++
	c.mu.Unlock()

	var deadline time.Time
	if c.txTimeout > 0 {
		deadline = time.Now().Add(c.txTimeout)
	}

	return &Transaction{
		id:          id,
		coord:       c,
		readVersion: readVersion,
		snapshot:    snapshot,
		deadline:    deadline,
		state:       StateActive,
		writeSet:    make(map[string]int),
		registered:  make(map[string]struct{}),
		batch:       c.updater.NewBatch(),
	}
}

// Commit publishes every buffered write: durable store first, then the MVCC
// version chain, then the index batch (deletes before inserts). Locks are
// held until everything is applied, so no other transaction can observe a
// partially committed state.
func (c *Coordinator) Commit(t *Transaction) error {
	if err := t.checkActive(); err != nil {
		if rbErr := c.Rollback(t); rbErr != nil {
			log.WithTx("txn", t.id).Warn().Err(rbErr).Msg("rollback after failed commit precondition")
		}
		return err
	}

	t.mu.Lock()
	t.state = StatePreparing
	writes := t.writes
	batch := t.batch
	t.mu.Unlock()

	timer := metrics.NewTimer()

	for _, w := range writes {
		var err error
		switch w.kind {
		case writeUpsertVertex:
			err = c.engine.UpsertVertex(w.spaceID, w.vertex)
		case writeDeleteVertex:
			err = c.engine.DeleteVertex(w.spaceID, w.vid)
			if errors.Is(err, storage.ErrNodeNotFound) {
				err = nil // created and deleted within this transaction
			}
		case writeUpsertEdge:
			err = c.engine.UpsertEdge(w.spaceID, w.edge)
		case writeDeleteEdge:
			err = c.engine.DeleteEdge(w.spaceID, w.edgeKey)
		}
		if err != nil {
			log.WithTx("txn", t.id).Error().Str("key", w.key).Err(err).Msg("commit apply failed, rolling back")
			_ = c.Rollback(t)
			return err
		}
		c.mvcc.CommitWrite(w.key, t.id, w.data, w.kind == writeDeleteVertex || w.kind == writeDeleteEdge)
	}

	// CommitWrite released the registration of every published key; drop
	// any registration left over from an operation that errored before its
	// write reached the write set.
	t.mu.Lock()
	leftover := make([]string, 0, len(t.registered))
	for key := range t.registered {
		leftover = append(leftover, key)
	}
	t.registered = make(map[string]struct{})
	t.mu.Unlock()
	for _, key := range leftover {
		c.mvcc.AbortWrite(key, t.id)
	}

	if err := batch.Commit(); err != nil {
		log.WithTx("txn", t.id).Error().Err(err).Msg("index batch apply failed at commit")
		// Store writes are already durable at this point; surface the error
		// rather than pretending the commit failed cleanly.
		c.finish(t, StateCommitted)
		return err
	}

	commitVersion := c.mvcc.NextVersion()
	c.mu.Lock()
	c.committed[t.id] = commitVersion
	c.mu.Unlock()

	c.finish(t, StateCommitted)
	timer.ObserveDuration(metrics.TxCommitDuration)
	return nil
}

// Rollback discards every buffered write and index update and releases the
// transaction's resources. Safe to call on an already-finished transaction.
func (c *Coordinator) Rollback(t *Transaction) error {
	t.mu.Lock()
	if t.state == StateCommitted || t.state == StateAborted {
		t.mu.Unlock()
		return nil
	}
	pendingKeys := make([]string, 0, len(t.registered))
	for key := range t.registered {
		pendingKeys = append(pendingKeys, key)
	}
	t.writes = nil
	t.writeSet = make(map[string]int)
	t.registered = make(map[string]struct{})
	t.batch = c.updater.NewBatch()
	t.mu.Unlock()

	// Release every active-writer registration this transaction held,
	// including keys whose write never made it into the write set.
	for _, key := range pendingKeys {
		c.mvcc.AbortWrite(key, t.id)
	}

	c.finish(t, StateAborted)
	reason := "rollback"
	if t.aborting.Load() {
		reason = "cancelled"
	}
	metrics.TxAbortedTotal.WithLabelValues(reason).Inc()
	return nil
}

func (c *Coordinator) finish(t *Transaction, final State) {
	c.locks.ReleaseTransactionLocks(t.id)
	c.mvcc.ReleaseRead(t.id)

	c.mu.Lock()
	c.activeCount--
	c.mu.Unlock()

	t.mu.Lock()
	t.state = final
	t.mu.Unlock()
}

// ActiveCount reports how many transactions are currently open.
func (c *Coordinator) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeCount
}

// Engine exposes the underlying storage engine for read-only operator use.
func (c *Coordinator) Engine() *storage.Engine { return c.engine }

// CreateIndex runs the index lifecycle end to end: register the definition
// in Creating status, backfill it from the records already in the store,
// and activate it. The returned definition reflects the final status.
func (c *Coordinator) CreateIndex(spaceID uint32, name string, kind index.Kind, owner string, fields []string) (*index.Definition, error) {
	def, err := c.catalog.Create(spaceID, name, kind, owner, fields)
	if err != nil {
		return nil, err
	}
	if err := c.updater.Backfill(c.engine, spaceID, def.ID); err != nil {
		return nil, err
	}
	c.logger.Info().Uint32("space", spaceID).Str("index", name).Msg("index created and activated")
	return c.catalog.Get(spaceID, def.ID)
}

// DropIndex transitions the named index to Dropped and purges its postings
// from memory and from the durable index_data table.
func (c *Coordinator) DropIndex(spaceID uint32, name string) error {
	defs, err := c.catalog.List(spaceID)
	if err != nil {
		return err
	}
	for _, def := range defs {
		if def.Name != name || def.Status == index.StatusDropped {
			continue
		}
		if err := c.catalog.Drop(spaceID, def.ID); err != nil {
			return err
		}
		if err := c.updater.DropIndex(spaceID, def); err != nil {
			return err
		}
		c.logger.Info().Uint32("space", spaceID).Str("index", name).Msg("index dropped")
		return nil
	}
	return index.ErrNotFound
}

// LookupExact serves exact index lookups against the named index through
// the updater's cached lookup path and returns the matching record keys
// (vertex ids for a vertex index); the keys are not resolved to vertices
// or edges.
func (c *Coordinator) LookupExact(spaceID uint32, indexName, field string, v value.Value) ([]string, error) {
	return c.updater.CachedExactLookup(spaceID, indexName, field, v)
}
