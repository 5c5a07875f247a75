package mvcc

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/graphd/pkg/log"
	"github.com/cuemby/graphd/pkg/metrics"
)

// ErrConflict is returned when a write observes a key already being
// written by another in-flight transaction.
var ErrConflict = errors.New("mvcc: write-write conflict")

// versionChain holds every version of one key, newest first, plus the id
// of the transaction currently writing the key uncommitted (0 when none).
type versionChain struct {
	mu       sync.Mutex
	head     *VersionRecord
	writerTx uint64
}

// GcConfig controls when stale versions are reclaimed: a chain entry older
// than retention and past minVersions deep, with no active reader whose
// snapshot could still need it, is eligible for collection.
type GcConfig struct {
	MinVersions       int
	RetentionDuration time.Duration
	GCInterval        time.Duration
}

func DefaultGcConfig() GcConfig {
	return GcConfig{
		MinVersions:       1,
		RetentionDuration: 5 * time.Minute,
		GCInterval:        30 * time.Second,
	}
}

// Manager is the MVCC manager: a monotonic global version counter, a
// version chain per key, and the set of versions still needed by active
// readers.
type Manager struct {
	mu            sync.Mutex
	globalVersion Version

	chainsMu sync.RWMutex
	chains   map[string]*versionChain

	readsMu     sync.Mutex
	activeReads map[uint64]Version

	gc GcConfig

	logger zerolog.Logger
	stopGC chan struct{}
}

// NewManager constructs an MVCC manager and starts its background GC loop:
// a ticker that runs runGC every GCInterval until Close.
func NewManager(gc GcConfig) *Manager {
	m := &Manager{
		chains:      make(map[string]*versionChain),
		activeReads: make(map[uint64]Version),
		gc:          gc,
		logger:      log.WithComponent("mvcc"),
		stopGC:      make(chan struct{}),
	}
	go m.gcLoop()
	return m
}

// Close stops the background GC loop.
func (m *Manager) Close() {
	close(m.stopGC)
}

// NextVersion allocates and returns the next global version, used both to
// stamp a commit and to take a read snapshot.
func (m *Manager) NextVersion() Version {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.globalVersion++
	metrics.MvccGlobalVersion.Set(float64(m.globalVersion))
	return m.globalVersion
}

func (m *Manager) currentVersion() Version {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.globalVersion
}

func (m *Manager) chainFor(key string) *versionChain {
	m.chainsMu.RLock()
	c, ok := m.chains[key]
	m.chainsMu.RUnlock()
	if ok {
		return c
	}
	m.chainsMu.Lock()
	defer m.chainsMu.Unlock()
	if c, ok := m.chains[key]; ok {
		return c
	}
	c = &versionChain{}
	m.chains[key] = c
	return c
}

// RegisterRead records that txID is reading at readVersion, so GC will not
// collect versions that snapshot might still need.
func (m *Manager) RegisterRead(txID uint64, readVersion Version) {
	m.readsMu.Lock()
	defer m.readsMu.Unlock()
	m.activeReads[txID] = readVersion
}

// ReleaseRead forgets a transaction's active read snapshot once it ends.
func (m *Manager) ReleaseRead(txID uint64) {
	m.readsMu.Lock()
	defer m.readsMu.Unlock()
	delete(m.activeReads, txID)
}

// BeginWrite marks key as being written by txID. It returns ErrConflict if
// a different transaction already holds the key uncommitted; re-registering
// by the same transaction (a second buffered write to the same key) is a
// no-op. The lock manager serializes writers before they get here, so this
// is a defense-in-depth check, not the primary mutual-exclusion mechanism.
func (m *Manager) BeginWrite(key string, txID uint64) error {
	c := m.chainFor(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writerTx != 0 && c.writerTx != txID {
		metrics.MvccConflictsTotal.Inc()
		return ErrConflict
	}
	c.writerTx = txID
	return nil
}

// CommitWrite appends a new committed version to key's chain and clears
// the being-written flag.
func (m *Manager) CommitWrite(key string, txID uint64, data []byte, deleted bool) Version {
	v := m.NextVersion()
	var rec *VersionRecord
	if deleted {
		rec = NewDeletedVersionRecord(txID)
	} else {
		rec = NewVersionRecord(txID, data)
	}
	rec.Commit(v)

	c := m.chainFor(key)
	c.mu.Lock()
	rec.setPrev(c.head)
	c.head = rec
	if c.writerTx == txID {
		c.writerTx = 0
	}
	c.mu.Unlock()
	return v
}

// SeedBase installs a committed base version for a key whose current value
// predates MVCC tracking, stamped at the minimum committed version so every
// active snapshot can still see it. A no-op when the chain already has
// history. The transaction coordinator calls this before the first
// transactional write to a key, so readers whose snapshot predates that
// write keep seeing the pre-write value.
func (m *Manager) SeedBase(key string, data []byte) {
	c := m.chainFor(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.head != nil {
		return
	}
	rec := NewVersionRecord(0, data)
	rec.Commit(1)
	c.head = rec
}

// LatestVersion returns the commit version of the newest committed record
// in key's chain, or 0 if the key has never been written through MVCC. The
// transaction coordinator compares this against a writer's read snapshot to
// detect write-write conflicts: a key committed past the snapshot means the
// writer would silently overwrite an update it never saw.
func (m *Manager) LatestVersion(key string) Version {
	c := m.chainFor(key)
	c.mu.Lock()
	head := c.head
	c.mu.Unlock()

	for cur := head; cur != nil; cur = cur.Prev() {
		if cur.IsCommitted() {
			return cur.Version()
		}
	}
	return 0
}

// AbortWrite releases txID's active-writer registration without appending
// a version, for a transaction that rolled back before commit. A no-op when
// another transaction holds the key.
func (m *Manager) AbortWrite(key string, txID uint64) {
	c := m.chainFor(key)
	c.mu.Lock()
	if c.writerTx == txID {
		c.writerTx = 0
	}
	c.mu.Unlock()
}

// Read returns the bytes visible to readerTxID at readVersion, walking the
// chain newest-first and returning the first visible, non-deleted record.
// An in-flight writer on the key does not affect readers: its write is not
// in the chain until commit, so they simply see the newest committed state.
func (m *Manager) Read(key string, readerTxID uint64, readVersion Version) ([]byte, bool) {
	c := m.chainFor(key)
	c.mu.Lock()
	head := c.head
	c.mu.Unlock()

	for cur := head; cur != nil; cur = cur.Prev() {
		if cur.IsVisibleTo(readVersion, readerTxID) {
			if cur.IsDeleted() {
				return nil, false
			}
			return cur.Data(), true
		}
	}
	return nil, false
}

func (m *Manager) gcLoop() {
	ticker := time.NewTicker(m.gc.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopGC:
			return
		case <-ticker.C:
			m.runGC()
		}
	}
}

// runGC drops chain tail entries older than the retention floor, provided
// enough versions remain and no active reader's snapshot still needs them.
func (m *Manager) runGC() {
	floor := m.readFloor()
	cutoff := m.currentVersion()
	retentionFloor := time.Now().Add(-m.gc.RetentionDuration)
	collected := 0

	m.chainsMu.RLock()
	chains := make([]*versionChain, 0, len(m.chains))
	for _, c := range m.chains {
		chains = append(chains, c)
	}
	m.chainsMu.RUnlock()

	for _, c := range chains {
		c.mu.Lock()
		kept := 0
		var prevKept *VersionRecord
		cur := c.head
		var newHead *VersionRecord
		for cur != nil {
			next := cur.Prev()
			keep := kept < m.gc.MinVersions || cur.Version() == 0 || cur.Version() >= floor || cur.Version() > cutoff ||
				cur.CreatedAt().After(retentionFloor)
			if keep {
				if newHead == nil {
					newHead = cur
				} else {
					prevKept.setPrev(cur)
				}
				prevKept = cur
				kept++
			} else {
				cur.setPrev(nil)
				collected++
			}
			cur = next
		}
		if prevKept != nil {
			prevKept.setPrev(nil)
		}
		c.head = newHead
		c.mu.Unlock()
	}

	if collected > 0 {
		metrics.MvccVersionsCollected.Add(float64(collected))
		m.logger.Debug().Int("collected", collected).Msg("mvcc gc reclaimed stale versions")
	}
	metrics.MvccGCRunsTotal.Inc()
}

// readFloor returns the oldest snapshot any active reader still depends
// on, or the current global version if there are no active readers.
func (m *Manager) readFloor() Version {
	m.readsMu.Lock()
	defer m.readsMu.Unlock()
	floor := m.currentVersion()
	for _, v := range m.activeReads {
		if v < floor {
			floor = v
		}
	}
	return floor
}
