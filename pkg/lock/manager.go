package lock

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/graphd/pkg/log"
	"github.com/cuemby/graphd/pkg/metrics"
)

// Config holds the lock manager's tunables: a default wait timeout,
// whether deadlock detection runs at all, and a bound on how deep a wait
// queue may grow before new waiters are rejected outright. Deadlock
// detection runs on every request that has to wait; DeadlockCheckInterval
// and FairLocking are carried but not read.
type Config struct {
	DefaultTimeout          time.Duration
	DeadlockCheckInterval   time.Duration
	EnableDeadlockDetection bool
	MaxWaitQueueLength      int
	FairLocking             bool
}

func DefaultConfig() Config {
	return Config{
		DefaultTimeout:          30 * time.Second,
		DeadlockCheckInterval:   5 * time.Second,
		EnableDeadlockDetection: true,
		MaxWaitQueueLength:      1000,
		FairLocking:             false,
	}
}

// Stats tracks lock manager activity, surfaced through pkg/metrics.
type Stats struct {
	Acquired          uint64
	Released          uint64
	Waited            uint64
	Timeouts          uint64
	DeadlocksDetected uint64
}

type statsCounters struct {
	mu    sync.Mutex
	stats Stats
}

// Options for a single lock request.
type Options struct {
	NoWait     bool
	SkipLocked bool
	Timeout    time.Duration
}

// Manager is the lock table plus the wait-for graph used for deadlock
// detection. All resource state lives in lockTable, keyed by the resource's
// string form; txLocks lets ReleaseTransactionLocks find every resource a
// transaction holds without scanning the whole table.
type Manager struct {
	cfg    Config
	logger zerolog.Logger

	mu        sync.Mutex
	lockTable map[string]*lockRecord
	txLocks   map[uint64]map[string]Type
	waitFor   map[uint64]map[uint64]bool // txID -> set of txIDs it's waiting on

	stats statsCounters
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:       cfg,
		logger:    log.WithComponent("lock"),
		lockTable: make(map[string]*lockRecord),
		txLocks:   make(map[uint64]map[string]Type),
		waitFor:   make(map[uint64]map[uint64]bool),
	}
}

// TryLock attempts to acquire mode on key for txID. It implements the same
// state machine as the source lock manager:
//  1. if txID already holds a compatible-or-equal mode, return granted
//     immediately (upgrade in place when the new mode strictly dominates);
//  2. if every other holder is compatible, grant immediately;
//  3. otherwise, if NoWait, fail immediately with Timeout; if SkipLocked,
//     return Skipped without registering a wait;
//  4. otherwise enqueue as a waiter, record a wait-for edge to every
//     incompatible holder, and run cycle detection. A cycle makes the
//     *requester* the victim: this call returns Deadlock and the edges it
//     just added are removed again.
func (m *Manager) TryLock(txID uint64, key Key, mode Type, opts Options) Result {
	ks := keyString(key)

	m.mu.Lock()
	rec, ok := m.lockTable[ks]
	if !ok {
		rec = &lockRecord{}
		m.lockTable[ks] = rec
	}

	if held, has := rec.holds(txID); has {
		if held == mode || dominates(held, mode) {
			m.mu.Unlock()
			return ResultGranted
		}
		// Upgrade: treat the stronger of the two modes as a fresh request
		// against every *other* holder.
		if rec.compatibleWithAllHeld(txID, mode) {
			m.setHeld(rec, txID, mode)
			m.recordHeld(txID, ks, mode)
			m.mu.Unlock()
			m.grantedMetrics(mode)
			return ResultGranted
		}
	} else if rec.compatibleWithAllHeld(txID, mode) {
		rec.held = append(rec.held, heldLock{txID, mode})
		m.recordHeld(txID, ks, mode)
		m.mu.Unlock()
		m.grantedMetrics(mode)
		return ResultGranted
	}

	if opts.SkipLocked {
		m.mu.Unlock()
		return ResultSkipped
	}
	if opts.NoWait {
		m.mu.Unlock()
		return ResultTimeout
	}

	if len(rec.waiters) >= m.cfg.MaxWaitQueueLength {
		m.mu.Unlock()
		return ResultTimeout
	}

	blockingTx := blockingHolders(rec, txID, mode)
	m.addWaitEdges(txID, blockingTx)

	if m.cfg.EnableDeadlockDetection {
		if cycle := m.findCycle(txID); len(cycle) > 0 {
			m.removeWaitEdges(txID, blockingTx)
			m.mu.Unlock()
			m.stats.mu.Lock()
			m.stats.stats.DeadlocksDetected++
			m.stats.mu.Unlock()
			metrics.DeadlocksDetectedTotal.Inc()
			m.logger.Warn().Uint64("tx", txID).Msg("deadlock detected, requester is victim")
			return ResultDeadlock
		}
	}

	w := &waiter{txID: txID, mode: mode, ch: make(chan Result, 1)}
	rec.waiters = append(rec.waiters, w)
	m.stats.mu.Lock()
	m.stats.stats.Waited++
	m.stats.mu.Unlock()
	m.mu.Unlock()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = m.cfg.DefaultTimeout
	}
	timer := metrics.NewTimer()

	select {
	case res := <-w.ch:
		timer.ObserveDuration(metrics.LockWaitDuration)
		return res
	case <-time.After(timeout):
		m.mu.Lock()
		m.removeWaiter(rec, w)
		m.removeWaitEdges(txID, blockingTx)
		m.mu.Unlock()
		m.stats.mu.Lock()
		m.stats.stats.Timeouts++
		m.stats.mu.Unlock()
		metrics.LockTimeoutsTotal.Inc()
		timer.ObserveDuration(metrics.LockWaitDuration)
		return ResultTimeout
	}
}

func (m *Manager) grantedMetrics(mode Type) {
	m.stats.mu.Lock()
	m.stats.stats.Acquired++
	m.stats.mu.Unlock()
	metrics.LockAcquiredTotal.WithLabelValues(mode.String()).Inc()
}

// dominates reports whether a already implies b (so requesting b while
// holding a is a no-op): X dominates everything, SIX dominates S/IS/IX.
func dominates(held, requested Type) bool {
	if held == Exclusive {
		return true
	}
	if held == SharedIntentionExclusive {
		return requested == Shared || requested == IntentionShared || requested == IntentionExclusive
	}
	return false
}

func (m *Manager) setHeld(rec *lockRecord, txID uint64, mode Type) {
	for i := range rec.held {
		if rec.held[i].txID == txID {
			rec.held[i].mode = mode
			return
		}
	}
	rec.held = append(rec.held, heldLock{txID, mode})
}

func (m *Manager) recordHeld(txID uint64, ks string, mode Type) {
	if m.txLocks[txID] == nil {
		m.txLocks[txID] = make(map[string]Type)
	}
	m.txLocks[txID][ks] = mode
}

func blockingHolders(rec *lockRecord, txID uint64, mode Type) []uint64 {
	var blockers []uint64
	for _, h := range rec.held {
		if h.txID == txID {
			continue
		}
		if !compatible(h.mode, mode) {
			blockers = append(blockers, h.txID)
		}
	}
	return blockers
}

func (m *Manager) addWaitEdges(txID uint64, blockers []uint64) {
	if m.waitFor[txID] == nil {
		m.waitFor[txID] = make(map[uint64]bool)
	}
	for _, b := range blockers {
		m.waitFor[txID][b] = true
	}
}

func (m *Manager) removeWaitEdges(txID uint64, blockers []uint64) {
	edges := m.waitFor[txID]
	if edges == nil {
		return
	}
	for _, b := range blockers {
		delete(edges, b)
	}
	if len(edges) == 0 {
		delete(m.waitFor, txID)
	}
}

func (m *Manager) removeWaiter(rec *lockRecord, w *waiter) {
	for i, ww := range rec.waiters {
		if ww == w {
			rec.waiters = append(rec.waiters[:i], rec.waiters[i+1:]...)
			return
		}
	}
}

// findCycle runs a DFS from start over the wait-for graph and returns the
// first cycle found (as the sequence of transaction ids), or nil if start
// is not part of any cycle. Must be called with m.mu held.
func (m *Manager) findCycle(start uint64) []uint64 {
	visited := make(map[uint64]bool)
	path := []uint64{start}
	var dfs func(uint64) []uint64
	dfs = func(node uint64) []uint64 {
		for next := range m.waitFor[node] {
			if next == start {
				return append(append([]uint64{}, path...), next)
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			path = append(path, next)
			if cyc := dfs(next); cyc != nil {
				return cyc
			}
			path = path[:len(path)-1]
		}
		return nil
	}
	return dfs(start)
}

// ReleaseTransactionLocks drops every lock txID holds and, for each
// vacated resource, promotes waiters from the head of its queue for as long
// as each is compatible with what remains held (see promoteWaiters).
func (m *Manager) ReleaseTransactionLocks(txID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	held := m.txLocks[txID]
	delete(m.txLocks, txID)
	delete(m.waitFor, txID)
	for other := range m.waitFor {
		delete(m.waitFor[other], txID)
	}

	for ks := range held {
		rec, ok := m.lockTable[ks]
		if !ok {
			continue
		}
		for i, h := range rec.held {
			if h.txID == txID {
				rec.held = append(rec.held[:i], rec.held[i+1:]...)
				break
			}
		}
		m.promoteWaiters(ks, rec)
		if len(rec.held) == 0 && len(rec.waiters) == 0 {
			delete(m.lockTable, ks)
		}
		m.stats.mu.Lock()
		m.stats.stats.Released++
		m.stats.mu.Unlock()
	}
}

// promoteWaiters grants the lock to waiters from the front of the queue as
// long as each remains compatible with everything already held. A promoted
// waiter was blocked on exactly this request, so its wait-for edges are
// cleared wholesale.
func (m *Manager) promoteWaiters(ks string, rec *lockRecord) {
	for len(rec.waiters) > 0 {
		w := rec.waiters[0]
		if !rec.compatibleWithAllHeld(w.txID, w.mode) {
			break
		}
		m.setHeld(rec, w.txID, w.mode)
		m.recordHeld(w.txID, ks, w.mode)
		delete(m.waitFor, w.txID)
		rec.waiters = rec.waiters[1:]
		m.stats.mu.Lock()
		m.stats.stats.Acquired++
		m.stats.mu.Unlock()
		metrics.LockAcquiredTotal.WithLabelValues(w.mode.String()).Inc()
		w.ch <- ResultGranted
	}
}

// StatsSnapshot returns a copy of the current counters.
func (m *Manager) StatsSnapshot() Stats {
	m.stats.mu.Lock()
	defer m.stats.mu.Unlock()
	return Stats{
		Acquired:          m.stats.stats.Acquired,
		Released:          m.stats.stats.Released,
		Waited:            m.stats.stats.Waited,
		Timeouts:          m.stats.stats.Timeouts,
		DeadlocksDetected: m.stats.stats.DeadlocksDetected,
	}
}
