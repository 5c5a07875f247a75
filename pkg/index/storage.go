package index

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/graphd/pkg/keycodec"
	"github.com/cuemby/graphd/pkg/metrics"
	"github.com/cuemby/graphd/pkg/value"
)

// Entry is one posting in an index field's sorted map: the record it
// points to, plus access statistics. AccessCount and LastAccessed are
// touched with atomics so concurrent readers can record hits without
// taking the shard's write lock.
type Entry struct {
	RecordKey    string // vertex vid or edge key string form
	AccessCount  uint64
	LastAccessed int64 // unix nanos
}

// QueryStats counts lookups served per field, broken down by lookup form.
type QueryStats struct {
	Exact  uint64
	Prefix uint64
	Range  uint64
}

// shard is one lock-protected field index: an encoded-key-sorted slice of
// (encodedKey, entries) pairs. A slice kept sorted by encodedKey supports
// binary-search exact lookup and contiguous prefix/range scans without
// needing a full tree structure.
type shard struct {
	mu      sync.RWMutex
	entries []shardEntry
}

type shardEntry struct {
	key   []byte
	value value.Value
	posts []Entry
}

// Storage is the in-memory secondary-index structure: one shard per
// indexed field, each independently locked so concurrent lookups/updates
// on different fields never contend.
type Storage struct {
	mu     sync.RWMutex
	shards map[string]*shard // field name -> shard

	statsMu    sync.Mutex
	queryStats map[string]*QueryStats // field name -> lookup counters
}

func NewStorage() *Storage {
	return &Storage{
		shards:     make(map[string]*shard),
		queryStats: make(map[string]*QueryStats),
	}
}

func (s *Storage) recordQuery(field string, kind string) {
	s.statsMu.Lock()
	qs, ok := s.queryStats[field]
	if !ok {
		qs = &QueryStats{}
		s.queryStats[field] = qs
	}
	switch kind {
	case "exact":
		qs.Exact++
	case "prefix":
		qs.Prefix++
	default:
		qs.Range++
	}
	s.statsMu.Unlock()
}

// QueryStatsFor returns a copy of the lookup counters recorded for field.
func (s *Storage) QueryStatsFor(field string) QueryStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if qs, ok := s.queryStats[field]; ok {
		return *qs
	}
	return QueryStats{}
}

func (s *Storage) shardFor(field string) *shard {
	s.mu.RLock()
	sh, ok := s.shards[field]
	s.mu.RUnlock()
	if ok {
		return sh
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sh, ok := s.shards[field]; ok {
		return sh
	}
	sh = &shard{}
	s.shards[field] = sh
	return sh
}

// Insert adds a posting for field=val pointing at recordKey.
func (s *Storage) Insert(field string, val value.Value, recordKey string) error {
	encoded, err := keycodec.EncodeValue(nil, val)
	if err != nil {
		return err
	}
	sh := s.shardFor(field)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	i := sort.Search(len(sh.entries), func(i int) bool {
		return bytesCompare(sh.entries[i].key, encoded) >= 0
	})
	if i < len(sh.entries) && bytesCompare(sh.entries[i].key, encoded) == 0 {
		sh.entries[i].posts = append(sh.entries[i].posts, Entry{RecordKey: recordKey})
		return nil
	}
	entry := shardEntry{key: encoded, value: val, posts: []Entry{{RecordKey: recordKey}}}
	sh.entries = append(sh.entries, shardEntry{})
	copy(sh.entries[i+1:], sh.entries[i:])
	sh.entries[i] = entry
	return nil
}

// Delete removes a single posting for field=val pointing at recordKey.
// Deletes always apply before inserts within one index-update batch, which
// is enforced by the updater, not by this method.
func (s *Storage) Delete(field string, val value.Value, recordKey string) error {
	encoded, err := keycodec.EncodeValue(nil, val)
	if err != nil {
		return err
	}
	sh := s.shardFor(field)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	i := sort.Search(len(sh.entries), func(i int) bool {
		return bytesCompare(sh.entries[i].key, encoded) >= 0
	})
	if i >= len(sh.entries) || bytesCompare(sh.entries[i].key, encoded) != 0 {
		return nil
	}
	posts := sh.entries[i].posts
	for j, p := range posts {
		if p.RecordKey == recordKey {
			sh.entries[i].posts = append(posts[:j], posts[j+1:]...)
			break
		}
	}
	if len(sh.entries[i].posts) == 0 {
		sh.entries = append(sh.entries[:i], sh.entries[i+1:]...)
	}
	return nil
}

// DropField discards a field's entire shard, used when the index owning
// the shard is dropped.
func (s *Storage) DropField(field string) {
	s.mu.Lock()
	delete(s.shards, field)
	s.mu.Unlock()

	s.statsMu.Lock()
	delete(s.queryStats, field)
	s.statsMu.Unlock()
}

// LookupExact returns every record key indexed under field=val, bumping the
// access stats of each posting it serves.
func (s *Storage) LookupExact(field string, val value.Value) ([]string, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.IndexLookupDuration, "exact")
	s.recordQuery(field, "exact")

	encoded, err := keycodec.EncodeValue(nil, val)
	if err != nil {
		return nil, err
	}
	sh := s.shardFor(field)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	i := sort.Search(len(sh.entries), func(i int) bool {
		return bytesCompare(sh.entries[i].key, encoded) >= 0
	})
	if i >= len(sh.entries) || bytesCompare(sh.entries[i].key, encoded) != 0 {
		return nil, nil
	}
	now := time.Now().UnixNano()
	posts := sh.entries[i].posts
	out := make([]string, len(posts))
	for j := range posts {
		atomic.AddUint64(&posts[j].AccessCount, 1)
		atomic.StoreInt64(&posts[j].LastAccessed, now)
		out[j] = posts[j].RecordKey
	}
	return out, nil
}

// LookupPrefix returns every record key indexed under a field value
// string-prefixed by prefix (field must hold string values).
func (s *Storage) LookupPrefix(field, prefix string) ([]string, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.IndexLookupDuration, "prefix")
	s.recordQuery(field, "prefix")

	start, end := keycodec.EncodePrefixRange(append([]byte{tagPrefixString}, prefix...))
	return s.scanRange(field, start, end)
}

// tagPrefixString mirrors keycodec's internal string tag so a raw prefix
// comparison against the encoded string bytes lines up; duplicated here
// rather than exported from keycodec to keep that package's tags private.
const tagPrefixString = 4

// LookupRange returns every record key indexed under a field value in
// [low, high) (both encoded the same way as Insert).
func (s *Storage) LookupRange(field string, low, high value.Value) ([]string, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.IndexLookupDuration, "range")
	s.recordQuery(field, "range")

	lowEnc, err := keycodec.EncodeValue(nil, low)
	if err != nil {
		return nil, err
	}
	highEnc, err := keycodec.EncodeValue(nil, high)
	if err != nil {
		return nil, err
	}
	return s.scanRange(field, lowEnc, highEnc)
}

func (s *Storage) scanRange(field string, start, end []byte) ([]string, error) {
	sh := s.shardFor(field)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	i := sort.Search(len(sh.entries), func(i int) bool {
		return bytesCompare(sh.entries[i].key, start) >= 0
	})
	var out []string
	for ; i < len(sh.entries) && bytesCompare(sh.entries[i].key, end) < 0; i++ {
		for _, p := range sh.entries[i].posts {
			out = append(out, p.RecordKey)
		}
	}
	return out, nil
}

func bytesCompare(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
