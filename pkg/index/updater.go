package index

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cuemby/graphd/pkg/graph"
	"github.com/cuemby/graphd/pkg/keycodec"
	"github.com/cuemby/graphd/pkg/kvstore"
	"github.com/cuemby/graphd/pkg/log"
	"github.com/cuemby/graphd/pkg/value"
)

// reverseKey identifies one posting the updater placed into Storage, so a
// later delete can remove the exact (field, value) pair without the caller
// having to remember what it originally indexed. seq addresses the posting's
// durable index_data record.
type reverseKey struct {
	indexName string
	seq       uint32
	field     string
	value     value.Value
}

// Updater keeps the index postings consistent with vertex and edge
// mutations, driven by the Active definitions in Catalog: list the space's
// indexes, match by owning tag/edge type, project the indexed fields out of
// the mutated record, then insert or delete the resulting postings. Every
// posting lands in two places: the in-memory Storage that serves lookups,
// and the durable index_data table, from which Restore rebuilds Storage on
// startup.
type Updater struct {
	catalog *Catalog
	storage *Storage
	cache   *Cache // optional; nil disables query-result caching

	mu      sync.Mutex
	reverse map[string][]reverseKey // "space:recordKey" -> postings placed for it
}

func NewUpdater(catalog *Catalog, storage *Storage) *Updater {
	return &Updater{catalog: catalog, storage: storage, reverse: make(map[string][]reverseKey)}
}

// SetCache attaches a query-result cache; every index the updater writes
// through gets its cached results invalidated.
func (u *Updater) SetCache(c *Cache) { u.cache = c }

func (u *Updater) invalidate(indexName string) {
	if u.cache != nil {
		u.cache.Invalidate(indexName)
	}
}

// CachedExactLookup serves an exact lookup through the query-result cache
// when one is attached, falling back to (and re-priming from) the index
// storage on a miss.
func (u *Updater) CachedExactLookup(spaceID uint32, indexName, field string, v value.Value) ([]string, error) {
	encoded, err := keycodec.EncodeValue(nil, v)
	if err != nil {
		return nil, err
	}
	if u.cache != nil {
		if recs, ok := u.cache.Get(indexName, field, encoded); ok {
			return recs, nil
		}
	}
	recs, err := u.storage.LookupExact(shardField(spaceID, indexName, field), v)
	if err != nil {
		return nil, err
	}
	if u.cache != nil {
		u.cache.Put(indexName, field, encoded, recs)
	}
	return recs, nil
}

func recordKeyFor(spaceID uint32, id string) string { return fmt.Sprintf("%d:%s", spaceID, id) }

// shardField namespaces a Storage shard by space and index name so that
// two different index definitions indexing a field of the same name never
// collide in Storage, which shards purely by field name.
func shardField(spaceID uint32, indexName, field string) string {
	return fmt.Sprintf("%d:%s:%s", spaceID, indexName, field)
}

// indexDataKey is the durable posting key: [space_id(4 LE) | index_id(4 LE)
// | encoded_field_value], so a prefix scan over the first eight bytes
// isolates one index in one space.
func indexDataKey(spaceID, seq uint32, encoded []byte) []byte {
	b := make([]byte, 8, 8+len(encoded))
	binary.LittleEndian.PutUint32(b[:4], spaceID)
	binary.LittleEndian.PutUint32(b[4:8], seq)
	return append(b, encoded...)
}

func indexDataPrefix(spaceID, seq uint32) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[:4], spaceID)
	binary.LittleEndian.PutUint32(b[4:8], seq)
	return b
}

// persistedPosting is one element of an index_data value: which field of
// the definition produced the posting and which record it points back to.
// The field name rides in the value because two fields of one index can
// encode the same bytes and then share one index_data key.
type persistedPosting struct {
	Field  string `json:"field"`
	Record string `json:"record"`
}

// persistPosting appends a posting to the durable index_data entry for
// (spaceID, seq, encoded value).
func (u *Updater) persistPosting(spaceID, seq uint32, encoded []byte, field, recordKey string) error {
	key := indexDataKey(spaceID, seq, encoded)
	postings, err := u.readPostings(key)
	if err != nil {
		return err
	}
	for _, p := range postings {
		if p.Field == field && p.Record == recordKey {
			return nil
		}
	}
	postings = append(postings, persistedPosting{Field: field, Record: recordKey})
	return u.writePostings(key, postings)
}

// unpersistPosting removes a posting from its durable entry, deleting the
// entry outright when the last posting goes.
func (u *Updater) unpersistPosting(spaceID, seq uint32, encoded []byte, field, recordKey string) error {
	key := indexDataKey(spaceID, seq, encoded)
	postings, err := u.readPostings(key)
	if err != nil {
		return err
	}
	kept := postings[:0]
	for _, p := range postings {
		if p.Field == field && p.Record == recordKey {
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == 0 {
		return u.catalog.store.Delete(kvstore.TableIndexData, key)
	}
	return u.writePostings(key, kept)
}

func (u *Updater) readPostings(key []byte) ([]persistedPosting, error) {
	data, err := u.catalog.store.Get(kvstore.TableIndexData, key)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("index: read postings: %w", err)
	}
	var postings []persistedPosting
	if err := json.Unmarshal(data, &postings); err != nil {
		return nil, fmt.Errorf("index: decode postings: %w", err)
	}
	return postings, nil
}

func (u *Updater) writePostings(key []byte, postings []persistedPosting) error {
	data, err := json.Marshal(postings)
	if err != nil {
		return fmt.Errorf("index: encode postings: %w", err)
	}
	if err := u.catalog.store.Put(kvstore.TableIndexData, key, data); err != nil {
		return fmt.Errorf("index: write postings: %w", err)
	}
	return nil
}

// UpdateVertexIndexes maintains every Active vertex-tag index touched by
// vertex's tags: for each index whose Owner names one of the vertex's
// tags, it projects out the indexed fields present in that tag's
// properties and places a posting for each.
func (u *Updater) UpdateVertexIndexes(spaceID uint32, vid graph.VID, tags []graph.Tag) error {
	defs, err := u.catalog.List(spaceID)
	if err != nil {
		return err
	}
	for _, def := range defs {
		if def.Status != StatusActive || def.Kind != KindVertex {
			continue
		}
		for _, tag := range tags {
			if tag.Name != def.Owner {
				continue
			}
			if err := u.placePostings(spaceID, def, string(vid), tag.Properties); err != nil {
				return fmt.Errorf("index: update vertex index %s: %w", def.Name, err)
			}
		}
	}
	return nil
}

// DeleteVertexIndexes removes every posting previously placed for vid
// across all vertex indexes, using the updater's reverse index so the
// caller doesn't need to remember which fields were indexed.
func (u *Updater) DeleteVertexIndexes(spaceID uint32, vid graph.VID) error {
	return u.deletePostings(spaceID, string(vid))
}

// DeleteTagIndexes removes postings placed for one tag of vid, leaving the
// vertex's other tags' postings intact.
func (u *Updater) DeleteTagIndexes(spaceID uint32, vid graph.VID, tagName string) error {
	defs, err := u.catalog.List(spaceID)
	if err != nil {
		return err
	}
	tagIndexNames := make(map[string]bool)
	for _, def := range defs {
		if def.Kind == KindVertex && def.Owner == tagName {
			tagIndexNames[def.Name] = true
		}
	}

	recordKey := string(vid)
	reverseID := recordKeyFor(spaceID, recordKey)

	u.mu.Lock()
	remaining := u.reverse[reverseID][:0]
	var toRemove []reverseKey
	for _, p := range u.reverse[reverseID] {
		if tagIndexNames[p.indexName] {
			toRemove = append(toRemove, p)
		} else {
			remaining = append(remaining, p)
		}
	}
	u.reverse[reverseID] = remaining
	u.mu.Unlock()

	for _, p := range toRemove {
		if err := u.removePosting(spaceID, p, recordKey); err != nil {
			return fmt.Errorf("index: delete tag index %s: %w", p.indexName, err)
		}
	}
	return nil
}

// UpdateEdgeIndexes maintains every Active edge-type index whose Owner
// matches edge.EdgeType.
func (u *Updater) UpdateEdgeIndexes(spaceID uint32, edge *graph.Edge) error {
	defs, err := u.catalog.List(spaceID)
	if err != nil {
		return err
	}
	for _, def := range defs {
		if def.Status != StatusActive || def.Kind != KindEdge || def.Owner != edge.EdgeType {
			continue
		}
		if err := u.placePostings(spaceID, def, edge.EdgeKey.String(), edge.Properties); err != nil {
			return fmt.Errorf("index: update edge index %s: %w", def.Name, err)
		}
	}
	return nil
}

// DeleteEdgeIndexes removes every posting previously placed for edge.
func (u *Updater) DeleteEdgeIndexes(spaceID uint32, edge *graph.Edge) error {
	return u.deletePostings(spaceID, edge.EdgeKey.String())
}

func (u *Updater) deletePostings(spaceID uint32, recordKey string) error {
	reverseID := recordKeyFor(spaceID, recordKey)

	u.mu.Lock()
	postings := u.reverse[reverseID]
	delete(u.reverse, reverseID)
	u.mu.Unlock()

	for _, p := range postings {
		if err := u.removePosting(spaceID, p, recordKey); err != nil {
			return fmt.Errorf("index: delete from index %s: %w", p.indexName, err)
		}
	}
	return nil
}

// removePosting drops one posting from both the in-memory shard and its
// durable index_data entry.
func (u *Updater) removePosting(spaceID uint32, p reverseKey, recordKey string) error {
	if err := u.storage.Delete(shardField(spaceID, p.indexName, p.field), p.value, recordKey); err != nil {
		return err
	}
	encoded, err := keycodec.EncodeValue(nil, p.value)
	if err != nil {
		return err
	}
	if err := u.unpersistPosting(spaceID, p.seq, encoded, p.field, recordKey); err != nil {
		return err
	}
	u.invalidate(p.indexName)
	return nil
}

// RecordScanner is the slice of the storage engine Backfill needs to read
// the records an index must cover. Satisfied by *storage.Engine.
type RecordScanner interface {
	ScanVerticesByTag(spaceID uint32, tag string) ([]*graph.Vertex, error)
	GetEdgesByType(spaceID uint32, edgeType string) ([]*graph.Edge, error)
}

// Backfill populates a Creating index from the records already in the
// store, then transitions it to Active. On any storage error the index is
// transitioned to Failed instead and the error returned.
func (u *Updater) Backfill(store RecordScanner, spaceID uint32, id string) error {
	def, err := u.catalog.Get(spaceID, id)
	if err != nil {
		return err
	}
	if def.Status != StatusCreating {
		return fmt.Errorf("index: backfill %s: status is %s, want %s: %w", def.Name, def.Status, StatusCreating, ErrInvalidParameter)
	}

	if err := u.backfillRecords(store, spaceID, def); err != nil {
		log.WithIndex(spaceID, def.Name).Error().Err(err).Msg("index backfill failed")
		if failErr := u.catalog.Fail(spaceID, id); failErr != nil {
			return fmt.Errorf("index: backfill %s failed (%w), and marking Failed also failed: %v", def.Name, err, failErr)
		}
		return fmt.Errorf("index: backfill %s: %w", def.Name, err)
	}
	u.invalidate(def.Name)
	log.WithIndex(spaceID, def.Name).Debug().Msg("index backfill complete")
	return u.catalog.Activate(spaceID, id)
}

func (u *Updater) backfillRecords(store RecordScanner, spaceID uint32, def *Definition) error {
	switch def.Kind {
	case KindVertex:
		vertices, err := store.ScanVerticesByTag(spaceID, def.Owner)
		if err != nil {
			return err
		}
		for _, v := range vertices {
			tag, ok := v.TagByName(def.Owner)
			if !ok {
				continue
			}
			if err := u.placePostings(spaceID, def, string(v.VID), tag.Properties); err != nil {
				return err
			}
		}
	case KindEdge:
		edges, err := store.GetEdgesByType(spaceID, def.Owner)
		if err != nil {
			return err
		}
		for _, e := range edges {
			if err := u.placePostings(spaceID, def, e.EdgeKey.String(), e.Properties); err != nil {
				return err
			}
		}
	}
	return nil
}

// placePostings inserts one posting per indexed field present in props,
// both in memory and durably, and records each in the reverse index so
// later deletes find them.
func (u *Updater) placePostings(spaceID uint32, def *Definition, recordKey string, props map[string]any) error {
	reverseID := recordKeyFor(spaceID, recordKey)
	var placed []reverseKey
	for _, field := range def.Fields {
		raw, ok := props[field]
		if !ok {
			continue
		}
		v := toValue(raw)
		if err := u.storage.Insert(shardField(spaceID, def.Name, field), v, recordKey); err != nil {
			return err
		}
		encoded, err := keycodec.EncodeValue(nil, v)
		if err != nil {
			return err
		}
		if err := u.persistPosting(spaceID, def.Seq, encoded, field, recordKey); err != nil {
			return err
		}
		placed = append(placed, reverseKey{indexName: def.Name, seq: def.Seq, field: field, value: v})
	}
	if len(placed) > 0 {
		u.invalidate(def.Name)
	}
	u.mu.Lock()
	u.reverse[reverseID] = append(u.reverse[reverseID], placed...)
	u.mu.Unlock()
	return nil
}

// Restore rebuilds the in-memory Storage and the reverse index from the
// durable index_data table, called once at startup before the engine
// serves lookups. Postings of indexes that are no longer Active are left
// on disk but not loaded.
func (u *Updater) Restore() error {
	defsBySpace := make(map[uint32]map[uint32]*Definition)

	var restoreErr error
	scanErr := u.catalog.store.ScanRange(kvstore.TableIndexData, []byte{}, nil, func(k, v []byte) bool {
		if len(k) < 8 {
			return true
		}
		spaceID := binary.LittleEndian.Uint32(k[:4])
		seq := binary.LittleEndian.Uint32(k[4:8])

		defs, ok := defsBySpace[spaceID]
		if !ok {
			listed, err := u.catalog.List(spaceID)
			if err != nil {
				restoreErr = err
				return false
			}
			defs = make(map[uint32]*Definition, len(listed))
			for _, d := range listed {
				defs[d.Seq] = d
			}
			defsBySpace[spaceID] = defs
		}
		def, ok := defs[seq]
		if !ok || def.Status != StatusActive {
			return true
		}

		decoded, _, err := keycodec.DecodeValue(k[8:])
		if err != nil {
			restoreErr = fmt.Errorf("index: restore: decode key for %s: %w", def.Name, err)
			return false
		}
		var postings []persistedPosting
		if err := json.Unmarshal(v, &postings); err != nil {
			restoreErr = fmt.Errorf("index: restore: decode postings for %s: %w", def.Name, err)
			return false
		}

		for _, p := range postings {
			if err := u.storage.Insert(shardField(spaceID, def.Name, p.Field), decoded, p.Record); err != nil {
				restoreErr = err
				return false
			}
			reverseID := recordKeyFor(spaceID, p.Record)
			u.mu.Lock()
			u.reverse[reverseID] = append(u.reverse[reverseID], reverseKey{
				indexName: def.Name, seq: seq, field: p.Field, value: decoded,
			})
			u.mu.Unlock()
		}
		return true
	})
	if scanErr != nil {
		return scanErr
	}
	return restoreErr
}

// DropIndex removes an index's postings from memory and from the durable
// index_data table, after the catalog has transitioned it to Dropped.
func (u *Updater) DropIndex(spaceID uint32, def *Definition) error {
	for _, field := range def.Fields {
		u.storage.DropField(shardField(spaceID, def.Name, field))
	}

	prefix := indexDataPrefix(spaceID, def.Seq)
	end := append(append([]byte(nil), prefix...), 0xFF)
	var keys [][]byte
	err := u.catalog.store.ScanRange(kvstore.TableIndexData, prefix, end, func(k, _ []byte) bool {
		keys = append(keys, append([]byte(nil), k...))
		return true
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := u.catalog.store.Delete(kvstore.TableIndexData, k); err != nil {
			return err
		}
	}

	u.mu.Lock()
	for reverseID, postings := range u.reverse {
		kept := postings[:0]
		for _, p := range postings {
			if p.indexName != def.Name {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			delete(u.reverse, reverseID)
		} else {
			u.reverse[reverseID] = kept
		}
	}
	u.mu.Unlock()

	u.invalidate(def.Name)
	return nil
}

// toValue adapts the plain `any` properties vertex/edge records carry into
// the value.Value the index Storage and Catalog operate on.
func toValue(v any) value.Value {
	switch t := v.(type) {
	case value.Value:
		return t
	case string:
		return value.String(t)
	case int64:
		return value.Int(t)
	case int:
		return value.Int(int64(t))
	case float64:
		return value.Float(t)
	case bool:
		return value.Bool(t)
	default:
		return value.Null()
	}
}

// Batch collects a set of index mutations arising from one DML operation
// (e.g. replacing a vertex's tags) and applies every delete before any
// insert when committed: without that ordering, an update that changes a
// field's value could transiently leave both the old and new postings
// visible to a concurrent lookup.
type Batch struct {
	u       *Updater
	deletes []func() error
	inserts []func() error
}

func (u *Updater) NewBatch() *Batch { return &Batch{u: u} }

func (b *Batch) DeleteVertex(spaceID uint32, vid graph.VID) {
	b.deletes = append(b.deletes, func() error { return b.u.DeleteVertexIndexes(spaceID, vid) })
}

func (b *Batch) UpdateVertex(spaceID uint32, vid graph.VID, tags []graph.Tag) {
	b.inserts = append(b.inserts, func() error { return b.u.UpdateVertexIndexes(spaceID, vid, tags) })
}

func (b *Batch) DeleteEdge(spaceID uint32, edge *graph.Edge) {
	b.deletes = append(b.deletes, func() error { return b.u.DeleteEdgeIndexes(spaceID, edge) })
}

func (b *Batch) UpdateEdge(spaceID uint32, edge *graph.Edge) {
	b.inserts = append(b.inserts, func() error { return b.u.UpdateEdgeIndexes(spaceID, edge) })
}

// Commit applies every queued delete, then every queued insert, stopping
// at the first error.
func (b *Batch) Commit() error {
	for _, op := range b.deletes {
		if err := op(); err != nil {
			return err
		}
	}
	for _, op := range b.inserts {
		if err := op(); err != nil {
			return err
		}
	}
	return nil
}
