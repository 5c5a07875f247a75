// Package kvstore implements the ordered keyed-store abstraction the rest of
// the engine is built on: named tables of raw bytes keyed by raw bytes, with
// range scans over the byte ordering and single-writer transactions. It is
// backed by an embedded bbolt database, one bucket per logical table.
package kvstore

import (
	"errors"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

// Table names for the tables named in the storage file format: vertex and
// edge records, the two secondary adjacency structures the storage engine
// maintains as invariants, and the index subsystem's metadata/data/counter
// tables.
var (
	TableVertex        = []byte("vertex")
	TableEdge          = []byte("edge")
	TableNodeEdgeIndex = []byte("node_edge_index")
	TableEdgeTypeIndex = []byte("edge_type_index")
	TableIndexMetadata = []byte("index_metadata")
	TableIndexData     = []byte("index_data")
	TableIndexCounter  = []byte("index_counter")

	allTables = [][]byte{
		TableVertex, TableEdge, TableNodeEdgeIndex, TableEdgeTypeIndex,
		TableIndexMetadata, TableIndexData, TableIndexCounter,
	}
)

// ErrNotFound is returned by Get when the key does not exist in the table.
var ErrNotFound = errors.New("kvstore: key not found")

// DbError wraps failures from the underlying embedded database.
type DbError struct{ Err error }

func (e *DbError) Error() string { return fmt.Sprintf("kvstore: db error: %v", e.Err) }
func (e *DbError) Unwrap() error { return e.Err }

// SerializeError wraps encode/decode failures of stored values.
type SerializeError struct{ Err error }

func (e *SerializeError) Error() string { return fmt.Sprintf("kvstore: serialize error: %v", e.Err) }
func (e *SerializeError) Unwrap() error { return e.Err }

// Store is the ordered keyed-store abstraction. All methods are safe for
// concurrent use; bbolt itself serializes writers and allows many
// concurrent readers against a consistent snapshot.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the embedded database file under
// dataDir and ensures every named table exists.
func Open(dataDir string) (*Store, error) {
	path := filepath.Join(dataDir, "graphd.db")
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, &DbError{err}
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, table := range allTables {
			if _, err := tx.CreateBucketIfNotExists(table); err != nil {
				return fmt.Errorf("create table %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, &DbError{err}
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return &DbError{err}
	}
	return nil
}

// Get reads a single key from table. Returns ErrNotFound if absent.
func (s *Store) Get(table, key []byte) ([]byte, error) {
	var val []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(table)
		v := b.Get(key)
		if v == nil {
			return ErrNotFound
		}
		val = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &DbError{err}
	}
	return val, nil
}

// Put writes a single key/value pair in its own transaction.
func (s *Store) Put(table, key, val []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(table).Put(key, val)
	})
	if err != nil {
		return &DbError{err}
	}
	return nil
}

// Delete removes a key in its own transaction. Deleting an absent key is a
// no-op, matching bbolt semantics.
func (s *Store) Delete(table, key []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(table).Delete(key)
	})
	if err != nil {
		return &DbError{err}
	}
	return nil
}

// ScanRange calls fn for every key in [start, end) of table, in ascending
// byte order, stopping early if fn returns false. This is the primitive
// EncodePrefixRange/EncodeRange results are driven through.
func (s *Store) ScanRange(table, start, end []byte, fn func(key, val []byte) bool) error {
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(table).Cursor()
		for k, v := c.Seek(start); k != nil && bytesLess(k, end); k, v = c.Next() {
			if !fn(k, v) {
				break
			}
		}
		return nil
	})
	if err != nil {
		return &DbError{err}
	}
	return nil
}

func bytesLess(a, b []byte) bool {
	if b == nil {
		return true
	}
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// Tx is a single-writer transaction spanning multiple tables, matching the
// keyed-store abstraction's "single-writer transactions" requirement: all
// mutations inside Update are committed atomically.
type Tx struct {
	tx *bolt.Tx
}

// Update runs fn inside one read-write transaction across all tables. If fn
// returns an error, every mutation performed through the Tx is rolled back.
func (s *Store) Update(fn func(tx *Tx) error) error {
	err := s.db.Update(func(btx *bolt.Tx) error {
		return fn(&Tx{tx: btx})
	})
	if err != nil {
		return &DbError{err}
	}
	return nil
}

// View runs fn inside one read-only transaction across all tables,
// observing a single consistent snapshot.
func (s *Store) View(fn func(tx *Tx) error) error {
	err := s.db.View(func(btx *bolt.Tx) error {
		return fn(&Tx{tx: btx})
	})
	if err != nil {
		return &DbError{err}
	}
	return nil
}

func (t *Tx) Get(table, key []byte) ([]byte, error) {
	v := t.tx.Bucket(table).Get(key)
	if v == nil {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (t *Tx) Put(table, key, val []byte) error {
	return t.tx.Bucket(table).Put(key, val)
}

func (t *Tx) Delete(table, key []byte) error {
	return t.tx.Bucket(table).Delete(key)
}

func (t *Tx) ScanRange(table, start, end []byte, fn func(key, val []byte) bool) {
	c := t.tx.Bucket(table).Cursor()
	for k, v := c.Seek(start); k != nil && bytesLess(k, end); k, v = c.Next() {
		if !fn(k, v) {
			break
		}
	}
}
