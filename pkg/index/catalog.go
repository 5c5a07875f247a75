// Package index implements the secondary-index subsystem: a persisted
// metadata catalog describing which fields are indexed, and a concurrent
// in-memory index structure that serves exact/prefix/range lookups and is
// kept consistent with vertex/edge mutations by the index updater.
package index

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/cuemby/graphd/pkg/kvstore"
)

// Status is the lifecycle state of an index definition.
type Status string

const (
	StatusCreating Status = "Creating"
	StatusActive   Status = "Active"
	StatusDropped  Status = "Dropped"
	StatusFailed   Status = "Failed"
)

// Kind distinguishes whether an index definition covers a vertex tag or an
// edge type.
type Kind string

const (
	KindVertex Kind = "vertex"
	KindEdge   Kind = "edge"
)

// Definition is a persisted index metadata record. ID is the stable handle
// used in storage keys; Seq is a monotonic per-catalog sequence number drawn
// from the persisted index_counter table, so definitions created later always
// carry a larger Seq even across restarts.
type Definition struct {
	ID      string   `json:"id"`
	Seq     uint32   `json:"seq"`
	SpaceID uint32   `json:"space_id"`
	Name    string   `json:"name"`
	Kind    Kind     `json:"kind"`
	Owner   string   `json:"owner"` // tag name or edge type name
	Fields  []string `json:"fields"`
	Status  Status   `json:"status"`
	Version uint64   `json:"version"`
}

var (
	ErrNotFound         = errors.New("index: not found")
	ErrNameExists       = errors.New("index: name already exists")
	ErrInvalidParameter = errors.New("index: invalid parameter")
)

// Catalog persists index definitions in the index_metadata table. It keeps
// no in-memory state: Create rejects a duplicate name by listing the
// space's persisted definitions.
type Catalog struct {
	store *kvstore.Store
}

func NewCatalog(store *kvstore.Store) *Catalog {
	return &Catalog{store: store}
}

func catalogKey(spaceID uint32, id string) []byte {
	b := make([]byte, 0, 4+len(id))
	b = append(b, byte(spaceID>>24), byte(spaceID>>16), byte(spaceID>>8), byte(spaceID))
	return append(b, id...)
}

// Create registers a new index definition in Creating status and returns
// its generated id. The caller (index updater) is responsible for
// transitioning it to Active once the backfill completes, or Failed if it
// does not.
func (c *Catalog) Create(spaceID uint32, name string, kind Kind, owner string, fields []string) (*Definition, error) {
	if name == "" || owner == "" || len(fields) == 0 {
		return nil, ErrInvalidParameter
	}
	existing, err := c.List(spaceID)
	if err != nil {
		return nil, err
	}
	for _, d := range existing {
		if d.Name == name && d.Status != StatusDropped {
			return nil, ErrNameExists
		}
	}

	seq, err := c.nextSeq()
	if err != nil {
		return nil, err
	}

	def := &Definition{
		ID:      uuid.NewString(),
		Seq:     seq,
		SpaceID: spaceID,
		Name:    name,
		Kind:    kind,
		Owner:   owner,
		Fields:  append([]string(nil), fields...),
		Status:  StatusCreating,
		Version: 1,
	}
	if err := c.save(def); err != nil {
		return nil, err
	}
	return def, nil
}

var counterKey = []byte("next_index_id")

// nextSeq reads, increments and persists the catalog's monotonic id
// counter, stored little-endian in the index_counter table so the on-disk
// format stays inspectable with plain tooling.
func (c *Catalog) nextSeq() (uint32, error) {
	var next uint32 = 1
	data, err := c.store.Get(kvstore.TableIndexCounter, counterKey)
	if err == nil && len(data) == 4 {
		next = uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
	} else if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		return 0, fmt.Errorf("index: read id counter: %w", err)
	}

	after := next + 1
	buf := []byte{byte(after), byte(after >> 8), byte(after >> 16), byte(after >> 24)}
	if err := c.store.Put(kvstore.TableIndexCounter, counterKey, buf); err != nil {
		return 0, fmt.Errorf("index: bump id counter: %w", err)
	}
	return next, nil
}

func (c *Catalog) save(def *Definition) error {
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("index: marshal definition: %w", err)
	}
	if err := c.store.Put(kvstore.TableIndexMetadata, catalogKey(def.SpaceID, def.ID), data); err != nil {
		return fmt.Errorf("index: put definition: %w", err)
	}
	return nil
}

// Get reads a single index definition by id.
func (c *Catalog) Get(spaceID uint32, id string) (*Definition, error) {
	data, err := c.store.Get(kvstore.TableIndexMetadata, catalogKey(spaceID, id))
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("index: get definition: %w", err)
	}
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("index: unmarshal definition: %w", err)
	}
	return &def, nil
}

// List returns every index definition registered for a space, including
// dropped/failed ones (callers filter by Status as needed).
func (c *Catalog) List(spaceID uint32) ([]*Definition, error) {
	prefix := []byte{byte(spaceID >> 24), byte(spaceID >> 16), byte(spaceID >> 8), byte(spaceID)}
	start := prefix
	end := append(append([]byte(nil), prefix...), 0xFF)

	var defs []*Definition
	err := c.store.ScanRange(kvstore.TableIndexMetadata, start, end, func(_, v []byte) bool {
		var def Definition
		if err := json.Unmarshal(v, &def); err == nil {
			defs = append(defs, &def)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("index: scan definitions: %w", err)
	}
	return defs, nil
}

// Activate transitions a Creating index to Active once its backfill has
// completed, bumping Version as every status transition does. The query cache
// keeps its own per-index version and does not read this field.
func (c *Catalog) Activate(spaceID uint32, id string) error {
	return c.transition(spaceID, id, StatusActive)
}

// Fail transitions an index to Failed, e.g. when backfill errors out.
func (c *Catalog) Fail(spaceID uint32, id string) error {
	return c.transition(spaceID, id, StatusFailed)
}

// Drop transitions an index to Dropped; the index updater stops
// maintaining it and the in-memory structure discards its entries.
func (c *Catalog) Drop(spaceID uint32, id string) error {
	return c.transition(spaceID, id, StatusDropped)
}

func (c *Catalog) transition(spaceID uint32, id string, status Status) error {
	def, err := c.Get(spaceID, id)
	if err != nil {
		return err
	}
	def.Status = status
	def.Version++
	return c.save(def)
}
