// Package storage implements the storage engine (vertex/edge CRUD,
// adjacency maintenance, cascade delete) on top of the ordered keyed
// store, one db.Update/db.View closure per operation.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/graphd/pkg/graph"
	"github.com/cuemby/graphd/pkg/kvstore"
	"github.com/cuemby/graphd/pkg/log"
)

// Sentinel errors for the storage error taxonomy.
var (
	ErrNodeNotFound = errors.New("storage: vertex not found")
	ErrEdgeNotFound = errors.New("storage: edge not found")
)

// Engine is the storage engine: it owns no in-memory state beyond the
// underlying store handle, so every read sees the latest committed data.
type Engine struct {
	store  *kvstore.Store
	logger zerolog.Logger
}

// vertexRecord and edgeRecord are the on-disk JSON payloads; tags/props
// use map[string]any so arbitrary property schemas round-trip without a
// generated codec.
type vertexRecord struct {
	VID  graph.VID   `json:"vid"`
	Tags []graph.Tag `json:"tags"`
}

type edgeRecord struct {
	EdgeType   string         `json:"edge_type"`
	Ranking    int64          `json:"ranking"`
	Src        graph.VID      `json:"src"`
	Dst        graph.VID      `json:"dst"`
	Properties map[string]any `json:"properties"`
}

// New constructs a storage engine over an already-open kvstore.Store.
func New(store *kvstore.Store) *Engine {
	return &Engine{
		store:  store,
		logger: log.WithComponent("storage"),
	}
}

// UpsertVertex writes a vertex record, replacing any existing tags for the
// same vid. It does not touch adjacency structures since vertex identity
// alone carries no edges.
func (e *Engine) UpsertVertex(spaceID uint32, v *graph.Vertex) error {
	rec := vertexRecord{VID: v.VID, Tags: v.Tags}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("storage: marshal vertex: %w", err)
	}
	key := graph.VertexKey(spaceID, v.VID)
	if err := e.store.Put(kvstore.TableVertex, key, data); err != nil {
		return fmt.Errorf("storage: put vertex: %w", err)
	}
	return nil
}

// InsertVertex writes a new vertex record, assigning a generated vid when
// the caller left it unset.
func (e *Engine) InsertVertex(spaceID uint32, v *graph.Vertex) error {
	if v.VID == "" {
		v.VID = graph.VID(uuid.NewString())
	}
	return e.UpsertVertex(spaceID, v)
}

// UpdateVertex replaces an existing vertex's tags. Unlike UpsertVertex it
// requires the vertex to exist, failing with ErrNodeNotFound otherwise.
func (e *Engine) UpdateVertex(spaceID uint32, v *graph.Vertex) error {
	if _, err := e.GetVertex(spaceID, v.VID); err != nil {
		return err
	}
	return e.UpsertVertex(spaceID, v)
}

// GetVertex reads a vertex by id.
func (e *Engine) GetVertex(spaceID uint32, vid graph.VID) (*graph.Vertex, error) {
	data, err := e.store.Get(kvstore.TableVertex, graph.VertexKey(spaceID, vid))
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, ErrNodeNotFound
		}
		return nil, fmt.Errorf("storage: get vertex: %w", err)
	}
	var rec vertexRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("storage: unmarshal vertex: %w", err)
	}
	return &graph.Vertex{VID: rec.VID, Tags: rec.Tags}, nil
}

// DeleteVertex removes a vertex and cascades to every edge touching it,
// keeping node_edge_index and edge_type_index consistent with the edge
// table.
func (e *Engine) DeleteVertex(spaceID uint32, vid graph.VID) error {
	return e.store.Update(func(tx *kvstore.Tx) error {
		if _, err := tx.Get(kvstore.TableVertex, graph.VertexKey(spaceID, vid)); err != nil {
			if errors.Is(err, kvstore.ErrNotFound) {
				return ErrNodeNotFound
			}
			return err
		}

		var edgeKeySuffixes [][]byte
		prefix := graph.NodeEdgeIndexPrefix(spaceID, vid)
		start, end := prefixRange(prefix)
		tx.ScanRange(kvstore.TableNodeEdgeIndex, start, end, func(k, _ []byte) bool {
			suffix := append([]byte(nil), k[len(prefix):]...)
			edgeKeySuffixes = append(edgeKeySuffixes, suffix)
			return true
		})

		for _, suffix := range edgeKeySuffixes {
			if _, ek, err := graph.ParseEdgeKeyBytes(append(append([]byte(nil), uint32Bytes(spaceID)...), suffix...)); err == nil {
				if err := deleteEdgeLocked(tx, spaceID, ek); err != nil {
					return err
				}
			}
		}
		if len(edgeKeySuffixes) > 0 {
			e.logger.Warn().Str("vid", string(vid)).Int("edges", len(edgeKeySuffixes)).Msg("cascade delete removed incident edges")
		}

		return tx.Delete(kvstore.TableVertex, graph.VertexKey(spaceID, vid))
	})
}

// UpsertEdge writes an edge record and maintains both adjacency
// structures: node_edge_index entries for src and dst, and the
// edge_type_index entry for the edge's type.
func (e *Engine) UpsertEdge(spaceID uint32, ed *graph.Edge) error {
	rec := edgeRecord{
		EdgeType:   ed.EdgeType,
		Ranking:    ed.Ranking,
		Src:        ed.Src,
		Dst:        ed.Dst,
		Properties: ed.Properties,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("storage: marshal edge: %w", err)
	}
	edgeKey := graph.EdgeKeyBytes(spaceID, ed.EdgeKey)

	return e.store.Update(func(tx *kvstore.Tx) error {
		if err := tx.Put(kvstore.TableEdge, edgeKey, data); err != nil {
			return err
		}
		if err := tx.Put(kvstore.TableNodeEdgeIndex, graph.NodeEdgeIndexKey(spaceID, ed.Src, edgeKey), nil); err != nil {
			return err
		}
		if err := tx.Put(kvstore.TableNodeEdgeIndex, graph.NodeEdgeIndexKey(spaceID, ed.Dst, edgeKey), nil); err != nil {
			return err
		}
		return tx.Put(kvstore.TableEdgeTypeIndex, graph.EdgeTypeIndexKey(spaceID, ed.EdgeType, edgeKey), nil)
	})
}

// GetEdge reads a single edge by its full key.
func (e *Engine) GetEdge(spaceID uint32, k graph.EdgeKey) (*graph.Edge, error) {
	data, err := e.store.Get(kvstore.TableEdge, graph.EdgeKeyBytes(spaceID, k))
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, ErrEdgeNotFound
		}
		return nil, fmt.Errorf("storage: get edge: %w", err)
	}
	var rec edgeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("storage: unmarshal edge: %w", err)
	}
	return &graph.Edge{EdgeKey: k, Properties: rec.Properties}, nil
}

// DeleteEdge removes a single edge and its adjacency entries.
func (e *Engine) DeleteEdge(spaceID uint32, k graph.EdgeKey) error {
	return e.store.Update(func(tx *kvstore.Tx) error {
		return deleteEdgeLocked(tx, spaceID, k)
	})
}

func deleteEdgeLocked(tx *kvstore.Tx, spaceID uint32, k graph.EdgeKey) error {
	edgeKey := graph.EdgeKeyBytes(spaceID, k)
	if _, err := tx.Get(kvstore.TableEdge, edgeKey); err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := tx.Delete(kvstore.TableEdge, edgeKey); err != nil {
		return err
	}
	if err := tx.Delete(kvstore.TableNodeEdgeIndex, graph.NodeEdgeIndexKey(spaceID, k.Src, edgeKey)); err != nil {
		return err
	}
	if err := tx.Delete(kvstore.TableNodeEdgeIndex, graph.NodeEdgeIndexKey(spaceID, k.Dst, edgeKey)); err != nil {
		return err
	}
	return tx.Delete(kvstore.TableEdgeTypeIndex, graph.EdgeTypeIndexKey(spaceID, k.EdgeType, edgeKey))
}

// GetNodeEdges returns every edge touching vid, filtered by direction.
// DirBoth returns both outgoing and incoming edges, each exactly once.
func (e *Engine) GetNodeEdges(spaceID uint32, vid graph.VID, dir graph.Direction) ([]*graph.Edge, error) {
	prefix := graph.NodeEdgeIndexPrefix(spaceID, vid)
	start, end := prefixRange(prefix)

	var edges []*graph.Edge
	err := e.store.ScanRange(kvstore.TableNodeEdgeIndex, start, end, func(k, _ []byte) bool {
		suffix := k[len(prefix):]
		full := append(append([]byte(nil), uint32Bytes(spaceID)...), suffix...)
		_, ek, err := graph.ParseEdgeKeyBytes(full)
		if err != nil {
			return true
		}
		switch dir {
		case graph.DirOutgoing:
			if ek.Src != vid {
				return true
			}
		case graph.DirIncoming:
			if ek.Dst != vid {
				return true
			}
		}
		ed, gerr := e.GetEdge(spaceID, ek)
		if gerr != nil {
			return true
		}
		edges = append(edges, ed)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("storage: scan node edges: %w", err)
	}
	return edges, nil
}

// GetEdgesByType returns every edge of the given type in the space.
func (e *Engine) GetEdgesByType(spaceID uint32, edgeType string) ([]*graph.Edge, error) {
	prefix := graph.EdgeTypeIndexPrefix(spaceID, edgeType)
	start, end := prefixRange(prefix)

	var edges []*graph.Edge
	err := e.store.ScanRange(kvstore.TableEdgeTypeIndex, start, end, func(k, _ []byte) bool {
		suffix := k[len(prefix):]
		full := append(append([]byte(nil), uint32Bytes(spaceID)...), suffix...)
		_, ek, err := graph.ParseEdgeKeyBytes(full)
		if err != nil {
			return true
		}
		ed, gerr := e.GetEdge(spaceID, ek)
		if gerr != nil {
			return true
		}
		edges = append(edges, ed)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("storage: scan edges by type: %w", err)
	}
	return edges, nil
}

// ScanAllVertices returns every vertex in the space, in vid key order.
func (e *Engine) ScanAllVertices(spaceID uint32) ([]*graph.Vertex, error) {
	start, end := prefixRange(graph.VertexPrefix(spaceID))
	var out []*graph.Vertex
	err := e.store.ScanRange(kvstore.TableVertex, start, end, func(_, v []byte) bool {
		var rec vertexRecord
		if err := json.Unmarshal(v, &rec); err == nil {
			out = append(out, &graph.Vertex{VID: rec.VID, Tags: rec.Tags})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("storage: scan vertices: %w", err)
	}
	return out, nil
}

// ScanVerticesByTag returns every vertex in the space carrying the given
// tag. A full vertex scan with a tag filter: tag membership has no dedicated
// key structure, unlike edge types.
func (e *Engine) ScanVerticesByTag(spaceID uint32, tag string) ([]*graph.Vertex, error) {
	all, err := e.ScanAllVertices(spaceID)
	if err != nil {
		return nil, err
	}
	var out []*graph.Vertex
	for _, v := range all {
		if _, ok := v.TagByName(tag); ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// ScanAllEdges returns every edge in the space, in edge key order.
func (e *Engine) ScanAllEdges(spaceID uint32) ([]*graph.Edge, error) {
	start, end := prefixRange(graph.VertexPrefix(spaceID))
	var out []*graph.Edge
	err := e.store.ScanRange(kvstore.TableEdge, start, end, func(k, v []byte) bool {
		_, ek, perr := graph.ParseEdgeKeyBytes(k)
		if perr != nil {
			return true
		}
		var rec edgeRecord
		if err := json.Unmarshal(v, &rec); err == nil {
			out = append(out, &graph.Edge{EdgeKey: ek, Properties: rec.Properties})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("storage: scan edges: %w", err)
	}
	return out, nil
}

func prefixRange(prefix []byte) (start, end []byte) {
	start = prefix
	end = append(append([]byte(nil), prefix...), 0xFF)
	return start, end
}

func uint32Bytes(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}
