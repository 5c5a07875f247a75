// Package npath implements the shared-prefix linked path structure: an
// immutable cons-list where extending a path is O(1) and only
// converting it to a flat graph.Path walks the chain. Many in-flight BFS
// paths that share a prefix share the same parent nodes rather than each
// carrying their own copy of it.
package npath

import (
	"strconv"

	"github.com/cuemby/graphd/pkg/graph"
)

// NPath is one node of the path: the vertex reached, the edge that reached
// it (nil at the origin), and a link to the parent node. Length and hash
// are cached on construction so neither requires a chain walk.
type NPath struct {
	parent *NPath
	vertex *graph.Vertex
	edge   *graph.Edge // nil at the origin node
	length int
	hash   uint64
}

// New creates an origin path containing only vertex.
func New(vertex *graph.Vertex) *NPath {
	return &NPath{vertex: vertex, hash: computeHash(vertex.VID, nil, 0)}
}

// Extend returns a new path that follows edge from parent to vertex. O(1):
// it does not copy parent's chain, only links to it.
func Extend(parent *NPath, edge *graph.Edge, vertex *graph.Vertex) *NPath {
	return &NPath{
		parent: parent,
		vertex: vertex,
		edge:   edge,
		length: parent.length + 1,
		hash:   computeHash(vertex.VID, edge, parent.hash),
	}
}

func computeHash(vid graph.VID, edge *graph.Edge, parentHash uint64) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := parentHash
	if h == 0 {
		h = offset64
	}
	mix := func(s string) {
		for i := 0; i < len(s); i++ {
			h ^= uint64(s[i])
			h *= prime64
		}
	}
	mix(string(vid))
	if edge != nil {
		mix(edge.EdgeType)
		mix(string(edge.Src))
		mix(string(edge.Dst))
		mix(strconv.FormatInt(edge.Ranking, 10))
	}
	return h
}

// Len reports the number of edges in the path (0 for an origin path).
func (p *NPath) Len() int { return p.length }

// IsEmpty reports whether the path contains only its origin vertex.
func (p *NPath) IsEmpty() bool { return p.length == 0 }

// Vertex returns the vertex this node represents.
func (p *NPath) Vertex() *graph.Vertex { return p.vertex }

// Edge returns the edge that reached this node, or nil at the origin.
func (p *NPath) Edge() *graph.Edge { return p.edge }

// Parent returns the previous node in the chain, or nil at the origin.
func (p *NPath) Parent() *NPath { return p.parent }

// Hash returns the path's cached content hash.
func (p *NPath) Hash() uint64 { return p.hash }

// StartVertex walks to the origin and returns its vertex.
func (p *NPath) StartVertex() *graph.Vertex {
	cur := p
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur.vertex
}

// EndVertex returns the current (terminal) vertex, i.e. p.Vertex().
func (p *NPath) EndVertex() *graph.Vertex { return p.vertex }

// ContainsVertex walks the parent chain looking for vid. O(length); cheap
// in practice because path searches bound their step count.
func (p *NPath) ContainsVertex(vid graph.VID) bool {
	for cur := p; cur != nil; cur = cur.parent {
		if cur.vertex.VID == vid {
			return true
		}
	}
	return false
}

// ContainsEdge reports whether the exact edge key already appears along the
// path. Self-loop dedup compares the full key, ranking included, so two
// parallel self-loops with different rankings stay distinct.
func (p *NPath) ContainsEdge(key graph.EdgeKey) bool {
	for cur := p; cur != nil; cur = cur.parent {
		if cur.edge != nil && cur.edge.EdgeKey == key {
			return true
		}
	}
	return false
}

// HasCommonVertex reports whether a and b share any vertex, walking both
// chains and comparing via a set.
func HasCommonVertex(a, b *NPath) bool {
	seen := make(map[graph.VID]struct{})
	for cur := a; cur != nil; cur = cur.parent {
		seen[cur.vertex.VID] = struct{}{}
	}
	for cur := b; cur != nil; cur = cur.parent {
		if _, ok := seen[cur.vertex.VID]; ok {
			return true
		}
	}
	return false
}

// VertexIDs returns every vertex id from origin to this node, in order.
func (p *NPath) VertexIDs() []graph.VID {
	ids := make([]graph.VID, p.length+1)
	cur := p
	for i := p.length; i >= 0; i-- {
		ids[i] = cur.vertex.VID
		cur = cur.parent
	}
	return ids
}

// ToPath flattens the chain into a graph.Path. O(length).
func (p *NPath) ToPath() *graph.Path {
	steps := make([]graph.Step, p.length)
	cur := p
	for i := p.length - 1; i >= 0; i-- {
		steps[i] = graph.Step{Edge: *cur.edge, Dst: *cur.vertex}
		cur = cur.parent
	}
	return &graph.Path{Src: *cur.vertex, Steps: steps}
}

// Combine performs the simple single-junction path combination used
// directly on two NPaths that are already known to meet at their end
// vertices: left followed by right reversed (graph.Path.Reverse flips each
// edge). It checks only that the end vertices match; the bidirectional join
// in pkg/traverse additionally rejects halves that share any vertex besides
// the junction and enforces the max-steps bound.
func Combine(left, right *NPath) *graph.Path {
	if left.vertex.VID != right.vertex.VID {
		return nil
	}
	leftPath := left.ToPath()
	rightPath := right.ToPath()
	rightPath.Reverse()
	combined := *leftPath
	combined.Steps = append(append([]graph.Step(nil), leftPath.Steps...), rightPath.Steps...)
	return &combined
}

// HasDuplicates reports whether any two paths in the slice share a content
// hash, used to sanity-check a result set for accidental duplicate paths.
func HasDuplicates(paths []*NPath) bool {
	seen := make(map[uint64]struct{}, len(paths))
	for _, p := range paths {
		if _, ok := seen[p.hash]; ok {
			return true
		}
		seen[p.hash] = struct{}{}
	}
	return false
}
