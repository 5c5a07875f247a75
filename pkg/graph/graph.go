// Package graph defines the property-graph record types shared by the
// storage engine, the index subsystem and the execution engine: vertices
// with multiple tags, directed typed ranked edges, and paths built from
// them.
package graph

import "fmt"

// VID is a vertex identifier. The engine treats it as an opaque string so
// callers may use whatever identifier scheme their schema defines.
type VID string

// Tag is a named property bag attached to a vertex. A vertex can carry
// multiple tags, each with its own property set.
type Tag struct {
	Name       string
	Properties map[string]any
}

// Vertex is a graph node: an identity plus the tags attached to it.
type Vertex struct {
	VID  VID
	Tags []Tag
}

// TagByName returns the tag with the given name, if the vertex carries it.
func (v *Vertex) TagByName(name string) (Tag, bool) {
	for _, t := range v.Tags {
		if t.Name == name {
			return t, true
		}
	}
	return Tag{}, false
}

// EdgeKey uniquely identifies a directed edge: (src, edge type, ranking,
// dst). Ranking disambiguates parallel edges of the same type between the
// same pair of vertices.
type EdgeKey struct {
	Src      VID
	EdgeType string
	Ranking  int64
	Dst      VID
}

// String renders the key in a stable, human-readable form used in log
// lines and as a map key when an EdgeKey's fields must be combined into a
// single comparable value.
func (k EdgeKey) String() string {
	return fmt.Sprintf("%s->%s:%s@%d", k.Src, k.Dst, k.EdgeType, k.Ranking)
}

// Edge is a directed, typed, ranked edge with its own property set.
type Edge struct {
	EdgeKey
	Properties map[string]any
}

// Direction selects which side of an edge to traverse from a given vertex.
type Direction uint8

const (
	DirOutgoing Direction = iota
	DirIncoming
	DirBoth
)

// Space is a logical graph namespace: every vertex, edge and index key is
// scoped under a space so that multiple independent graphs can share one
// storage engine instance.
type Space struct {
	ID   uint32
	Name string
}

// Step is one hop of a flattened Path: the edge taken and the vertex it
// leads to.
type Step struct {
	Edge Edge
	Dst  Vertex
}

// Path is the flattened, non-shared representation of a graph traversal
// result: a starting vertex plus an ordered sequence of steps. It is built
// from an npath.NPath on demand, an O(length) conversion; nothing in this
// package constructs an NPath directly to avoid an import cycle between
// graph and npath.
type Path struct {
	Src   Vertex
	Steps []Step
}

// Len reports the number of edges in the path.
func (p *Path) Len() int { return len(p.Steps) }

// EndVertex returns the path's terminal vertex: the source vertex for an
// empty path, or the destination of the last step otherwise.
func (p *Path) EndVertex() Vertex {
	if len(p.Steps) == 0 {
		return p.Src
	}
	return p.Steps[len(p.Steps)-1].Dst
}

// Reverse flips the path in place: the new source is the old terminal
// vertex, and every step's edge is reversed (src/dst swapped, same type,
// ranking and properties) so it still describes a walkable direction.
func (p *Path) Reverse() {
	n := len(p.Steps)
	if n == 0 {
		return
	}
	vertices := make([]Vertex, n+1)
	vertices[0] = p.Src
	for i, s := range p.Steps {
		vertices[i+1] = s.Dst
	}
	edges := make([]Edge, n)
	for i, s := range p.Steps {
		edges[i] = s.Edge
	}

	newSteps := make([]Step, n)
	for i := 0; i < n; i++ {
		srcVertex := vertices[n-i]
		dstVertex := vertices[n-i-1]
		e := edges[n-i-1]
		reversed := Edge{
			EdgeKey: EdgeKey{
				Src:      srcVertex.VID,
				EdgeType: e.EdgeType,
				Ranking:  e.Ranking,
				Dst:      dstVertex.VID,
			},
			Properties: e.Properties,
		}
		newSteps[i] = Step{Edge: reversed, Dst: dstVertex}
	}
	p.Src = vertices[n]
	p.Steps = newSteps
}
