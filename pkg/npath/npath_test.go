package npath

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/graphd/pkg/graph"
)

func vertex(id string) *graph.Vertex { return &graph.Vertex{VID: graph.VID(id)} }

func edge(src, dst, et string) *graph.Edge {
	return &graph.Edge{EdgeKey: graph.EdgeKey{Src: graph.VID(src), Dst: graph.VID(dst), EdgeType: et}}
}

func TestNewIsOrigin(t *testing.T) {
	p := New(vertex("1"))
	assert.Equal(t, 0, p.Len())
	assert.True(t, p.IsEmpty())
	assert.Nil(t, p.Parent())
	assert.Nil(t, p.Edge())
}

func TestExtendIncrementsLength(t *testing.T) {
	start := New(vertex("1"))
	p2 := Extend(start, edge("1", "2", "KNOWS"), vertex("2"))
	assert.Equal(t, 1, p2.Len())
	assert.False(t, p2.IsEmpty())
	assert.Equal(t, graph.VID("2"), p2.Vertex().VID)
	assert.NotNil(t, p2.Parent())
}

func TestContainsVertexWalksChain(t *testing.T) {
	start := New(vertex("1"))
	p2 := Extend(start, edge("1", "2", "KNOWS"), vertex("2"))
	p3 := Extend(p2, edge("2", "3", "KNOWS"), vertex("3"))

	assert.True(t, p3.ContainsVertex("1"))
	assert.True(t, p3.ContainsVertex("2"))
	assert.True(t, p3.ContainsVertex("3"))
	assert.False(t, p3.ContainsVertex("4"))
}

func TestToPathFlattens(t *testing.T) {
	start := New(vertex("1"))
	p2 := Extend(start, edge("1", "2", "KNOWS"), vertex("2"))
	p3 := Extend(p2, edge("2", "3", "KNOWS"), vertex("3"))

	path := p3.ToPath()
	assert.Equal(t, graph.VID("1"), path.Src.VID)
	assert.Len(t, path.Steps, 2)
	assert.Equal(t, graph.VID("2"), path.Steps[0].Dst.VID)
	assert.Equal(t, graph.VID("3"), path.Steps[1].Dst.VID)
}

func TestHashStableAcrossEquivalentPaths(t *testing.T) {
	e := edge("1", "2", "KNOWS")
	p1 := Extend(New(vertex("1")), e, vertex("2"))
	p2 := Extend(New(vertex("1")), e, vertex("2"))
	assert.Equal(t, p1.Hash(), p2.Hash())
}

func TestHashDistinguishesParallelEdgeRankings(t *testing.T) {
	e0 := edge("1", "2", "KNOWS")
	e1 := edge("1", "2", "KNOWS")
	e1.Ranking = 1
	p0 := Extend(New(vertex("1")), e0, vertex("2"))
	p1 := Extend(New(vertex("1")), e1, vertex("2"))
	assert.NotEqual(t, p0.Hash(), p1.Hash())
}

func TestHasCommonVertex(t *testing.T) {
	left := Extend(New(vertex("1")), edge("1", "2", "KNOWS"), vertex("2"))
	right := Extend(New(vertex("4")), edge("4", "2", "KNOWS"), vertex("2"))
	disjoint := Extend(New(vertex("5")), edge("5", "6", "KNOWS"), vertex("6"))

	assert.True(t, HasCommonVertex(left, right))
	assert.False(t, HasCommonVertex(left, disjoint))
}

func TestCombineJoinsAtSharedVertex(t *testing.T) {
	left := Extend(New(vertex("1")), edge("1", "2", "KNOWS"), vertex("2"))
	right := Extend(New(vertex("4")), edge("4", "2", "KNOWS"), vertex("2"))

	combined := Combine(left, right)
	if assert.NotNil(t, combined) {
		assert.Equal(t, graph.VID("1"), combined.Src.VID)
		assert.Equal(t, graph.VID("4"), combined.EndVertex().VID)
	}
}

func TestHasDuplicatesDetectsRepeatedHash(t *testing.T) {
	e := edge("1", "2", "KNOWS")
	p1 := Extend(New(vertex("1")), e, vertex("2"))
	p2 := Extend(New(vertex("1")), e, vertex("2"))
	assert.True(t, HasDuplicates([]*NPath{p1, p2}))
	assert.False(t, HasDuplicates([]*NPath{p1}))
}
