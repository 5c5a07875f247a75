package traverse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/graphd/pkg/graph"
)

// fakeStore is a minimal in-memory NodeEdges double so these tests exercise
// the BFS algorithm itself without pulling in the bbolt-backed storage
// engine.
type fakeStore struct {
	vertices map[graph.VID]*graph.Vertex // only vertices that carry tags
	edges    map[graph.VID][]*graph.Edge // outgoing adjacency
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		vertices: make(map[graph.VID]*graph.Vertex),
		edges:    make(map[graph.VID][]*graph.Edge),
	}
}

func (s *fakeStore) addEdge(src, dst graph.VID, edgeType string) {
	e := &graph.Edge{EdgeKey: graph.EdgeKey{Src: src, Dst: dst, EdgeType: edgeType}}
	s.edges[src] = append(s.edges[src], e)
}

func (s *fakeStore) addVertexWithTag(vid graph.VID, tag string, props map[string]any) {
	s.vertices[vid] = &graph.Vertex{VID: vid, Tags: []graph.Tag{{Name: tag, Properties: props}}}
}

func (s *fakeStore) GetVertex(_ uint32, vid graph.VID) (*graph.Vertex, error) {
	if v, ok := s.vertices[vid]; ok {
		return v, nil
	}
	return &graph.Vertex{VID: vid}, nil
}

func (s *fakeStore) GetNodeEdges(_ uint32, vid graph.VID, dir graph.Direction) ([]*graph.Edge, error) {
	var out []*graph.Edge
	if dir == graph.DirOutgoing || dir == graph.DirBoth {
		out = append(out, s.edges[vid]...)
	}
	if dir == graph.DirIncoming || dir == graph.DirBoth {
		for _, es := range s.edges {
			for _, e := range es {
				if e.Dst == vid {
					out = append(out, e)
				}
			}
		}
	}
	return out, nil
}

func pathString(p *graph.Path) string {
	s := string(p.Src.VID)
	for _, step := range p.Steps {
		s += "->" + string(step.Dst.VID)
	}
	return s
}

// requireStepsMatchStoredEdges asserts every step of p carries an edge that
// was actually inserted into the store, oriented src-to-dst along the walk:
// Step.Edge.Src is the vertex the step departs, Step.Edge.Dst equals
// Step.Dst.VID.
func requireStepsMatchStoredEdges(t *testing.T, s *fakeStore, p *graph.Path) {
	t.Helper()
	prev := p.Src.VID
	for i, step := range p.Steps {
		require.Equal(t, prev, step.Edge.Src, "step %d of %s: edge src", i, pathString(p))
		require.Equal(t, step.Dst.VID, step.Edge.Dst, "step %d of %s: edge dst", i, pathString(p))

		found := false
		for _, e := range s.edges[step.Edge.Src] {
			if e.EdgeKey == step.Edge.EdgeKey {
				found = true
				break
			}
		}
		require.True(t, found, "step %d of %s: edge %s not in store", i, pathString(p), step.Edge.EdgeKey)
		prev = step.Dst.VID
	}
}

// TestAllPathsFindsBothRoutes: edges 1->2, 2->3, 3->4, 2->5, 5->4;
// AllPaths(left=[1], right=[4], Out, max=4) must return exactly the two
// paths {1->2->3->4, 1->2->5->4}, once each, with every step carrying the
// stored edge in its stored orientation.
func TestAllPathsFindsBothRoutes(t *testing.T) {
	s := newFakeStore()
	s.addEdge("1", "2", "E")
	s.addEdge("2", "3", "E")
	s.addEdge("3", "4", "E")
	s.addEdge("2", "5", "E")
	s.addEdge("5", "4", "E")

	paths, err := AllPaths(s, Options{
		LeftStartIDs:  []graph.VID{"1"},
		RightStartIDs: []graph.VID{"4"},
		Direction:     graph.DirOutgoing,
		MaxSteps:      4,
	})
	require.NoError(t, err)

	// Exactly two results: the slice itself must hold no duplicates.
	require.Len(t, paths, 2)

	got := make(map[string]bool)
	for _, p := range paths {
		got[pathString(p)] = true
		requireStepsMatchStoredEdges(t, s, p)
	}
	assert.True(t, got["1->2->3->4"], "missing path via 3: %v", got)
	assert.True(t, got["1->2->5->4"], "missing path via 5: %v", got)
}

func TestAllPathsRespectsMaxSteps(t *testing.T) {
	s := newFakeStore()
	s.addEdge("1", "2", "E")
	s.addEdge("2", "3", "E")
	s.addEdge("3", "4", "E")

	paths, err := AllPaths(s, Options{
		LeftStartIDs:  []graph.VID{"1"},
		RightStartIDs: []graph.VID{"4"},
		Direction:     graph.DirOutgoing,
		MaxSteps:      2,
	})
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestAllPathsEdgeTypeFilter(t *testing.T) {
	s := newFakeStore()
	s.addEdge("1", "2", "KNOWS")
	s.addEdge("2", "3", "LIKES")

	paths, err := AllPaths(s, Options{
		LeftStartIDs:  []graph.VID{"1"},
		RightStartIDs: []graph.VID{"3"},
		Direction:     graph.DirOutgoing,
		EdgeTypes:     []string{"KNOWS"},
		MaxSteps:      3,
	})
	require.NoError(t, err)
	assert.Empty(t, paths, "edge type filter should exclude the LIKES hop")
}

func TestAllPathsWithLoopEmitsSelfLoop(t *testing.T) {
	s := newFakeStore()
	s.addEdge("1", "1", "SELF")

	paths, err := AllPaths(s, Options{
		LeftStartIDs:  []graph.VID{"1"},
		RightStartIDs: []graph.VID{"1"},
		Direction:     graph.DirOutgoing,
		MaxSteps:      1,
		WithLoop:      true,
	})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "1->1", pathString(paths[0]))
}

func TestAllPathsSelfLoopDedup(t *testing.T) {
	s := newFakeStore()
	s.addEdge("1", "1", "SELF")
	s.addEdge("1", "2", "E")

	paths, err := AllPaths(s, Options{
		LeftStartIDs:  []graph.VID{"1"},
		RightStartIDs: []graph.VID{"2"},
		Direction:     graph.DirOutgoing,
		MaxSteps:      3,
		WithLoop:      false,
	})
	require.NoError(t, err)
	assert.Len(t, paths, 1)
	assert.Equal(t, "1->2", pathString(paths[0]))
}
