package traverse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/graphd/pkg/executor"
	"github.com/cuemby/graphd/pkg/expr"
	"github.com/cuemby/graphd/pkg/graph"
	"github.com/cuemby/graphd/pkg/value"
)

func TestGetNeighborsExecutor(t *testing.T) {
	store := newFakeStore()
	store.addEdge("1", "2", "KNOWS")
	store.addEdge("1", "3", "LIKES")

	ex := NewGetNeighborsExecutor(1, store, NeighborsOptions{
		SpaceID:   1,
		StartIDs:  []graph.VID{"1"},
		Direction: graph.DirOutgoing,
	})
	require.NoError(t, ex.Open())
	res, err := ex.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, executor.ResultDataSet, res.Kind)
	assert.Len(t, res.DataSet.Rows, 2)

	// With an edge-type filter only KNOWS survives.
	ex = NewGetNeighborsExecutor(2, store, NeighborsOptions{
		SpaceID:   1,
		StartIDs:  []graph.VID{"1"},
		Direction: graph.DirOutgoing,
		EdgeTypes: []string{"KNOWS"},
	})
	res, err = ex.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, res.DataSet.Rows, 1)
	assert.Equal(t, value.String("2"), res.DataSet.Rows[0][1])
}

func TestGoExecutorMultiStep(t *testing.T) {
	store := newFakeStore()
	store.addEdge("1", "2", "KNOWS")
	store.addEdge("2", "3", "KNOWS")
	store.addEdge("3", "4", "KNOWS")

	ex := NewGoExecutor(1, store, GoOptions{
		SpaceID:   1,
		StartIDs:  []graph.VID{"1"},
		Direction: graph.DirOutgoing,
		Steps:     2,
	})
	res, err := ex.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, executor.ResultVertices, res.Kind)
	require.Len(t, res.Vertices, 1)
	assert.Equal(t, graph.VID("3"), res.Vertices[0].VID)
}

func TestGoExecutorFilter(t *testing.T) {
	store := newFakeStore()
	store.addVertexWithTag("2", "person", map[string]any{"age": int64(20)})
	store.addVertexWithTag("3", "person", map[string]any{"age": int64(30)})
	store.addEdge("1", "2", "KNOWS")
	store.addEdge("1", "3", "KNOWS")

	filter := expr.Binary(
		expr.TagProperty("person", "age"),
		expr.OpGT,
		expr.Literal(value.Int(25)),
	)
	ex := NewGoExecutor(1, store, GoOptions{
		SpaceID:   1,
		StartIDs:  []graph.VID{"1"},
		Direction: graph.DirOutgoing,
		Steps:     1,
		Filter:    filter,
	})
	res, err := ex.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Vertices, 1)
	assert.Equal(t, graph.VID("3"), res.Vertices[0].VID)
}

func TestAllPathsExecutor(t *testing.T) {
	store := newFakeStore()
	store.addEdge("1", "2", "E")
	store.addEdge("2", "3", "E")
	store.addEdge("3", "4", "E")
	store.addEdge("2", "5", "E")
	store.addEdge("5", "4", "E")

	ex := NewAllPathsExecutor(1, store, Options{
		SpaceID:       1,
		LeftStartIDs:  []graph.VID{"1"},
		RightStartIDs: []graph.VID{"4"},
		Direction:     graph.DirOutgoing,
		MaxSteps:      4,
	})
	res, err := ex.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, executor.ResultPaths, res.Kind)
	assert.Len(t, res.Paths, 2)
}

func TestExecutorCancellation(t *testing.T) {
	store := newFakeStore()
	store.addEdge("1", "2", "E")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex := NewGoExecutor(1, store, GoOptions{SpaceID: 1, StartIDs: []graph.VID{"1"}, Steps: 1})
	res, err := ex.Execute(ctx)
	assert.Error(t, err)
	assert.Equal(t, executor.ResultError, res.Kind)
}
