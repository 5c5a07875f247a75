package traverse

import (
	"context"

	"github.com/cuemby/graphd/pkg/executor"
	"github.com/cuemby/graphd/pkg/expr"
	"github.com/cuemby/graphd/pkg/graph"
	"github.com/cuemby/graphd/pkg/value"
)

// NeighborsOptions configures one GetNeighbors operator: a single-hop
// expansion from a set of start vertices.
type NeighborsOptions struct {
	SpaceID   uint32
	StartIDs  []graph.VID
	Direction graph.Direction
	EdgeTypes []string
}

// GetNeighborsExecutor expands every start vertex one hop and emits one row
// per (vertex, edge) pair, the row shape the GetNeighbors iterator carries.
type GetNeighborsExecutor struct {
	executor.BaseExecutor
	store NodeEdges
	opts  NeighborsOptions
}

func NewGetNeighborsExecutor(id int64, store NodeEdges, opts NeighborsOptions) *GetNeighborsExecutor {
	return &GetNeighborsExecutor{
		BaseExecutor: executor.NewBaseExecutor(id, "GetNeighbors"),
		store:        store,
		opts:         opts,
	}
}

func (e *GetNeighborsExecutor) Execute(ctx context.Context) (executor.ExecutionResult, error) {
	ds := &executor.DataSet{ColNames: []string{"_vid", "_dst", "_type", "_rank"}}
	for _, vid := range e.opts.StartIDs {
		if err := ctx.Err(); err != nil {
			return executor.ErrorResult(err), err
		}
		edges, err := e.store.GetNodeEdges(e.opts.SpaceID, vid, e.opts.Direction)
		if err != nil {
			return executor.ErrorResult(err), err
		}
		for _, ed := range edges {
			if !edgeTypeAllowed(e.opts.EdgeTypes, ed.EdgeType) {
				continue
			}
			ds.Rows = append(ds.Rows, executor.Row{
				value.String(string(vid)),
				value.String(string(neighborOf(ed, vid))),
				value.String(ed.EdgeType),
				value.Int(ed.Ranking),
			})
		}
	}
	e.Stats().RowsProduced += int64(len(ds.Rows))
	return executor.DataSetResult(ds), nil
}

// GoOptions configures a GO operator: an N-step walk from a set of start
// vertices, optionally filtered per destination vertex.
type GoOptions struct {
	SpaceID   uint32
	StartIDs  []graph.VID
	Direction graph.Direction
	EdgeTypes []string
	Steps     int
	// Filter, when set, is evaluated against each destination vertex's tag
	// properties; vertices it rejects are dropped from the result.
	Filter *expr.Expression
}

// GoExecutor implements the GO traversal: a breadth-first frontier walked
// Steps hops out, returning the vertices reachable at exactly Steps hops
// (deduplicated).
type GoExecutor struct {
	executor.BaseExecutor
	store NodeEdges
	opts  GoOptions
}

func NewGoExecutor(id int64, store NodeEdges, opts GoOptions) *GoExecutor {
	return &GoExecutor{
		BaseExecutor: executor.NewBaseExecutor(id, "Go"),
		store:        store,
		opts:         opts,
	}
}

func (e *GoExecutor) Execute(ctx context.Context) (executor.ExecutionResult, error) {
	steps := e.opts.Steps
	if steps <= 0 {
		steps = 1
	}

	frontier := make(map[graph.VID]struct{}, len(e.opts.StartIDs))
	for _, vid := range e.opts.StartIDs {
		frontier[vid] = struct{}{}
	}

	for step := 0; step < steps; step++ {
		if err := ctx.Err(); err != nil {
			return executor.ErrorResult(err), err
		}
		next := make(map[graph.VID]struct{})
		for vid := range frontier {
			edges, err := e.store.GetNodeEdges(e.opts.SpaceID, vid, e.opts.Direction)
			if err != nil {
				return executor.ErrorResult(err), err
			}
			for _, ed := range edges {
				if !edgeTypeAllowed(e.opts.EdgeTypes, ed.EdgeType) {
					continue
				}
				next[neighborOf(ed, vid)] = struct{}{}
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}

	var out []*graph.Vertex
	for vid := range frontier {
		v, err := e.store.GetVertex(e.opts.SpaceID, vid)
		if err != nil {
			continue
		}
		if e.opts.Filter != nil {
			pass, err := expr.Eval(e.opts.Filter, vertexContext{v})
			if err != nil {
				return executor.ErrorResult(err), err
			}
			if pass.Kind != value.KindBool || !pass.Bool {
				continue
			}
		}
		out = append(out, v)
	}
	e.Stats().RowsProduced += int64(len(out))
	return executor.VerticesResult(out), nil
}

// AllPathsExecutor wraps the bidirectional BFS all-paths search in the
// operator contract so it can sit in an executor tree like any other node.
type AllPathsExecutor struct {
	executor.BaseExecutor
	store NodeEdges
	opts  Options
}

func NewAllPathsExecutor(id int64, store NodeEdges, opts Options) *AllPathsExecutor {
	return &AllPathsExecutor{
		BaseExecutor: executor.NewBaseExecutor(id, "AllPaths"),
		store:        store,
		opts:         opts,
	}
}

func (e *AllPathsExecutor) Execute(ctx context.Context) (executor.ExecutionResult, error) {
	if err := ctx.Err(); err != nil {
		return executor.ErrorResult(err), err
	}
	paths, err := AllPaths(e.store, e.opts)
	if err != nil {
		return executor.ErrorResult(err), err
	}
	e.Stats().RowsProduced += int64(len(paths))
	return executor.PathsResult(paths), nil
}

// vertexContext adapts a vertex's tags to the expression evaluator: tag
// properties resolve through TagProperty, Property, SourceProperty and
// DestProperty, the _vid variable resolves to the vertex id, and everything
// else is unbound.
type vertexContext struct {
	v *graph.Vertex
}

func (c vertexContext) tagProp(tag, prop string) (value.Value, bool) {
	t, ok := c.v.TagByName(tag)
	if !ok {
		return value.Value{}, false
	}
	raw, ok := t.Properties[prop]
	if !ok {
		return value.Value{}, false
	}
	return propValue(raw), true
}

func (c vertexContext) Variable(name string) (value.Value, bool) {
	if name == "_vid" {
		return value.String(string(c.v.VID)), true
	}
	return value.Value{}, false
}

func (c vertexContext) Property(obj, prop string) (value.Value, bool) { return c.tagProp(obj, prop) }
func (c vertexContext) TagProperty(tag, prop string) (value.Value, bool) {
	return c.tagProp(tag, prop)
}
func (c vertexContext) EdgeProperty(string, string) (value.Value, bool) { return value.Value{}, false }
func (c vertexContext) InputProperty(string) (value.Value, bool)        { return value.Value{}, false }
func (c vertexContext) SourceProperty(tag, prop string) (value.Value, bool) {
	return c.tagProp(tag, prop)
}
func (c vertexContext) DestProperty(tag, prop string) (value.Value, bool) {
	return c.tagProp(tag, prop)
}

// propValue adapts the `any` property payload a stored record carries into
// a value.Value for expression evaluation.
func propValue(v any) value.Value {
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
