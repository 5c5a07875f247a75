package executor

import (
	"context"
	"time"

	"github.com/cuemby/graphd/pkg/graph"
	"github.com/cuemby/graphd/pkg/value"
)

// DataSet is a named, row-oriented result: the shape returned by operators
// that project multiple columns (RollUpApply, property fetches).
type DataSet struct {
	ColNames []string
	Rows     []Row
}

// ResultKind identifies which field of an ExecutionResult is populated.
type ResultKind uint8

const (
	ResultEmpty ResultKind = iota
	ResultValues
	ResultVertices
	ResultEdges
	ResultPaths
	ResultDataSet
	ResultQueryResult
	ResultCount
	ResultSuccess
	ResultError
)

func (k ResultKind) String() string {
	switch k {
	case ResultEmpty:
		return "Empty"
	case ResultValues:
		return "Values"
	case ResultVertices:
		return "Vertices"
	case ResultEdges:
		return "Edges"
	case ResultPaths:
		return "Paths"
	case ResultDataSet:
		return "DataSet"
	case ResultQueryResult:
		return "Result"
	case ResultCount:
		return "Count"
	case ResultSuccess:
		return "Success"
	case ResultError:
		return "Error"
	default:
		return "Unknown"
	}
}

// ExecutionResult is the value an Executor.Execute call produces: a tagged
// union over the shapes an operator can hand to its parent.
type ExecutionResult struct {
	Kind     ResultKind
	Values   []value.Value
	Vertices []*graph.Vertex
	Edges    []*graph.Edge
	Paths    []*graph.Path
	DataSet  *DataSet
	Result   *Result
	Count    int64
	Err      error
}

func ValuesResult(vs []value.Value) ExecutionResult {
	return ExecutionResult{Kind: ResultValues, Values: vs}
}
func VerticesResult(vs []*graph.Vertex) ExecutionResult {
	return ExecutionResult{Kind: ResultVertices, Vertices: vs}
}
func EdgesResult(es []*graph.Edge) ExecutionResult {
	return ExecutionResult{Kind: ResultEdges, Edges: es}
}
func PathsResult(ps []*graph.Path) ExecutionResult {
	return ExecutionResult{Kind: ResultPaths, Paths: ps}
}
func DataSetResult(ds *DataSet) ExecutionResult {
	return ExecutionResult{Kind: ResultDataSet, DataSet: ds}
}
func QueryResult(r *Result) ExecutionResult {
	return ExecutionResult{Kind: ResultQueryResult, Result: r}
}
func CountResult(n int64) ExecutionResult   { return ExecutionResult{Kind: ResultCount, Count: n} }
func SuccessResult() ExecutionResult        { return ExecutionResult{Kind: ResultSuccess} }
func EmptyResult() ExecutionResult          { return ExecutionResult{Kind: ResultEmpty} }
func ErrorResult(err error) ExecutionResult { return ExecutionResult{Kind: ResultError, Err: err} }

// AsValues flattens any result kind into a plain value slice, the
// conversion RollUpApply and other row-consuming operators need to accept
// whichever kind their upstream produced.
func (r ExecutionResult) AsValues() ([]value.Value, bool) {
	switch r.Kind {
	case ResultValues:
		return r.Values, true
	case ResultVertices:
		vs := make([]value.Value, len(r.Vertices))
		for i, v := range r.Vertices {
			vs[i] = value.Payload(value.KindVertex, v)
		}
		return vs, true
	case ResultEdges:
		vs := make([]value.Value, len(r.Edges))
		for i, e := range r.Edges {
			vs[i] = value.Payload(value.KindEdge, e)
		}
		return vs, true
	default:
		return nil, false
	}
}

// ExecutorStats tracks per-operator bookkeeping surfaced through EXPLAIN
// and profiling output. Executors run synchronously and one at a time, so
// these are plain counters rather than atomics.
type ExecutorStats struct {
	RowsProduced  int64
	ExecutionTime time.Duration
	StartTime     time.Time
}

// Executor is the contract every operator in the execution tree satisfies:
// a lifecycle (open/close/is_open) around a single Execute call that
// returns this operator's complete result.
type Executor interface {
	ID() int64
	Name() string
	Description() string
	IsOpen() bool
	Open() error
	Close() error
	Execute(ctx context.Context) (ExecutionResult, error)
	Stats() *ExecutorStats
}

// BaseExecutor holds the bookkeeping common to every operator. Concrete
// operators embed it and implement only Execute.
type BaseExecutor struct {
	IDValue          int64
	NameValue        string
	DescriptionValue string
	open             bool
	stats            ExecutorStats
}

func NewBaseExecutor(id int64, name string) BaseExecutor {
	return BaseExecutor{IDValue: id, NameValue: name}
}

func (b *BaseExecutor) ID() int64             { return b.IDValue }
func (b *BaseExecutor) Name() string          { return b.NameValue }
func (b *BaseExecutor) Description() string   { return b.DescriptionValue }
func (b *BaseExecutor) IsOpen() bool          { return b.open }
func (b *BaseExecutor) Stats() *ExecutorStats { return &b.stats }

func (b *BaseExecutor) Open() error {
	b.open = true
	b.stats.StartTime = time.Now()
	return nil
}

func (b *BaseExecutor) Close() error {
	b.open = false
	b.stats.ExecutionTime = time.Since(b.stats.StartTime)
	return nil
}
