package executor

import (
	"context"
	"fmt"

	"github.com/cuemby/graphd/pkg/value"
)

// KeyFunc extracts one comparison or collection column from a row value.
// Callers whose keys come from parsed expressions wrap pkg/expr evaluation
// in a KeyFunc; tests and internal callers pass plain Go functions.
type KeyFunc func(value.Value) value.Value

// RollUpApplyExecutor groups the right child's values by one or more key
// columns and, for each left child value, attaches the list of collected
// values whose key matches it. It specializes on the number of comparison
// columns: zero keys collect everything into one shared list, one key is
// hashed directly into the bucket table, and two or more build a composite
// key.
type RollUpApplyExecutor struct {
	BaseExecutor
	left, right Executor
	compareKeys []KeyFunc
	collectCol  KeyFunc
	colNames    []string
}

func NewRollUpApplyExecutor(id int64, left, right Executor, compareKeys []KeyFunc, collectCol KeyFunc, colNames []string) *RollUpApplyExecutor {
	return &RollUpApplyExecutor{
		BaseExecutor: NewBaseExecutor(id, "RollUpApplyExecutor"),
		left:         left,
		right:        right,
		compareKeys:  compareKeys,
		collectCol:   collectCol,
		colNames:     colNames,
	}
}

func (e *RollUpApplyExecutor) Execute(ctx context.Context) (ExecutionResult, error) {
	leftResult, err := e.left.Execute(ctx)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("executor: rollup apply left input: %w", err)
	}
	rightResult, err := e.right.Execute(ctx)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("executor: rollup apply right input: %w", err)
	}

	leftValues, ok := leftResult.AsValues()
	if !ok {
		return ExecutionResult{}, fmt.Errorf("executor: rollup apply left input has kind %s, want a row-producing result", leftResult.Kind)
	}
	rightValues, ok := rightResult.AsValues()
	if !ok {
		return ExecutionResult{}, fmt.Errorf("executor: rollup apply right input has kind %s, want a row-producing result", rightResult.Kind)
	}

	var ds *DataSet
	switch len(e.compareKeys) {
	case 0:
		ds = e.probeZeroKey(leftValues, e.buildZeroKeyTable(rightValues))
	case 1:
		ds = e.probeSingleKey(leftValues, e.buildSingleKeyTable(rightValues))
	default:
		ds = e.probe(leftValues, e.buildTable(rightValues))
	}
	e.Stats().RowsProduced = int64(len(ds.Rows))
	return DataSetResult(ds), nil
}

func (e *RollUpApplyExecutor) buildZeroKeyTable(rows []value.Value) []value.Value {
	collected := make([]value.Value, len(rows))
	for i, v := range rows {
		collected[i] = e.collectCol(v)
	}
	return collected
}

func (e *RollUpApplyExecutor) probeZeroKey(rows []value.Value, collected []value.Value) *DataSet {
	ds := &DataSet{ColNames: e.colNames, Rows: make([]Row, len(rows))}
	listVal := value.List(collected)
	for i, v := range rows {
		ds.Rows[i] = Row{v, listVal}
	}
	return ds
}

// bucket holds the rows that mapped to one key under a collision-tolerant
// hash map: value.Value isn't directly usable as a Go map key (List/Map/Set
// hold slices), so lookups hash first and then compare with value.Equal to
// resolve any collision.
type bucket struct {
	key       value.Value
	collected []value.Value
}

func (e *RollUpApplyExecutor) buildSingleKeyTable(rows []value.Value) map[uint64][]bucket {
	table := make(map[uint64][]bucket)
	for _, v := range rows {
		key := e.compareKeys[0](v)
		collectVal := e.collectCol(v)
		h := value.Hash(key)
		buckets := table[h]
		found := false
		for i := range buckets {
			if value.Equal(buckets[i].key, key) {
				buckets[i].collected = append(buckets[i].collected, collectVal)
				found = true
				break
			}
		}
		if !found {
			buckets = append(buckets, bucket{key: key, collected: []value.Value{collectVal}})
		}
		table[h] = buckets
	}
	return table
}

func (e *RollUpApplyExecutor) probeSingleKey(rows []value.Value, table map[uint64][]bucket) *DataSet {
	ds := &DataSet{ColNames: e.colNames, Rows: make([]Row, len(rows))}
	for i, v := range rows {
		key := e.compareKeys[0](v)
		ds.Rows[i] = Row{v, value.List(lookupBucket(table, key))}
	}
	return ds
}

func (e *RollUpApplyExecutor) buildTable(rows []value.Value) map[uint64][]bucket {
	table := make(map[uint64][]bucket)
	for _, v := range rows {
		key := e.compositeKey(v)
		collectVal := e.collectCol(v)
		h := value.Hash(key)
		buckets := table[h]
		found := false
		for i := range buckets {
			if value.Equal(buckets[i].key, key) {
				buckets[i].collected = append(buckets[i].collected, collectVal)
				found = true
				break
			}
		}
		if !found {
			buckets = append(buckets, bucket{key: key, collected: []value.Value{collectVal}})
		}
		table[h] = buckets
	}
	return table
}

func (e *RollUpApplyExecutor) probe(rows []value.Value, table map[uint64][]bucket) *DataSet {
	ds := &DataSet{ColNames: e.colNames, Rows: make([]Row, len(rows))}
	for i, v := range rows {
		key := e.compositeKey(v)
		ds.Rows[i] = Row{v, value.List(lookupBucket(table, key))}
	}
	return ds
}

func (e *RollUpApplyExecutor) compositeKey(v value.Value) value.Value {
	parts := make([]value.Value, len(e.compareKeys))
	for i, f := range e.compareKeys {
		parts[i] = f(v)
	}
	return value.List(parts)
}

func lookupBucket(table map[uint64][]bucket, key value.Value) []value.Value {
	for _, b := range table[value.Hash(key)] {
		if value.Equal(b.key, key) {
			return b.collected
		}
	}
	return nil
}
