package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/graphd/pkg/value"
)

type valuesExecutor struct {
	BaseExecutor
	values []value.Value
}

func newValuesExecutor(id int64, values []value.Value) *valuesExecutor {
	return &valuesExecutor{BaseExecutor: NewBaseExecutor(id, "ValuesExecutor"), values: values}
}

func (e *valuesExecutor) Execute(context.Context) (ExecutionResult, error) {
	return ValuesResult(e.values), nil
}

func identity(v value.Value) value.Value { return v }

func TestRollUpApplySingleKey(t *testing.T) {
	left := newValuesExecutor(1, []value.Value{value.Int(1), value.Int(2)})
	right := newValuesExecutor(2, []value.Value{value.Int(1), value.Int(1), value.Int(2)})

	e := NewRollUpApplyExecutor(3, left, right, []KeyFunc{identity}, identity, []string{"key", "collected"})
	result, err := e.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, ResultDataSet, result.Kind)
	require.Len(t, result.DataSet.Rows, 2)

	row1 := result.DataSet.Rows[0]
	assert.Equal(t, value.Int(1), row1[0])
	assert.Equal(t, value.KindList, row1[1].Kind)
	assert.Len(t, row1[1].List, 2) // two 1s on the right

	row2 := result.DataSet.Rows[1]
	assert.Equal(t, value.Int(2), row2[0])
	assert.Len(t, row2[1].List, 1)
}

func TestRollUpApplyZeroKey(t *testing.T) {
	left := newValuesExecutor(1, []value.Value{value.Int(1), value.Int(2)})
	right := newValuesExecutor(2, []value.Value{value.String("a"), value.String("b")})

	e := NewRollUpApplyExecutor(3, left, right, nil, identity, []string{"key", "collected"})
	result, err := e.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, result.DataSet.Rows, 2)
	for _, row := range result.DataSet.Rows {
		assert.Len(t, row[1].List, 2)
	}
}

func TestRollUpApplyNoMatchYieldsEmptyList(t *testing.T) {
	left := newValuesExecutor(1, []value.Value{value.Int(99)})
	right := newValuesExecutor(2, []value.Value{value.Int(1)})

	e := NewRollUpApplyExecutor(3, left, right, []KeyFunc{identity}, identity, []string{"key", "collected"})
	result, err := e.Execute(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.DataSet.Rows[0][1].List)
}
