package value

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCompareScalars(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want int
	}{
		{"int lt", Int(1), Int(2), -1},
		{"int eq", Int(5), Int(5), 0},
		{"int gt", Int(3), Int(-3), 1},
		{"float", Float(1.5), Float(2.5), -1},
		{"string", String("apple"), String("banana"), -1},
		{"bool", Bool(false), Bool(true), -1},
		{"null eq null", Null(), Null(), 0},
		{"kinds ordered first", Null(), Int(0), -1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Compare(tc.a, tc.b))
			assert.Equal(t, -tc.want, Compare(tc.b, tc.a))
		})
	}
}

func TestCompareTime(t *testing.T) {
	earlier := DateTime(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	later := DateTime(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, -1, Compare(earlier, later))
	assert.Equal(t, 0, Compare(earlier, earlier))
}

func TestCompareComposites(t *testing.T) {
	a := List([]Value{Int(1), Int(2)})
	b := List([]Value{Int(1), Int(3)})
	assert.Equal(t, -1, Compare(a, b))

	// Shorter prefix sorts first.
	c := List([]Value{Int(1)})
	assert.Equal(t, -1, Compare(c, a))

	m1 := Map(map[string]Value{"a": Int(1)})
	m2 := Map(map[string]Value{"a": Int(1), "b": Int(2)})
	assert.Equal(t, -1, Compare(m1, m2))
	assert.Equal(t, 0, Compare(m1, Map(map[string]Value{"a": Int(1)})))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Int(42), Int(42)))
	assert.False(t, Equal(Int(42), Int(43)))
	assert.True(t, Equal(String("x"), String("x")))
	assert.False(t, Equal(Int(1), Float(1)))
}

func TestHashStability(t *testing.T) {
	v := Map(map[string]Value{"name": String("alice"), "age": Int(30)})
	assert.Equal(t, Hash(v), Hash(v))

	// Equal composites hash equal regardless of construction order.
	w := Map(map[string]Value{"age": Int(30), "name": String("alice")})
	assert.Equal(t, Hash(v), Hash(w))

	assert.NotEqual(t, Hash(Int(1)), Hash(Int(2)))
	assert.NotEqual(t, Hash(String("a")), Hash(String("b")))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "Int", KindInt.String())
	assert.Equal(t, "DataSet", KindDataSet.String())
	assert.Equal(t, "Unknown", Kind(200).String())
}

func TestNullAndEmpty(t *testing.T) {
	assert.True(t, Null().IsNull())
	assert.False(t, Null().IsEmpty())
	assert.True(t, Empty().IsEmpty())
	assert.False(t, Int(0).IsNull())
}
