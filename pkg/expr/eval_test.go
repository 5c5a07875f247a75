package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/graphd/pkg/value"
)

func evalOK(t *testing.T, e *Expression, ctx Context) value.Value {
	t.Helper()
	if ctx == nil {
		ctx = &MapContext{}
	}
	v, err := Eval(e, ctx)
	require.NoError(t, err)
	return v
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name string
		expr *Expression
		want value.Value
	}{
		{"int add", Binary(Literal(value.Int(2)), OpAdd, Literal(value.Int(3))), value.Int(5)},
		{"int sub", Binary(Literal(value.Int(2)), OpSub, Literal(value.Int(3))), value.Int(-1)},
		{"int mul", Binary(Literal(value.Int(4)), OpMul, Literal(value.Int(3))), value.Int(12)},
		{"int div", Binary(Literal(value.Int(7)), OpDiv, Literal(value.Int(2))), value.Int(3)},
		{"int mod", Binary(Literal(value.Int(7)), OpMod, Literal(value.Int(2))), value.Int(1)},
		{"mixed promotes", Binary(Literal(value.Int(1)), OpAdd, Literal(value.Float(0.5))), value.Float(1.5)},
		{"string add concats", Binary(Literal(value.String("a")), OpAdd, Literal(value.String("b"))), value.String("ab")},
		{"null propagates", Binary(Literal(value.Null()), OpAdd, Literal(value.Int(1))), value.Null()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, evalOK(t, tc.expr, nil))
		})
	}
}

func TestDivisionByZero(t *testing.T) {
	_, err := Eval(Binary(Literal(value.Int(1)), OpDiv, Literal(value.Int(0))), &MapContext{})
	assert.ErrorIs(t, err, ErrSemantic)
}

func TestComparisonAndLogic(t *testing.T) {
	lt := Binary(Literal(value.Int(1)), OpLT, Literal(value.Int(2)))
	assert.Equal(t, value.Bool(true), evalOK(t, lt, nil))

	and := Binary(lt, OpAnd, Binary(Literal(value.String("x")), OpEQ, Literal(value.String("x"))))
	assert.Equal(t, value.Bool(true), evalOK(t, and, nil))

	// AND short-circuits: the right side would fail if evaluated.
	sc := Binary(Literal(value.Bool(false)), OpAnd, Variable("missing"))
	assert.Equal(t, value.Bool(false), evalOK(t, sc, nil))

	or := Binary(Literal(value.Bool(true)), OpOr, Variable("missing"))
	assert.Equal(t, value.Bool(true), evalOK(t, or, nil))
}

func TestStringOperators(t *testing.T) {
	s := Literal(value.String("hello world"))
	assert.Equal(t, value.Bool(true), evalOK(t, Binary(s, OpContains, Literal(value.String("o w"))), nil))
	assert.Equal(t, value.Bool(true), evalOK(t, Binary(s, OpStartsWith, Literal(value.String("hell"))), nil))
	assert.Equal(t, value.Bool(true), evalOK(t, Binary(s, OpEndsWith, Literal(value.String("rld"))), nil))
	assert.Equal(t, value.String("ab"), evalOK(t, Binary(Literal(value.String("a")), OpConcat, Literal(value.String("b"))), nil))
}

func TestLike(t *testing.T) {
	tests := []struct {
		s, pattern string
		want       bool
	}{
		{"abcdef", "abc%", true},
		{"abcdef", "%def", true},
		{"abcdef", "a_cdef", true},
		{"abcdef", "abc", false},
		{"abc", "abc", true},
		{"", "%", true},
	}
	for _, tc := range tests {
		got := evalOK(t, Binary(Literal(value.String(tc.s)), OpLike, Literal(value.String(tc.pattern))), nil)
		assert.Equal(t, value.Bool(tc.want), got, "%q LIKE %q", tc.s, tc.pattern)
	}
}

func TestInOperator(t *testing.T) {
	list := ListExpr(Literal(value.Int(1)), Literal(value.Int(2)))
	assert.Equal(t, value.Bool(true), evalOK(t, Binary(Literal(value.Int(2)), OpIn, list), nil))
	assert.Equal(t, value.Bool(false), evalOK(t, Binary(Literal(value.Int(3)), OpIn, list), nil))
}

func TestVariableAndProperties(t *testing.T) {
	ctx := &MapContext{
		Vars:  map[string]value.Value{"n": value.Int(7)},
		Props: map[string]value.Value{"person.name": value.String("alice"), "$-.age": value.Int(30)},
	}
	assert.Equal(t, value.Int(7), evalOK(t, Variable("n"), ctx))
	assert.Equal(t, value.String("alice"), evalOK(t, TagProperty("person", "name"), ctx))
	assert.Equal(t, value.Int(30), evalOK(t, InputProperty("age"), ctx))

	_, err := Eval(Variable("missing"), ctx)
	assert.ErrorIs(t, err, ErrUnknownIdentifier)
}

func TestCaseExpression(t *testing.T) {
	e := Case([]CaseBranch{
		{When: Binary(Variable("x"), OpGT, Literal(value.Int(10))), Then: Literal(value.String("big"))},
		{When: Binary(Variable("x"), OpGT, Literal(value.Int(0))), Then: Literal(value.String("small"))},
	}, Literal(value.String("neg")))

	ctx := &MapContext{Vars: map[string]value.Value{"x": value.Int(5)}}
	assert.Equal(t, value.String("small"), evalOK(t, e, ctx))

	ctx.Vars["x"] = value.Int(-3)
	assert.Equal(t, value.String("neg"), evalOK(t, e, ctx))
}

func TestSubscriptAndRange(t *testing.T) {
	list := ListExpr(Literal(value.Int(10)), Literal(value.Int(20)), Literal(value.Int(30)))
	assert.Equal(t, value.Int(20), evalOK(t, Subscript(list, Literal(value.Int(1))), nil))
	assert.Equal(t, value.Int(30), evalOK(t, Subscript(list, Literal(value.Int(-1))), nil))
	assert.Equal(t, value.Null(), evalOK(t, Subscript(list, Literal(value.Int(9))), nil))

	sliced := evalOK(t, RangeExpr(list, Literal(value.Int(0)), Literal(value.Int(2))), nil)
	assert.Equal(t, value.List([]value.Value{value.Int(10), value.Int(20)}), sliced)
}

func TestListComprehension(t *testing.T) {
	input := ListExpr(Literal(value.Int(1)), Literal(value.Int(2)), Literal(value.Int(3)), Literal(value.Int(4)))
	e := ListComprehension("x", input,
		Binary(Variable("x"), OpGT, Literal(value.Int(1))),
		Binary(Variable("x"), OpMul, Literal(value.Int(10))))

	got := evalOK(t, e, nil)
	assert.Equal(t, value.List([]value.Value{value.Int(20), value.Int(30), value.Int(40)}), got)
}

func TestPredicates(t *testing.T) {
	input := ListExpr(Literal(value.Int(1)), Literal(value.Int(2)), Literal(value.Int(3)))
	positive := Binary(Variable("x"), OpGT, Literal(value.Int(0)))
	big := Binary(Variable("x"), OpGT, Literal(value.Int(2)))

	assert.Equal(t, value.Bool(true), evalOK(t, Predicate(PredAll, "x", input, positive), nil))
	assert.Equal(t, value.Bool(true), evalOK(t, Predicate(PredAny, "x", input, big), nil))
	assert.Equal(t, value.Bool(false), evalOK(t, Predicate(PredNone, "x", input, big), nil))
	assert.Equal(t, value.Bool(true), evalOK(t, Predicate(PredSingle, "x", input, big), nil))
}

func TestReduce(t *testing.T) {
	input := ListExpr(Literal(value.Int(1)), Literal(value.Int(2)), Literal(value.Int(3)))
	e := Reduce("acc", Literal(value.Int(0)), "x", input,
		Binary(Variable("acc"), OpAdd, Variable("x")))
	assert.Equal(t, value.Int(6), evalOK(t, e, nil))
}

func TestTypeCast(t *testing.T) {
	assert.Equal(t, value.Int(3), evalOK(t, TypeCast(Literal(value.Float(3.7)), value.KindInt), nil))
	assert.Equal(t, value.String("42"), evalOK(t, TypeCast(Literal(value.Int(42)), value.KindString), nil))

	_, err := Eval(TypeCast(Literal(value.Bool(true)), value.KindFloat), &MapContext{})
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestBuiltinFunctions(t *testing.T) {
	assert.Equal(t, value.Int(5), evalOK(t, Function("abs", Literal(value.Int(-5))), nil))
	assert.Equal(t, value.Int(3), evalOK(t, Function("size", Literal(value.String("abc"))), nil))
	assert.Equal(t, value.String("ABC"), evalOK(t, Function("upper", Literal(value.String("abc"))), nil))
	assert.Equal(t, value.Int(1), evalOK(t, Function("coalesce", Literal(value.Null()), Literal(value.Int(1))), nil))

	_, err := Eval(Function("no_such_fn", Literal(value.Int(1))), &MapContext{})
	assert.ErrorIs(t, err, ErrSemantic)
}
