// Package expr defines the expression tree the execution engine consumes
// from the external parser, and its evaluator. The operator set is closed,
// so expressions are a tagged sum over Kind rather than an interface
// hierarchy; evaluation is a single switch.
package expr

import (
	"github.com/cuemby/graphd/pkg/value"
)

// Kind identifies the expression variant.
type Kind uint8

const (
	KindLiteral Kind = iota
	KindVariable
	KindProperty
	KindTagProperty
	KindEdgeProperty
	KindInputProperty
	KindVariableProperty
	KindSourceProperty
	KindDestProperty
	KindBinary
	KindUnary
	KindFunction
	KindAggregate
	KindList
	KindMap
	KindCase
	KindTypeCast
	KindSubscript
	KindRange
	KindLabel
	KindListComprehension
	KindPredicate
	KindReduce
	KindPathBuild
)

// BinaryOp enumerates the binary operators the parser can produce.
type BinaryOp uint8

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEQ
	OpNE
	OpLT
	OpLE
	OpGT
	OpGE
	OpAnd
	OpOr
	OpXor
	OpConcat
	OpLike
	OpContains
	OpStartsWith
	OpEndsWith
	OpIn
)

// UnaryOp enumerates the unary operators.
type UnaryOp uint8

const (
	OpNot UnaryOp = iota
	OpNeg
	OpIsNull
	OpIsNotNull
)

// AggFunc enumerates the aggregate functions the engine recognizes.
type AggFunc uint8

const (
	AggCount AggFunc = iota
	AggCountStar
	AggSum
	AggAvg
	AggMin
	AggMax
	AggCollect
	AggDistinct
	AggPercentile
)

// CaseBranch is one WHEN/THEN arm of a Case expression.
type CaseBranch struct {
	When *Expression
	Then *Expression
}

// Expression is one node of the expression tree. Only the fields relevant
// to Kind are populated.
type Expression struct {
	Kind Kind

	// Literal
	Value value.Value

	// Variable / Label / property forms: Name is the variable, tag, or
	// edge alias; Prop the property name.
	Name string
	Prop string

	// Binary / Unary
	BinOp BinaryOp
	UnOp  UnaryOp
	Left  *Expression
	Right *Expression

	// Function / Aggregate
	FuncName   string
	Args       []*Expression
	Agg        AggFunc
	Distinct   bool
	Percentile float64

	// List / Map / PathBuild
	Items []*Expression
	Keys  []string

	// Case
	Branches []CaseBranch
	Else     *Expression

	// TypeCast target
	TargetKind value.Kind

	// Subscript / Range: Left is the collection, Right the index (or range
	// low), Upper the range high.
	Upper *Expression

	// ListComprehension / Predicate / Reduce: Name binds the iteration
	// variable, Left the input list, Filter the optional predicate, Right
	// the optional map/projection. Reduce additionally uses Acc/Init.
	Filter   *Expression
	Acc      string
	Init     *Expression
	PredKind PredicateKind
}

// PredicateKind selects the quantifier of a Predicate expression.
type PredicateKind uint8

const (
	PredAll PredicateKind = iota
	PredAny
	PredNone
	PredSingle
)

// Constructors for the common node shapes; the parser adapter builds
// everything through these.

func Literal(v value.Value) *Expression { return &Expression{Kind: KindLiteral, Value: v} }

func Variable(name string) *Expression { return &Expression{Kind: KindVariable, Name: name} }

func Label(name string) *Expression { return &Expression{Kind: KindLabel, Name: name} }

func Property(obj, prop string) *Expression {
	return &Expression{Kind: KindProperty, Name: obj, Prop: prop}
}

func TagProperty(tag, prop string) *Expression {
	return &Expression{Kind: KindTagProperty, Name: tag, Prop: prop}
}

func EdgeProperty(edge, prop string) *Expression {
	return &Expression{Kind: KindEdgeProperty, Name: edge, Prop: prop}
}

func InputProperty(prop string) *Expression {
	return &Expression{Kind: KindInputProperty, Prop: prop}
}

func VariableProperty(variable, prop string) *Expression {
	return &Expression{Kind: KindVariableProperty, Name: variable, Prop: prop}
}

func SourceProperty(tag, prop string) *Expression {
	return &Expression{Kind: KindSourceProperty, Name: tag, Prop: prop}
}

func DestProperty(tag, prop string) *Expression {
	return &Expression{Kind: KindDestProperty, Name: tag, Prop: prop}
}

func Binary(left *Expression, op BinaryOp, right *Expression) *Expression {
	return &Expression{Kind: KindBinary, BinOp: op, Left: left, Right: right}
}

func Unary(op UnaryOp, operand *Expression) *Expression {
	return &Expression{Kind: KindUnary, UnOp: op, Left: operand}
}

func Function(name string, args ...*Expression) *Expression {
	return &Expression{Kind: KindFunction, FuncName: name, Args: args}
}

func Aggregate(fn AggFunc, arg *Expression, distinct bool) *Expression {
	return &Expression{Kind: KindAggregate, Agg: fn, Left: arg, Distinct: distinct}
}

func PercentileAgg(arg *Expression, p float64) *Expression {
	return &Expression{Kind: KindAggregate, Agg: AggPercentile, Left: arg, Percentile: p}
}

func ListExpr(items ...*Expression) *Expression {
	return &Expression{Kind: KindList, Items: items}
}

func MapExpr(keys []string, items []*Expression) *Expression {
	return &Expression{Kind: KindMap, Keys: keys, Items: items}
}

func Case(branches []CaseBranch, elseExpr *Expression) *Expression {
	return &Expression{Kind: KindCase, Branches: branches, Else: elseExpr}
}

func TypeCast(operand *Expression, target value.Kind) *Expression {
	return &Expression{Kind: KindTypeCast, Left: operand, TargetKind: target}
}

func Subscript(collection, idx *Expression) *Expression {
	return &Expression{Kind: KindSubscript, Left: collection, Right: idx}
}

func RangeExpr(collection, lo, hi *Expression) *Expression {
	return &Expression{Kind: KindRange, Left: collection, Right: lo, Upper: hi}
}

func ListComprehension(varName string, input, filter, projection *Expression) *Expression {
	return &Expression{Kind: KindListComprehension, Name: varName, Left: input, Filter: filter, Right: projection}
}

func Predicate(kind PredicateKind, varName string, input, filter *Expression) *Expression {
	return &Expression{Kind: KindPredicate, PredKind: kind, Name: varName, Left: input, Filter: filter}
}

func Reduce(accName string, init *Expression, varName string, input, step *Expression) *Expression {
	return &Expression{Kind: KindReduce, Acc: accName, Init: init, Name: varName, Left: input, Right: step}
}

func PathBuild(items ...*Expression) *Expression {
	return &Expression{Kind: KindPathBuild, Items: items}
}
