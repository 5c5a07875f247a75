package expr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cuemby/graphd/pkg/value"
)

// Query error taxonomy for expression evaluation.
var (
	ErrTypeMismatch      = errors.New("expr: type mismatch")
	ErrUnknownIdentifier = errors.New("expr: unknown identifier")
	ErrSemantic          = errors.New("expr: semantic error")
)

func typeMismatch(expected string, got value.Kind) error {
	return fmt.Errorf("%w: expected %s, got %s", ErrTypeMismatch, expected, got)
}

// Context resolves the name-bound leaves of an expression: variables and
// the property forms. The executor provides one per row; unavailable forms
// simply return false and evaluation fails with ErrUnknownIdentifier.
type Context interface {
	Variable(name string) (value.Value, bool)
	Property(obj, prop string) (value.Value, bool)
	TagProperty(tag, prop string) (value.Value, bool)
	EdgeProperty(edge, prop string) (value.Value, bool)
	InputProperty(prop string) (value.Value, bool)
	SourceProperty(tag, prop string) (value.Value, bool)
	DestProperty(tag, prop string) (value.Value, bool)
}

// MapContext is the plain map-backed Context used by tests and by operators
// that bind a row's columns by name.
type MapContext struct {
	Vars  map[string]value.Value
	Props map[string]value.Value // "obj.prop" -> value
}

func (c *MapContext) Variable(name string) (value.Value, bool) {
	v, ok := c.Vars[name]
	return v, ok
}

func (c *MapContext) lookup(obj, prop string) (value.Value, bool) {
	v, ok := c.Props[obj+"."+prop]
	return v, ok
}

func (c *MapContext) Property(obj, prop string) (value.Value, bool)    { return c.lookup(obj, prop) }
func (c *MapContext) TagProperty(tag, prop string) (value.Value, bool) { return c.lookup(tag, prop) }
func (c *MapContext) EdgeProperty(e, prop string) (value.Value, bool)  { return c.lookup(e, prop) }
func (c *MapContext) InputProperty(prop string) (value.Value, bool)    { return c.lookup("$-", prop) }
func (c *MapContext) SourceProperty(tag, prop string) (value.Value, bool) {
	return c.lookup("$^."+tag, prop)
}
func (c *MapContext) DestProperty(tag, prop string) (value.Value, bool) {
	return c.lookup("$$."+tag, prop)
}

// childContext overlays one or two local bindings (comprehension/reduce
// variables) on a parent context.
type childContext struct {
	parent Context
	names  [2]string
	values [2]value.Value
	n      int
}

func overlay(parent Context, name string, v value.Value) *childContext {
	c := &childContext{parent: parent}
	c.names[0], c.values[0], c.n = name, v, 1
	return c
}

func (c *childContext) with(name string, v value.Value) *childContext {
	out := *c
	out.names[out.n], out.values[out.n] = name, v
	out.n++
	return &out
}

func (c *childContext) Variable(name string) (value.Value, bool) {
	for i := c.n - 1; i >= 0; i-- {
		if c.names[i] == name {
			return c.values[i], true
		}
	}
	return c.parent.Variable(name)
}

func (c *childContext) Property(o, p string) (value.Value, bool) { return c.parent.Property(o, p) }
func (c *childContext) TagProperty(t, p string) (value.Value, bool) {
	return c.parent.TagProperty(t, p)
}
func (c *childContext) EdgeProperty(e, p string) (value.Value, bool) {
	return c.parent.EdgeProperty(e, p)
}
func (c *childContext) InputProperty(p string) (value.Value, bool) { return c.parent.InputProperty(p) }
func (c *childContext) SourceProperty(t, p string) (value.Value, bool) {
	return c.parent.SourceProperty(t, p)
}
func (c *childContext) DestProperty(t, p string) (value.Value, bool) {
	return c.parent.DestProperty(t, p)
}

// Eval evaluates e against ctx. Null propagates through operators the way
// the query language defines it: an operand of Null generally yields Null
// rather than an error, while genuinely incompatible kinds fail with
// ErrTypeMismatch.
func Eval(e *Expression, ctx Context) (value.Value, error) {
	switch e.Kind {
	case KindLiteral:
		return e.Value, nil

	case KindVariable, KindLabel:
		if v, ok := ctx.Variable(e.Name); ok {
			return v, nil
		}
		return value.Value{}, fmt.Errorf("%w: %s", ErrUnknownIdentifier, e.Name)

	case KindProperty:
		return resolveProp(ctx.Property, e.Name, e.Prop)
	case KindTagProperty:
		return resolveProp(ctx.TagProperty, e.Name, e.Prop)
	case KindEdgeProperty:
		return resolveProp(ctx.EdgeProperty, e.Name, e.Prop)
	case KindInputProperty:
		if v, ok := ctx.InputProperty(e.Prop); ok {
			return v, nil
		}
		return value.Value{}, fmt.Errorf("%w: $-.%s", ErrUnknownIdentifier, e.Prop)
	case KindVariableProperty:
		return resolveProp(ctx.Property, e.Name, e.Prop)
	case KindSourceProperty:
		return resolveProp(ctx.SourceProperty, e.Name, e.Prop)
	case KindDestProperty:
		return resolveProp(ctx.DestProperty, e.Name, e.Prop)

	case KindBinary:
		return evalBinary(e, ctx)
	case KindUnary:
		return evalUnary(e, ctx)
	case KindFunction:
		return evalFunction(e, ctx)
	case KindAggregate:
		return value.Value{}, fmt.Errorf("%w: aggregate evaluated outside an aggregation operator", ErrSemantic)

	case KindList:
		items := make([]value.Value, len(e.Items))
		for i, it := range e.Items {
			v, err := Eval(it, ctx)
			if err != nil {
				return value.Value{}, err
			}
			items[i] = v
		}
		return value.List(items), nil

	case KindMap:
		m := make(map[string]value.Value, len(e.Keys))
		for i, k := range e.Keys {
			v, err := Eval(e.Items[i], ctx)
			if err != nil {
				return value.Value{}, err
			}
			m[k] = v
		}
		return value.Map(m), nil

	case KindCase:
		for _, br := range e.Branches {
			cond, err := Eval(br.When, ctx)
			if err != nil {
				return value.Value{}, err
			}
			if cond.Kind == value.KindBool && cond.Bool {
				return Eval(br.Then, ctx)
			}
		}
		if e.Else != nil {
			return Eval(e.Else, ctx)
		}
		return value.Null(), nil

	case KindTypeCast:
		v, err := Eval(e.Left, ctx)
		if err != nil {
			return value.Value{}, err
		}
		return cast(v, e.TargetKind)

	case KindSubscript:
		return evalSubscript(e, ctx)
	case KindRange:
		return evalRange(e, ctx)
	case KindListComprehension:
		return evalComprehension(e, ctx)
	case KindPredicate:
		return evalPredicate(e, ctx)
	case KindReduce:
		return evalReduce(e, ctx)

	case KindPathBuild:
		items := make([]value.Value, len(e.Items))
		for i, it := range e.Items {
			v, err := Eval(it, ctx)
			if err != nil {
				return value.Value{}, err
			}
			items[i] = v
		}
		return value.Value{Kind: value.KindPath, Payload: items}, nil

	default:
		return value.Value{}, fmt.Errorf("%w: unsupported expression kind %d", ErrSemantic, e.Kind)
	}
}

func resolveProp(fn func(string, string) (value.Value, bool), obj, prop string) (value.Value, error) {
	if v, ok := fn(obj, prop); ok {
		return v, nil
	}
	return value.Value{}, fmt.Errorf("%w: %s.%s", ErrUnknownIdentifier, obj, prop)
}

func evalBinary(e *Expression, ctx Context) (value.Value, error) {
	// Logical operators short-circuit before evaluating the right side.
	if e.BinOp == OpAnd || e.BinOp == OpOr {
		l, err := Eval(e.Left, ctx)
		if err != nil {
			return value.Value{}, err
		}
		lb, err := asBool(l)
		if err != nil {
			return value.Value{}, err
		}
		if e.BinOp == OpAnd && !lb {
			return value.Bool(false), nil
		}
		if e.BinOp == OpOr && lb {
			return value.Bool(true), nil
		}
		r, err := Eval(e.Right, ctx)
		if err != nil {
			return value.Value{}, err
		}
		rb, err := asBool(r)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(rb), nil
	}

	l, err := Eval(e.Left, ctx)
	if err != nil {
		return value.Value{}, err
	}
	r, err := Eval(e.Right, ctx)
	if err != nil {
		return value.Value{}, err
	}

	switch e.BinOp {
	case OpAdd, OpSub, OpMul, OpDiv, OpMod:
		return arith(e.BinOp, l, r)
	case OpEQ:
		return value.Bool(value.Equal(l, r)), nil
	case OpNE:
		return value.Bool(!value.Equal(l, r)), nil
	case OpLT, OpLE, OpGT, OpGE:
		if l.IsNull() || r.IsNull() {
			return value.Null(), nil
		}
		c := value.Compare(l, r)
		switch e.BinOp {
		case OpLT:
			return value.Bool(c < 0), nil
		case OpLE:
			return value.Bool(c <= 0), nil
		case OpGT:
			return value.Bool(c > 0), nil
		default:
			return value.Bool(c >= 0), nil
		}
	case OpXor:
		lb, err := asBool(l)
		if err != nil {
			return value.Value{}, err
		}
		rb, err := asBool(r)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(lb != rb), nil
	case OpConcat:
		ls, rs, err := asStrings(l, r)
		if err != nil {
			return value.Value{}, err
		}
		return value.String(ls + rs), nil
	case OpLike:
		ls, rs, err := asStrings(l, r)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(likeMatch(ls, rs)), nil
	case OpContains:
		ls, rs, err := asStrings(l, r)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(strings.Contains(ls, rs)), nil
	case OpStartsWith:
		ls, rs, err := asStrings(l, r)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(strings.HasPrefix(ls, rs)), nil
	case OpEndsWith:
		ls, rs, err := asStrings(l, r)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(strings.HasSuffix(ls, rs)), nil
	case OpIn:
		if r.Kind != value.KindList && r.Kind != value.KindSet {
			return value.Value{}, typeMismatch("list", r.Kind)
		}
		for _, item := range append(r.List, r.Set...) {
			if value.Equal(l, item) {
				return value.Bool(true), nil
			}
		}
		return value.Bool(false), nil
	default:
		return value.Value{}, fmt.Errorf("%w: unsupported binary operator %d", ErrSemantic, e.BinOp)
	}
}

func evalUnary(e *Expression, ctx Context) (value.Value, error) {
	v, err := Eval(e.Left, ctx)
	if err != nil {
		return value.Value{}, err
	}
	switch e.UnOp {
	case OpNot:
		b, err := asBool(v)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(!b), nil
	case OpNeg:
		switch v.Kind {
		case value.KindInt:
			return value.Int(-v.Int), nil
		case value.KindFloat:
			return value.Float(-v.Float), nil
		case value.KindNull:
			return value.Null(), nil
		default:
			return value.Value{}, typeMismatch("numeric", v.Kind)
		}
	case OpIsNull:
		return value.Bool(v.IsNull()), nil
	case OpIsNotNull:
		return value.Bool(!v.IsNull()), nil
	default:
		return value.Value{}, fmt.Errorf("%w: unsupported unary operator %d", ErrSemantic, e.UnOp)
	}
}

// arith performs numeric arithmetic with int/float promotion; Null operands
// yield Null.
func arith(op BinaryOp, l, r value.Value) (value.Value, error) {
	if l.IsNull() || r.IsNull() {
		return value.Null(), nil
	}
	if op == OpAdd && l.Kind == value.KindString && r.Kind == value.KindString {
		return value.String(l.Str + r.Str), nil
	}
	if l.Kind == value.KindInt && r.Kind == value.KindInt {
		switch op {
		case OpAdd:
			return value.Int(l.Int + r.Int), nil
		case OpSub:
			return value.Int(l.Int - r.Int), nil
		case OpMul:
			return value.Int(l.Int * r.Int), nil
		case OpDiv:
			if r.Int == 0 {
				return value.Value{}, fmt.Errorf("%w: division by zero", ErrSemantic)
			}
			return value.Int(l.Int / r.Int), nil
		case OpMod:
			if r.Int == 0 {
				return value.Value{}, fmt.Errorf("%w: modulo by zero", ErrSemantic)
			}
			return value.Int(l.Int % r.Int), nil
		}
	}
	lf, ok := asFloat(l)
	if !ok {
		return value.Value{}, typeMismatch("numeric", l.Kind)
	}
	rf, ok := asFloat(r)
	if !ok {
		return value.Value{}, typeMismatch("numeric", r.Kind)
	}
	switch op {
	case OpAdd:
		return value.Float(lf + rf), nil
	case OpSub:
		return value.Float(lf - rf), nil
	case OpMul:
		return value.Float(lf * rf), nil
	case OpDiv:
		if rf == 0 {
			return value.Value{}, fmt.Errorf("%w: division by zero", ErrSemantic)
		}
		return value.Float(lf / rf), nil
	default:
		return value.Value{}, fmt.Errorf("%w: modulo over floats", ErrSemantic)
	}
}

func asBool(v value.Value) (bool, error) {
	if v.Kind != value.KindBool {
		return false, typeMismatch("bool", v.Kind)
	}
	return v.Bool, nil
}

func asFloat(v value.Value) (float64, bool) {
	switch v.Kind {
	case value.KindInt:
		return float64(v.Int), true
	case value.KindFloat:
		return v.Float, true
	default:
		return 0, false
	}
}

func asStrings(l, r value.Value) (string, string, error) {
	if l.Kind != value.KindString {
		return "", "", typeMismatch("string", l.Kind)
	}
	if r.Kind != value.KindString {
		return "", "", typeMismatch("string", r.Kind)
	}
	return l.Str, r.Str, nil
}

// likeMatch implements SQL LIKE: % matches any run, _ a single character.
func likeMatch(s, pattern string) bool {
	var match func(si, pi int) bool
	match = func(si, pi int) bool {
		for pi < len(pattern) {
			switch pattern[pi] {
			case '%':
				for i := si; i <= len(s); i++ {
					if match(i, pi+1) {
						return true
					}
				}
				return false
			case '_':
				if si >= len(s) {
					return false
				}
				si++
				pi++
			default:
				if si >= len(s) || s[si] != pattern[pi] {
					return false
				}
				si++
				pi++
			}
		}
		return si == len(s)
	}
	return match(0, 0)
}

func cast(v value.Value, target value.Kind) (value.Value, error) {
	if v.Kind == target {
		return v, nil
	}
	switch target {
	case value.KindInt:
		switch v.Kind {
		case value.KindFloat:
			return value.Int(int64(v.Float)), nil
		case value.KindBool:
			if v.Bool {
				return value.Int(1), nil
			}
			return value.Int(0), nil
		}
	case value.KindFloat:
		if v.Kind == value.KindInt {
			return value.Float(float64(v.Int)), nil
		}
	case value.KindString:
		switch v.Kind {
		case value.KindInt:
			return value.String(fmt.Sprintf("%d", v.Int)), nil
		case value.KindFloat:
			return value.String(fmt.Sprintf("%g", v.Float)), nil
		case value.KindBool:
			return value.String(fmt.Sprintf("%t", v.Bool)), nil
		}
	case value.KindBool:
		if v.Kind == value.KindString {
			switch v.Str {
			case "true":
				return value.Bool(true), nil
			case "false":
				return value.Bool(false), nil
			}
		}
	}
	return value.Value{}, fmt.Errorf("%w: cannot cast %s to %s", ErrTypeMismatch, v.Kind, target)
}

func evalSubscript(e *Expression, ctx Context) (value.Value, error) {
	coll, err := Eval(e.Left, ctx)
	if err != nil {
		return value.Value{}, err
	}
	idx, err := Eval(e.Right, ctx)
	if err != nil {
		return value.Value{}, err
	}
	switch coll.Kind {
	case value.KindList:
		if idx.Kind != value.KindInt {
			return value.Value{}, typeMismatch("int index", idx.Kind)
		}
		i := idx.Int
		if i < 0 {
			i += int64(len(coll.List))
		}
		if i < 0 || i >= int64(len(coll.List)) {
			return value.Null(), nil
		}
		return coll.List[i], nil
	case value.KindMap:
		if idx.Kind != value.KindString {
			return value.Value{}, typeMismatch("string key", idx.Kind)
		}
		if v, ok := coll.Map[idx.Str]; ok {
			return v, nil
		}
		return value.Null(), nil
	default:
		return value.Value{}, typeMismatch("list or map", coll.Kind)
	}
}

func evalRange(e *Expression, ctx Context) (value.Value, error) {
	coll, err := Eval(e.Left, ctx)
	if err != nil {
		return value.Value{}, err
	}
	if coll.Kind != value.KindList {
		return value.Value{}, typeMismatch("list", coll.Kind)
	}
	lo, err := Eval(e.Right, ctx)
	if err != nil {
		return value.Value{}, err
	}
	hi, err := Eval(e.Upper, ctx)
	if err != nil {
		return value.Value{}, err
	}
	if lo.Kind != value.KindInt || hi.Kind != value.KindInt {
		return value.Value{}, typeMismatch("int bounds", lo.Kind)
	}
	n := int64(len(coll.List))
	a, b := lo.Int, hi.Int
	if a < 0 {
		a += n
	}
	if b < 0 {
		b += n
	}
	if a < 0 {
		a = 0
	}
	if b > n {
		b = n
	}
	if a >= b {
		return value.List(nil), nil
	}
	return value.List(append([]value.Value(nil), coll.List[a:b]...)), nil
}

func evalComprehension(e *Expression, ctx Context) (value.Value, error) {
	input, err := Eval(e.Left, ctx)
	if err != nil {
		return value.Value{}, err
	}
	if input.Kind != value.KindList {
		return value.Value{}, typeMismatch("list", input.Kind)
	}
	var out []value.Value
	for _, item := range input.List {
		child := overlay(ctx, e.Name, item)
		if e.Filter != nil {
			pass, err := Eval(e.Filter, child)
			if err != nil {
				return value.Value{}, err
			}
			if pass.Kind != value.KindBool || !pass.Bool {
				continue
			}
		}
		mapped := item
		if e.Right != nil {
			mapped, err = Eval(e.Right, child)
			if err != nil {
				return value.Value{}, err
			}
		}
		out = append(out, mapped)
	}
	return value.List(out), nil
}

func evalPredicate(e *Expression, ctx Context) (value.Value, error) {
	input, err := Eval(e.Left, ctx)
	if err != nil {
		return value.Value{}, err
	}
	if input.Kind != value.KindList {
		return value.Value{}, typeMismatch("list", input.Kind)
	}
	matched := 0
	for _, item := range input.List {
		pass, err := Eval(e.Filter, overlay(ctx, e.Name, item))
		if err != nil {
			return value.Value{}, err
		}
		if pass.Kind == value.KindBool && pass.Bool {
			matched++
		}
	}
	switch e.PredKind {
	case PredAll:
		return value.Bool(matched == len(input.List)), nil
	case PredAny:
		return value.Bool(matched > 0), nil
	case PredNone:
		return value.Bool(matched == 0), nil
	default:
		return value.Bool(matched == 1), nil
	}
}

func evalReduce(e *Expression, ctx Context) (value.Value, error) {
	acc, err := Eval(e.Init, ctx)
	if err != nil {
		return value.Value{}, err
	}
	input, err := Eval(e.Left, ctx)
	if err != nil {
		return value.Value{}, err
	}
	if input.Kind != value.KindList {
		return value.Value{}, typeMismatch("list", input.Kind)
	}
	for _, item := range input.List {
		child := overlay(ctx, e.Acc, acc).with(e.Name, item)
		acc, err = Eval(e.Right, child)
		if err != nil {
			return value.Value{}, err
		}
	}
	return acc, nil
}

// evalFunction dispatches the scalar builtin set. Unknown names fail with
// ErrSemantic so a typo surfaces instead of silently returning Null.
func evalFunction(e *Expression, ctx Context) (value.Value, error) {
	args := make([]value.Value, len(e.Args))
	for i, a := range e.Args {
		v, err := Eval(a, ctx)
		if err != nil {
			return value.Value{}, err
		}
		args[i] = v
	}
	name := strings.ToLower(e.FuncName)
	wrongArgs := func(want int) error {
		return fmt.Errorf("%w: %s expects %d argument(s), got %d", ErrSemantic, name, want, len(args))
	}
	switch name {
	case "abs":
		if len(args) != 1 {
			return value.Value{}, wrongArgs(1)
		}
		switch args[0].Kind {
		case value.KindInt:
			if args[0].Int < 0 {
				return value.Int(-args[0].Int), nil
			}
			return args[0], nil
		case value.KindFloat:
			if args[0].Float < 0 {
				return value.Float(-args[0].Float), nil
			}
			return args[0], nil
		}
		return value.Value{}, typeMismatch("numeric", args[0].Kind)
	case "size", "length":
		if len(args) != 1 {
			return value.Value{}, wrongArgs(1)
		}
		switch args[0].Kind {
		case value.KindString:
			return value.Int(int64(len(args[0].Str))), nil
		case value.KindList:
			return value.Int(int64(len(args[0].List))), nil
		case value.KindSet:
			return value.Int(int64(len(args[0].Set))), nil
		case value.KindMap:
			return value.Int(int64(len(args[0].Map))), nil
		}
		return value.Value{}, typeMismatch("string or collection", args[0].Kind)
	case "lower", "tolower":
		if len(args) != 1 {
			return value.Value{}, wrongArgs(1)
		}
		if args[0].Kind != value.KindString {
			return value.Value{}, typeMismatch("string", args[0].Kind)
		}
		return value.String(strings.ToLower(args[0].Str)), nil
	case "upper", "toupper":
		if len(args) != 1 {
			return value.Value{}, wrongArgs(1)
		}
		if args[0].Kind != value.KindString {
			return value.Value{}, typeMismatch("string", args[0].Kind)
		}
		return value.String(strings.ToUpper(args[0].Str)), nil
	case "trim":
		if len(args) != 1 {
			return value.Value{}, wrongArgs(1)
		}
		if args[0].Kind != value.KindString {
			return value.Value{}, typeMismatch("string", args[0].Kind)
		}
		return value.String(strings.TrimSpace(args[0].Str)), nil
	case "coalesce":
		for _, a := range args {
			if !a.IsNull() {
				return a, nil
			}
		}
		return value.Null(), nil
	default:
		return value.Value{}, fmt.Errorf("%w: unknown function %q", ErrSemantic, e.FuncName)
	}
}
