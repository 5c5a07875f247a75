// Package value implements the property-graph value model: a tagged union
// of scalar and composite types shared by vertices, edges, index entries and
// the execution engine's rows.
package value

import (
	"fmt"
	"sort"
	"time"
)

// Kind identifies the concrete type held by a Value.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindNull
	KindBool
	KindInt
	KindFloat
	KindString
	KindDate
	KindTime
	KindDateTime
	KindDuration
	KindGeography
	KindList
	KindMap
	KindSet
	KindVertex
	KindEdge
	KindPath
	KindDataSet
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "Empty"
	case KindNull:
		return "Null"
	case KindBool:
		return "Bool"
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindString:
		return "String"
	case KindDate:
		return "Date"
	case KindTime:
		return "Time"
	case KindDateTime:
		return "DateTime"
	case KindDuration:
		return "Duration"
	case KindGeography:
		return "Geography"
	case KindList:
		return "List"
	case KindMap:
		return "Map"
	case KindSet:
		return "Set"
	case KindVertex:
		return "Vertex"
	case KindEdge:
		return "Edge"
	case KindPath:
		return "Path"
	case KindDataSet:
		return "DataSet"
	default:
		return "Unknown"
	}
}

// Value is a single tagged property value. Only the field matching Kind is
// meaningful; the rest are zero. Vertex/Edge/Path payloads are stored as
// opaque `any` to avoid an import cycle with pkg/graph and pkg/traverse —
// callers type-assert via the VertexPayload/EdgePayload/PathPayload helpers
// in those packages.
type Value struct {
	Kind Kind

	Bool     bool
	Int      int64
	Float    float64
	Str      string
	Duration time.Duration
	Time     time.Time

	List []Value
	Map  map[string]Value
	Set  []Value

	Payload any
}

func Empty() Value               { return Value{Kind: KindEmpty} }
func Null() Value                { return Value{Kind: KindNull} }
func Bool(b bool) Value          { return Value{Kind: KindBool, Bool: b} }
func Int(i int64) Value          { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value      { return Value{Kind: KindFloat, Float: f} }
func String(s string) Value      { return Value{Kind: KindString, Str: s} }
func Date(t time.Time) Value     { return Value{Kind: KindDate, Time: t} }
func Time(t time.Time) Value     { return Value{Kind: KindTime, Time: t} }
func DateTime(t time.Time) Value { return Value{Kind: KindDateTime, Time: t} }
func DurationOf(d time.Duration) Value {
	return Value{Kind: KindDuration, Duration: d}
}
func List(vs []Value) Value        { return Value{Kind: KindList, List: vs} }
func Map(m map[string]Value) Value { return Value{Kind: KindMap, Map: m} }
func SetOf(vs []Value) Value       { return Value{Kind: KindSet, Set: vs} }
func Payload(k Kind, p any) Value  { return Value{Kind: k, Payload: p} }

func (v Value) IsNull() bool  { return v.Kind == KindNull }
func (v Value) IsEmpty() bool { return v.Kind == KindEmpty }

// Compare provides a total order over values of the same Kind, used by the
// binary key codec and by index range scans. Values of different Kind are
// ordered by Kind first, which keeps the ordering well-defined even though
// it is rarely meaningful across types.
func Compare(a, b Value) int {
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	switch a.Kind {
	case KindEmpty, KindNull:
		return 0
	case KindBool:
		return cmpBool(a.Bool, b.Bool)
	case KindInt:
		return cmpInt(a.Int, b.Int)
	case KindFloat:
		return cmpFloat(a.Float, b.Float)
	case KindString:
		return cmpString(a.Str, b.Str)
	case KindDate, KindTime, KindDateTime:
		return cmpTime(a.Time, b.Time)
	case KindDuration:
		return cmpInt(int64(a.Duration), int64(b.Duration))
	case KindList, KindSet:
		return cmpSlice(a.asSlice(), b.asSlice())
	case KindMap:
		return cmpMap(a.Map, b.Map)
	default:
		return 0
	}
}

func (v Value) asSlice() []Value {
	if v.Kind == KindSet {
		return v.Set
	}
	return v.List
}

func cmpBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a {
		return -1
	}
	return 1
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

func cmpSlice(a, b []Value) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmpInt(int64(len(a)), int64(len(b)))
}

func cmpMap(a, b map[string]Value) int {
	ak := sortedKeys(a)
	bk := sortedKeys(b)
	n := len(ak)
	if len(bk) < n {
		n = len(bk)
	}
	for i := 0; i < n; i++ {
		if c := cmpString(ak[i], bk[i]); c != 0 {
			return c
		}
		if c := Compare(a[ak[i]], b[bk[i]]); c != 0 {
			return c
		}
	}
	return cmpInt(int64(len(ak)), int64(len(bk)))
}

func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports structural equality.
func Equal(a, b Value) bool { return Compare(a, b) == 0 }

// Hash produces a stable 64-bit hash over a value, used by DISTINCT
// aggregation and RollUpApply's key tables. It deliberately does not aim to
// be a cryptographic hash.
func Hash(v Value) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	mix := func(b byte) {
		h ^= uint64(b)
		h *= prime64
	}
	mixStr := func(s string) {
		for i := 0; i < len(s); i++ {
			mix(s[i])
		}
	}
	mix(byte(v.Kind))
	switch v.Kind {
	case KindBool:
		if v.Bool {
			mix(1)
		} else {
			mix(0)
		}
	case KindInt:
		for i := 0; i < 8; i++ {
			mix(byte(v.Int >> (8 * i)))
		}
	case KindFloat:
		bits := fmt.Sprintf("%x", v.Float)
		mixStr(bits)
	case KindString:
		mixStr(v.Str)
	case KindDate, KindTime, KindDateTime:
		mixStr(v.Time.UTC().String())
	case KindDuration:
		mixStr(v.Duration.String())
	case KindList, KindSet:
		for _, e := range v.asSlice() {
			for _, b := range uint64Bytes(Hash(e)) {
				mix(b)
			}
		}
	case KindMap:
		for _, k := range sortedKeys(v.Map) {
			mixStr(k)
			for _, b := range uint64Bytes(Hash(v.Map[k])) {
				mix(b)
			}
		}
	}
	return h
}

func uint64Bytes(u uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
	return b
}
