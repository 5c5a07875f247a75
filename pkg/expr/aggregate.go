package expr

import (
	"fmt"
	"sort"

	"github.com/cuemby/graphd/pkg/value"
)

// Aggregator folds a stream of input values into one aggregate result. The
// executor feeds it one value per row (the evaluated aggregate argument)
// and calls Result once the input is exhausted.
type Aggregator struct {
	fn         AggFunc
	distinct   bool
	percentile float64

	count  int64
	sumI   int64
	sumF   float64
	sawF   bool
	min    value.Value
	max    value.Value
	hasCmp bool
	values []value.Value
	seen   map[uint64][]value.Value
}

// NewAggregator builds an aggregator for an Aggregate expression node.
// Percentile arguments outside [0,100] are rejected.
func NewAggregator(e *Expression) (*Aggregator, error) {
	if e.Kind != KindAggregate {
		return nil, fmt.Errorf("%w: not an aggregate expression", ErrSemantic)
	}
	if e.Agg == AggPercentile && (e.Percentile < 0 || e.Percentile > 100) {
		return nil, fmt.Errorf("%w: percentile %.2f outside [0,100]", ErrSemantic, e.Percentile)
	}
	return &Aggregator{
		fn:         e.Agg,
		distinct:   e.Distinct || e.Agg == AggDistinct,
		percentile: e.Percentile,
		seen:       make(map[uint64][]value.Value),
	}, nil
}

// Add feeds one input value. Nulls are skipped for every function except
// COUNT(*), matching SQL aggregate semantics.
func (a *Aggregator) Add(v value.Value) error {
	if a.fn == AggCountStar {
		a.count++
		return nil
	}
	if v.IsNull() || v.IsEmpty() {
		return nil
	}
	if a.distinct && a.isDuplicate(v) {
		return nil
	}

	switch a.fn {
	case AggCount, AggDistinct:
		a.count++
		if a.fn == AggDistinct {
			a.values = append(a.values, v)
		}
	case AggSum, AggAvg:
		switch v.Kind {
		case value.KindInt:
			a.sumI += v.Int
		case value.KindFloat:
			a.sawF = true
			a.sumF += v.Float
		default:
			return typeMismatch("numeric", v.Kind)
		}
		a.count++
	case AggMin:
		if !a.hasCmp || value.Compare(v, a.min) < 0 {
			a.min = v
			a.hasCmp = true
		}
	case AggMax:
		if !a.hasCmp || value.Compare(v, a.max) > 0 {
			a.max = v
			a.hasCmp = true
		}
	case AggCollect:
		a.values = append(a.values, v)
	case AggPercentile:
		f, ok := asFloat(v)
		if !ok {
			return typeMismatch("numeric", v.Kind)
		}
		a.values = append(a.values, value.Float(f))
	default:
		return fmt.Errorf("%w: unsupported aggregate %d", ErrSemantic, a.fn)
	}
	return nil
}

func (a *Aggregator) isDuplicate(v value.Value) bool {
	h := value.Hash(v)
	for _, prev := range a.seen[h] {
		if value.Equal(prev, v) {
			return true
		}
	}
	a.seen[h] = append(a.seen[h], v)
	return false
}

// Result produces the final aggregate value. Empty input yields 0 for
// counts, Null for the rest, and an empty list for COLLECT and DISTINCT.
func (a *Aggregator) Result() value.Value {
	switch a.fn {
	case AggCount, AggCountStar:
		return value.Int(a.count)
	case AggSum:
		if a.count == 0 {
			return value.Null()
		}
		if a.sawF {
			return value.Float(a.sumF + float64(a.sumI))
		}
		return value.Int(a.sumI)
	case AggAvg:
		if a.count == 0 {
			return value.Null()
		}
		return value.Float((a.sumF + float64(a.sumI)) / float64(a.count))
	case AggMin:
		if !a.hasCmp {
			return value.Null()
		}
		return a.min
	case AggMax:
		if !a.hasCmp {
			return value.Null()
		}
		return a.max
	case AggCollect, AggDistinct:
		return value.List(append([]value.Value(nil), a.values...))
	case AggPercentile:
		if len(a.values) == 0 {
			return value.Null()
		}
		fs := make([]float64, len(a.values))
		for i, v := range a.values {
			fs[i] = v.Float
		}
		sort.Float64s(fs)
		// Linear interpolation between closest ranks.
		rank := a.percentile / 100 * float64(len(fs)-1)
		lo := int(rank)
		if lo >= len(fs)-1 {
			return value.Float(fs[len(fs)-1])
		}
		frac := rank - float64(lo)
		return value.Float(fs[lo] + frac*(fs[lo+1]-fs[lo]))
	default:
		return value.Null()
	}
}
