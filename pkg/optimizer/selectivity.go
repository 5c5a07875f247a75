// Package optimizer implements the selectivity and cardinality estimation
// rules the query planner uses to choose between candidate plans:
// per-column statistics (most-common-value lists and bucketed
// histograms), and the selectivity formulas for equality, range, set
// membership, null checks, boolean composition, equi-joins, graph
// traversal fan-out and pattern matching.
package optimizer

// RangeOp identifies which side of a range predicate is being estimated.
type RangeOp uint8

const (
	RangeLessThan RangeOp = iota
	RangeGreaterThan
	RangeBetween
)

// BooleanOp composes two (or one, for Not) selectivities.
type BooleanOp uint8

const (
	BooleanAnd BooleanOp = iota
	BooleanOr
	BooleanNot
)

// JoinType selects the join-cardinality formula.
type JoinType uint8

const (
	JoinInner JoinType = iota
	JoinLeft
	JoinRight
	JoinFull
)

// MCV is one entry of a most-common-value list: a value's exact observed
// frequency, used to estimate equality selectivity precisely for the
// values it covers.
type MCV struct {
	Frequency float64
}

// HistogramBucket is one bucket of a column histogram: the
// value range [Low, High) and the fraction of rows it covers.
type HistogramBucket struct {
	Low, High float64
	Fraction  float64
}

// ColumnStats is the per-column statistics the selectivity estimator
// reads: what a stats-table lookup for one column returns.
type ColumnStats struct {
	DistinctCount int64
	NullFraction  float64
	MCVs          []MCV
	Histogram     []HistogramBucket
}

// GraphStats is the traversal-relevant statistics the estimator reads for
// estimate_traversal: total vertex count and, optionally, the edge count
// of one edge type (used to derive its average fan-out).
type GraphStats struct {
	VertexCount    int64
	EdgeTypeCounts map[string]int64
	AvgOutDegree   float64
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// EstimateEqual estimates the selectivity of `col = value`. MCV frequency
// is used directly when the value is one of the most common; otherwise the
// remaining mass is spread evenly over the remaining distinct values
// (capped at 0.5), with a 0.1 default when stats is nil.
func EstimateEqual(stats *ColumnStats, mcvFrequency float64, isMCV bool) float64 {
	if isMCV {
		return clamp01(mcvFrequency)
	}
	if stats == nil {
		return 0.1
	}
	mcvTotal := 0.0
	for _, m := range stats.MCVs {
		mcvTotal += m.Frequency
	}
	nonMCVDistinct := stats.DistinctCount - int64(len(stats.MCVs))
	if nonMCVDistinct <= 0 {
		return clamp01(0.5)
	}
	sel := (1 - mcvTotal) / float64(nonMCVDistinct)
	if sel > 0.5 {
		return 0.5
	}
	return clamp01(sel)
}

// EstimateNotEqual is the complement of EstimateEqual.
func EstimateNotEqual(equalSel float64) float64 { return clamp01(1 - equalSel) }

// valueFractionBetween linearly interpolates the fraction of a histogram
// bucket's range that lies below value.
func valueFractionBetween(low, high, value float64) float64 {
	if high <= low {
		return 0
	}
	if value <= low {
		return 0
	}
	if value >= high {
		return 1
	}
	return (value - low) / (high - low)
}

// histogramLessThan sums full buckets below value plus the interpolated
// fraction of the bucket value falls in.
func histogramLessThan(histogram []HistogramBucket, value float64) float64 {
	total := 0.0
	for _, b := range histogram {
		switch {
		case value <= b.Low:
			// contributes nothing
		case value >= b.High:
			total += b.Fraction
		default:
			total += b.Fraction * valueFractionBetween(b.Low, b.High, value)
		}
	}
	return clamp01(total)
}

// EstimateRange estimates a LT/GT/BETWEEN predicate. Without a histogram it
// falls back to fixed heuristics (0.3 for LT/GT, 0.2 for BETWEEN).
func EstimateRange(stats *ColumnStats, op RangeOp, low, high float64) float64 {
	if stats == nil || len(stats.Histogram) == 0 {
		switch op {
		case RangeLessThan:
			return 0.3
		case RangeGreaterThan:
			return 0.3
		default:
			return 0.2
		}
	}
	switch op {
	case RangeLessThan:
		return histogramLessThan(stats.Histogram, high)
	case RangeGreaterThan:
		return clamp01(1 - histogramLessThan(stats.Histogram, low))
	default: // RangeBetween
		return clamp01(histogramLessThan(stats.Histogram, high) - histogramLessThan(stats.Histogram, low))
	}
}

// EstimateIn sums the per-value equality selectivity of each member,
// capped at 1.0 (a column can't match more than all of its rows).
func EstimateIn(stats *ColumnStats, values []float64, equalFor func(float64) float64) float64 {
	total := 0.0
	for _, v := range values {
		total += equalFor(v)
	}
	return clamp01(total)
}

// EstimateIsNull and EstimateIsNotNull read the column's null fraction
// directly.
func EstimateIsNull(stats *ColumnStats) float64 {
	if stats == nil {
		return 0.0
	}
	return clamp01(stats.NullFraction)
}

func EstimateIsNotNull(stats *ColumnStats) float64 {
	return clamp01(1 - EstimateIsNull(stats))
}

// EstimateBoolean composes two predicate selectivities under independence:
// AND multiplies, OR uses inclusion-exclusion, NOT complements (only `a` is
// used for Not).
func EstimateBoolean(op BooleanOp, a, b float64) float64 {
	switch op {
	case BooleanAnd:
		return clamp01(a * b)
	case BooleanOr:
		return clamp01(a + b - a*b)
	default: // BooleanNot
		return clamp01(1 - a)
	}
}

// EstimateJoin estimates the fraction of the cross product an equi-join
// predicate keeps. Inner joins use the standard 1/max(distinct) formula
// adjusted for nulls on both sides; outer joins are conservatively treated
// as always matching (selectivity 1.0).
func EstimateJoin(joinType JoinType, leftDistinct, rightDistinct int64, leftNullFrac, rightNullFrac float64) float64 {
	if joinType != JoinInner {
		return 1.0
	}
	maxDistinct := leftDistinct
	if rightDistinct > maxDistinct {
		maxDistinct = rightDistinct
	}
	if maxDistinct <= 0 {
		return 0.0
	}
	sel := (1.0 / float64(maxDistinct)) * (1 - leftNullFrac) * (1 - rightNullFrac)
	return clamp01(sel)
}

// EstimateTraversal estimates the selectivity of expanding fromCount
// vertices by one or more hops along edgeType (or the graph's average
// out-degree when edgeType is empty), raised to the power of steps and
// normalized back to a [0,1] fraction of fromCount.
func EstimateTraversal(stats *GraphStats, fromCount int64, edgeType string, steps int) float64 {
	if stats == nil || fromCount <= 0 || steps <= 0 {
		return 1.0
	}
	avgExpansion := stats.AvgOutDegree
	if edgeType != "" {
		if count, ok := stats.EdgeTypeCounts[edgeType]; ok && fromCount > 0 {
			avgExpansion = float64(count) / float64(fromCount)
		}
	}
	if avgExpansion < 0 {
		avgExpansion = 0
	}
	expanded := float64(fromCount)
	for i := 0; i < steps; i++ {
		expanded *= avgExpansion
	}
	return clamp01(expanded / float64(fromCount))
}

// EstimatePatternMatch estimates a string LIKE/pattern predicate: an exact
// literal (no wildcard characters at all) is cheapest (0.01), a trailing
// "prefix%" pattern is next cheapest (0.1), and any other placement of a
// wildcard is treated as a full scan (0.05).
func EstimatePatternMatch(pattern string) float64 {
	n := len(pattern)
	innerHasWildcard := false
	for i := 0; i < n; i++ {
		if (pattern[i] == '%' || pattern[i] == '_') && i != n-1 {
			innerHasWildcard = true
		}
	}
	isPrefix := n > 0 && pattern[n-1] == '%' && !innerHasWildcard

	switch {
	case innerHasWildcard || (n > 0 && pattern[n-1] == '_'):
		return 0.05
	case isPrefix:
		return 0.1
	default:
		return 0.01
	}
}
