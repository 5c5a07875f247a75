package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateBoolean(t *testing.T) {
	assert.InDelta(t, 0.15, EstimateBoolean(BooleanAnd, 0.5, 0.3), 1e-9)
	assert.InDelta(t, 0.65, EstimateBoolean(BooleanOr, 0.5, 0.3), 1e-9)
	assert.InDelta(t, 0.7, EstimateBoolean(BooleanNot, 0.3, 0), 1e-9)
}

func TestEstimateJoinInner(t *testing.T) {
	sel := EstimateJoin(JoinInner, 100, 50, 0, 0)
	assert.InDelta(t, 0.01, sel, 1e-9)
}

func TestEstimateJoinOuterIsAlwaysOne(t *testing.T) {
	assert.Equal(t, 1.0, EstimateJoin(JoinLeft, 100, 50, 0, 0))
	assert.Equal(t, 1.0, EstimateJoin(JoinRight, 100, 50, 0, 0))
	assert.Equal(t, 1.0, EstimateJoin(JoinFull, 100, 50, 0, 0))
}

func TestEstimateTraversalCapsAtOne(t *testing.T) {
	stats := &GraphStats{
		VertexCount:    1000,
		EdgeTypeCounts: map[string]int64{"KNOWS": 5000},
	}
	sel := EstimateTraversal(stats, 1000, "KNOWS", 1)
	assert.Equal(t, 1.0, sel) // avg_expansion = 5000/1000 = 5.0, capped at 1.0
}

func TestEstimateTraversalFractionalExpansion(t *testing.T) {
	stats := &GraphStats{
		VertexCount:    1000,
		EdgeTypeCounts: map[string]int64{"KNOWS": 200},
	}
	sel := EstimateTraversal(stats, 1000, "KNOWS", 1)
	assert.InDelta(t, 0.2, sel, 1e-9) // avg_expansion = 200/1000 = 0.2
}

func TestEstimateIsNullComplement(t *testing.T) {
	stats := &ColumnStats{NullFraction: 0.25}
	assert.InDelta(t, 0.25, EstimateIsNull(stats), 1e-9)
	assert.InDelta(t, 0.75, EstimateIsNotNull(stats), 1e-9)
}

func TestEstimateEqualUsesMCVFrequencyDirectly(t *testing.T) {
	assert.InDelta(t, 0.4, EstimateEqual(nil, 0.4, true), 1e-9)
}

func TestEstimateEqualFallsBackWithoutStats(t *testing.T) {
	assert.InDelta(t, 0.1, EstimateEqual(nil, 0, false), 1e-9)
}

func TestEstimateEqualSpreadsRemainingMass(t *testing.T) {
	stats := &ColumnStats{
		DistinctCount: 10,
		MCVs:          []MCV{{Frequency: 0.3}, {Frequency: 0.2}},
	}
	// (1 - 0.5) / (10 - 2) = 0.0625
	assert.InDelta(t, 0.0625, EstimateEqual(stats, 0, false), 1e-9)
}

func TestEstimateNotEqual(t *testing.T) {
	assert.InDelta(t, 0.6, EstimateNotEqual(0.4), 1e-9)
}

func TestEstimateRangeWithoutHistogram(t *testing.T) {
	assert.InDelta(t, 0.3, EstimateRange(nil, RangeLessThan, 0, 10), 1e-9)
	assert.InDelta(t, 0.3, EstimateRange(nil, RangeGreaterThan, 0, 10), 1e-9)
	assert.InDelta(t, 0.2, EstimateRange(nil, RangeBetween, 0, 10), 1e-9)
}

func TestEstimateRangeWithHistogram(t *testing.T) {
	stats := &ColumnStats{
		Histogram: []HistogramBucket{
			{Low: 0, High: 100, Fraction: 0.5},
			{Low: 100, High: 200, Fraction: 0.5},
		},
	}
	// below 50: half of the first bucket -> 0.25
	assert.InDelta(t, 0.25, EstimateRange(stats, RangeLessThan, 0, 50), 1e-9)
}

func TestEstimateIn(t *testing.T) {
	equalFor := func(v float64) float64 { return 0.1 }
	sel := EstimateIn(nil, []float64{1, 2, 3}, equalFor)
	assert.InDelta(t, 0.3, sel, 1e-9)
}

func TestEstimateInCapsAtOne(t *testing.T) {
	equalFor := func(v float64) float64 { return 0.5 }
	sel := EstimateIn(nil, []float64{1, 2, 3}, equalFor)
	assert.Equal(t, 1.0, sel)
}

func TestEstimatePatternMatch(t *testing.T) {
	assert.InDelta(t, 0.01, EstimatePatternMatch("exact"), 1e-9)
	assert.InDelta(t, 0.1, EstimatePatternMatch("prefix%"), 1e-9)
	assert.InDelta(t, 0.05, EstimatePatternMatch("%suffix"), 1e-9)
	assert.InDelta(t, 0.05, EstimatePatternMatch("mid_dle"), 1e-9)
}
