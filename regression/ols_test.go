package regression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitPerfectlyLinear(t *testing.T) {
	slope, intercept, err := Fit([]float64{1, 2, 3, 4, 5}, []float64{2, 4, 6, 8, 10})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, slope, 1e-9)
	assert.InDelta(t, 0.0, intercept, 1e-9)
}

func TestFitRecoversScale(t *testing.T) {
	for _, k := range []float64{-3.5, 0.07, 17} {
		x := []float64{42000, 42010.5, 41990, 42100, 42050}
		y := make([]float64, len(x))
		for i := range x {
			y[i] = k * x[i]
		}
		slope, _, err := Fit(x, y)
		require.NoError(t, err)
		assert.InDelta(t, k, slope, 1e-6, "k=%v", k)

		adj := Adjust(zip(y, x), slope)
		for _, v := range adj {
			assert.InDelta(t, 0, v, 1e-4)
		}
	}
}

func TestFitWithIntercept(t *testing.T) {
	slope, intercept, err := Fit([]float64{0, 1, 2, 3}, []float64{1, 3, 5, 7})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, slope, 1e-9)
	assert.InDelta(t, 1.0, intercept, 1e-9)
}

func TestFitConstantIndependentReturnsMinimumNorm(t *testing.T) {
	// 3m + c = 2 的最小范数解是 (0.6, 0.2)
	slope, intercept, err := Fit([]float64{3, 3, 3}, []float64{1, 2, 3})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, slope, 1e-9)
	assert.InDelta(t, 0.2, intercept, 1e-9)
}

func TestFitSinglePoint(t *testing.T) {
	slope, intercept, err := Fit([]float64{2}, []float64{5})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, 2*slope+intercept, 1e-9)
}

func TestFitInputErrors(t *testing.T) {
	_, _, err := Fit(nil, nil)
	assert.ErrorIs(t, err, ErrNoObservations)
	_, _, err = Fit([]float64{1}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestAdjustRemovesExactLinearInfluence(t *testing.T) {
	points := zip([]float64{2, 4, 6, 8, 10}, []float64{1, 2, 3, 4, 5})
	slope, _, err := FitPoints(points)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, slope, 1e-9)
	adj := Adjust(points, slope)
	require.Len(t, adj, 5)
	for _, v := range adj {
		assert.InDelta(t, 0.0, v, 1e-9)
	}
}

func zip(dep, indep []float64) []JoinedPoint {
	out := make([]JoinedPoint, len(dep))
	for i := range dep {
		out[i] = JoinedPoint{Dependent: dep[i], Independent: indep[i]}
	}
	return out
}
