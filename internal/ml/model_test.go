package ml

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func separable(n int) ([][]float64, []int) {
	rows := make([][]float64, n)
	labels := make([]int, n)
	for i := range rows {
		x := float64(i%21-10) / 5
		rows[i] = []float64{x, 1}
		if x > 0 {
			labels[i] = 1
		}
	}
	return rows, labels
}

func TestModel_Untrained(t *testing.T) {
	m := New(2, 0.55)

	assert.False(t, m.Trained())
	assert.Equal(t, 0.5, m.PredictProba([]float64{1, 2}))
	assert.False(t, m.ShouldEnter(m.PredictProba([]float64{1, 2})))
}

func TestModel_LearnsDirection(t *testing.T) {
	m := New(2, 0.55, WithLearningRate(0.05))
	rows, labels := separable(210)

	for epoch := 0; epoch < 20; epoch++ {
		require.NoError(t, m.PartialFit(rows, labels))
	}

	up := m.PredictProba([]float64{1.5, 1})
	down := m.PredictProba([]float64{-1.5, 1})
	assert.Greater(t, up, 0.55)
	assert.Less(t, down, 0.45)
	assert.True(t, m.ShouldEnter(up))
	assert.False(t, m.ShouldEnter(down))
}

func TestModel_PartialFitValidation(t *testing.T) {
	m := New(2, 0)
	assert.Equal(t, DefaultThreshold, m.Threshold())

	err := m.PartialFit([][]float64{{1}}, []int{1})
	assert.ErrorIs(t, err, ErrFeatureMismatch)

	assert.Error(t, m.PartialFit([][]float64{{1, 2}}, []int{2}))
	assert.Error(t, m.PartialFit([][]float64{{1, 2}}, nil))

	require.NoError(t, m.PartialFit([][]float64{{math.NaN(), 1}}, []int{1}))
	assert.False(t, m.Trained())
}

func TestScaler_IncrementalMatchesBatch(t *testing.T) {
	rows := [][]float64{{1}, {2}, {3}, {4}, {10}}

	whole := newScaler(1)
	whole.update(rows)

	split := newScaler(1)
	split.update(rows[:2])
	split.update(rows[2:])

	assert.InDelta(t, whole.mean[0], split.mean[0], 1e-12)
	assert.InDelta(t, whole.std(0), split.std(0), 1e-12)
	assert.InDelta(t, 4, whole.mean[0], 1e-12)
}

func TestModel_SnapshotRestore(t *testing.T) {
	m := New(2, 0.6)
	rows, labels := separable(42)
	require.NoError(t, m.PartialFit(rows, labels))

	restored := New(2, 0.6)
	require.NoError(t, restored.Restore(m.Snapshot()))

	x := []float64{0.7, 1}
	assert.Equal(t, m.PredictProba(x), restored.PredictProba(x))

	assert.ErrorIs(t, New(3, 0.6).Restore(m.Snapshot()), ErrFeatureMismatch)
}
