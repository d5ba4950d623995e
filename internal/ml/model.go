// Package ml holds the online entry filter: a logistic regression trained one
// bar at a time on standardized indicator features.
package ml

import (
	"math"

	"github.com/pkg/errors"
)

const (
	// DefaultThreshold minimum probability for ShouldEnter.
	DefaultThreshold = 0.55

	defaultLearningRate = 0.01
	defaultL2           = 1e-4
)

// ErrFeatureMismatch is returned when a row has the wrong number of features.
var ErrFeatureMismatch = errors.New("feature count mismatch")

// Model online logistic regression with running standardization.
// It is not safe for concurrent use; the trading loop owns it.
type Model struct {
	nFeatures    int
	threshold    float64
	learningRate float64
	l2           float64

	scaler  scaler
	weights []float64
	bias    float64
	trained bool
}

// Option configures the model.
type Option func(*Model)

// WithLearningRate sets the SGD step size.
func WithLearningRate(rate float64) Option {
	return func(m *Model) {
		if rate > 0 {
			m.learningRate = rate
		}
	}
}

// WithL2 sets the weight decay.
func WithL2(alpha float64) Option {
	return func(m *Model) {
		if alpha >= 0 {
			m.l2 = alpha
		}
	}
}

// New creates an untrained model for nFeatures inputs.
func New(nFeatures int, threshold float64, opts ...Option) *Model {
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultThreshold
	}
	m := &Model{
		nFeatures:    nFeatures,
		threshold:    threshold,
		learningRate: defaultLearningRate,
		l2:           defaultL2,
		scaler:       newScaler(nFeatures),
		weights:      make([]float64, nFeatures),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Threshold returns the entry probability threshold.
func (m *Model) Threshold() float64 {
	return m.threshold
}

// Trained reports whether PartialFit has seen at least one row.
func (m *Model) Trained() bool {
	return m.trained
}

// PartialFit updates the scaler with the batch, then runs one SGD pass over it.
// Rows containing NaN are skipped; labels must be 0 or 1.
func (m *Model) PartialFit(rows [][]float64, labels []int) error {
	if len(rows) != len(labels) {
		return errors.Errorf("rows and labels length differ: %d vs %d", len(rows), len(labels))
	}

	clean := make([][]float64, 0, len(rows))
	targets := make([]float64, 0, len(rows))
	for i, row := range rows {
		if len(row) != m.nFeatures {
			return errors.Wrapf(ErrFeatureMismatch, "row %d has %d features, want %d", i, len(row), m.nFeatures)
		}
		if labels[i] != 0 && labels[i] != 1 {
			return errors.Errorf("label %d at row %d is not binary", labels[i], i)
		}
		if hasNaN(row) {
			continue
		}
		clean = append(clean, row)
		targets = append(targets, float64(labels[i]))
	}
	if len(clean) == 0 {
		return nil
	}

	m.scaler.update(clean)
	for i, row := range clean {
		z := m.scaler.transform(row)
		grad := sigmoid(m.dot(z)) - targets[i]
		for j := range m.weights {
			m.weights[j] -= m.learningRate * (grad*z[j] + m.l2*m.weights[j])
		}
		m.bias -= m.learningRate * grad
	}
	m.trained = true

	return nil
}

// PredictProba returns the probability that the next close is higher.
// An untrained model and malformed rows yield 0.5.
func (m *Model) PredictProba(row []float64) float64 {
	if !m.trained || len(row) != m.nFeatures || hasNaN(row) {
		return 0.5
	}
	return sigmoid(m.dot(m.scaler.transform(row)))
}

// ShouldEnter reports whether probability clears the threshold.
func (m *Model) ShouldEnter(probability float64) bool {
	return probability >= m.threshold
}

func (m *Model) dot(z []float64) float64 {
	sum := m.bias
	for j, w := range m.weights {
		sum += w * z[j]
	}
	return sum
}

func sigmoid(x float64) float64 {
	// split keeps exp from overflowing for large |x|
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func hasNaN(row []float64) bool {
	for _, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}
