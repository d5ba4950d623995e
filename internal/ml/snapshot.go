package ml

import "github.com/pkg/errors"

// Snapshot serializable model state.
type Snapshot struct {
	Threshold float64   `json:"threshold"`
	Count     float64   `json:"count"`
	Mean      []float64 `json:"mean"`
	M2        []float64 `json:"m2"`
	Weights   []float64 `json:"weights"`
	Bias      float64   `json:"bias"`
	Trained   bool      `json:"trained"`
}

// Snapshot captures the model so it survives restarts.
func (m *Model) Snapshot() Snapshot {
	return Snapshot{
		Threshold: m.threshold,
		Count:     m.scaler.count,
		Mean:      append([]float64(nil), m.scaler.mean...),
		M2:        append([]float64(nil), m.scaler.m2...),
		Weights:   append([]float64(nil), m.weights...),
		Bias:      m.bias,
		Trained:   m.trained,
	}
}

// Restore loads learned state. The configured threshold is kept.
func (m *Model) Restore(s Snapshot) error {
	if len(s.Mean) != m.nFeatures || len(s.M2) != m.nFeatures || len(s.Weights) != m.nFeatures {
		return errors.Wrapf(ErrFeatureMismatch, "snapshot has %d weights, want %d", len(s.Weights), m.nFeatures)
	}

	m.scaler = scaler{
		count: s.Count,
		mean:  append([]float64(nil), s.Mean...),
		m2:    append([]float64(nil), s.M2...),
	}
	m.weights = append([]float64(nil), s.Weights...)
	m.bias = s.Bias
	m.trained = s.Trained
	return nil
}
