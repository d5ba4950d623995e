package ml

import "math"

// scaler running per-feature mean and population variance (Chan et al. merge).
type scaler struct {
	count float64
	mean  []float64
	m2    []float64
}

func newScaler(n int) scaler {
	return scaler{mean: make([]float64, n), m2: make([]float64, n)}
}

func (s *scaler) update(rows [][]float64) {
	n := float64(len(rows))
	if n == 0 {
		return
	}

	for j := range s.mean {
		var batchMean float64
		for _, row := range rows {
			batchMean += row[j]
		}
		batchMean /= n

		var batchM2 float64
		for _, row := range rows {
			d := row[j] - batchMean
			batchM2 += d * d
		}

		total := s.count + n
		delta := batchMean - s.mean[j]
		s.mean[j] += delta * n / total
		s.m2[j] += batchM2 + delta*delta*s.count*n/total
	}
	s.count += n
}

func (s *scaler) transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		std := s.std(j)
		if std == 0 {
			out[j] = v - s.mean[j]
			continue
		}
		out[j] = (v - s.mean[j]) / std
	}
	return out
}

func (s *scaler) std(j int) float64 {
	if s.count == 0 {
		return 0
	}
	return math.Sqrt(s.m2[j] / s.count)
}
