// Vitascope - Film Curation and Semantic Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitascope

package recommend

// WeightedVector is one reference vector with its preference weight.
// Negative weights steer the preference vector away from the reference.
type WeightedVector struct {
	Values []float32
	Weight float64
}

// WeightedAverage combines reference vectors into a single preference
// vector: each component contributes value x weight, normalized by the sum
// of absolute weights. With all-positive weights the result's magnitude
// never exceeds the largest input magnitude; a single weight-1.0 reference
// passes through unchanged.
func WeightedAverage(refs []WeightedVector) []float32 {
	if len(refs) == 0 {
		return nil
	}

	dim := len(refs[0].Values)
	sum := make([]float64, dim)
	var totalWeight float64

	for _, r := range refs {
		if len(r.Values) != dim {
			continue
		}
		for i, v := range r.Values {
			sum[i] += float64(v) * r.Weight
		}
		totalWeight += abs(r.Weight)
	}
	if totalWeight == 0 {
		return nil
	}

	out := make([]float32, dim)
	for i := range sum {
		out[i] = float32(sum[i] / totalWeight)
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
