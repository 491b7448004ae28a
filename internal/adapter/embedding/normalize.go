package embedding

import "math"

// Normalize scales v to unit L2 length in place so that inner product equals
// cosine similarity. A zero vector is left unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// NormalizeAll normalizes every vector in place.
func NormalizeAll(vs [][]float32) [][]float32 {
	for _, v := range vs {
		Normalize(v)
	}
	return vs
}
