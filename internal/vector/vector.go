// Package vector holds the small amount of linear algebra the topic pipeline
// needs: similarity, averaging, and count-weighted centroid updates.
package vector

import "math"

// Cosine returns the cosine similarity of a and b. Zero-norm vectors and
// mismatched lengths yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Euclidean returns the L2 distance between a and b. Mismatched lengths
// compare over the shorter prefix.
func Euclidean(a, b []float32) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Mean returns the arithmetic mean of vectors, or nil for an empty input.
// All vectors must share the first vector's dimensionality; extra
// components are ignored and missing ones count as zero.
func Mean(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	acc := make([]float64, dim)
	for _, v := range vectors {
		for i := 0; i < dim && i < len(v); i++ {
			acc[i] += float64(v[i])
		}
	}
	out := make([]float32, dim)
	n := float64(len(vectors))
	for i := range acc {
		out[i] = float32(acc[i] / n)
	}
	return out
}

// Blend merges an incoming centroid into an existing one, weighting each by
// the number of observations it represents:
//
//	(old*oldN + incoming*incomingN) / (oldN + incomingN)
//
// The result is a convex combination of the two inputs. When both weights
// are zero the incoming vector is returned.
func Blend(old []float32, oldN int, incoming []float32, incomingN int) []float32 {
	if oldN < 0 {
		oldN = 0
	}
	if incomingN < 0 {
		incomingN = 0
	}
	total := oldN + incomingN
	if total == 0 || len(old) == 0 {
		return append([]float32(nil), incoming...)
	}
	wo := float64(oldN) / float64(total)
	wi := float64(incomingN) / float64(total)
	out := make([]float32, len(old))
	for i := range old {
		var in float64
		if i < len(incoming) {
			in = float64(incoming[i])
		}
		out[i] = float32(float64(old[i])*wo + in*wi)
	}
	return out
}
