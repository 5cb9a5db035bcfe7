// Package vector holds the embedding math shared by the similarity,
// storage and search layers.
package vector

import (
	"encoding/binary"
	"errors"
	"math"
	"sort"
)

// ErrBlobLength is returned when a blob is not a whole number of float32s
var ErrBlobLength = errors.New("vector blob length is not a multiple of 4")

// Serialize converts a float32 slice to a little-endian byte blob
func Serialize(v []float32) []byte {
	blob := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(f))
	}
	return blob
}

// Deserialize converts a little-endian byte blob back to a float32 slice
func Deserialize(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, ErrBlobLength
	}
	v := make([]float32, len(blob)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return v, nil
}

// Cosine computes dot(a,b) / (|a| * |b|).
// Returns 0 when the lengths differ or either norm is zero, and clamps
// rounding error into [-1, 1].
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	s := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	switch {
	case math.IsNaN(s):
		return 0
	case s > 1:
		return 1
	case s < -1:
		return -1
	}
	return s
}

// Normalize scales v to unit length in place. Zero vectors are left alone.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// Scored is an index into a candidate list with its score
type Scored struct {
	Index int
	Score float64
}

// TopN ranks scores descending and returns at most n entries.
// Equal scores keep input order. n <= 0 returns everything.
func TopN(scores []Scored, n int) []Scored {
	ranked := make([]Scored, len(scores))
	copy(ranked, scores)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if n > 0 && n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}
