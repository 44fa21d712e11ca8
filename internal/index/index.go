package index

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// scoreTolerance treats scores closer than this as equal so ties resolve by
// insertion order instead of float noise.
const scoreTolerance = 1e-6

var ErrDimension = errors.New("vector dimension mismatch")

type Hit struct {
	ID    int
	Score float32
}

// Index is an immutable set of L2 normalised vectors. It is safe for
// concurrent queries.
type Index struct {
	dim     int
	vectors [][]float32
}

// Build copies and normalises vectors. The id of a vector is its position.
// Zero vectors are kept and score 0 against every query.
func Build(vectors [][]float32) (*Index, error) {
	idx := &Index{vectors: make([][]float32, len(vectors))}
	for i, v := range vectors {
		if i == 0 {
			idx.dim = len(v)
		}
		if len(v) == 0 || len(v) != idx.dim {
			return nil, fmt.Errorf("%w: vector %d has %d, want %d", ErrDimension, i, len(v), idx.dim)
		}
		idx.vectors[i] = normalize(v)
	}
	return idx, nil
}

func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.vectors)
}

func (idx *Index) Dimension() int {
	if idx == nil {
		return 0
	}
	return idx.dim
}

// Query returns the k best hits by cosine similarity, highest first. k
// larger than the index returns every entry, k <= 0 returns nothing.
func (idx *Index) Query(vec []float32, k int) ([]Hit, error) {
	if idx.Len() == 0 || k <= 0 {
		return []Hit{}, nil
	}
	if len(vec) != idx.dim {
		return nil, fmt.Errorf("%w: query has %d, index %d", ErrDimension, len(vec), idx.dim)
	}
	q := normalize(vec)
	hits := make([]Hit, len(idx.vectors))
	for i, v := range idx.vectors {
		hits[i] = Hit{ID: i, Score: dot(q, v)}
	}
	rankHits(hits)
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// rankHits orders by score bucket of width scoreTolerance, then by ID.
func rankHits(hits []Hit) {
	buckets := make(map[int]float64, len(hits))
	for _, h := range hits {
		buckets[h.ID] = math.Round(float64(h.Score) / scoreTolerance)
	}
	sort.Slice(hits, func(i, j int) bool {
		bi, bj := buckets[hits[i].ID], buckets[hits[j].ID]
		if bi != bj {
			return bi > bj
		}
		return hits[i].ID < hits[j].ID
	})
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}
