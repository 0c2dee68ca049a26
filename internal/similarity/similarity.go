// Package similarity measures how well one list of text fragments covers
// another using embedding vectors.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/spigell/cv-ranker/internal/ai"
)

var (
	ErrDimensionMismatch = errors.New("embedding dimensions differ")
	ErrZeroVector        = errors.New("embedding has zero length")
	ErrEmptyVector       = errors.New("embedding is empty")
)

// Engine computes coverage similarity. It is safe for concurrent use as long
// as the embedder is.
type Engine struct {
	embedder ai.Embedder
}

func New(embedder ai.Embedder) *Engine {
	return &Engine{embedder: embedder}
}

// Coverage scores how well attributes cover requirements, in [0,1]. For every
// requirement the best matching attribute is taken, then the maxima are
// averaged. The measure is asymmetric on purpose.
//
// An empty requirement list is trivially covered (1.0). Requirements against
// an empty attribute list score 0.0.
func (e *Engine) Coverage(ctx context.Context, requirements, attributes []string) (float64, error) {
	if len(requirements) == 0 {
		return 1.0, nil
	}
	if len(attributes) == 0 {
		return 0.0, nil
	}

	matrix, err := e.Matrix(ctx, requirements, attributes)
	if err != nil {
		return 0, err
	}

	total := 0.0
	for _, row := range matrix {
		total += clamp01(maxOf(row))
	}

	return total / float64(len(matrix)), nil
}

// Matrix returns S[i][j], the cosine similarity between rows[i] and cols[j].
func (e *Engine) Matrix(ctx context.Context, rows, cols []string) ([][]float64, error) {
	vectors := make(map[string][]float64, len(rows)+len(cols))
	dim := -1

	for _, text := range append(append([]string{}, rows...), cols...) {
		if _, ok := vectors[text]; ok {
			continue
		}

		vec, err := e.embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed %q: %w", text, err)
		}

		normalized, err := Normalize(vec)
		if err != nil {
			return nil, ai.NewTransportError("embed", fmt.Errorf("%q: %w", text, err))
		}

		if dim == -1 {
			dim = len(normalized)
		} else if len(normalized) != dim {
			return nil, ai.NewTransportError("embed", fmt.Errorf("%q: %w: %d != %d", text, ErrDimensionMismatch, len(normalized), dim))
		}

		vectors[text] = normalized
	}

	matrix := make([][]float64, len(rows))
	for i, r := range rows {
		matrix[i] = make([]float64, len(cols))
		for j, c := range cols {
			matrix[i][j] = dot(vectors[r], vectors[c])
		}
	}

	return matrix, nil
}

// Normalize returns a unit-length copy of vec.
func Normalize(vec []float64) ([]float64, error) {
	if len(vec) == 0 {
		return nil, ErrEmptyVector
	}

	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, ErrZeroVector
	}

	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out, nil
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func maxOf(row []float64) float64 {
	best := math.Inf(-1)
	for _, v := range row {
		if v > best {
			best = v
		}
	}
	return best
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
