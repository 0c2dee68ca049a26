// Package aitest provides deterministic fakes of the ai collaborators.
package aitest

import (
	"context"
	"fmt"
	"sync"
)

// Embedder returns fixed vectors from a lookup table and counts calls.
type Embedder struct {
	Vectors map[string][]float64
	Errors  map[string]error

	mu    sync.Mutex
	calls map[string]int
}

func NewEmbedder(vectors map[string][]float64) *Embedder {
	return &Embedder{Vectors: vectors, Errors: map[string]error{}}
}

func (e *Embedder) Embed(_ context.Context, text string) ([]float64, error) {
	e.mu.Lock()
	if e.calls == nil {
		e.calls = make(map[string]int)
	}
	e.calls[text]++
	e.mu.Unlock()

	if err, ok := e.Errors[text]; ok {
		return nil, err
	}

	vec, ok := e.Vectors[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}

	return append([]float64(nil), vec...), nil
}

// Calls returns how many times text was embedded.
func (e *Embedder) Calls(text string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[text]
}

// TotalCalls returns the number of Embed invocations.
func (e *Embedder) TotalCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := 0
	for _, n := range e.calls {
		total += n
	}
	return total
}
