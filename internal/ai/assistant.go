// Package ai declares the external collaborators the ranking pipeline talks
// to: a text standardizer and an embedding provider.
package ai

import (
	"context"

	"github.com/spigell/cv-ranker/internal/profile"
)

// Embedder maps a text fragment to a fixed-length vector. All calls within one
// ranking run must go to the same model.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Standardizer converts raw job and resume text into structured profiles.
type Standardizer interface {
	StandardizeJob(ctx context.Context, description, preferences string) (*profile.JobProfile, error)
	StandardizeCandidate(ctx context.Context, resume string) (*profile.CandidateProfile, error)
}

// EmbedderFunc adapts a plain function to the Embedder interface.
type EmbedderFunc func(ctx context.Context, text string) ([]float64, error)

func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float64, error) {
	return f(ctx, text)
}
