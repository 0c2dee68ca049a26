package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	FieldProvider  = "ai_provider"
	FieldModel     = "ai_model"
	FieldRunID     = "run_id"
	FieldCandidate = "candidate"
)

// StringField is a key/value pair that is dropped when either side is blank.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts pairs into zap fields, trimming whitespace and
// skipping blanks.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		value := strings.TrimSpace(field.Value)
		if key == "" || value == "" {
			continue
		}
		result = append(result, zap.String(key, value))
	}
	return result
}

// WithFields attaches fields to logger. A nil logger becomes a no-op one.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

// CommonFields describe the AI provider and model serving a request.
func CommonFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// CandidateFields identify a candidate in per-candidate log lines. Years are
// only attached when known.
func CandidateFields(name string, years float64) []zap.Field {
	fields := StringFields(StringField{Key: FieldCandidate, Value: name})
	if years > 0 {
		fields = append(fields, zap.Float64("years_experience", years))
	}
	return fields
}

// RunFields tag every line of one ranking run.
func RunFields(runID string, candidates int) []zap.Field {
	fields := StringFields(StringField{Key: FieldRunID, Value: runID})
	return append(fields, zap.Int("candidates_total", candidates))
}
