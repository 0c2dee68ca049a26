package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/cv-ranker/internal/ai"
	"github.com/spigell/cv-ranker/internal/profile"
)

type stubGenerator struct {
	response    string
	err         error
	lastSystem  string
	lastMessage string
}

func (s *stubGenerator) GenerateContent(_ context.Context, system, message string) (string, error) {
	s.lastSystem = system
	s.lastMessage = message
	return s.response, s.err
}

func TestStandardizeJob(t *testing.T) {
	stub := &stubGenerator{response: "```json\n" + `{
		"title": "Data Engineer",
		"required_skills": ["Python", "SQL", " "],
		"preferred_skills": ["Airflow"],
		"experience": ["building ETL pipelines"],
		"education": ["BSc Computer Science"],
		"years_required": "3+ years",
		"killer": {"skills": ["Python"], "experience": []}
	}` + "\n```"}

	job, err := NewStandardizer(stub, nil, 0).StandardizeJob(context.Background(), "We need a data engineer", "Airflow is a plus")
	require.NoError(t, err)

	assert.Equal(t, "Data Engineer", job.Title)
	assert.Equal(t, []string{"Python", "SQL"}, job.RequiredSkills)
	assert.Equal(t, []string{"Airflow"}, job.PreferredSkills)
	assert.Equal(t, 3.0, job.YearsRequired)
	assert.Equal(t, []string{"Python"}, job.Killer.Skills)
	assert.NotNil(t, job.Killer.Experience)

	assert.Equal(t, jobPrompt, stub.lastSystem)
	assert.Contains(t, stub.lastMessage, "We need a data engineer")
	assert.Contains(t, stub.lastMessage, "Airflow is a plus")
}

func TestStandardizeJobWithoutPreferences(t *testing.T) {
	stub := &stubGenerator{response: `{"title": "Dev", "required_skills": [], "experience": [], "education": [], "killer": null}`}

	job, err := NewStandardizer(stub, nil, 0).StandardizeJob(context.Background(), "Dev wanted", "")
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(stub.lastMessage, "Recruiter preferences:\nnone"))
	assert.Empty(t, job.PreferredSkills)
	assert.NotNil(t, job.PreferredSkills)
	assert.True(t, job.Killer.IsEmpty())
	assert.Zero(t, job.YearsRequired)
}

func TestStandardizeCandidate(t *testing.T) {
	stub := &stubGenerator{response: `{
		"name": "Ana Lima",
		"skills": ["Go", "PostgreSQL"],
		"experience": ["backend developer at a bank"],
		"education": [],
		"years_experience": 6
	}`}

	c, err := NewStandardizer(stub, nil, 0).StandardizeCandidate(context.Background(), "Ana Lima, backend developer")
	require.NoError(t, err)

	assert.Equal(t, "Ana Lima", c.Name)
	assert.Equal(t, []string{"Go", "PostgreSQL"}, c.Skills)
	assert.Equal(t, 6.0, c.YearsExperience)
	assert.Equal(t, "Ana Lima", c.Raw["name"])
	assert.Equal(t, candidatePrompt, stub.lastSystem)
}

func TestStandardizeRejectsSchemaViolations(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{name: "not json", response: "I cannot help with that"},
		{name: "missing skills", response: `{"name": "Ana", "experience": [], "education": []}`},
		{name: "wrong type", response: `{"name": "Ana", "skills": "Go", "experience": [], "education": []}`},
		{name: "array root", response: `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStandardizer(&stubGenerator{response: tt.response}, nil, 0).StandardizeCandidate(context.Background(), "resume")
			require.Error(t, err)
			assert.True(t, ai.IsTransport(err))
		})
	}
}

func TestStandardizeSurfacesValidationErrors(t *testing.T) {
	stub := &stubGenerator{response: `{"name": "  ", "skills": [], "experience": [], "education": []}`}

	_, err := NewStandardizer(stub, nil, 0).StandardizeCandidate(context.Background(), "resume")

	var vErr *profile.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "candidate.Name", vErr.Field)
}

func TestStandardizePropagatesGeneratorErrors(t *testing.T) {
	boom := ai.NewTransportError("gemini generate", errors.New("unavailable"))

	_, err := NewStandardizer(&stubGenerator{err: boom}, nil, 0).StandardizeJob(context.Background(), "job", "")
	assert.ErrorIs(t, err, boom)
}

func TestStandardizeRequiresText(t *testing.T) {
	s := NewStandardizer(&stubGenerator{}, nil, 0)

	_, err := s.StandardizeJob(context.Background(), "  ", "")
	assert.Error(t, err)
	_, err = s.StandardizeCandidate(context.Background(), "")
	assert.Error(t, err)
}

func TestCoerceYears(t *testing.T) {
	tests := []struct {
		in   any
		want float64
	}{
		{in: 4.0, want: 4},
		{in: "5+ years", want: 5},
		{in: "2,5 anos", want: 2.5},
		{in: "several", want: 0},
		{in: nil, want: 0},
		{in: -3.0, want: 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, coerceYears(tt.in), "input %v", tt.in)
	}
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, extractJSON("```\n{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, extractJSON(`  {"a":1} `))
}
