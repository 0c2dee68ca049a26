package gemini

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/spigell/cv-ranker/internal/ai"
	"github.com/spigell/cv-ranker/internal/profile"
	"github.com/spigell/cv-ranker/internal/utils"
)

var (
	//go:embed prompts/job.md
	jobPrompt string
	//go:embed prompts/candidate.md
	candidatePrompt string
	//go:embed schemas/job.schema.json
	jobSchema string
	//go:embed schemas/candidate.schema.json
	candidateSchema string
)

var leadingNumber = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

type generator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
}

// Standardizer converts raw job and resume texts into profiles with a
// generative model.
type Standardizer struct {
	generator generator
	logger    *zap.Logger
	maxLogLen int
}

type jobOutput struct {
	Title           string   `json:"title"`
	RequiredSkills  []string `json:"required_skills"`
	PreferredSkills []string `json:"preferred_skills"`
	Experience      []string `json:"experience"`
	Education       []string `json:"education"`
	YearsRequired   float64  `json:"years_required"`
	Killer          struct {
		Skills     []string `json:"skills"`
		Experience []string `json:"experience"`
	} `json:"killer"`
}

type candidateOutput struct {
	Name            string   `json:"name"`
	Skills          []string `json:"skills"`
	Experience      []string `json:"experience"`
	Education       []string `json:"education"`
	YearsExperience float64  `json:"years_experience"`
}

func NewStandardizer(g generator, l *zap.Logger, maxLogLength int) *Standardizer {
	if l == nil {
		l = zap.NewNop()
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &Standardizer{generator: g, logger: l, maxLogLen: maxLogLength}
}

// StandardizeJob extracts a job profile from the description. Preferences are
// free text from the recruiter and may be empty.
func (s *Standardizer) StandardizeJob(ctx context.Context, description, preferences string) (*profile.JobProfile, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, errors.New("job description must not be empty")
	}

	preferences = strings.TrimSpace(preferences)
	if preferences == "" {
		preferences = "none"
	}
	message := fmt.Sprintf("Job description:\n%s\n\nRecruiter preferences:\n%s", description, preferences)

	data, err := s.generate(ctx, "job", jobPrompt, jobSchema, message)
	if err != nil {
		return nil, err
	}
	data["years_required"] = coerceYears(data["years_required"])

	var out jobOutput
	if err := weakDecode(data, &out); err != nil {
		return nil, ai.NewTransportError("standardize job", err)
	}

	return profile.NewJobProfile(profile.JobProfile{
		Title:           out.Title,
		RequiredSkills:  dropBlank(out.RequiredSkills),
		PreferredSkills: dropBlank(out.PreferredSkills),
		Experience:      dropBlank(out.Experience),
		Education:       dropBlank(out.Education),
		YearsRequired:   out.YearsRequired,
		Killer: profile.KillerCriteria{
			Skills:     dropBlank(out.Killer.Skills),
			Experience: dropBlank(out.Killer.Experience),
		},
	})
}

// StandardizeCandidate extracts a candidate profile from a resume text.
func (s *Standardizer) StandardizeCandidate(ctx context.Context, resume string) (*profile.CandidateProfile, error) {
	resume = strings.TrimSpace(resume)
	if resume == "" {
		return nil, errors.New("resume text must not be empty")
	}

	data, err := s.generate(ctx, "candidate", candidatePrompt, candidateSchema, "Resume:\n"+resume)
	if err != nil {
		return nil, err
	}
	data["years_experience"] = coerceYears(data["years_experience"])

	var out candidateOutput
	if err := weakDecode(data, &out); err != nil {
		return nil, ai.NewTransportError("standardize candidate", err)
	}

	return profile.NewCandidateProfile(profile.CandidateProfile{
		Name:            out.Name,
		Skills:          dropBlank(out.Skills),
		Experience:      dropBlank(out.Experience),
		Education:       dropBlank(out.Education),
		YearsExperience: out.YearsExperience,
		Raw:             data,
	})
}

func (s *Standardizer) generate(ctx context.Context, kind, system, schema, message string) (map[string]any, error) {
	op := "standardize " + kind

	raw, err := s.generator.GenerateContent(ctx, system, message)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Debug("standardizer output",
		zap.String("kind", kind),
		zap.String("response_preview", utils.TruncateForLog(raw, s.maxLogLen)),
	)

	var data map[string]any
	if err := json.Unmarshal([]byte(extractJSON(raw)), &data); err != nil {
		return nil, ai.NewTransportError(op, fmt.Errorf("parse model output: %w", err))
	}
	if data == nil {
		return nil, ai.NewTransportError(op, errors.New("model output is not a JSON object"))
	}

	if err := validateSchema(schema, data); err != nil {
		return nil, ai.NewTransportError(op, err)
	}

	return data, nil
}

func validateSchema(schema string, data map[string]any) error {
	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(schema), gojsonschema.NewGoLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("model output does not match schema: %s", strings.Join(problems, "; "))
}

func weakDecode(input map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// extractJSON strips markdown fences the model sometimes adds.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

// coerceYears turns "5+ years" and similar answers into a number. Anything
// unparsable becomes 0, meaning unknown.
func coerceYears(v any) float64 {
	var years float64
	switch val := v.(type) {
	case float64:
		years = val
	case string:
		m := leadingNumber.FindString(val)
		if m == "" {
			return 0
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
		if err != nil {
			return 0
		}
		years = f
	default:
		return 0
	}
	if math.IsNaN(years) || math.IsInf(years, 0) || years < 0 {
		return 0
	}
	return years
}

func dropBlank(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		if strings.TrimSpace(item) != "" {
			out = append(out, item)
		}
	}
	return out
}
