// Package profile holds the standardized job and candidate records the ranking
// pipeline works on, together with the weights and score values it produces.
package profile

import (
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Category names one of the four scored sections of a match.
type Category string

const (
	CategorySkills               Category = "skills"
	CategoryExperience           Category = "experience"
	CategoryEducation            Category = "education"
	CategoryRecruiterPreferences Category = "recruiter_preferences"
)

// Categories lists every scored category in reporting order.
var Categories = []Category{
	CategorySkills,
	CategoryExperience,
	CategoryEducation,
	CategoryRecruiterPreferences,
}

// JobProfile is the standardized form of a job description plus the hiring
// preferences. It is read-only once built by NewJobProfile.
type JobProfile struct {
	Title           string   `json:"title" validate:"required"`
	RequiredSkills  []string `json:"required_skills" validate:"dive,required"`
	PreferredSkills []string `json:"preferred_skills" validate:"dive,required"`
	Experience      []string `json:"experience" validate:"dive,required"`
	Education       []string `json:"education" validate:"dive,required"`
	// YearsRequired is zero when the description does not state a year count.
	YearsRequired float64 `json:"years_required,omitempty" validate:"gte=0"`
	// Killer holds hard requirements the standardizer found in the text. Ranking
	// never reads it directly; callers decide whether to pass it along.
	Killer KillerCriteria `json:"killer"`
}

// CandidateProfile is the standardized form of a single resume.
type CandidateProfile struct {
	Name       string   `json:"name" validate:"required"`
	Skills     []string `json:"skills" validate:"dive,required"`
	Experience []string `json:"experience" validate:"dive,required"`
	Education  []string `json:"education" validate:"dive,required"`
	// YearsExperience is zero when the resume does not expose a year count.
	YearsExperience float64 `json:"years_experience,omitempty" validate:"gte=0"`
	// Raw keeps the standardizer output for display. It is never scored.
	Raw map[string]any `json:"raw,omitempty"`
}

// KillerCriteria are mandatory phrases a candidate has to cover closely.
type KillerCriteria struct {
	Skills     []string `json:"skills" mapstructure:"skills" validate:"dive,required"`
	Experience []string `json:"experience" mapstructure:"experience" validate:"dive,required"`
}

// IsEmpty reports whether no disqualification check has to run.
func (k *KillerCriteria) IsEmpty() bool {
	return k == nil || (len(k.Skills) == 0 && len(k.Experience) == 0)
}

// AllSkills returns required skills followed by preferred ones.
func (j *JobProfile) AllSkills() []string {
	out := make([]string, 0, len(j.RequiredSkills)+len(j.PreferredSkills))
	out = append(out, j.RequiredSkills...)
	return append(out, j.PreferredSkills...)
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// NewJobProfile normalizes and validates a job profile, returning a copy the
// caller cannot alias.
func NewJobProfile(p JobProfile) (*JobProfile, error) {
	job := JobProfile{
		Title:           strings.TrimSpace(p.Title),
		RequiredSkills:  cleanList(p.RequiredSkills),
		PreferredSkills: cleanList(p.PreferredSkills),
		Experience:      cleanList(p.Experience),
		Education:       cleanList(p.Education),
		YearsRequired:   p.YearsRequired,
		Killer: KillerCriteria{
			Skills:     cleanList(p.Killer.Skills),
			Experience: cleanList(p.Killer.Experience),
		},
	}

	if err := structValidator().Struct(&job); err != nil {
		return nil, toValidationError("job", err)
	}

	return &job, nil
}

// NewCandidateProfile normalizes and validates a candidate profile.
func NewCandidateProfile(p CandidateProfile) (*CandidateProfile, error) {
	candidate := CandidateProfile{
		Name:            strings.TrimSpace(p.Name),
		Skills:          cleanList(p.Skills),
		Experience:      cleanList(p.Experience),
		Education:       cleanList(p.Education),
		YearsExperience: p.YearsExperience,
		Raw:             p.Raw,
	}

	if err := structValidator().Struct(&candidate); err != nil {
		return nil, toValidationError("candidate", err)
	}

	return &candidate, nil
}

// NewKillerCriteria normalizes and validates the lists. It returns nil when
// both are empty.
func NewKillerCriteria(skills, experience []string) (*KillerCriteria, error) {
	k := &KillerCriteria{
		Skills:     cleanList(skills),
		Experience: cleanList(experience),
	}
	if err := k.Validate(); err != nil {
		return nil, err
	}
	if k.IsEmpty() {
		return nil, nil
	}
	return k, nil
}

// Validate rejects blank phrases. Nil or empty criteria are valid.
func (k *KillerCriteria) Validate() error {
	if k == nil {
		return nil
	}
	clean := KillerCriteria{
		Skills:     cleanList(k.Skills),
		Experience: cleanList(k.Experience),
	}
	if err := structValidator().Struct(&clean); err != nil {
		return toValidationError("killer", err)
	}
	return nil
}

// cleanList trims entries and always returns a non-nil slice. Blank entries are
// kept so that validation can reject them.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		out = append(out, strings.TrimSpace(item))
	}
	return out
}

func toValidationError(kind string, err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Field: kind, Reason: err.Error()}
	}

	first := fieldErrs[0]
	return &ValidationError{
		Field:  kind + "." + first.Namespace()[strings.Index(first.Namespace(), ".")+1:],
		Reason: "failed on the '" + first.Tag() + "' rule",
	}
}
