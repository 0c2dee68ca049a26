package ranking

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spigell/cv-ranker/internal/profile"
)

// Entry is one ranked candidate.
type Entry struct {
	Position  int                       `json:"position"`
	Candidate *profile.CandidateProfile `json:"candidate"`
	Score     profile.MatchScore        `json:"score"`
}

// Ranking is the ordered outcome of one run. Every input candidate appears
// exactly once, disqualified ones included.
type Ranking struct {
	RunID     string              `json:"run_id"`
	Job       *profile.JobProfile `json:"job"`
	Entries   []Entry             `json:"entries"`
	CreatedAt time.Time           `json:"created_at"`
}

// ReportLine is a flat, printable view of an Entry.
type ReportLine struct {
	Position   int               `json:"position"`
	Candidate  string            `json:"candidate"`
	FinalScore string            `json:"final_score"`
	Components map[string]string `json:"components,omitempty"`
	Reasons    []string          `json:"disqualification_reasons,omitempty"`
}

func (r *Ranking) Len() int {
	return len(r.Entries)
}

// Qualified returns entries that passed the killer check, best first.
func (r *Ranking) Qualified() []Entry {
	return r.filter(false)
}

// Disqualified returns entries rejected by the killer check.
func (r *Ranking) Disqualified() []Entry {
	return r.filter(true)
}

func (r *Ranking) filter(disqualified bool) []Entry {
	out := make([]Entry, 0, len(r.Entries))
	for _, e := range r.Entries {
		if e.Score.Disqualified == disqualified {
			out = append(out, e)
		}
	}
	return out
}

// Top returns at most n leading entries.
func (r *Ranking) Top(n int) []Entry {
	if n < 0 || n > len(r.Entries) {
		n = len(r.Entries)
	}
	return r.Entries[:n]
}

// Report renders every entry in ranking order.
func (r *Ranking) Report() []ReportLine {
	return reportLines(r.Entries)
}

// DisqualificationReport renders only the excluded candidates with reasons.
func (r *Ranking) DisqualificationReport() []ReportLine {
	return reportLines(r.Disqualified())
}

// Summary counts candidates per outcome.
func (r *Ranking) Summary() map[string]int {
	disqualified := len(r.Disqualified())
	return map[string]int{
		"total":        r.Len(),
		"qualified":    r.Len() - disqualified,
		"disqualified": disqualified,
	}
}

func reportLines(entries []Entry) []ReportLine {
	lines := make([]ReportLine, 0, len(entries))
	for _, e := range entries {
		line := ReportLine{
			Position:   e.Position,
			Candidate:  candidateName(e.Candidate),
			FinalScore: formatScore(e.Score.FinalScore),
		}
		if e.Score.Disqualified {
			line.Reasons = append([]string{}, e.Score.DisqualificationReasons...)
		} else {
			line.Components = make(map[string]string, len(profile.Categories))
			for _, c := range profile.Categories {
				line.Components[string(c)] = formatScore(e.Score.Component(c))
			}
		}
		lines = append(lines, line)
	}
	return lines
}

// String renders the ranking as a plain text table.
func (r *Ranking) String() string {
	return FormatEntries(r.Entries)
}

// FormatEntries renders entries as plain text table rows.
func FormatEntries(entries []Entry) string {
	var b strings.Builder
	for _, line := range reportLines(entries) {
		fmt.Fprintf(&b, "%3d. %-30s %s", line.Position, line.Candidate, line.FinalScore)
		if len(line.Reasons) > 0 {
			fmt.Fprintf(&b, "  DISQUALIFIED: %s", strings.Join(line.Reasons, "; "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// DumpToTmpFile writes the full ranking as indented JSON to a new temporary
// file and returns its name.
func (r *Ranking) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "ranking_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	return file.Name(), nil
}

func candidateName(c *profile.CandidateProfile) string {
	if c == nil {
		return ""
	}
	return c.Name
}

func formatScore(v float64) string {
	return fmt.Sprintf("%.3f", v)
}
