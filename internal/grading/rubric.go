package grading

import (
	"fmt"
	"strings"

	"github.com/mind-engage/mindengage-obe/internal/apperr"
)

// Level is one performance column of a rubric row.
type Level struct {
	Label       string  `json:"label"`
	Description string  `json:"description,omitempty"`
	Points      float64 `json:"points"`
}

// Criterion is one rubric row, tied to a single CLO.
type Criterion struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	OutcomeID   string  `json:"outcome_id"`
	MaxPoints   float64 `json:"max_points"`
	Weight      float64 `json:"weight,omitempty"`
	Levels      []Level `json:"levels"`
}

type Rubric struct {
	AssignmentID string      `json:"assignment_id,omitempty"`
	Criteria     []Criterion `json:"criteria"`
}

// MaxScore is the sum of every criterion's max points.
func (r Rubric) MaxScore() float64 {
	total := 0.0
	for _, c := range r.Criteria {
		total += c.MaxPoints
	}
	return total
}

func (r Rubric) Criterion(id string) (Criterion, bool) {
	for _, c := range r.Criteria {
		if c.ID == id {
			return c, true
		}
	}
	return Criterion{}, false
}

// OutcomeIDs returns the distinct outcomes the rubric's criteria map to, in criterion order.
func (r Rubric) OutcomeIDs() []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range r.Criteria {
		if !seen[c.OutcomeID] {
			seen[c.OutcomeID] = true
			out = append(out, c.OutcomeID)
		}
	}
	return out
}

// NewRubric validates criteria and returns the rubric. Every criterion must have
// the same level labels in the same order, at least two criteria and two levels
// are required, and level points must lie within [0, max_points].
func NewRubric(assignmentID string, criteria []Criterion) (Rubric, error) {
	ve := apperr.Validation("invalid rubric")
	if len(criteria) < 2 {
		ve.WithField("criteria", fmt.Sprintf("at least 2 criteria required, got %d", len(criteria)))
		return Rubric{}, ve
	}

	seen := map[string]bool{}
	var labels []string
	out := make([]Criterion, len(criteria))
	for i, c := range criteria {
		field := fmt.Sprintf("criteria[%d]", i)
		c.ID = strings.TrimSpace(c.ID)
		switch {
		case c.ID == "":
			ve.WithField(field+".id", "required")
		case seen[c.ID]:
			ve.WithField(field+".id", "duplicate criterion id "+c.ID)
		}
		seen[c.ID] = true
		if strings.TrimSpace(c.OutcomeID) == "" {
			ve.WithField(field+".outcome_id", "required")
		}
		if c.MaxPoints <= 0 {
			ve.WithField(field+".max_points", "must be positive")
		}
		if c.Weight < 0 {
			ve.WithField(field+".weight", "must not be negative")
		}
		if c.Weight == 0 {
			c.Weight = 1
		}
		if len(c.Levels) < 2 {
			ve.WithField(field+".levels", fmt.Sprintf("at least 2 levels required, got %d", len(c.Levels)))
		}
		for j, l := range c.Levels {
			if l.Points < 0 || l.Points > c.MaxPoints {
				ve.WithField(fmt.Sprintf("%s.levels[%d].points", field, j), fmt.Sprintf("must be within [0, %g]", c.MaxPoints))
			}
		}

		cur := levelLabels(c.Levels)
		if i == 0 {
			labels = cur
		} else if !sameLabels(labels, cur) {
			ve.WithField(field+".levels", fmt.Sprintf("levels %v do not match the rubric columns %v", cur, labels))
		}
		out[i] = c
	}
	if len(ve.Fields) > 0 {
		return Rubric{}, ve
	}
	return Rubric{AssignmentID: assignmentID, Criteria: out}, nil
}

func levelLabels(ls []Level) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = strings.TrimSpace(l.Label)
	}
	return out
}

func sameLabels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}
