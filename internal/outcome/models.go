package outcome

import (
	"strings"

	"github.com/mind-engage/mindengage-obe/internal/apperr"
)

type Type string

const (
	TypeILO Type = "ILO"
	TypePLO Type = "PLO"
	TypeCLO Type = "CLO"
)

// Rank orders tiers bottom-up; rollups process lower ranks first.
func (t Type) Rank() int {
	switch t {
	case TypeCLO:
		return 0
	case TypePLO:
		return 1
	case TypeILO:
		return 2
	default:
		return -1
	}
}

type BloomsLevel string

const (
	BloomsRemember   BloomsLevel = "remember"
	BloomsUnderstand BloomsLevel = "understand"
	BloomsApply      BloomsLevel = "apply"
	BloomsAnalyze    BloomsLevel = "analyze"
	BloomsEvaluate   BloomsLevel = "evaluate"
	BloomsCreate     BloomsLevel = "create"
)

var bloomsOrder = []BloomsLevel{BloomsRemember, BloomsUnderstand, BloomsApply, BloomsAnalyze, BloomsEvaluate, BloomsCreate}

// ParseBlooms is case-insensitive.
func ParseBlooms(s string) (BloomsLevel, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, b := range bloomsOrder {
		if string(b) == s {
			return b, true
		}
	}
	return "", false
}

// Rank is 1 (remember) through 6 (create), 0 if unknown.
func (b BloomsLevel) Rank() int {
	for i, x := range bloomsOrder {
		if x == b {
			return i + 1
		}
	}
	return 0
}

type Outcome struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Type        Type        `json:"type"`
	BloomsLevel BloomsLevel `json:"blooms_level"`
	ProgramID   string      `json:"program_id,omitempty"`
	CourseID    string      `json:"course_id,omitempty"`
	Version     int         `json:"version"`
	IsActive    bool        `json:"is_active"`
	CreatedBy   string      `json:"created_by,omitempty"`
	CreatedAt   int64       `json:"created_at,omitempty"`
	UpdatedAt   int64       `json:"updated_at,omitempty"`
}

// Validate checks the type-dependent ownership rule: a CLO belongs to exactly one
// course, a PLO to exactly one program, and an ILO to neither.
func (o Outcome) Validate() error {
	ve := apperr.Validation("invalid learning outcome")
	if strings.TrimSpace(o.ID) == "" {
		ve.WithField("id", "required")
	}
	if strings.TrimSpace(o.Title) == "" {
		ve.WithField("title", "required")
	}
	if o.BloomsLevel.Rank() == 0 {
		ve.WithField("blooms_level", "must be one of remember, understand, apply, analyze, evaluate, create")
	}
	switch o.Type {
	case TypeCLO:
		if o.CourseID == "" {
			ve.WithField("course_id", "required for CLO")
		}
		if o.ProgramID != "" {
			ve.WithField("program_id", "must be empty for CLO")
		}
	case TypePLO:
		if o.ProgramID == "" {
			ve.WithField("program_id", "required for PLO")
		}
		if o.CourseID != "" {
			ve.WithField("course_id", "must be empty for PLO")
		}
	case TypeILO:
		if o.ProgramID != "" || o.CourseID != "" {
			ve.WithField("type", "ILO must not reference a program or course")
		}
	default:
		ve.WithField("type", "must be ILO, PLO or CLO")
	}
	if len(ve.Fields) > 0 {
		return ve
	}
	return nil
}

// Mapping is a weighted edge from a child outcome to its parent.
type Mapping struct {
	SourceID  string  `json:"source_outcome_id"`
	TargetID  string  `json:"target_outcome_id"`
	Weight    float64 `json:"weight"`
	CreatedBy string  `json:"created_by,omitempty"`
}

// Edge is one side of a Mapping as seen from a node.
type Edge struct {
	OutcomeID string  `json:"outcome_id"`
	Weight    float64 `json:"weight"`
}
