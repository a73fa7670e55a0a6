package grading

import (
	"fmt"
	"math"
	"sort"

	"github.com/mind-engage/mindengage-obe/internal/apperr"
)

// Selection maps criterion id to the chosen level index.
type Selection map[string]int

// CriterionScore is the graded outcome of one rubric row.
type CriterionScore struct {
	CriterionID string  `json:"criterion_id"`
	OutcomeID   string  `json:"outcome_id"`
	LevelIndex  int     `json:"level_index"`
	LevelLabel  string  `json:"level_label"`
	Points      float64 `json:"points"`
	MaxPoints   float64 `json:"max_points"`
}

// Result is the rubric score for one submission.
type Result struct {
	Criteria     []CriterionScore `json:"criteria"`
	TotalScore   float64          `json:"total_score"`
	MaxScore     float64          `json:"max_score"`
	ScorePercent int              `json:"score_percent"`
}

// Score maps a complete level selection onto the rubric. Partial selections are
// rejected with the missing criterion ids; nothing is scored in that case.
func Score(r Rubric, sel Selection) (Result, error) {
	ve := apperr.Validation("incomplete or invalid grading")

	var missing []string
	for _, c := range r.Criteria {
		if _, ok := sel[c.ID]; !ok {
			missing = append(missing, c.ID)
		}
	}
	if len(missing) > 0 {
		ve.Message = fmt.Sprintf("missing selections for criteria %v", missing)
		for _, id := range missing {
			ve.WithField("selections."+id, "level selection required")
		}
	}

	var unknown []string
	for id := range sel {
		if _, ok := r.Criterion(id); !ok {
			unknown = append(unknown, id)
		}
	}
	sort.Strings(unknown)
	for _, id := range unknown {
		ve.WithField("selections."+id, "criterion not in rubric")
	}

	res := Result{Criteria: make([]CriterionScore, 0, len(r.Criteria)), MaxScore: r.MaxScore()}
	for _, c := range r.Criteria {
		idx, ok := sel[c.ID]
		if !ok {
			continue
		}
		if idx < 0 || idx >= len(c.Levels) {
			ve.WithField("selections."+c.ID, fmt.Sprintf("level index %d out of range [0,%d)", idx, len(c.Levels)))
			continue
		}
		lvl := c.Levels[idx]
		res.Criteria = append(res.Criteria, CriterionScore{
			CriterionID: c.ID,
			OutcomeID:   c.OutcomeID,
			LevelIndex:  idx,
			LevelLabel:  lvl.Label,
			Points:      lvl.Points,
			MaxPoints:   c.MaxPoints,
		})
		res.TotalScore += lvl.Points
	}
	if len(ve.Fields) > 0 {
		return Result{}, ve
	}
	res.ScorePercent = Percent(res.TotalScore, res.MaxScore)
	return res, nil
}

// Percent rounds score/max*100 half away from zero; 0 when max is not positive.
func Percent(score, max float64) int {
	if max <= 0 {
		return 0
	}
	return int(math.Round(score / max * 100))
}
