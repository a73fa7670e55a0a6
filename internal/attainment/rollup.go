package attainment

import (
	"sort"

	"github.com/mind-engage/mindengage-obe/internal/grading"
	"github.com/mind-engage/mindengage-obe/internal/outcome"
)

// Value is an attainment percentage with the evidence behind it. A nil
// Attainment means no data, which is not the same as 0%.
type Value struct {
	Attainment *float64 `json:"attainment"`
	SampleSize int      `json:"sample_size"`

	sources map[string]struct{} // submission ids
}

func (v Value) Defined() bool { return v.Attainment != nil }

// Known builds a defined value backed by the given submissions.
func Known(pct float64, submissionIDs ...string) Value {
	v := Value{Attainment: &pct, sources: map[string]struct{}{}}
	for _, id := range submissionIDs {
		v.sources[id] = struct{}{}
	}
	v.SampleSize = len(v.sources)
	return v
}

// GradedWork is the effective (latest amended) per-criterion result of one
// graded submission.
type GradedWork struct {
	SubmissionID string
	StudentID    string
	AssignmentID string
	CourseID     string
	Criteria     []grading.CriterionScore
}

// CLOScore is earned/max*100 over the criteria of one submission mapped to
// cloID. ok is false when no criterion maps to it.
func CLOScore(criteria []grading.CriterionScore, cloID string) (score float64, ok bool) {
	var earned, max float64
	for _, c := range criteria {
		if c.OutcomeID != cloID {
			continue
		}
		earned += c.Points
		max += c.MaxPoints
	}
	if max <= 0 {
		return 0, false
	}
	return clamp(earned / max * 100), true
}

// Leaves averages each CLO's per-submission score across the given work,
// counting every qualifying submission equally.
func Leaves(work []GradedWork) map[string]Value {
	sums := map[string]float64{}
	subs := map[string]map[string]struct{}{}
	for _, w := range work {
		seen := map[string]bool{}
		for _, c := range w.Criteria {
			if seen[c.OutcomeID] {
				continue
			}
			seen[c.OutcomeID] = true
			score, ok := CLOScore(w.Criteria, c.OutcomeID)
			if !ok {
				continue
			}
			if subs[c.OutcomeID] == nil {
				subs[c.OutcomeID] = map[string]struct{}{}
			}
			if _, dup := subs[c.OutcomeID][w.SubmissionID]; dup {
				continue
			}
			subs[c.OutcomeID][w.SubmissionID] = struct{}{}
			sums[c.OutcomeID] += score
		}
	}
	out := make(map[string]Value, len(sums))
	for id, total := range sums {
		mean := clamp(total / float64(len(subs[id])))
		out[id] = Value{Attainment: &mean, SampleSize: len(subs[id]), sources: subs[id]}
	}
	return out
}

// Rollup is the weight-normalized average of the children that have data:
// Σ(value·weight)/Σweight. Children without data drop out of both sums. The
// result is undefined when no child has data or their weights sum to zero.
func Rollup(children []outcome.Edge, values map[string]Value) Value {
	var num, den float64
	union := map[string]struct{}{}
	fallback := 0
	for _, e := range children {
		v, ok := values[e.OutcomeID]
		if !ok || !v.Defined() {
			continue
		}
		num += *v.Attainment * e.Weight
		den += e.Weight
		for id := range v.sources {
			union[id] = struct{}{}
		}
		fallback += v.SampleSize
	}
	if den <= 0 {
		return Value{}
	}
	pct := clamp(num / den)
	n := len(union)
	if n == 0 {
		n = fallback
	}
	return Value{Attainment: &pct, SampleSize: n, sources: union}
}

// Propagate fills PLO values from CLO leaves, then ILO values from PLOs.
// Leaves not present in the graph as active CLOs are discarded.
func Propagate(g *outcome.Graph, leaves map[string]Value) map[string]Value {
	out := map[string]Value{}
	for _, clo := range g.Outcomes(outcome.TypeCLO) {
		if v, ok := leaves[clo.ID]; ok {
			out[clo.ID] = v
		}
	}
	for _, tier := range []outcome.Type{outcome.TypePLO, outcome.TypeILO} {
		for _, o := range g.Outcomes(tier) {
			if v := Rollup(g.Children(o.ID), out); v.Defined() {
				out[o.ID] = v
			}
		}
	}
	return out
}

// Cohort averages per-student values for every outcome. SampleSize becomes the
// number of students with data for that outcome.
func Cohort(perStudent []map[string]Value) map[string]Value {
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, m := range perStudent {
		for id, v := range m {
			if !v.Defined() {
				continue
			}
			sums[id] += *v.Attainment
			counts[id]++
		}
	}
	out := make(map[string]Value, len(sums))
	for id, total := range sums {
		mean := clamp(total / float64(counts[id]))
		out[id] = Value{Attainment: &mean, SampleSize: counts[id]}
	}
	return out
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
