package gamification

import (
	"fmt"
	"time"
)

type Trigger string

const (
	TriggerXPAward    Trigger = "xp_award"
	TriggerSubmission Trigger = "submission"
	TriggerStreak     Trigger = "streak_update"
	TriggerGrade      Trigger = "grade"
	TriggerJournal    Trigger = "journal"
	// TriggerAll evaluates every rule; used by the periodic sweep.
	TriggerAll Trigger = "all"
)

func ParseTrigger(s string) (Trigger, bool) {
	switch t := Trigger(s); t {
	case TriggerXPAward, TriggerSubmission, TriggerStreak, TriggerGrade, TriggerJournal, TriggerAll:
		return t, true
	}
	return "", false
}

// Requirement is the descriptor stored with a badge template.
type Requirement struct {
	Type     string `json:"type"`
	Count    int    `json:"count"`
	Category string `json:"category,omitempty"`
}

// Rule awards BadgeID once when Met holds for a check fired by one of Triggers.
type Rule struct {
	BadgeID     string
	Name        string
	Description string
	Category    string
	XPReward    int
	Requirement Requirement
	Triggers    []Trigger
	Met         func(f Facts) bool
}

func (r Rule) FiresOn(t Trigger) bool {
	if t == TriggerAll {
		return true
	}
	for _, x := range r.Triggers {
		if x == t {
			return true
		}
	}
	return false
}

const (
	CLOMetThreshold   = 70.0
	SpeedDemonWindow  = time.Hour
	NightOwlMinimum   = 3
	nightOwlStartHour = 0
	nightOwlEndHour   = 5
)

var streakXP = []struct{ days, xp int }{
	{7, 50}, {14, 100}, {30, 250}, {60, 500}, {100, 1000},
}

// DefaultRules is the badge rule table.
func DefaultRules() []Rule {
	rules := make([]Rule, 0, len(streakXP)+8)
	for _, s := range streakXP {
		n := s.days
		rules = append(rules, Rule{
			BadgeID:     fmt.Sprintf("streak_%d", n),
			Name:        fmt.Sprintf("%d-Day Streak", n),
			Description: fmt.Sprintf("Active %d days in a row", n),
			Category:    "streak",
			XPReward:    s.xp,
			Requirement: Requirement{Type: "streak", Count: n},
			Triggers:    []Trigger{TriggerStreak},
			Met:         func(f Facts) bool { return f.Progress.CurrentStreak >= n },
		})
	}
	rules = append(rules,
		Rule{
			BadgeID: "first_submission", Name: "First Steps", Description: "Submitted a first assignment",
			Category: "milestone", XPReward: 25,
			Requirement: Requirement{Type: "submission_count", Count: 1},
			Triggers:    []Trigger{TriggerSubmission},
			Met:         func(f Facts) bool { return len(f.Submissions) >= 1 },
		},
		Rule{
			BadgeID: "perfect_score", Name: "Perfectionist", Description: "Scored 100% on a graded assignment",
			Category: "achievement", XPReward: 100,
			Requirement: Requirement{Type: "perfect_score", Count: 1},
			Triggers:    []Trigger{TriggerGrade},
			Met:         func(f Facts) bool { return f.PerfectScores >= 1 },
		},
		Rule{
			BadgeID: "all_clos_met", Name: "Outcome Master", Description: "Met every learning outcome of a course",
			Category: "achievement", XPReward: 200,
			Requirement: Requirement{Type: "all_clos_met", Count: int(CLOMetThreshold)},
			Triggers:    []Trigger{TriggerGrade},
			Met:         allCLOsMet,
		},
		Rule{
			BadgeID: "speed_demon", Name: "Speed Demon", Description: "Submitted within an hour of an assignment opening",
			Category: "timing", XPReward: 50,
			Requirement: Requirement{Type: "fast_submission", Count: 1},
			Triggers:    []Trigger{TriggerSubmission},
			Met:         speedDemon,
		},
		Rule{
			BadgeID: "night_owl", Name: "Night Owl", Description: "Submitted three times between midnight and 5am UTC",
			Category: "timing", XPReward: 50,
			Requirement: Requirement{Type: "night_submission", Count: NightOwlMinimum},
			Triggers:    []Trigger{TriggerSubmission},
			Met:         func(f Facts) bool { return nightSubmissions(f) >= NightOwlMinimum },
		},
		Rule{
			BadgeID: "journal_5", Name: "Reflective Learner", Description: "Wrote five journal entries",
			Category: "engagement", XPReward: 50,
			Requirement: Requirement{Type: "journal_count", Count: 5},
			Triggers:    []Trigger{TriggerJournal},
			Met:         func(f Facts) bool { return f.JournalEntries >= 5 },
		},
		Rule{
			BadgeID: "xp_1000", Name: "Rising Star", Description: "Earned 1000 XP",
			Category: "milestone", XPReward: 0,
			Requirement: Requirement{Type: "xp", Count: 1000},
			Triggers:    []Trigger{TriggerXPAward},
			Met:         func(f Facts) bool { return f.Progress.XP >= 1000 },
		},
	)
	return rules
}

// allCLOsMet holds when some enrolled course has at least one active CLO and
// every one of them is at or above the threshold. Missing data is not met.
func allCLOsMet(f Facts) bool {
	for _, clos := range f.CourseCLOs {
		if len(clos) == 0 {
			continue
		}
		met := true
		for _, v := range clos {
			if v == nil || *v < CLOMetThreshold {
				met = false
				break
			}
		}
		if met {
			return true
		}
	}
	return false
}

func speedDemon(f Facts) bool {
	for _, s := range f.Submissions {
		if s.PublishedAt == 0 {
			continue
		}
		d := s.SubmittedAt - s.PublishedAt
		if d >= 0 && d <= int64(SpeedDemonWindow/time.Second) {
			return true
		}
	}
	return false
}

func nightSubmissions(f Facts) int {
	n := 0
	for _, s := range f.Submissions {
		h := time.Unix(s.SubmittedAt, 0).UTC().Hour()
		if h >= nightOwlStartHour && h < nightOwlEndHour {
			n++
		}
	}
	return n
}
