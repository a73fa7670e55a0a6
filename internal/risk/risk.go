package risk

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mind-engage/mindengage-obe/internal/logger"
)

const (
	DefaultInactiveDays = 7
	LowAttainment       = 50.0
	MinLowCLOs          = 2
)

// Signals is the raw input for one student. LastLoginAt falls back to the
// account creation time when the student never logged in.
type Signals struct {
	StudentID     string
	DisplayName   string
	LastLoginAt   int64
	CLOAttainment map[string]float64 // active CLOs with cached data only
}

type Assessment struct {
	StudentID          string   `json:"student_id"`
	DisplayName        string   `json:"display_name,omitempty"`
	AtRisk             bool     `json:"at_risk"`
	Reasons            []string `json:"reasons"`
	DaysSinceLastLogin int      `json:"days_since_last_login"`
	LowCLOCount        int      `json:"low_clo_count"`
	LowCLOs            []string `json:"low_clos"`
}

// DaysSince counts whole days between at (unix seconds) and now.
func DaysSince(at int64, now time.Time) int {
	if at <= 0 {
		return 0
	}
	d := now.Sub(time.Unix(at, 0))
	if d < 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

// LowCLOs returns the CLOs strictly below LowAttainment, sorted.
func LowCLOs(attainment map[string]float64) []string {
	out := []string{}
	for id, v := range attainment {
		if v < LowAttainment {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Assess flags a student inactive for inactiveDays or more, or below
// LowAttainment on at least MinLowCLOs CLOs. Both reasons are listed when both hold.
func Assess(s Signals, now time.Time, inactiveDays int) Assessment {
	if inactiveDays <= 0 {
		inactiveDays = DefaultInactiveDays
	}
	a := Assessment{
		StudentID:          s.StudentID,
		DisplayName:        s.DisplayName,
		Reasons:            []string{},
		DaysSinceLastLogin: DaysSince(s.LastLoginAt, now),
		LowCLOs:            LowCLOs(s.CLOAttainment),
	}
	a.LowCLOCount = len(a.LowCLOs)
	if a.DaysSinceLastLogin >= inactiveDays {
		a.Reasons = append(a.Reasons, fmt.Sprintf("Inactive %d+ days", inactiveDays))
	}
	if a.LowCLOCount >= MinLowCLOs {
		a.Reasons = append(a.Reasons, fmt.Sprintf("Below %d%% on %d CLOs", int(LowAttainment), a.LowCLOCount))
	}
	a.AtRisk = len(a.Reasons) > 0
	return a
}

// Filter narrows the population. Empty fields match every student.
type Filter struct {
	CourseID   string
	ProgramID  string
	StudentIDs []string
}

type Store interface {
	ListRiskSignals(ctx context.Context, f Filter) ([]Signals, error)
}

type Detector struct {
	Store        Store
	InactiveDays int
	Log          *logger.Logger
	Now          func() time.Time
}

func NewDetector(st Store, inactiveDays int, log *logger.Logger) *Detector {
	return &Detector{Store: st, InactiveDays: inactiveDays, Log: log.With("service", "RiskDetector"), Now: time.Now}
}

// List returns each at-risk student once, most reasons first, then longest inactive.
func (d *Detector) List(ctx context.Context, f Filter) ([]Assessment, error) {
	signals, err := d.Store.ListRiskSignals(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("risk signals: %w", err)
	}
	now := d.Now()
	seen := map[string]bool{}
	out := []Assessment{}
	for _, s := range signals {
		if seen[s.StudentID] {
			continue
		}
		seen[s.StudentID] = true
		if a := Assess(s, now, d.InactiveDays); a.AtRisk {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i].Reasons) != len(out[j].Reasons) {
			return len(out[i].Reasons) > len(out[j].Reasons)
		}
		if out[i].DaysSinceLastLogin != out[j].DaysSinceLastLogin {
			return out[i].DaysSinceLastLogin > out[j].DaysSinceLastLogin
		}
		return out[i].StudentID < out[j].StudentID
	})
	d.Log.Debug("at-risk scan", "students", len(seen), "at_risk", len(out))
	return out, nil
}
