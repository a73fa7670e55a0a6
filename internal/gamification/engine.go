package gamification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-obe/internal/apperr"
	"github.com/mind-engage/mindengage-obe/internal/grading"
	"github.com/mind-engage/mindengage-obe/internal/logger"
)

const dayLayout = "2006-01-02"

// XPPerLevel is the XP needed to advance one level.
const XPPerLevel = 250

func LevelForXP(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return 1 + xp/XPPerLevel
}

type Progress struct {
	StudentID        string `json:"student_id"`
	XP               int    `json:"xp"`
	Level            int    `json:"level"`
	CurrentStreak    int    `json:"current_streak"`
	LongestStreak    int    `json:"longest_streak"`
	LastActivityDate string `json:"last_activity_date,omitempty"` // YYYY-MM-DD, UTC
	TotalBadges      int    `json:"total_badges"`
	UpdatedAt        int64  `json:"updated_at,omitempty"`
}

type SubmissionFact struct {
	SubmittedAt int64
	PublishedAt int64
}

// Facts is everything the rule table reads for one student.
type Facts struct {
	StudentID      string
	Progress       Progress
	Submissions    []SubmissionFact
	PerfectScores  int
	JournalEntries int
	// CourseCLOs maps each enrolled course to its active CLOs and the student's
	// cached attainment (nil when no data).
	CourseCLOs map[string]map[string]*float64
}

type Award struct {
	BadgeID   string `json:"badge_id"`
	Name      string `json:"name,omitempty"`
	AwardedAt int64  `json:"awarded_at"`
}

type Template struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	Requirement Requirement `json:"requirements"`
	XPReward    int         `json:"xp_reward"`
}

type JournalEntry struct {
	ID        string `json:"id"`
	StudentID string `json:"student_id"`
	Body      string `json:"body"`
	CreatedAt int64  `json:"created_at"`
}

type Store interface {
	LoadFacts(ctx context.Context, studentID string) (Facts, error)
	ListAwards(ctx context.Context, studentID string) ([]Award, error)
	// AwardBadge records the award and credits xp atomically. created is false
	// when the student already holds the badge; nothing changes then.
	AwardBadge(ctx context.Context, studentID, badgeID string, xp int, at int64) (created bool, err error)
	GetProgress(ctx context.Context, studentID string) (Progress, error)
	SaveStreak(ctx context.Context, p Progress) error
	AddXP(ctx context.Context, studentID string, xp int, at int64) (Progress, error)
	AddJournalEntry(ctx context.Context, e JournalEntry) error
	EnsureTemplates(ctx context.Context, ts []Template) error
}

// Notifier is told about awards and broken streaks so alerts can be raised.
type Notifier interface {
	BadgesAwarded(ctx context.Context, studentID string, badgeIDs []string) error
	StreakBroken(ctx context.Context, studentID string, previous int) error
}

type CheckResult struct {
	StudentID string   `json:"student_id"`
	Trigger   Trigger  `json:"trigger"`
	NewBadges []string `json:"new_badges"`
}

type Summary struct {
	StudentID string   `json:"student_id"`
	Awarded   []string `json:"awarded"`
	Awards    []Award  `json:"awards"`
	TotalXP   int      `json:"total_xp"`
	Level     int      `json:"level"`
	Progress  Progress `json:"progress"`
}

type Engine struct {
	Store    Store
	Rules    []Rule
	Notifier Notifier
	Log      *logger.Logger
	Now      func() time.Time
	NewID    func() string
}

func NewEngine(st Store, n Notifier, log *logger.Logger, newID func() string) *Engine {
	if newID == nil {
		newID = uuid.NewString
	}
	return &Engine{
		Store:    st,
		Rules:    DefaultRules(),
		Notifier: n,
		Log:      log.With("service", "BadgeEngine"),
		Now:      time.Now,
		NewID:    newID,
	}
}

func (e *Engine) Templates() []Template {
	out := make([]Template, 0, len(e.Rules))
	for _, r := range e.Rules {
		out = append(out, Template{
			ID: r.BadgeID, Name: r.Name, Description: r.Description,
			Category: r.Category, Requirement: r.Requirement, XPReward: r.XPReward,
		})
	}
	return out
}

// EnsureTemplates writes the rule table into badge_templates.
func (e *Engine) EnsureTemplates(ctx context.Context) error {
	return e.Store.EnsureTemplates(ctx, e.Templates())
}

// Check evaluates the rules that fire on trigger and awards every badge whose
// predicate holds and that the student does not have yet. Awards that raise XP
// are followed by a second pass on reloaded facts (xp_award rules, or every
// rule under TriggerAll). A failing rule is logged and skipped.
func (e *Engine) Check(ctx context.Context, studentID string, trigger Trigger) (CheckResult, error) {
	res := CheckResult{StudentID: studentID, Trigger: trigger, NewBadges: []string{}}
	awards, err := e.Store.ListAwards(ctx, studentID)
	if err != nil {
		return res, fmt.Errorf("list awards: %w", err)
	}
	have := make(map[string]bool, len(awards))
	for _, a := range awards {
		have[a.BadgeID] = true
	}

	pass := trigger
	for round := 0; round < 2; round++ {
		facts, err := e.Store.LoadFacts(ctx, studentID)
		if err != nil {
			return res, fmt.Errorf("load facts: %w", err)
		}
		gainedXP := false
		for _, r := range e.Rules {
			if have[r.BadgeID] || !r.FiresOn(pass) {
				continue
			}
			if !e.met(r, facts) {
				continue
			}
			created, err := e.Store.AwardBadge(ctx, studentID, r.BadgeID, r.XPReward, e.Now().Unix())
			if err != nil {
				e.Log.Warn("badge award failed", "student_id", studentID, "rule", r.BadgeID, "error", err)
				continue
			}
			have[r.BadgeID] = true
			if created {
				res.NewBadges = append(res.NewBadges, r.BadgeID)
				gainedXP = gainedXP || r.XPReward > 0
			}
		}
		if !gainedXP || pass == TriggerXPAward {
			break
		}
		// Second pass on reloaded facts; TriggerAll stays TriggerAll.
		if pass != TriggerAll {
			pass = TriggerXPAward
		}
	}

	if len(res.NewBadges) > 0 {
		e.Log.Info("badges awarded", "student_id", studentID, "trigger", trigger, "badges", res.NewBadges)
		if e.Notifier != nil {
			if err := e.Notifier.BadgesAwarded(ctx, studentID, res.NewBadges); err != nil {
				e.Log.Warn("achievement notification failed", "student_id", studentID, "error", err)
			}
		}
	}
	return res, nil
}

func (e *Engine) met(r Rule, f Facts) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			e.Log.Error("badge rule panicked", "student_id", f.StudentID, "rule", r.BadgeID, "panic", p)
			ok = false
		}
	}()
	return r.Met(f)
}

func (e *Engine) Badges(ctx context.Context, studentID string) (Summary, error) {
	awards, err := e.Store.ListAwards(ctx, studentID)
	if err != nil {
		return Summary{}, err
	}
	p, err := e.Store.GetProgress(ctx, studentID)
	if err != nil {
		return Summary{}, err
	}
	names := map[string]string{}
	for _, r := range e.Rules {
		names[r.BadgeID] = r.Name
	}
	s := Summary{StudentID: studentID, Awarded: make([]string, 0, len(awards)), Awards: awards, TotalXP: p.XP, Level: LevelForXP(p.XP), Progress: p}
	for i, a := range awards {
		s.Awarded = append(s.Awarded, a.BadgeID)
		if s.Awards[i].Name == "" {
			s.Awards[i].Name = names[a.BadgeID]
		}
	}
	return s, nil
}

// RecordActivity advances the student's daily streak for the UTC day of at.
// A repeat on the same day changes nothing; a gap resets the streak to 1.
// Activity dated before the last recorded day is ignored.
func (e *Engine) RecordActivity(ctx context.Context, studentID string, at time.Time) (Progress, error) {
	p, err := e.Store.GetProgress(ctx, studentID)
	if err != nil {
		return Progress{}, err
	}
	p.StudentID = studentID
	day := at.UTC().Format(dayLayout)
	if p.LastActivityDate != "" && day <= p.LastActivityDate {
		return p, nil
	}

	broken := 0
	yesterday := at.UTC().AddDate(0, 0, -1).Format(dayLayout)
	if p.LastActivityDate == yesterday {
		p.CurrentStreak++
	} else {
		if p.CurrentStreak >= 2 {
			broken = p.CurrentStreak
		}
		p.CurrentStreak = 1
	}
	if p.CurrentStreak > p.LongestStreak {
		p.LongestStreak = p.CurrentStreak
	}
	p.LastActivityDate = day
	p.Level = LevelForXP(p.XP)
	p.UpdatedAt = e.Now().Unix()
	if err := e.Store.SaveStreak(ctx, p); err != nil {
		return Progress{}, err
	}

	if broken > 0 && e.Notifier != nil {
		if err := e.Notifier.StreakBroken(ctx, studentID, broken); err != nil {
			e.Log.Warn("streak break notification failed", "student_id", studentID, "error", err)
		}
	}
	if _, err := e.Check(ctx, studentID, TriggerStreak); err != nil {
		e.Log.Warn("streak badge check failed", "student_id", studentID, "error", err)
	}
	return p, nil
}

func (e *Engine) AwardXP(ctx context.Context, studentID string, xp int) (Progress, error) {
	if xp <= 0 {
		return Progress{}, apperr.Validation("xp must be positive").WithField("xp", "must be positive")
	}
	p, err := e.Store.AddXP(ctx, studentID, xp, e.Now().Unix())
	if err != nil {
		return Progress{}, err
	}
	if _, err := e.Check(ctx, studentID, TriggerXPAward); err != nil {
		e.Log.Warn("xp badge check failed", "student_id", studentID, "error", err)
	}
	return p, nil
}

func (e *Engine) AddJournalEntry(ctx context.Context, studentID, body string) (JournalEntry, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return JournalEntry{}, apperr.Validation("journal entry is empty").WithField("body", "required")
	}
	je := JournalEntry{ID: e.NewID(), StudentID: studentID, Body: body, CreatedAt: e.Now().Unix()}
	if err := e.Store.AddJournalEntry(ctx, je); err != nil {
		return JournalEntry{}, err
	}
	if _, err := e.Check(ctx, studentID, TriggerJournal); err != nil {
		e.Log.Warn("journal badge check failed", "student_id", studentID, "error", err)
	}
	return je, nil
}

// OnGrade runs the grade-triggered rules.
func (e *Engine) OnGrade(ctx context.Context, ev grading.GradeEvent) error {
	_, err := e.Check(ctx, ev.StudentID, TriggerGrade)
	return err
}

// OnSubmission counts the submission as activity for the streak, then runs the
// submission-triggered rules.
func (e *Engine) OnSubmission(ctx context.Context, ev grading.SubmissionEvent) error {
	if _, err := e.RecordActivity(ctx, ev.StudentID, time.Unix(ev.SubmittedAt, 0)); err != nil {
		e.Log.Warn("record activity failed", "student_id", ev.StudentID, "error", err)
	}
	_, err := e.Check(ctx, ev.StudentID, TriggerSubmission)
	return err
}
