package gamification_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-obe/internal/apperr"
	"github.com/mind-engage/mindengage-obe/internal/gamification"
	"github.com/mind-engage/mindengage-obe/internal/logger"
)

/* ---------------- in-memory fakes ---------------- */

type fakeStore struct {
	facts     gamification.Facts
	progress  gamification.Progress
	awards    map[string]gamification.Award
	journal   []gamification.JournalEntry
	templates []gamification.Template
	awardErr  map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{awards: map[string]gamification.Award{}, awardErr: map[string]error{}}
}

func (s *fakeStore) LoadFacts(_ context.Context, id string) (gamification.Facts, error) {
	f := s.facts
	f.StudentID = id
	f.Progress = s.progress
	f.JournalEntries = len(s.journal)
	return f, nil
}

func (s *fakeStore) ListAwards(context.Context, string) ([]gamification.Award, error) {
	out := make([]gamification.Award, 0, len(s.awards))
	for _, a := range s.awards {
		out = append(out, a)
	}
	return out, nil
}

func (s *fakeStore) AwardBadge(_ context.Context, _ string, badgeID string, xp int, at int64) (bool, error) {
	if err := s.awardErr[badgeID]; err != nil {
		return false, err
	}
	if _, ok := s.awards[badgeID]; ok {
		return false, nil
	}
	s.awards[badgeID] = gamification.Award{BadgeID: badgeID, AwardedAt: at}
	s.progress.XP += xp
	s.progress.Level = gamification.LevelForXP(s.progress.XP)
	s.progress.TotalBadges++
	return true, nil
}

func (s *fakeStore) GetProgress(context.Context, string) (gamification.Progress, error) {
	return s.progress, nil
}

func (s *fakeStore) SaveStreak(_ context.Context, p gamification.Progress) error {
	s.progress.CurrentStreak = p.CurrentStreak
	s.progress.LongestStreak = p.LongestStreak
	s.progress.LastActivityDate = p.LastActivityDate
	return nil
}

func (s *fakeStore) AddXP(_ context.Context, _ string, xp int, _ int64) (gamification.Progress, error) {
	s.progress.XP += xp
	s.progress.Level = gamification.LevelForXP(s.progress.XP)
	return s.progress, nil
}

func (s *fakeStore) AddJournalEntry(_ context.Context, e gamification.JournalEntry) error {
	s.journal = append(s.journal, e)
	return nil
}

func (s *fakeStore) EnsureTemplates(_ context.Context, ts []gamification.Template) error {
	s.templates = ts
	return nil
}

type recordingNotifier struct {
	awarded [][]string
	broken  []int
}

func (n *recordingNotifier) BadgesAwarded(_ context.Context, _ string, ids []string) error {
	n.awarded = append(n.awarded, ids)
	return nil
}

func (n *recordingNotifier) StreakBroken(_ context.Context, _ string, previous int) error {
	n.broken = append(n.broken, previous)
	return nil
}

func newEngine(st *fakeStore, n gamification.Notifier) *gamification.Engine {
	e := gamification.NewEngine(st, n, logger.Nop(), nil)
	e.Now = func() time.Time { return time.Unix(1700000000, 0) }
	return e
}

func pct(v float64) *float64 { return &v }

func has(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

/* ---------------- tests ---------------- */

func TestCheck_Streak7AwardedOnce(t *testing.T) {
	st := newFakeStore()
	st.progress.CurrentStreak = 7
	n := &recordingNotifier{}
	e := newEngine(st, n)

	res, err := e.Check(context.Background(), "s1", gamification.TriggerStreak)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(res.NewBadges) != 1 || res.NewBadges[0] != "streak_7" {
		t.Fatalf("new badges = %v, want [streak_7]", res.NewBadges)
	}

	st.progress.CurrentStreak = 8
	res, err = e.Check(context.Background(), "s1", gamification.TriggerStreak)
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if len(res.NewBadges) != 0 || len(st.awards) != 1 {
		t.Fatalf("second check must award nothing, got %v (%d awards)", res.NewBadges, len(st.awards))
	}
	if st.progress.XP != 50 {
		t.Fatalf("xp = %d, want 50", st.progress.XP)
	}
	if len(n.awarded) != 1 {
		t.Fatalf("expected one achievement notification, got %d", len(n.awarded))
	}
}

func TestCheck_OnlyRulesForTrigger(t *testing.T) {
	st := newFakeStore()
	st.progress.CurrentStreak = 30
	st.facts.Submissions = []gamification.SubmissionFact{{SubmittedAt: 1700000000, PublishedAt: 1690000000}}
	e := newEngine(st, nil)

	res, _ := e.Check(context.Background(), "s1", gamification.TriggerSubmission)
	if len(res.NewBadges) != 1 || res.NewBadges[0] != "first_submission" {
		t.Fatalf("submission trigger awarded %v", res.NewBadges)
	}
	res, _ = e.Check(context.Background(), "s1", gamification.TriggerAll)
	for _, want := range []string{"streak_7", "streak_14", "streak_30"} {
		if !has(res.NewBadges, want) {
			t.Fatalf("sweep should award %s, got %v", want, res.NewBadges)
		}
	}
	if has(res.NewBadges, "streak_60") {
		t.Fatalf("streak_60 must not be awarded at 30 days")
	}
}

func TestCheck_TimingRules(t *testing.T) {
	st := newFakeStore()
	publish := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC).Unix()
	night := func(day, hour int) gamification.SubmissionFact {
		return gamification.SubmissionFact{SubmittedAt: time.Date(2024, 3, day, hour, 30, 0, 0, time.UTC).Unix(), PublishedAt: publish}
	}
	st.facts.Submissions = []gamification.SubmissionFact{night(2, 0), night(3, 4), night(4, 5)}
	e := newEngine(st, nil)

	res, _ := e.Check(context.Background(), "s1", gamification.TriggerSubmission)
	if has(res.NewBadges, "night_owl") || has(res.NewBadges, "speed_demon") {
		t.Fatalf("only 2 night submissions and none fast, got %v", res.NewBadges)
	}

	st.facts.Submissions = append(st.facts.Submissions, night(5, 2),
		gamification.SubmissionFact{SubmittedAt: publish + 3600, PublishedAt: publish})
	res, _ = e.Check(context.Background(), "s1", gamification.TriggerSubmission)
	if !has(res.NewBadges, "night_owl") || !has(res.NewBadges, "speed_demon") {
		t.Fatalf("expected night_owl and speed_demon, got %v", res.NewBadges)
	}
}

func TestCheck_AllCLOsMet(t *testing.T) {
	cases := []struct {
		name    string
		courses map[string]map[string]*float64
		want    bool
	}{
		{"all above", map[string]map[string]*float64{"c1": {"a": pct(70), "b": pct(95)}}, true},
		{"one below", map[string]map[string]*float64{"c1": {"a": pct(69.9), "b": pct(95)}}, false},
		{"missing data", map[string]map[string]*float64{"c1": {"a": pct(90), "b": nil}}, false},
		{"course without CLOs", map[string]map[string]*float64{"c1": {}}, false},
		{"some course", map[string]map[string]*float64{"c1": {"a": pct(10)}, "c2": {"x": pct(80)}}, true},
	}
	for _, tc := range cases {
		st := newFakeStore()
		st.facts.CourseCLOs = tc.courses
		res, err := newEngine(st, nil).Check(context.Background(), "s1", gamification.TriggerGrade)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got := has(res.NewBadges, "all_clos_met"); got != tc.want {
			t.Fatalf("%s: all_clos_met = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCheck_XPPassAfterAward(t *testing.T) {
	st := newFakeStore()
	st.progress.XP = 980
	st.facts.PerfectScores = 1
	res, _ := newEngine(st, nil).Check(context.Background(), "s1", gamification.TriggerGrade)
	if !has(res.NewBadges, "perfect_score") || !has(res.NewBadges, "xp_1000") {
		t.Fatalf("expected perfect_score then xp_1000, got %v", res.NewBadges)
	}
	if st.progress.Level != gamification.LevelForXP(1080) {
		t.Fatalf("level = %d", st.progress.Level)
	}
}

func TestCheck_SweepReachesXPBadgeInOneRun(t *testing.T) {
	st := newFakeStore()
	st.progress.XP = 950
	st.facts.PerfectScores = 1
	res, err := newEngine(st, nil).Check(context.Background(), "s1", gamification.TriggerAll)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !has(res.NewBadges, "perfect_score") || !has(res.NewBadges, "xp_1000") {
		t.Fatalf("expected perfect_score and xp_1000 in one sweep, got %v", res.NewBadges)
	}
	again, _ := newEngine(st, nil).Check(context.Background(), "s1", gamification.TriggerAll)
	if len(again.NewBadges) != 0 {
		t.Fatalf("second sweep awarded %v", again.NewBadges)
	}
}

func TestCheck_FailingRuleDoesNotAbort(t *testing.T) {
	st := newFakeStore()
	st.progress.CurrentStreak = 14
	st.awardErr["streak_7"] = errors.New("db locked")
	res, err := newEngine(st, nil).Check(context.Background(), "s1", gamification.TriggerStreak)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if has(res.NewBadges, "streak_7") || !has(res.NewBadges, "streak_14") {
		t.Fatalf("new badges = %v", res.NewBadges)
	}
}

func TestRecordActivity_Streaks(t *testing.T) {
	st := newFakeStore()
	n := &recordingNotifier{}
	e := newEngine(st, n)
	ctx := context.Background()
	day := func(d, hour int) time.Time { return time.Date(2024, 5, d, hour, 0, 0, 0, time.UTC) }

	for d := 1; d <= 7; d++ {
		if _, err := e.RecordActivity(ctx, "s1", day(d, 10)); err != nil {
			t.Fatalf("day %d: %v", d, err)
		}
	}
	p, _ := e.RecordActivity(ctx, "s1", day(7, 23))
	if p.CurrentStreak != 7 {
		t.Fatalf("same-day activity changed streak: %+v", p)
	}
	if _, ok := st.awards["streak_7"]; !ok {
		t.Fatalf("streak_7 should be awarded after 7 consecutive days")
	}

	p, _ = e.RecordActivity(ctx, "s1", day(10, 8))
	if p.CurrentStreak != 1 || p.LongestStreak != 7 {
		t.Fatalf("after a gap streak should reset: %+v", p)
	}
	if len(n.broken) != 1 || n.broken[0] != 7 {
		t.Fatalf("streak break notifications = %v", n.broken)
	}

	p, _ = e.RecordActivity(ctx, "s1", day(9, 8))
	if p.LastActivityDate != "2024-05-10" {
		t.Fatalf("backdated activity must be ignored: %+v", p)
	}
}

func TestAddJournalEntry(t *testing.T) {
	st := newFakeStore()
	e := newEngine(st, nil)
	if _, err := e.AddJournalEntry(context.Background(), "s1", "   "); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := e.AddJournalEntry(context.Background(), "s1", "reflection"); err != nil {
			t.Fatalf("entry %d: %v", i, err)
		}
	}
	if _, ok := st.awards["journal_5"]; !ok {
		t.Fatalf("journal_5 should be awarded after five entries")
	}
}

func TestLevelForXP(t *testing.T) {
	for xp, want := range map[int]int{0: 1, 249: 1, 250: 2, 1000: 5, -5: 1} {
		if got := gamification.LevelForXP(xp); got != want {
			t.Fatalf("LevelForXP(%d) = %d, want %d", xp, got, want)
		}
	}
}

func TestEnsureTemplates(t *testing.T) {
	st := newFakeStore()
	if err := newEngine(st, nil).EnsureTemplates(context.Background()); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(st.templates) != len(gamification.DefaultRules()) {
		t.Fatalf("templates = %d", len(st.templates))
	}
}
