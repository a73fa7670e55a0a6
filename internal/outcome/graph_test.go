package outcome_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-obe/internal/apperr"
	"github.com/mind-engage/mindengage-obe/internal/logger"
	"github.com/mind-engage/mindengage-obe/internal/outcome"
)

func sampleOutcomes() []outcome.Outcome {
	return []outcome.Outcome{
		{ID: "clo-a", Title: "A", Type: outcome.TypeCLO, BloomsLevel: outcome.BloomsApply, CourseID: "c1", IsActive: true},
		{ID: "clo-b", Title: "B", Type: outcome.TypeCLO, BloomsLevel: outcome.BloomsAnalyze, CourseID: "c1", IsActive: true},
		{ID: "plo-x", Title: "X", Type: outcome.TypePLO, BloomsLevel: outcome.BloomsEvaluate, ProgramID: "p1", IsActive: true},
		{ID: "ilo-1", Title: "I", Type: outcome.TypeILO, BloomsLevel: outcome.BloomsCreate, IsActive: true},
	}
}

func TestValidatePair(t *testing.T) {
	cases := []struct {
		src, dst outcome.Type
		ok       bool
	}{
		{outcome.TypeCLO, outcome.TypePLO, true},
		{outcome.TypePLO, outcome.TypeILO, true},
		{outcome.TypeCLO, outcome.TypeILO, false},
		{outcome.TypePLO, outcome.TypeCLO, false},
		{outcome.TypeILO, outcome.TypePLO, false},
		{outcome.TypeCLO, outcome.TypeCLO, false},
	}
	for _, tc := range cases {
		err := outcome.ValidatePair(tc.src, tc.dst)
		if (err == nil) != tc.ok {
			t.Fatalf("%s→%s: got err=%v, want ok=%v", tc.src, tc.dst, err, tc.ok)
		}
		if err != nil && !apperr.IsValidation(err) {
			t.Fatalf("%s→%s: expected validation error, got %T", tc.src, tc.dst, err)
		}
	}
}

func TestGraph_UpsertUpdatesWeight(t *testing.T) {
	g, err := outcome.NewGraph(sampleOutcomes(), []outcome.Mapping{
		{SourceID: "clo-a", TargetID: "plo-x", Weight: 0.6},
	})
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}
	if err := g.Upsert(outcome.Mapping{SourceID: "clo-a", TargetID: "plo-x", Weight: 0.3}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if n := len(g.Mappings()); n != 1 {
		t.Fatalf("expected 1 edge after duplicate upsert, got %d", n)
	}
	if w := g.TotalOutgoingWeight("clo-a"); math.Abs(w-0.3) > 1e-9 {
		t.Fatalf("weight = %v, want 0.3", w)
	}
}

func TestGraph_RejectsInvalidEdges(t *testing.T) {
	g, err := outcome.NewGraph(sampleOutcomes(), nil)
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}
	bad := []outcome.Mapping{
		{SourceID: "plo-x", TargetID: "clo-a", Weight: 0.5}, // reversed tier
		{SourceID: "clo-a", TargetID: "ilo-1", Weight: 0.5}, // skips a tier
		{SourceID: "clo-a", TargetID: "clo-a", Weight: 0.5}, // self loop
		{SourceID: "clo-a", TargetID: "plo-x", Weight: 1.5}, // weight out of range
		{SourceID: "clo-a", TargetID: "plo-x", Weight: -0.1},
	}
	for _, m := range bad {
		if err := g.Upsert(m); err == nil {
			t.Fatalf("expected %+v to be rejected", m)
		}
	}
	if err := g.Upsert(outcome.Mapping{SourceID: "clo-a", TargetID: "plo-missing", Weight: 0.5}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for unknown target, got %v", err)
	}
	if len(g.Mappings()) != 0 {
		t.Fatalf("rejected edges must not be applied")
	}
}

func TestGraph_WeightWarning(t *testing.T) {
	g, _ := outcome.NewGraph(sampleOutcomes(), nil)
	if _, warn := g.WeightWarning("clo-a"); warn {
		t.Fatalf("node without edges should not warn")
	}
	_ = g.Upsert(outcome.Mapping{SourceID: "clo-a", TargetID: "plo-x", Weight: 0.4})
	if _, warn := g.WeightWarning("clo-a"); !warn {
		t.Fatalf("expected warning for total 0.4")
	}
	_ = g.Upsert(outcome.Mapping{SourceID: "clo-a", TargetID: "plo-x", Weight: 0.5})
	if msg, warn := g.WeightWarning("clo-a"); warn {
		t.Fatalf("0.5 is inside the band, got %q", msg)
	}
}

func TestGraph_AncestorsBottomUp(t *testing.T) {
	g, err := outcome.NewGraph(sampleOutcomes(), []outcome.Mapping{
		{SourceID: "clo-a", TargetID: "plo-x", Weight: 0.6},
		{SourceID: "clo-b", TargetID: "plo-x", Weight: 0.4},
		{SourceID: "plo-x", TargetID: "ilo-1", Weight: 1},
	})
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}
	got := g.Ancestors("clo-a")
	if len(got) != 2 || got[0] != "plo-x" || got[1] != "ilo-1" {
		t.Fatalf("ancestors = %v, want [plo-x ilo-1]", got)
	}
	if kids := g.Children("plo-x"); len(kids) != 2 || kids[0].OutcomeID != "clo-a" {
		t.Fatalf("children = %+v", kids)
	}
}

func TestOutcome_Validate(t *testing.T) {
	ok := outcome.Outcome{ID: "c", Title: "t", Type: outcome.TypeCLO, BloomsLevel: outcome.BloomsApply, CourseID: "c1"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	bad := []outcome.Outcome{
		{ID: "c", Title: "t", Type: outcome.TypeCLO, BloomsLevel: outcome.BloomsApply},
		{ID: "c", Title: "t", Type: outcome.TypeCLO, BloomsLevel: outcome.BloomsApply, CourseID: "c1", ProgramID: "p1"},
		{ID: "p", Title: "t", Type: outcome.TypePLO, BloomsLevel: outcome.BloomsApply, CourseID: "c1"},
		{ID: "i", Title: "t", Type: outcome.TypeILO, BloomsLevel: outcome.BloomsApply, ProgramID: "p1"},
		{ID: "x", Title: "t", Type: "GLO", BloomsLevel: outcome.BloomsApply},
		{ID: "c", Title: "t", Type: outcome.TypeCLO, BloomsLevel: "memorize", CourseID: "c1"},
	}
	for _, o := range bad {
		if err := o.Validate(); !apperr.IsValidation(err) {
			t.Fatalf("expected validation error for %+v, got %v", o, err)
		}
	}
}

/* ---------------- service with in-memory store ---------------- */

type memStore struct {
	outcomes map[string]outcome.Outcome
	mappings map[[2]string]outcome.Mapping
}

func newMemStore(seed ...outcome.Outcome) *memStore {
	s := &memStore{outcomes: map[string]outcome.Outcome{}, mappings: map[[2]string]outcome.Mapping{}}
	for _, o := range seed {
		s.outcomes[o.ID] = o
	}
	return s
}

func (s *memStore) CreateOutcome(_ context.Context, o outcome.Outcome) error {
	if _, ok := s.outcomes[o.ID]; ok {
		return apperr.ErrConflict
	}
	s.outcomes[o.ID] = o
	return nil
}
func (s *memStore) GetOutcome(_ context.Context, id string) (outcome.Outcome, error) {
	o, ok := s.outcomes[id]
	if !ok {
		return outcome.Outcome{}, apperr.NotFound("outcome", id)
	}
	return o, nil
}
func (s *memStore) UpdateOutcome(_ context.Context, o outcome.Outcome) error {
	s.outcomes[o.ID] = o
	return nil
}
func (s *memStore) ListOutcomes(_ context.Context, f outcome.ListFilter) ([]outcome.Outcome, error) {
	var out []outcome.Outcome
	for _, o := range s.outcomes {
		if f.ActiveOnly && !o.IsActive {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}
func (s *memStore) ListMappings(context.Context) ([]outcome.Mapping, error) {
	var out []outcome.Mapping
	for _, m := range s.mappings {
		out = append(out, m)
	}
	return out, nil
}
func (s *memStore) UpsertMapping(_ context.Context, m outcome.Mapping, _ int64) error {
	s.mappings[[2]string{m.SourceID, m.TargetID}] = m
	return nil
}

func TestService_UpsertMappingReportsWarning(t *testing.T) {
	st := newMemStore(sampleOutcomes()...)
	svc := outcome.NewService(st, logger.Nop(), func() time.Time { return time.Unix(1700000000, 0) })

	rep, err := svc.UpsertMapping(context.Background(), outcome.Mapping{SourceID: "clo-a", TargetID: "plo-x", Weight: 0.2})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if rep.Warning == "" {
		t.Fatalf("expected a weight warning for total 0.2")
	}
	rep, err = svc.UpsertMapping(context.Background(), outcome.Mapping{SourceID: "clo-a", TargetID: "plo-x", Weight: 0.8})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if rep.Warning != "" || len(st.mappings) != 1 {
		t.Fatalf("expected single edge without warning, got %+v (%d edges)", rep, len(st.mappings))
	}
	if _, err := svc.UpsertMapping(context.Background(), outcome.Mapping{SourceID: "ilo-1", TargetID: "plo-x", Weight: 0.5}); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestService_ReviseAndDeactivate(t *testing.T) {
	st := newMemStore()
	svc := outcome.NewService(st, logger.Nop(), nil)
	ctx := context.Background()

	o, err := svc.CreateOutcome(ctx, outcome.Outcome{ID: "clo-1", Title: "Old", Type: outcome.TypeCLO, BloomsLevel: outcome.BloomsApply, CourseID: "c1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.Version != 1 || !o.IsActive {
		t.Fatalf("unexpected new outcome: %+v", o)
	}
	title := "New"
	o, err = svc.ReviseOutcome(ctx, "clo-1", outcome.Revision{Title: &title})
	if err != nil {
		t.Fatalf("revise: %v", err)
	}
	if o.Version != 2 || o.Title != "New" {
		t.Fatalf("unexpected revision: %+v", o)
	}
	o, err = svc.Deactivate(ctx, "clo-1")
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if o.IsActive {
		t.Fatalf("expected inactive")
	}
	if _, ok := st.outcomes["clo-1"]; !ok {
		t.Fatalf("deactivated outcome must still exist")
	}
	if _, err := svc.ReviseOutcome(ctx, "clo-1", outcome.Revision{Title: &title}); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict revising inactive outcome, got %v", err)
	}
}
