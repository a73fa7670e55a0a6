package outcome

import (
	"context"
	"fmt"
	"time"

	"github.com/mind-engage/mindengage-obe/internal/apperr"
	"github.com/mind-engage/mindengage-obe/internal/logger"
)

type ListFilter struct {
	Type       Type
	ProgramID  string
	CourseID   string
	ActiveOnly bool
}

type Store interface {
	CreateOutcome(ctx context.Context, o Outcome) error
	GetOutcome(ctx context.Context, id string) (Outcome, error)
	UpdateOutcome(ctx context.Context, o Outcome) error
	ListOutcomes(ctx context.Context, f ListFilter) ([]Outcome, error)
	ListMappings(ctx context.Context) ([]Mapping, error)
	UpsertMapping(ctx context.Context, m Mapping, now int64) error
}

// GraphSource is the read side needed to assemble a Graph.
type GraphSource interface {
	ListOutcomes(ctx context.Context, f ListFilter) ([]Outcome, error)
	ListMappings(ctx context.Context) ([]Mapping, error)
}

// LoadGraph assembles the mapping graph. With activeOnly, inactive outcomes and
// every edge touching them are left out.
func LoadGraph(ctx context.Context, src GraphSource, activeOnly bool) (*Graph, error) {
	outcomes, err := src.ListOutcomes(ctx, ListFilter{ActiveOnly: activeOnly})
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	edges, err := src.ListMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	present := make(map[string]bool, len(outcomes))
	for _, o := range outcomes {
		present[o.ID] = true
	}
	kept := edges[:0:0]
	for _, e := range edges {
		if present[e.SourceID] && present[e.TargetID] {
			kept = append(kept, e)
		}
	}
	return NewGraph(outcomes, kept)
}

type Service struct {
	Store Store
	Log   *logger.Logger
	Now   func() time.Time
}

func NewService(st Store, log *logger.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{Store: st, Log: log.With("service", "OutcomeService"), Now: now}
}

func (s *Service) CreateOutcome(ctx context.Context, o Outcome) (Outcome, error) {
	if err := o.Validate(); err != nil {
		return Outcome{}, err
	}
	now := s.Now().Unix()
	o.Version = 1
	o.IsActive = true
	o.CreatedAt, o.UpdatedAt = now, now
	if err := s.Store.CreateOutcome(ctx, o); err != nil {
		return Outcome{}, err
	}
	return o, nil
}

// Revision holds the editable fields of an outcome.
type Revision struct {
	Title       *string
	Description *string
	BloomsLevel *BloomsLevel
}

// ReviseOutcome applies an edit and bumps the version. Type and owner never change.
func (s *Service) ReviseOutcome(ctx context.Context, id string, rev Revision) (Outcome, error) {
	o, err := s.Store.GetOutcome(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if !o.IsActive {
		return Outcome{}, fmt.Errorf("outcome %q is inactive: %w", id, apperr.ErrConflict)
	}
	if rev.Title != nil {
		o.Title = *rev.Title
	}
	if rev.Description != nil {
		o.Description = *rev.Description
	}
	if rev.BloomsLevel != nil {
		o.BloomsLevel = *rev.BloomsLevel
	}
	if err := o.Validate(); err != nil {
		return Outcome{}, err
	}
	o.Version++
	o.UpdatedAt = s.Now().Unix()
	if err := s.Store.UpdateOutcome(ctx, o); err != nil {
		return Outcome{}, err
	}
	return o, nil
}

// Deactivate soft-deletes an outcome; outcomes are never removed.
func (s *Service) Deactivate(ctx context.Context, id string) (Outcome, error) {
	o, err := s.Store.GetOutcome(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if !o.IsActive {
		return o, nil
	}
	o.IsActive = false
	o.Version++
	o.UpdatedAt = s.Now().Unix()
	if err := s.Store.UpdateOutcome(ctx, o); err != nil {
		return Outcome{}, err
	}
	return o, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Outcome, error) {
	return s.Store.ListOutcomes(ctx, f)
}

// WeightReport describes a node's outgoing weight after a change.
type WeightReport struct {
	OutcomeID   string  `json:"outcome_id"`
	Edges       []Edge  `json:"edges"`
	TotalWeight float64 `json:"total_weight"`
	Warning     string  `json:"warning,omitempty"`
}

// UpsertMapping validates the edge against the full graph (including inactive
// nodes) and persists it. An existing (source,target) pair has its weight updated.
func (s *Service) UpsertMapping(ctx context.Context, m Mapping) (WeightReport, error) {
	g, err := LoadGraph(ctx, s.Store, false)
	if err != nil {
		return WeightReport{}, err
	}
	if err := g.Upsert(m); err != nil {
		return WeightReport{}, err
	}
	if err := s.Store.UpsertMapping(ctx, m, s.Now().Unix()); err != nil {
		return WeightReport{}, err
	}
	rep := report(g, m.SourceID)
	if rep.Warning != "" {
		s.Log.Warn("outcome weight outside policy band", "outcome_id", m.SourceID, "total_weight", rep.TotalWeight)
	}
	return rep, nil
}

func (s *Service) Weights(ctx context.Context, id string) (WeightReport, error) {
	g, err := LoadGraph(ctx, s.Store, false)
	if err != nil {
		return WeightReport{}, err
	}
	if _, ok := g.Outcome(id); !ok {
		return WeightReport{}, apperr.NotFound("outcome", id)
	}
	return report(g, id), nil
}

func report(g *Graph, id string) WeightReport {
	warn, _ := g.WeightWarning(id)
	return WeightReport{
		OutcomeID:   id,
		Edges:       g.Parents(id),
		TotalWeight: g.TotalOutgoingWeight(id),
		Warning:     warn,
	}
}
