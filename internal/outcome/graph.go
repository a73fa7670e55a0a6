package outcome

import (
	"fmt"
	"sort"

	"github.com/mind-engage/mindengage-obe/internal/apperr"
)

// Outgoing weight outside this band is reported, never rejected.
const (
	MinOutgoingWeight = 0.5
	MaxOutgoingWeight = 1.0
)

// ValidatePair accepts only the two adjacent tiers CLO→PLO and PLO→ILO.
func ValidatePair(src, dst Type) error {
	switch {
	case src == TypeCLO && dst == TypePLO:
		return nil
	case src == TypePLO && dst == TypeILO:
		return nil
	default:
		return apperr.Validation("invalid mapping %s→%s: allowed pairs are CLO→PLO and PLO→ILO", src, dst)
	}
}

// Graph is the CLO→PLO→ILO mapping graph. It is not safe for concurrent mutation;
// services load a fresh graph per request.
type Graph struct {
	nodes map[string]Outcome
	out   map[string]map[string]float64 // source -> target -> weight
	in    map[string]map[string]float64 // target -> source -> weight
}

// NewGraph builds a graph from outcomes and edges, validating every edge.
func NewGraph(outcomes []Outcome, edges []Mapping) (*Graph, error) {
	g := &Graph{
		nodes: make(map[string]Outcome, len(outcomes)),
		out:   map[string]map[string]float64{},
		in:    map[string]map[string]float64{},
	}
	for _, o := range outcomes {
		g.nodes[o.ID] = o
	}
	for _, e := range edges {
		if err := g.Upsert(e); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *Graph) Outcome(id string) (Outcome, bool) {
	o, ok := g.nodes[id]
	return o, ok
}

// Outcomes returns every node of the given type, sorted by id.
func (g *Graph) Outcomes(t Type) []Outcome {
	out := make([]Outcome, 0)
	for _, o := range g.nodes {
		if o.Type == t {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Upsert adds an edge or updates the weight of an existing (source,target) edge.
func (g *Graph) Upsert(m Mapping) error {
	if m.SourceID == m.TargetID {
		return apperr.Validation("mapping source and target must differ")
	}
	if m.Weight < 0 || m.Weight > 1 {
		return apperr.Validation("mapping weight %.4f outside [0,1]", m.Weight).WithField("weight", "must be between 0 and 1")
	}
	src, ok := g.nodes[m.SourceID]
	if !ok {
		return apperr.NotFound("outcome", m.SourceID)
	}
	dst, ok := g.nodes[m.TargetID]
	if !ok {
		return apperr.NotFound("outcome", m.TargetID)
	}
	if err := ValidatePair(src.Type, dst.Type); err != nil {
		return err
	}
	if _, exists := g.out[m.SourceID][m.TargetID]; !exists && g.reaches(m.TargetID, m.SourceID) {
		return apperr.Validation("mapping %s→%s would create a cycle", m.SourceID, m.TargetID)
	}
	if g.out[m.SourceID] == nil {
		g.out[m.SourceID] = map[string]float64{}
	}
	if g.in[m.TargetID] == nil {
		g.in[m.TargetID] = map[string]float64{}
	}
	g.out[m.SourceID][m.TargetID] = m.Weight
	g.in[m.TargetID][m.SourceID] = m.Weight
	return nil
}

// reaches reports whether to is reachable from from along outgoing edges.
func (g *Graph) reaches(from, to string) bool {
	seen := map[string]bool{}
	stack := []string{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		for next := range g.out[n] {
			stack = append(stack, next)
		}
	}
	return false
}

func (g *Graph) TotalOutgoingWeight(id string) float64 {
	total := 0.0
	for _, w := range g.out[id] {
		total += w
	}
	return total
}

// WeightWarning returns a message when a node with outgoing edges sums outside
// [MinOutgoingWeight, MaxOutgoingWeight].
func (g *Graph) WeightWarning(id string) (string, bool) {
	if len(g.out[id]) == 0 {
		return "", false
	}
	total := g.TotalOutgoingWeight(id)
	const eps = 1e-9
	if total < MinOutgoingWeight-eps || total > MaxOutgoingWeight+eps {
		return fmt.Sprintf("total outgoing weight %.2f is outside [%.1f, %.1f]", total, MinOutgoingWeight, MaxOutgoingWeight), true
	}
	return "", false
}

// Parents returns the targets of id's outgoing edges, sorted by id.
func (g *Graph) Parents(id string) []Edge { return sortedEdges(g.out[id]) }

// Children returns the sources of id's incoming edges, sorted by id.
func (g *Graph) Children(id string) []Edge { return sortedEdges(g.in[id]) }

// Ancestors returns every outcome reachable upward from ids (excluding ids
// themselves), ordered bottom-up by tier then id.
func (g *Graph) Ancestors(ids ...string) []string {
	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	var out []string
	queue := append([]string(nil), ids...)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for p := range g.out[n] {
			if seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
			queue = append(queue, p)
		}
	}
	g.sortBottomUp(out)
	return out
}

func (g *Graph) sortBottomUp(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		ri, rj := g.nodes[ids[i]].Type.Rank(), g.nodes[ids[j]].Type.Rank()
		if ri != rj {
			return ri < rj
		}
		return ids[i] < ids[j]
	})
}

func (g *Graph) Mappings() []Mapping {
	var out []Mapping
	for src, targets := range g.out {
		for dst, w := range targets {
			out = append(out, Mapping{SourceID: src, TargetID: dst, Weight: w})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceID != out[j].SourceID {
			return out[i].SourceID < out[j].SourceID
		}
		return out[i].TargetID < out[j].TargetID
	})
	return out
}

func sortedEdges(m map[string]float64) []Edge {
	out := make([]Edge, 0, len(m))
	for id, w := range m {
		out = append(out, Edge{OutcomeID: id, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OutcomeID < out[j].OutcomeID })
	return out
}
