package experiment

import (
	"context"
	"fmt"

	"consensus/pkg/config"
	"consensus/pkg/geom"
	"consensus/pkg/participant"
	"consensus/pkg/prompt"
	"consensus/pkg/record"
	"consensus/pkg/topology"
)

// ScalarDebate is the one-dimensional gathering experiment.
type ScalarDebate struct {
	variant[float64]
}

// NewScalarDebate creates the scalar experiment over pre-drawn layouts.
func NewScalarDebate(cfg config.Config, graph *topology.Graph, deps Deps, layouts [][]float64) *ScalarDebate {
	return &ScalarDebate{
		variant: newVariant(config.VariantScalar, cfg, graph, deps, prompt.Scalar, layouts,
			geom.FormatNumber, func(x float64) []float64 { return []float64{x} }, false),
	}
}

// GenerateAgents creates the agents of instance at their initial positions.
func (d *ScalarDebate) GenerateAgents(_ context.Context, instance int) ([]*participant.Scalar, error) {
	layout, err := d.layout(instance)
	if err != nil {
		return nil, err
	}
	agents := make([]*participant.Scalar, len(layout))
	for idx := range layout {
		opts, err := d.options(instance, idx)
		if err != nil {
			return nil, err
		}
		a := participant.NewScalar(opts, layout[idx])
		a.SetPeers(d.visible(idx, layout))
		agents[idx] = a
	}
	return agents, nil
}

// GenerateQuestion builds the opening prompt in round 0 and the continuation afterwards.
func (d *ScalarDebate) GenerateQuestion(a *participant.Scalar, round int) string {
	self := geom.FormatNumber(a.Position())
	others := prompt.FormatScalars(a.Peers())
	if round == 0 {
		return d.scenario.Initial(self, others)
	}
	return d.scenario.Continue(self, others)
}

// RoundPostprocess shows every agent the current positions of its visible peers.
// Agents that sat the round out are seen at the position they already held.
func (d *ScalarDebate) RoundPostprocess(_ context.Context, _ int, _ int, agents []*participant.Scalar, results []Result[float64]) error {
	positions := make([]float64, len(agents))
	for i, a := range agents {
		positions[i] = a.Position()
	}
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(agents) {
			return fmt.Errorf("result for unknown agent %d", r.Index)
		}
		if positions[r.Index] != r.Value {
			return fmt.Errorf("agent %d reported %v but stands at %v", r.Index, r.Value, positions[r.Index])
		}
	}
	for i, a := range agents {
		a.SetPeers(d.visible(i, positions))
	}
	return nil
}

// UpdateRecord stores the histories and trajectories of instance.
func (d *ScalarDebate) UpdateRecord(instance int, agents []*participant.Scalar) error {
	entry := record.Entry[float64]{Instance: instance}
	for _, a := range agents {
		entry.Names = append(entry.Names, a.Name())
		entry.Histories = append(entry.Histories, record.TurnsFrom(a.History()))
		entry.Positions = append(entry.Positions, a.Trajectory())
		entry.Tokens = append(entry.Tokens, a.Tokens())
	}
	return d.put(entry)
}

// ExperimentPostprocess persists the record.
func (d *ScalarDebate) ExperimentPostprocess(ctx context.Context) (Output, error) {
	return d.persist(ctx)
}
