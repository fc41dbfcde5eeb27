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

// PlanarDebate is the two-dimensional robot gathering experiment.
type PlanarDebate struct {
	variant[geom.Vec2]
	motion participant.MotionParams
	dt     float64
	steps  int
}

// NewPlanarDebate creates the 2D experiment over pre-drawn layouts.
func NewPlanarDebate(cfg config.Config, graph *topology.Graph, deps Deps, layouts [][]geom.Vec2) *PlanarDebate {
	return &PlanarDebate{
		variant: newVariant(config.Variant2D, cfg, graph, deps, prompt.Planar, layouts,
			geom.Vec2.String, func(p geom.Vec2) []float64 { return []float64{p.X, p.Y} }, true),
		motion: participant.MotionParamsFromConfig(cfg.Motion),
		dt:     cfg.Motion.Dt,
		steps:  cfg.Motion.SubSteps(),
	}
}

// GenerateAgents creates the robots of instance at their initial positions.
func (d *PlanarDebate) GenerateAgents(_ context.Context, instance int) ([]*participant.Planar, error) {
	layout, err := d.layout(instance)
	if err != nil {
		return nil, err
	}
	agents := make([]*participant.Planar, len(layout))
	for idx := range layout {
		opts, err := d.options(instance, idx)
		if err != nil {
			return nil, err
		}
		a := participant.NewPlanar(opts, layout[idx], d.motion)
		a.SetPeers(d.visible(idx, layout))
		agents[idx] = a
	}
	return agents, nil
}

// GenerateQuestion always builds the opening prompt; robots keep no memory
// between rounds, so every round restates the whole scenario.
func (d *PlanarDebate) GenerateQuestion(a *participant.Planar, _ int) string {
	return d.scenario.Initial(a.Position().String(), prompt.FormatPoints(a.Peers()))
}

// RoundPostprocess drives every robot toward its target for one span and
// then shows each robot where its visible peers ended up.
func (d *PlanarDebate) RoundPostprocess(ctx context.Context, _ int, round int, agents []*participant.Planar, results []Result[geom.Vec2]) error {
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(agents) {
			return fmt.Errorf("result for unknown robot %d", r.Index)
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("motion of round %d: %w", round, err)
	}

	positions := make([]geom.Vec2, len(agents))
	for i, a := range agents {
		a.Move(d.steps, d.dt)
		positions[i] = a.Position()
	}
	for i, a := range agents {
		a.SetPeers(d.visible(i, positions))
	}
	return nil
}

// UpdateRecord stores histories plus position and target trajectories of instance.
func (d *PlanarDebate) UpdateRecord(instance int, agents []*participant.Planar) error {
	entry := record.Entry[geom.Vec2]{Instance: instance}
	for _, a := range agents {
		entry.Names = append(entry.Names, a.Name())
		entry.Histories = append(entry.Histories, record.TurnsFrom(a.History()))
		entry.Positions = append(entry.Positions, a.Trajectory())
		entry.Targets = append(entry.Targets, a.TargetTrajectory())
		entry.Tokens = append(entry.Tokens, a.Tokens())
	}
	return d.put(entry)
}

// ExperimentPostprocess persists the record and the trajectories.
func (d *PlanarDebate) ExperimentPostprocess(ctx context.Context) (Output, error) {
	return d.persist(ctx)
}
