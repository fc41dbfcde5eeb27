package experiment

import (
	"consensus/pkg/config"
	"consensus/pkg/geom"
	"consensus/pkg/participant"
	"consensus/pkg/topology"
)

// New builds the runner for cfg.Variant. Start positions for every instance
// are drawn up front from one RNG seeded with deps.Seed.
func New(cfg config.Config, deps Deps) (Runner, error) {
	graph, err := topology.FromConfig(cfg.Topology, cfg.Agents)
	if err != nil {
		return nil, err //nolint:wrapcheck // already a ConfigurationError
	}
	rng := NewRand(deps.Seed)

	switch cfg.Variant {
	case config.VariantScalar:
		exp := NewScalarDebate(cfg, graph, deps, ScalarLayouts(rng, cfg.Instances, cfg.Agents))
		return build[float64, *participant.Scalar](exp, cfg, exp.deps), nil
	case config.Variant2D:
		exp := NewPlanarDebate(cfg, graph, deps, PlanarLayouts(rng, cfg.Instances, cfg.Agents))
		return build[geom.Vec2, *participant.Planar](exp, cfg, exp.deps), nil
	default:
		return nil, config.Errorf("variant", "unknown variant %q (want %q or %q)", cfg.Variant, config.VariantScalar, config.Variant2D)
	}
}

func build[P any, A Agent[P]](exp Experiment[P, A], cfg config.Config, deps Deps) *Orchestrator[P, A] {
	engine := NewEngine[P, A](exp, cfg.Variant, cfg.Rounds, ScheduleFromConfig(cfg.Concurrency), deps.Recorder)
	return NewOrchestrator[P, A](exp, engine, OrchestratorOptions{
		RunID:       deps.RunID,
		Variant:     cfg.Variant,
		Instances:   cfg.Instances,
		MaxParallel: cfg.Concurrency.MaxParallelInstances,
		Recorder:    deps.Recorder,
	})
}
