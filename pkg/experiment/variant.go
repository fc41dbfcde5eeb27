package experiment

import (
	"context"
	"fmt"
	"time"

	"consensus/pkg/agent/llm"
	"consensus/pkg/config"
	"consensus/pkg/logx"
	"consensus/pkg/metrics"
	"consensus/pkg/participant"
	"consensus/pkg/persistence"
	"consensus/pkg/prompt"
	"consensus/pkg/record"
	"consensus/pkg/retry"
	"consensus/pkg/topology"
)

// ClientSource hands out the LLM client of one agent in one instance.
type ClientSource interface {
	Client(instance, agent int) (llm.LLMClient, error)
}

// Deps are the collaborators a variant needs beyond its configuration.
type Deps struct {
	Clients  ClientSource
	Recorder metrics.Recorder
	Files    *persistence.FileStore
	DB       *persistence.SQLiteStore // optional
	RunID    string
	Seed     int64 // placement seed actually used
}

// variant holds the state shared by the scalar and 2D experiments.
type variant[P any] struct {
	name     string
	cfg      config.Config
	graph    *topology.Graph
	scenario prompt.Scenario
	deps     Deps
	layouts  [][]P
	record   *record.Record[P]
	coords   func(P) []float64
	started  time.Time
	logger   *logx.Logger
}

func newVariant[P any](name string, cfg config.Config, graph *topology.Graph, deps Deps,
	scenario prompt.Scenario, layouts [][]P, format func(P) string, coords func(P) []float64, withTrajectories bool,
) variant[P] {
	if deps.Recorder == nil {
		deps.Recorder = metrics.Nop()
	}
	if deps.Files == nil {
		deps.Files = persistence.NewFileStore(cfg.OutputDir)
	}
	if deps.RunID == "" {
		deps.RunID = persistence.NewRunID()
	}
	return variant[P]{
		name:     name,
		cfg:      cfg,
		graph:    graph,
		scenario: scenario,
		deps:     deps,
		layouts:  layouts,
		record:   record.New(format, withTrajectories),
		coords:   coords,
		started:  time.Now(),
		logger:   logx.NewLogger(name),
	}
}

// Record exposes the shared record.
func (v *variant[P]) Record() *record.Record[P] { return v.record }

func (v *variant[P]) layout(instance int) ([]P, error) {
	if instance < 0 || instance >= len(v.layouts) {
		return nil, fmt.Errorf("no layout for instance %d (have %d)", instance, len(v.layouts))
	}
	return v.layouts[instance], nil
}

// options builds the participant options for agent idx of instance.
func (v *variant[P]) options(instance, idx int) (participant.Options, error) {
	client, err := v.deps.Clients.Client(instance, idx)
	if err != nil {
		return participant.Options{}, fmt.Errorf("client for agent %d: %w", idx, err)
	}
	name := participant.Name(idx)
	personality := prompt.Personality(idx, v.cfg.Stubborn, v.cfg.Suggestible)
	return participant.Options{
		Index:       idx,
		Name:        name,
		Variant:     v.name,
		System:      v.scenario.System(personality),
		Client:      client,
		Retry:       RetryConfig(v.cfg.Retry),
		MaxTokens:   v.cfg.LLM.MaxTokens,
		Temperature: float32(v.cfg.LLM.Temperature),
		Recorder:    v.deps.Recorder,
		Logger:      logx.NewLogger(fmt.Sprintf("sim-%d/%s", instance, name)),
	}, nil
}

// visible picks the positions agent idx observes.
func (v *variant[P]) visible(idx int, positions []P) []P {
	peers := v.graph.VisiblePeers(idx)
	out := make([]P, len(peers))
	for i, j := range peers {
		out[i] = positions[j]
	}
	return out
}

// put writes one instance into the shared record.
func (v *variant[P]) put(entry record.Entry[P]) error {
	layout, err := v.layout(entry.Instance)
	if err != nil {
		return err
	}
	entry.Initial = layout
	key, err := v.record.Put(entry)
	if err != nil {
		return fmt.Errorf("record instance %d: %w", entry.Instance, err)
	}
	logx.Debug(context.Background(), "engine", "instance %d recorded as %s", entry.Instance, key)
	return nil
}

// persist freezes the record and writes it to the configured stores.
func (v *variant[P]) persist(ctx context.Context) (Output, error) {
	snap := v.record.Snapshot()

	var trajectory any
	if snap.Trajectory != nil {
		trajectory = snap.Trajectory
	}
	res := v.deps.Files.Save(snap.Data, trajectory)
	out := Output{
		Saved:          res.Saved,
		DataPath:       res.DataPath,
		TrajectoryPath: res.TrajectoryPath,
		Entries:        len(snap.Entries),
	}
	for _, e := range snap.Entries {
		for _, t := range e.Tokens {
			out.Tokens += t
		}
	}

	if v.deps.DB == nil {
		return out, nil
	}
	if err := v.deps.DB.SaveRun(ctx, v.run(snap)); err != nil {
		return out, fmt.Errorf("save run %s: %w", v.deps.RunID, err)
	}
	out.SQLitePath = v.deps.DB.Path()
	return out, nil
}

func (v *variant[P]) run(snap record.Snapshot[P]) *persistence.Run {
	run := &persistence.Run{
		ID:         v.deps.RunID,
		Variant:    v.name,
		Agents:     v.cfg.Agents,
		Rounds:     v.cfg.Rounds,
		Instances:  v.cfg.Instances,
		Model:      v.cfg.LLM.Model,
		Seed:       v.deps.Seed,
		StartedAt:  v.started,
		FinishedAt: time.Now(),
	}
	for _, e := range snap.Entries {
		entry := persistence.Entry{Instance: e.Instance, Key: e.Key}
		for i, name := range e.Names {
			a := persistence.Agent{Index: i, Name: name}
			if i < len(e.Tokens) {
				a.Tokens = e.Tokens[i]
			}
			if i < len(e.Histories) {
				a.Turns = e.Histories[i]
			}
			if i < len(e.Positions) {
				a.Positions = v.points(e.Positions[i])
			}
			if i < len(e.Targets) {
				a.Targets = v.points(e.Targets[i])
			}
			entry.Agents = append(entry.Agents, a)
		}
		run.Entries = append(run.Entries, entry)
	}
	return run
}

func (v *variant[P]) points(ps []P) [][]float64 {
	out := make([][]float64, len(ps))
	for i, p := range ps {
		out[i] = v.coords(p)
	}
	return out
}

// RetryConfig converts the retry settings into a retry policy config.
func RetryConfig(c config.RetryConfig) retry.Config {
	return retry.Config{
		MaxAttempts:   c.MaxAttempts,
		InitialDelay:  c.InitialDelay,
		MaxDelay:      c.MaxDelay,
		BackoffFactor: c.BackoffFactor,
		Jitter:        c.Jitter,
	}
}
