package experiment

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consensus/internal/mocks"
	"consensus/pkg/agent/llm"
	"consensus/pkg/config"
	"consensus/pkg/geom"
	"consensus/pkg/participant"
	"consensus/pkg/persistence"
	"consensus/pkg/record"
	"consensus/pkg/topology"
)

// mockClients hands out one scripted mock per (instance, agent).
type mockClients struct {
	mu      sync.Mutex
	script  func(instance, agent int, m *mocks.MockLLMClient)
	clients map[[2]int]*mocks.MockLLMClient
}

func newMockClients(script func(instance, agent int, m *mocks.MockLLMClient)) *mockClients {
	return &mockClients{script: script, clients: map[[2]int]*mocks.MockLLMClient{}}
}

func (c *mockClients) Client(instance, agent int) (llm.LLMClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := mocks.NewMockLLMClient()
	c.script(instance, agent, m)
	c.clients[[2]int{instance, agent}] = m
	return m, nil
}

func (c *mockClients) get(instance, agent int) *mocks.MockLLMClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clients[[2]int{instance, agent}]
}

func testConfig(variant string, agents, rounds, instances int) config.Config {
	cfg := config.Default()
	cfg.Variant = variant
	cfg.Agents = agents
	cfg.Rounds = rounds
	cfg.Instances = instances
	cfg.Retry = config.RetryConfig{MaxAttempts: 2, BackoffFactor: 1}
	cfg.Concurrency = config.ConcurrencyConfig{}
	return cfg
}

func testDeps(t *testing.T, clients ClientSource) Deps {
	t.Helper()
	return Deps{
		Clients: clients,
		Files:   persistence.NewFileStore(t.TempDir()).WithFallbackDir(t.TempDir()),
		RunID:   "test-run",
	}
}

func countRole(turns []record.Turn, role string) int {
	n := 0
	for _, t := range turns {
		if t.Role == role {
			n++
		}
	}
	return n
}

func lastUser(req llm.CompletionRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == llm.RoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}

func TestScalarDebateEndToEnd(t *testing.T) {
	quietLogs(t)
	clients := newMockClients(func(_, agent int, m *mocks.MockLLMClient) {
		m.Script(
			mocks.Step{Content: fmt.Sprintf("Reasoning: get closer. Position: %d", 40+agent)},
			mocks.Step{Content: "Reasoning: meet in the middle. Position: 45"},
		)
	})
	cfg := testConfig(config.VariantScalar, 3, 2, 1)
	deps := testDeps(t, clients)
	graph, err := topology.New(topology.FullMeshMinusSelf(3), 3)
	require.NoError(t, err)

	exp := NewScalarDebate(cfg, graph, deps, [][]float64{{10, 50, 90}})
	report, err := build[float64, *participant.Scalar](exp, cfg, exp.deps).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Empty(t, report.Failed)
	assert.True(t, report.Output.Saved)
	assert.Empty(t, report.Output.TrajectoryPath)
	assert.Equal(t, filepath.Join(deps.Files.Dir(), persistence.DataFile), report.Output.DataPath)

	first := clients.get(0, 0).Calls()
	require.Len(t, first, 2)
	assert.Contains(t, lastUser(first[0]), "your position is: 10, other people's positions are: [50, 90]")
	assert.Contains(t, lastUser(first[1]), "You have now moved to 40, the positions of other agents are [41, 42]")
	assert.Len(t, first[1].Messages, 4, "memory carries the first exchange")

	data, err := persistence.LoadData(report.Output.DataPath)
	require.NoError(t, err)
	histories, ok := data["(10, 50, 90)"]
	require.True(t, ok)
	require.Len(t, histories, 3)
	for _, h := range histories {
		assert.Equal(t, 2, countRole(h, string(llm.RoleAssistant)))
		assert.Equal(t, string(llm.RoleSystem), h[0].Role)
	}

	snap := exp.Record().Snapshot()
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, [][]float64{{10, 40, 45}, {50, 41, 45}, {90, 42, 45}}, snap.Entries[0].Positions)
	assert.Equal(t, []string{participant.Name(0), participant.Name(1), participant.Name(2)}, snap.Entries[0].Names)
}

func TestScalarDebateSilentAgentKeepsPosition(t *testing.T) {
	logs := quietLogs(t)
	clients := newMockClients(func(_, agent int, m *mocks.MockLLMClient) {
		if agent == 2 {
			m.FailCompleteWith(errors.New("provider down"))
			return
		}
		m.RespondWith(fmt.Sprintf("Position: %d", 40+agent))
	})
	cfg := testConfig(config.VariantScalar, 3, 2, 1)
	deps := testDeps(t, clients)
	graph, err := topology.New(topology.FullMeshMinusSelf(3), 3)
	require.NoError(t, err)

	exp := NewScalarDebate(cfg, graph, deps, [][]float64{{10, 50, 90}})
	report, err := build[float64, *participant.Scalar](exp, cfg, exp.deps).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)

	second := clients.get(0, 0).Calls()[1]
	assert.Contains(t, lastUser(second), "the positions of other agents are [41, 90]")
	assert.Equal(t, 4, clients.get(0, 2).CallCount(), "two attempts in each of two rounds")
	assert.Contains(t, logs.String(), "2/3 agents answered")

	snap := exp.Record().Snapshot()
	assert.Equal(t, []float64{90}, snap.Entries[0].Positions[2])
	assert.Equal(t, 0, countRole(snap.Entries[0].Histories[2], string(llm.RoleAssistant)))
}

func TestScalarDebateSameLayoutKeepsBothInstances(t *testing.T) {
	logs := quietLogs(t)
	clients := newMockClients(func(_, _ int, m *mocks.MockLLMClient) { m.RespondWith("Position: 5") })
	cfg := testConfig(config.VariantScalar, 2, 1, 2)
	graph, err := topology.New(topology.FullMeshMinusSelf(2), 2)
	require.NoError(t, err)

	exp := NewScalarDebate(cfg, graph, testDeps(t, clients), [][]float64{{1, 2}, {1, 2}})
	report, err := build[float64, *participant.Scalar](exp, cfg, exp.deps).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Output.Entries)

	data, err := persistence.LoadData(report.Output.DataPath)
	require.NoError(t, err)
	assert.Len(t, data, 2)
	assert.Contains(t, logs.String(), "same initial layout")
}

func TestPlanarDebateEndToEnd(t *testing.T) {
	quietLogs(t)
	clients := newMockClients(func(_, _ int, m *mocks.MockLLMClient) {
		m.RespondWith("Reasoning: the centroid is fair. Position: (50, 40)")
	})
	cfg := testConfig(config.Variant2D, 3, 2, 1)
	deps := testDeps(t, clients)
	graph, err := topology.New(topology.FullMeshMinusSelf(3), 3)
	require.NoError(t, err)

	layout := []geom.Vec2{geom.V(20, 20), geom.V(80, 20), geom.V(50, 80)}
	exp := NewPlanarDebate(cfg, graph, deps, [][]geom.Vec2{layout})
	report, err := build[geom.Vec2, *participant.Planar](exp, cfg, exp.deps).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	require.NotEmpty(t, report.Output.TrajectoryPath)

	calls := clients.get(0, 0).Calls()
	require.Len(t, calls, 2)
	assert.Len(t, calls[1].Messages, 2, "robots forget earlier rounds")
	assert.Contains(t, lastUser(calls[0]), "Your position is: (20, 20), and the positions of others are: [(80, 20), (50, 80)]")
	assert.NotContains(t, lastUser(calls[1]), "(20, 20)", "second round reports the moved position")

	traj, err := persistence.LoadTrajectory[geom.Vec2](report.Output.TrajectoryPath)
	require.NoError(t, err)
	steps := cfg.Motion.SubSteps()
	require.Len(t, traj.Positions[0], 3)
	for _, path := range traj.Positions[0] {
		assert.Len(t, path, 1+2*steps)
	}
	assert.Equal(t, [][]geom.Vec2{{geom.V(50, 40), geom.V(50, 40)}}, traj.Targets[0][:1])
}

func TestNewRejectsUnknownVariant(t *testing.T) {
	cfg := testConfig("3d", 2, 1, 1)
	_, err := New(cfg, testDeps(t, newMockClients(func(int, int, *mocks.MockLLMClient) {})))
	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "variant", cfgErr.Field)
}

func TestNewRunsSeededScalarExperiment(t *testing.T) {
	quietLogs(t)
	clients := newMockClients(func(_, _ int, m *mocks.MockLLMClient) { m.RespondWith("Position: 33") })
	cfg := testConfig(config.VariantScalar, 2, 1, 2)
	deps := testDeps(t, clients)
	deps.Seed = 42

	runner, err := New(cfg, deps)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	report, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test-run", report.RunID)
	assert.Equal(t, 2, report.Succeeded)

	want := ScalarLayouts(NewRand(42), 2, 2)
	first := clients.get(0, 0).Calls()[0]
	assert.Contains(t, lastUser(first), fmt.Sprintf("your position is: %s", geom.FormatNumber(want[0][0])))
}

func TestPlacementRanges(t *testing.T) {
	rng := NewRand(7)
	for _, layout := range ScalarLayouts(rng, 50, 4) {
		require.Len(t, layout, 4)
		for _, x := range layout {
			assert.GreaterOrEqual(t, x, 0.0)
			assert.Less(t, x, 100.0)
		}
	}
	for _, layout := range PlanarLayouts(rng, 50, 5) {
		require.Len(t, layout, 5)
		for j, p := range layout {
			if j < len(planarAnchors) {
				d := p.Sub(planarAnchors[j])
				assert.True(t, d.X >= -10 && d.X < 10 && d.Y >= -10 && d.Y < 10, "agent %d at %s", j, p)
				continue
			}
			assert.True(t, p.X >= 10 && p.X <= 90 && p.Y >= 10 && p.Y <= 90, "agent %d at %s", j, p)
		}
	}
	assert.Equal(t, ScalarLayouts(NewRand(9), 3, 3), ScalarLayouts(NewRand(9), 3, 3))
}
