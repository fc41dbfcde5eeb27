package experiment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consensus/pkg/logx"
	"consensus/pkg/participant"
)

type fakeAgent struct {
	idx      int
	delay    time.Duration
	fail     bool
	panics   bool
	inflight *atomic.Int32
	peak     *atomic.Int32
}

func (a *fakeAgent) Name() string { return fmt.Sprintf("fake-%d", a.idx) }

func (a *fakeAgent) Decide(ctx context.Context, _ string) (participant.Decision[int], error) {
	n := a.inflight.Add(1)
	defer a.inflight.Add(-1)
	for {
		p := a.peak.Load()
		if n <= p || a.peak.CompareAndSwap(p, n) {
			break
		}
	}

	select {
	case <-time.After(a.delay):
	case <-ctx.Done():
		return participant.Decision[int]{}, ctx.Err()
	}
	if a.panics {
		panic("boom")
	}
	if a.fail {
		return participant.Decision[int]{}, fmt.Errorf("agent %d: %w", a.idx, participant.ErrRetriesExhausted)
	}
	return participant.Decision[int]{Index: a.idx, Value: a.idx * 10, Attempts: 1}, nil
}

type fakeExperiment struct {
	mu          sync.Mutex
	makeAgents  func(instance int) []*fakeAgent
	failRound   map[int]int // instance -> round whose postprocess fails
	results     map[int][][]Result[int]
	peaks       map[int][]int32
	recorded    map[int]int
	recordErr   error
	postprocess int
}

func newFakeExperiment(makeAgents func(instance int) []*fakeAgent) *fakeExperiment {
	return &fakeExperiment{
		makeAgents: makeAgents,
		failRound:  map[int]int{},
		results:    map[int][][]Result[int]{},
		peaks:      map[int][]int32{},
		recorded:   map[int]int{},
	}
}

func (f *fakeExperiment) GenerateAgents(_ context.Context, instance int) ([]*fakeAgent, error) {
	return f.makeAgents(instance), nil
}

func (f *fakeExperiment) GenerateQuestion(a *fakeAgent, round int) string {
	return fmt.Sprintf("agent %d round %d", a.idx, round)
}

func (f *fakeExperiment) RoundPostprocess(_ context.Context, instance, round int, agents []*fakeAgent, results []Result[int]) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[instance] = append(f.results[instance], results)
	if len(agents) > 0 {
		f.peaks[instance] = append(f.peaks[instance], agents[0].peak.Swap(0))
	}
	if r, ok := f.failRound[instance]; ok && r == round {
		return errors.New("postprocess exploded")
	}
	return nil
}

func (f *fakeExperiment) UpdateRecord(instance int, _ []*fakeAgent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded[instance]++
	return f.recordErr
}

func (f *fakeExperiment) ExperimentPostprocess(context.Context) (Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.postprocess++
	return Output{Saved: true, Entries: len(f.recorded)}, nil
}

// logBuffer collects log lines written from many goroutines.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func quietLogs(t *testing.T) *logBuffer {
	t.Helper()
	buf := &logBuffer{}
	prev := logx.SetOutput(buf)
	t.Cleanup(func() { logx.SetOutput(prev) })
	return buf
}

func agentsWith(n int, delay func(i int) time.Duration, tweak func(a *fakeAgent)) []*fakeAgent {
	inflight, peak := &atomic.Int32{}, &atomic.Int32{}
	agents := make([]*fakeAgent, n)
	for i := range agents {
		agents[i] = &fakeAgent{idx: i, delay: delay(i), inflight: inflight, peak: peak}
		if tweak != nil {
			tweak(agents[i])
		}
	}
	return agents
}

func TestScheduleLimit(t *testing.T) {
	s := Schedule{NarrowAfterRound: 4, NarrowedLimit: 1}
	assert.Equal(t, 5, s.Limit(0, 5))
	assert.Equal(t, 5, s.Limit(3, 5))
	assert.Equal(t, 1, s.Limit(4, 5))
	assert.Equal(t, 1, s.Limit(8, 5))

	assert.Equal(t, 2, Schedule{RoundLimit: 2}.Limit(0, 5))
	assert.Equal(t, 3, Schedule{RoundLimit: 10}.Limit(0, 3))
	assert.Equal(t, 5, Schedule{NarrowedLimit: 1}.Limit(9, 5), "narrowing disabled")
	assert.Equal(t, 1, Schedule{}.Limit(0, 0))
}

func TestEngineResultsSortedUnderRandomDelays(t *testing.T) {
	quietLogs(t)
	rng := rand.New(rand.NewPCG(3, 5))
	const n = 8

	for trial := range 5 {
		delays := make([]time.Duration, n)
		for i := range delays {
			delays[i] = time.Duration(rng.IntN(20)) * time.Millisecond
		}
		exp := newFakeExperiment(func(int) []*fakeAgent {
			return agentsWith(n, func(i int) time.Duration { return delays[i] }, nil)
		})
		engine := NewEngine[int, *fakeAgent](exp, "fake", 2, Schedule{}, nil)

		require.NoError(t, engine.RunInstance(context.Background(), trial))
		for _, results := range exp.results[trial] {
			require.Len(t, results, n)
			for i, r := range results {
				assert.Equal(t, i, r.Index)
				assert.Equal(t, i*10, r.Value)
			}
		}
		assert.Equal(t, 1, exp.recorded[trial])
	}
}

func TestEngineNarrowsConcurrency(t *testing.T) {
	quietLogs(t)
	exp := newFakeExperiment(func(int) []*fakeAgent {
		return agentsWith(4, func(int) time.Duration { return 20 * time.Millisecond }, nil)
	})
	engine := NewEngine[int, *fakeAgent](exp, "fake", 3, Schedule{NarrowAfterRound: 1, NarrowedLimit: 1}, nil)

	require.NoError(t, engine.RunInstance(context.Background(), 0))
	peaks := exp.peaks[0]
	require.Len(t, peaks, 3)
	assert.Greater(t, peaks[0], int32(1), "round 0 fans out")
	assert.Equal(t, int32(1), peaks[1])
	assert.Equal(t, int32(1), peaks[2])
}

func TestEngineFailedAndPanickingAgentsAreAbsent(t *testing.T) {
	logs := quietLogs(t)
	exp := newFakeExperiment(func(int) []*fakeAgent {
		return agentsWith(4, func(int) time.Duration { return time.Millisecond }, func(a *fakeAgent) {
			a.fail = a.idx == 1
			a.panics = a.idx == 3
		})
	})
	engine := NewEngine[int, *fakeAgent](exp, "fake", 2, Schedule{}, nil)

	require.NoError(t, engine.RunInstance(context.Background(), 0))
	for _, results := range exp.results[0] {
		assert.Equal(t, []Result[int]{{Index: 0, Value: 0}, {Index: 2, Value: 20}}, results)
	}
	assert.Contains(t, logs.String(), "sits out round 0")
	assert.Contains(t, logs.String(), "panicked in round 1")
	assert.Contains(t, logs.String(), "round 2/2 done (instance 0), 2/4 agents answered")
}

func TestEnginePostprocessErrorStillRecords(t *testing.T) {
	quietLogs(t)
	exp := newFakeExperiment(func(int) []*fakeAgent {
		return agentsWith(2, func(int) time.Duration { return 0 }, nil)
	})
	exp.failRound[0] = 1
	engine := NewEngine[int, *fakeAgent](exp, "fake", 5, Schedule{}, nil)

	err := engine.RunInstance(context.Background(), 0)
	var ppErr *PostprocessError
	require.ErrorAs(t, err, &ppErr)
	assert.Equal(t, 0, ppErr.Instance)
	assert.Equal(t, 1, ppErr.Round)
	assert.Len(t, exp.results[0], 2, "no round runs after the failure")
	assert.Equal(t, 1, exp.recorded[0], "partial history is recorded")
}

func TestEngineRecordFailureIsLoggedAndReturned(t *testing.T) {
	logs := quietLogs(t)
	exp := newFakeExperiment(func(int) []*fakeAgent {
		return agentsWith(2, func(int) time.Duration { return 0 }, nil)
	})
	diskFull := errors.New("disk full")
	exp.recordErr = diskFull
	engine := NewEngine[int, *fakeAgent](exp, "fake", 2, Schedule{}, nil)

	err := engine.RunInstance(context.Background(), 3)
	require.ErrorIs(t, err, diskFull)
	assert.Contains(t, err.Error(), "instance 3: update record")
	assert.Contains(t, logs.String(), "ERROR: instance 3: update record: disk full")
}

func TestOrchestratorIsolatesFailedInstance(t *testing.T) {
	quietLogs(t)
	exp := newFakeExperiment(func(int) []*fakeAgent {
		return agentsWith(3, func(i int) time.Duration { return time.Duration(i) * time.Millisecond }, nil)
	})
	exp.failRound[1] = 0
	engine := NewEngine[int, *fakeAgent](exp, "fake", 2, Schedule{}, nil)
	orch := NewOrchestrator[int, *fakeAgent](exp, engine, OrchestratorOptions{RunID: "run-1", Variant: "fake", Instances: 3})

	report, err := orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, 2, report.Succeeded)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, 1, report.Failed[0].Instance)
	assert.Equal(t, map[int]int{0: 1, 1: 1, 2: 1}, exp.recorded)
	assert.Equal(t, 1, exp.postprocess)
	assert.True(t, report.Output.Saved)
}

func TestOrchestratorPersistsAfterCancel(t *testing.T) {
	quietLogs(t)
	exp := newFakeExperiment(func(int) []*fakeAgent {
		return agentsWith(2, func(int) time.Duration { return time.Second }, nil)
	})
	engine := NewEngine[int, *fakeAgent](exp, "fake", 3, Schedule{}, nil)
	orch := NewOrchestrator[int, *fakeAgent](exp, engine, OrchestratorOptions{Variant: "fake", Instances: 2, MaxParallel: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	report, err := orch.Run(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Failed, 2)
	assert.Equal(t, 1, exp.postprocess)
	assert.Equal(t, map[int]int{0: 1, 1: 1}, exp.recorded)
}
