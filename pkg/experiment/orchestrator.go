package experiment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"consensus/pkg/logx"
	"consensus/pkg/metrics"
)

// Runner runs a configured experiment to completion.
type Runner interface {
	Run(ctx context.Context) (*Report, error)
}

// InstanceFailure is an instance that ended with an error.
type InstanceFailure struct {
	Instance int
	Err      error
}

// Report summarizes a finished run.
type Report struct {
	RunID     string
	Variant   string
	Instances int
	Succeeded int
	Failed    []InstanceFailure
	Output    Output
	Duration  time.Duration
}

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	RunID       string
	Variant     string
	Instances   int
	MaxParallel int // 0 = every instance at once
	Recorder    metrics.Recorder
}

// Orchestrator runs every instance of an experiment concurrently and
// persists the shared record once they have all finished.
type Orchestrator[P any, A Agent[P]] struct {
	exp      Experiment[P, A]
	engine   *Engine[P, A]
	opts     OrchestratorOptions
	recorder metrics.Recorder
	logger   *logx.Logger
}

// NewOrchestrator wires an orchestrator around engine.
func NewOrchestrator[P any, A Agent[P]](exp Experiment[P, A], engine *Engine[P, A], opts OrchestratorOptions) *Orchestrator[P, A] {
	recorder := opts.Recorder
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Orchestrator[P, A]{
		exp:      exp,
		engine:   engine,
		opts:     opts,
		recorder: recorder,
		logger:   logx.NewLogger("orchestrator"),
	}
}

// Run launches all instances, waits for them and then always persists the
// record, even when ctx was cancelled along the way.
func (o *Orchestrator[P, A]) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: o.opts.RunID, Variant: o.opts.Variant, Instances: o.opts.Instances}
	o.logger.Info("🚀 Starting run %s: %d %s instances", o.opts.RunID, o.opts.Instances, o.opts.Variant)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	if o.opts.MaxParallel > 0 {
		g.SetLimit(o.opts.MaxParallel)
	}

	for i := range o.opts.Instances {
		g.Go(func() error {
			err := o.runInstance(ctx, i)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				o.recorder.ObserveInstance(o.opts.Variant, metrics.InstanceFailed)
				o.logger.Error("instance %d failed: %v", i, err)
				report.Failed = append(report.Failed, InstanceFailure{Instance: i, Err: err})
				return nil
			}
			o.recorder.ObserveInstance(o.opts.Variant, metrics.InstanceOK)
			report.Succeeded++
			return nil
		})
	}
	_ = g.Wait()
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].Instance < report.Failed[j].Instance })

	out, err := o.exp.ExperimentPostprocess(context.WithoutCancel(ctx))
	report.Output = out
	report.Duration = time.Since(start)
	if err != nil {
		return report, fmt.Errorf("experiment postprocess: %w", err)
	}

	o.logger.Info("✅ Run %s finished in %s: %d ok, %d failed",
		o.opts.RunID, report.Duration.Round(time.Millisecond), report.Succeeded, len(report.Failed))
	return report, nil
}

// runInstance shields the other instances from a panic in one of them.
func (o *Orchestrator[P, A]) runInstance(ctx context.Context, instance int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("instance %d panicked: %v", instance, r)
		}
	}()
	return o.engine.RunInstance(ctx, instance)
}
