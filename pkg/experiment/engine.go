package experiment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"consensus/pkg/logx"
	"consensus/pkg/metrics"
)

// Engine drives the rounds of a single instance.
type Engine[P any, A Agent[P]] struct {
	exp      Experiment[P, A]
	variant  string
	rounds   int
	schedule Schedule
	recorder metrics.Recorder
	logger   *logx.Logger
}

// NewEngine creates an engine running rounds rounds of exp.
func NewEngine[P any, A Agent[P]](exp Experiment[P, A], variant string, rounds int, schedule Schedule, recorder metrics.Recorder) *Engine[P, A] {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Engine[P, A]{
		exp:      exp,
		variant:  variant,
		rounds:   rounds,
		schedule: schedule,
		recorder: recorder,
		logger:   logx.NewLogger("engine"),
	}
}

// RunInstance runs every round of one instance and records its history.
// The record is written even when a round fails or ctx is cancelled.
func (e *Engine[P, A]) RunInstance(ctx context.Context, instance int) (err error) {
	logger := e.logger.WithAgentID(fmt.Sprintf("sim-%d", instance))
	ctx = logx.WithContext(ctx, logger.GetAgentID())
	logger.DebugState("enter", string(PhaseInitializing))

	agents, err := e.exp.GenerateAgents(ctx, instance)
	if err != nil {
		return fmt.Errorf("instance %d: generate agents: %w", instance, err)
	}

	defer func() {
		logger.DebugState("enter", string(PhaseFinalizing))
		if recErr := e.exp.UpdateRecord(instance, agents); recErr != nil {
			err = errors.Join(err, logx.Wrap(recErr, fmt.Sprintf("instance %d: update record", instance)))
		}
	}()

	for round := 0; round < e.rounds; round++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("instance %d stopped before round %d: %w", instance, round, ctxErr)
		}
		logger.DebugState("enter", string(PhaseRound), fmt.Sprintf("round %d", round))

		start := time.Now()
		results := e.runRound(ctx, logger, round, agents)

		if ppErr := e.exp.RoundPostprocess(ctx, instance, round, agents, results); ppErr != nil {
			return &PostprocessError{Instance: instance, Round: round, Err: ppErr}
		}

		e.recorder.ObserveRound(e.variant, time.Since(start))
		logger.Info("round %d/%d done (instance %d), %d/%d agents answered",
			round+1, e.rounds, instance, len(results), len(agents))
	}
	return nil
}

// runRound dispatches one decision task per agent and returns the accepted
// answers sorted by agent index. Failed or panicking tasks are left out.
func (e *Engine[P, A]) runRound(ctx context.Context, logger *logx.Logger, round int, agents []A) []Result[P] {
	prompts := make([]string, len(agents))
	for i, a := range agents {
		prompts[i] = e.exp.GenerateQuestion(a, round)
	}

	limit := e.schedule.Limit(round, len(agents))
	logx.Debug(ctx, "engine", "round %d dispatching %d tasks with limit %d", round, len(agents), limit)

	out := make(chan Result[P], len(agents))
	var g errgroup.Group
	g.SetLimit(limit)

	for i, a := range agents {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("agent %s panicked in round %d: %v", a.Name(), round, r)
				}
			}()

			d, err := a.Decide(ctx, prompts[i])
			if err != nil {
				logger.Warn("agent %s sits out round %d: %v", a.Name(), round, err)
				return nil
			}
			out <- Result[P]{Index: i, Value: d.Value}
			return nil
		})
	}

	// Tasks never return errors; failures are logged above.
	_ = g.Wait()
	close(out)

	results := make([]Result[P], 0, len(agents))
	for r := range out {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	return results
}
