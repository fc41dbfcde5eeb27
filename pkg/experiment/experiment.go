// Package experiment runs negotiation simulations: the round engine that
// drives one instance, the orchestrator that runs many instances at once,
// and the scalar and 2D variants that plug into them.
package experiment

import (
	"context"
	"fmt"

	"consensus/pkg/config"
	"consensus/pkg/participant"
)

// Agent is what the engine needs from a participant.
type Agent[P any] interface {
	Name() string
	Decide(ctx context.Context, prompt string) (participant.Decision[P], error)
}

// Result is one agent's accepted answer in a round.
type Result[P any] struct {
	Index int
	Value P
}

// Experiment is the variant-specific half of a simulation. The engine calls
// GenerateAgents once per instance, GenerateQuestion and RoundPostprocess
// every round, UpdateRecord once when the instance ends, and the
// orchestrator calls ExperimentPostprocess once after every instance.
type Experiment[P any, A Agent[P]] interface {
	GenerateAgents(ctx context.Context, instance int) ([]A, error)
	GenerateQuestion(agent A, round int) string
	RoundPostprocess(ctx context.Context, instance, round int, agents []A, results []Result[P]) error
	UpdateRecord(instance int, agents []A) error
	ExperimentPostprocess(ctx context.Context) (Output, error)
}

// Output describes what ExperimentPostprocess persisted.
type Output struct {
	Saved          bool
	DataPath       string
	TrajectoryPath string
	SQLitePath     string
	Entries        int
	Tokens         int
}

// PostprocessError aborts one instance; the others keep running.
type PostprocessError struct {
	Instance int
	Round    int
	Err      error
}

func (e *PostprocessError) Error() string {
	return fmt.Sprintf("instance %d round %d postprocess: %v", e.Instance, e.Round, e.Err)
}

func (e *PostprocessError) Unwrap() error { return e.Err }

// Phase is the lifecycle stage of an instance.
type Phase string

const (
	PhaseInitializing Phase = "INITIALIZING"
	PhaseRound        Phase = "ROUND"
	PhaseFinalizing   Phase = "FINALIZING"
)

// Schedule decides how many decision tasks of a round may run at once.
type Schedule struct {
	RoundLimit       int // 0 = agent count
	NarrowAfterRound int // rounds >= this use NarrowedLimit; 0 disables narrowing
	NarrowedLimit    int
}

// ScheduleFromConfig builds a schedule from the concurrency settings.
func ScheduleFromConfig(c config.ConcurrencyConfig) Schedule {
	return Schedule{
		RoundLimit:       c.RoundLimit,
		NarrowAfterRound: c.NarrowAfterRound,
		NarrowedLimit:    c.NarrowedLimit,
	}
}

// Limit returns the task limit for round (0-based) with agents participants.
func (s Schedule) Limit(round, agents int) int {
	limit := s.RoundLimit
	if limit <= 0 || limit > agents {
		limit = agents
	}
	if s.NarrowAfterRound > 0 && round >= s.NarrowAfterRound && s.NarrowedLimit > 0 && s.NarrowedLimit < limit {
		limit = s.NarrowedLimit
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}
