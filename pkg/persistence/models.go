package persistence

import (
	"time"

	"github.com/google/uuid"

	"consensus/pkg/record"
)

// Run is one orchestrator run as stored in SQLite.
type Run struct {
	ID         string
	Variant    string
	Agents     int
	Rounds     int
	Instances  int
	Model      string
	Seed       int64
	StartedAt  time.Time
	FinishedAt time.Time
	Entries    []Entry
}

// Entry is the record entry of one instance.
type Entry struct {
	Instance int
	Key      string
	Agents   []Agent
}

// Agent is one agent's conversation and trajectories. Points hold one
// coordinate for scalar runs and two for 2D runs.
type Agent struct {
	Index     int
	Name      string
	Tokens    int
	Turns     []record.Turn
	Positions [][]float64
	Targets   [][]float64
}

// RunSummary is a row of ListRuns.
type RunSummary struct {
	ID         string
	Variant    string
	Instances  int
	Entries    int
	StartedAt  time.Time
	FinishedAt time.Time
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.New().String()
}
