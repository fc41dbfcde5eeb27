// Package record holds the shared simulation record every instance writes into.
package record

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"consensus/pkg/agent/llm"
	"consensus/pkg/logx"
)

// ErrFrozen is returned by Put after Snapshot has been taken.
var ErrFrozen = errors.New("record is frozen")

// Turn is one role-tagged message of an agent's conversation.
type Turn struct {
	Role    string
	Content string
}

// TurnsFrom converts a conversation into record turns.
func TurnsFrom(msgs []llm.CompletionMessage) []Turn {
	out := make([]Turn, len(msgs))
	for i := range msgs {
		out[i] = Turn{Role: string(msgs[i].Role), Content: msgs[i].Content}
	}
	return out
}

// Entry is everything one instance contributes.
type Entry[P any] struct {
	Key       string
	Instance  int
	Initial   []P
	Names     []string
	Histories [][]Turn // per agent
	Positions [][]P    // per agent trajectory
	Targets   [][]P    // per agent target trajectory; nil for scalar runs
	Tokens    []int    // per agent
}

// Trajectory holds per-instance position and target sequences, keyed by instance index.
type Trajectory[P any] struct {
	Positions map[int][][]P
	Targets   map[int][][]P
}

// Snapshot is the frozen record handed to persistence.
type Snapshot[P any] struct {
	// Data maps the rendered initial layout to the per-agent histories.
	Data map[string][][]Turn
	// Trajectory is set only for records created with trajectories enabled.
	Trajectory *Trajectory[P]
	// Entries lists every entry ordered by instance.
	Entries []Entry[P]
}

// Record is the one lock shared across instances.
type Record[P any] struct {
	mu               sync.Mutex
	format           func(P) string
	withTrajectories bool
	entries          map[string]Entry[P]
	frozen           bool
	logger           *logx.Logger
}

// New creates an empty record. format renders one position for the entry key;
// withTrajectories adds the instance-keyed trajectory section to snapshots.
func New[P any](format func(P) string, withTrajectories bool) *Record[P] {
	return &Record[P]{
		format:           format,
		withTrajectories: withTrajectories,
		entries:          make(map[string]Entry[P]),
		logger:           logx.NewLogger("record"),
	}
}

// Key renders an initial layout as a tuple, e.g. "(12, 40, 77)".
func Key[P any](initial []P, format func(P) string) string {
	parts := make([]string, len(initial))
	for i, p := range initial {
		parts[i] = format(p)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Put stores e under the key of its initial layout and returns that key.
// When another instance already holds the key, the entry is stored under
// key#instance instead.
func (r *Record[P]) Put(e Entry[P]) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return "", fmt.Errorf("put instance %d: %w", e.Instance, ErrFrozen)
	}

	key := Key(e.Initial, r.format)
	if prev, taken := r.entries[key]; taken {
		alt := fmt.Sprintf("%s#%d", key, e.Instance)
		r.logger.Warn("instance %d has the same initial layout %s as instance %d, storing it as %s",
			e.Instance, key, prev.Instance, alt)
		key = alt
	}
	e.Key = key
	r.entries[key] = e
	return key, nil
}

// Len returns the number of stored entries.
func (r *Record[P]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Snapshot freezes the record and returns its contents.
func (r *Record[P]) Snapshot() Snapshot[P] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true

	snap := Snapshot[P]{
		Data:    make(map[string][][]Turn, len(r.entries)),
		Entries: make([]Entry[P], 0, len(r.entries)),
	}
	if r.withTrajectories {
		snap.Trajectory = &Trajectory[P]{
			Positions: make(map[int][][]P, len(r.entries)),
			Targets:   make(map[int][][]P, len(r.entries)),
		}
	}
	for key, e := range r.entries {
		snap.Data[key] = e.Histories
		snap.Entries = append(snap.Entries, e)
		if snap.Trajectory != nil {
			snap.Trajectory.Positions[e.Instance] = e.Positions
			snap.Trajectory.Targets[e.Instance] = e.Targets
		}
	}
	sort.Slice(snap.Entries, func(i, j int) bool { return snap.Entries[i].Instance < snap.Entries[j].Instance })
	return snap
}
