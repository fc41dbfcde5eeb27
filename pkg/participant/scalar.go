package participant

import (
	"context"
)

// Scalar is an agent negotiating a position on a line.
type Scalar struct {
	conversant
	position   float64
	peers      []float64
	trajectory []float64
}

// NewScalar creates a scalar agent at start. Its memory keeps every exchange.
func NewScalar(opts Options, start float64) *Scalar {
	return &Scalar{
		conversant: newConversant(opts, true),
		position:   start,
		trajectory: []float64{start},
	}
}

// Position returns the agent's current position.
func (s *Scalar) Position() float64 { return s.position }

// Peers returns the positions the agent currently sees.
func (s *Scalar) Peers() []float64 { return append([]float64(nil), s.peers...) }

// SetPeers replaces the visible peer positions.
func (s *Scalar) SetPeers(peers []float64) { s.peers = append(s.peers[:0], peers...) }

// Trajectory returns every position held, starting with the initial one.
func (s *Scalar) Trajectory() []float64 { return append([]float64(nil), s.trajectory...) }

// Decide asks for the next position and moves there.
func (s *Scalar) Decide(ctx context.Context, prompt string) (Decision[float64], error) {
	var next float64
	attempts, err := s.ask(ctx, prompt, func(reply string) error {
		x, err := ParseScalar(reply)
		if err != nil {
			return err
		}
		next = x
		return nil
	})
	if err != nil {
		return Decision[float64]{Index: s.index, Value: s.position, Attempts: attempts}, err
	}

	s.position = next
	s.trajectory = append(s.trajectory, next)
	return Decision[float64]{Index: s.index, Value: next, Attempts: attempts}, nil
}
