package participant

import (
	"context"

	"consensus/pkg/geom"
)

// Planar is a robot negotiating a meeting point in the plane.
// Decisions set a target; Move drives the robot toward it.
type Planar struct {
	conversant
	motion  *Motion
	peers   []geom.Vec2
	targets []geom.Vec2
}

// NewPlanar creates a planar agent resting at start. Its memory only ever
// holds the system message and the current prompt.
func NewPlanar(opts Options, start geom.Vec2, params MotionParams) *Planar {
	return &Planar{
		conversant: newConversant(opts, false),
		motion:     NewMotion(start, params),
	}
}

// Position returns the robot's current position.
func (p *Planar) Position() geom.Vec2 { return p.motion.Position() }

// Target returns the current target; ok is false until the first successful decision.
func (p *Planar) Target() (geom.Vec2, bool) { return p.motion.Target() }

// Peers returns the positions the robot currently sees.
func (p *Planar) Peers() []geom.Vec2 { return append([]geom.Vec2(nil), p.peers...) }

// SetPeers replaces the visible peer positions.
func (p *Planar) SetPeers(peers []geom.Vec2) { p.peers = append(p.peers[:0], peers...) }

// Trajectory returns every position visited, starting with the initial one.
func (p *Planar) Trajectory() []geom.Vec2 { return p.motion.Trajectory() }

// TargetTrajectory returns every target accepted so far.
func (p *Planar) TargetTrajectory() []geom.Vec2 { return append([]geom.Vec2(nil), p.targets...) }

// Decide asks for the next meeting point and sets it as the target.
func (p *Planar) Decide(ctx context.Context, prompt string) (Decision[geom.Vec2], error) {
	var next geom.Vec2
	attempts, err := p.ask(ctx, prompt, func(reply string) error {
		pt, err := ParsePoint(reply)
		if err != nil {
			return err
		}
		next = pt
		return nil
	})
	if err != nil {
		return Decision[geom.Vec2]{Index: p.index, Attempts: attempts}, err
	}

	p.motion.SetTarget(next)
	p.targets = append(p.targets, next)
	return Decision[geom.Vec2]{Index: p.index, Value: next, Attempts: attempts}, nil
}

// Move runs steps controller steps of dt seconds. A robot without a target stays put.
func (p *Planar) Move(steps int, dt float64) int {
	moved := p.motion.Advance(steps, dt)
	if moved > 0 {
		p.logger.Debug("moved %d steps to %s", moved, p.motion.Position())
	}
	return moved
}
