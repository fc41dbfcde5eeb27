package participant

import (
	"consensus/pkg/config"
	"consensus/pkg/geom"
)

// MotionParams configures the PID force controller of a planar agent.
type MotionParams struct {
	Kp        float64
	Ki        float64
	Kd        float64
	MaxForce  float64 // N, bound on the traction force norm
	MaxSpeed  float64 // bound on the velocity norm
	Mass      float64 // kg
	Precision int     // decimals kept on every position
}

// DefaultMotionParams returns the stock controller tuning.
func DefaultMotionParams() MotionParams {
	return MotionParamsFromConfig(config.Default().Motion)
}

// MotionParamsFromConfig extracts controller parameters from the motion config.
func MotionParamsFromConfig(c config.MotionConfig) MotionParams {
	return MotionParams{
		Kp:        c.Kp,
		Ki:        c.Ki,
		Kd:        c.Kd,
		MaxForce:  c.MaxForce,
		MaxSpeed:  c.MaxSpeed,
		Mass:      c.Mass,
		Precision: c.Precision,
	}
}

// Motion moves a point mass toward a target with a PID force controller.
type Motion struct {
	params     MotionParams
	position   geom.Vec2
	velocity   geom.Vec2
	integral   geom.Vec2
	prevError  geom.Vec2
	target     geom.Vec2
	hasTarget  bool
	trajectory []geom.Vec2
}

// NewMotion places a resting body at start. The trajectory opens with start.
func NewMotion(start geom.Vec2, params MotionParams) *Motion {
	return &Motion{
		params:     params,
		position:   start,
		trajectory: []geom.Vec2{start},
	}
}

// SetTarget points the controller at t.
func (m *Motion) SetTarget(t geom.Vec2) {
	m.target = t
	m.hasTarget = true
}

// Target returns the current target; ok is false before the first SetTarget.
func (m *Motion) Target() (t geom.Vec2, ok bool) {
	return m.target, m.hasTarget
}

// Position returns the current (rounded) position.
func (m *Motion) Position() geom.Vec2 { return m.position }

// Velocity returns the current velocity.
func (m *Motion) Velocity() geom.Vec2 { return m.velocity }

// Trajectory returns a copy of every position visited, starting with the initial one.
func (m *Motion) Trajectory() []geom.Vec2 {
	out := make([]geom.Vec2, len(m.trajectory))
	copy(out, m.trajectory)
	return out
}

// Step advances the body by dt seconds and reports whether it moved.
// Without a target the body stays where it is.
func (m *Motion) Step(dt float64) (geom.Vec2, bool) {
	if !m.hasTarget || dt <= 0 {
		return m.position, false
	}

	p := m.params
	err := m.target.Sub(m.position)
	m.integral = m.integral.Add(err.Scale(dt))
	derivative := err.Sub(m.prevError).Scale(1 / dt)

	force := err.Scale(p.Kp).
		Add(m.integral.Scale(p.Ki)).
		Add(derivative.Scale(p.Kd)).
		ClampNorm(p.MaxForce)
	accel := force.Scale(1 / p.Mass)

	// Semi-implicit Euler: velocity first, then position with the same acceleration.
	m.velocity = m.velocity.Add(accel.Scale(dt)).ClampNorm(p.MaxSpeed)
	m.position = m.position.
		Add(m.velocity.Scale(dt)).
		Add(accel.Scale(0.5 * dt * dt)).
		Round(p.Precision)

	m.prevError = err
	m.trajectory = append(m.trajectory, m.position)
	return m.position, true
}

// Advance runs steps controller steps of dt and returns how many moved the body.
func (m *Motion) Advance(steps int, dt float64) int {
	moved := 0
	for range steps {
		if _, ok := m.Step(dt); !ok {
			break
		}
		moved++
	}
	return moved
}
