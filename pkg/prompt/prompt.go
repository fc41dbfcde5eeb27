// Package prompt builds the system and user messages agents negotiate with.
package prompt

import (
	"fmt"
	"strings"

	"consensus/pkg/geom"
)

// OutputForm tells the model how to lay out its reply so the position can be parsed.
const OutputForm = `Strictly follow the 'Reasoning:..., Position:...' format to provide your answer.
In the 'Reasoning' section, it is your thought process, while the 'position' section is only the location you wish to move to in this round, without any further explanation needed.
`

// Personalities appended to the role in the system message.
const (
	Stubborn    = "You are an extremely stubborn person, prefer to remain stationary."
	Suggestible = "You are an extremely suggestible person, prefer to move to someone else's position."
)

// Scenario is the set of templates for one experiment variant.
// Game and Round take the agent's own position then the visible peers.
type Scenario struct {
	Role  string
	Game  string
	Round string
}

// Scalar is the one-dimensional gathering scenario.
var Scalar = Scenario{
	Role: "You are an agent moving in a one-dimensional space.",
	Game: `There are many other agents in the space, you all need to gather at the same position, your position is: %s, other people's positions are: %s.
You need to choose a position to move to in order to gather, and briefly explain the reasoning behind your decision.
`,
	Round: `You have now moved to %s, the positions of other agents are %s,
please choose the position you want to move to next.
`,
}

// Planar is the two-dimensional robot gathering scenario.
var Planar = Scenario{
	Role: "You are a robot moving in a two-dimensional space.",
	Game: `There are many other robots in the space. You all need to gather at the same position. Your position is: %s, and the positions of others are: %s.
Choose a position to move to in order to gather, and briefly explain the reasoning behind your decision.
`,
	Round: `You have now moved to %s. The positions of other robots are %s.
Please choose the next position you want to move to.
`,
}

// System returns the system message for an agent with the given personality.
func (s Scenario) System(personality string) string {
	if personality == "" {
		return s.Role
	}
	return s.Role + " " + personality
}

// Initial returns the opening prompt including the output format instruction.
func (s Scenario) Initial(self, others string) string {
	return fmt.Sprintf(s.Game, self, others) + "\n\n" + OutputForm
}

// Continue returns the prompt for every round after the first.
func (s Scenario) Continue(self, others string) string {
	return fmt.Sprintf(s.Round, self, others)
}

// Personality returns the personality of agent idx: the first stubborn
// agents are stubborn, the next suggestible ones suggestible, the rest neutral.
func Personality(idx, stubborn, suggestible int) string {
	switch {
	case idx < stubborn:
		return Stubborn
	case idx < stubborn+suggestible:
		return Suggestible
	default:
		return ""
	}
}

// FormatScalars renders positions as "[12, 40.5]".
func FormatScalars(xs []float64) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = geom.FormatNumber(x)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// FormatPoints renders positions as "[(20, 35), (80, 21)]".
func FormatPoints(ps []geom.Vec2) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
