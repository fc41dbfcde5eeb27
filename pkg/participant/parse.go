package participant

import (
	"fmt"
	"regexp"
	"strconv"

	"consensus/pkg/geom"
)

//nolint:gochecknoglobals // compiled once
var (
	numberPattern = regexp.MustCompile(`[-+]?\d*\.\d+|\d+`)
	tuplePattern  = regexp.MustCompile(`\((.*?)\)`)
)

// ParseError reports a reply that does not carry a usable position.
type ParseError struct {
	Reply  string
	Reason string
}

func (e *ParseError) Error() string {
	return "cannot parse position: " + e.Reason
}

// ParseScalar returns the last number in reply.
func ParseScalar(reply string) (float64, error) {
	matches := numberPattern.FindAllString(reply, -1)
	if len(matches) == 0 {
		return 0, &ParseError{Reply: reply, Reason: "no number in reply"}
	}
	x, err := strconv.ParseFloat(matches[len(matches)-1], 64)
	if err != nil {
		return 0, &ParseError{Reply: reply, Reason: err.Error()}
	}
	return x, nil
}

// ParsePoint returns the last parenthesized group in reply, which must hold exactly two numbers.
func ParsePoint(reply string) (geom.Vec2, error) {
	groups := tuplePattern.FindAllStringSubmatch(reply, -1)
	if len(groups) == 0 {
		return geom.Vec2{}, &ParseError{Reply: reply, Reason: "no (x, y) group in reply"}
	}
	inner := groups[len(groups)-1][1]
	numbers := numberPattern.FindAllString(inner, -1)
	if len(numbers) != 2 {
		return geom.Vec2{}, &ParseError{
			Reply:  reply,
			Reason: fmt.Sprintf("last group %q holds %d numbers, want 2", inner, len(numbers)),
		}
	}
	x, errX := strconv.ParseFloat(numbers[0], 64)
	y, errY := strconv.ParseFloat(numbers[1], 64)
	if errX != nil || errY != nil {
		return geom.Vec2{}, &ParseError{Reply: reply, Reason: fmt.Sprintf("bad coordinates in %q", inner)}
	}
	return geom.V(x, y), nil
}
