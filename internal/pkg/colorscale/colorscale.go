// Package colorscale maps NDVI scores in [-1, 1] onto a red-to-green ramp.
// The legend served to clients is generated from the same normalization, so
// the ruler and the map fills always agree.
package colorscale

import (
	"fmt"
	"math"
)

const (
	MinScore = -1.0
	MaxScore = 1.0
)

// Normalize clamps score to [-1, 1] and maps it onto t in [0, 1].
// NaN is treated as 0.
func Normalize(score float64) float64 {
	if math.IsNaN(score) {
		score = 0
	}
	t := (score + 1) / 2
	return math.Max(0, math.Min(1, t))
}

// ColorFor returns the #rrggbb fill color of a score.
func ColorFor(score float64) string {
	t := Normalize(score)
	r := channel((1 - t) * 255)
	g := channel(t * 255)
	return fmt.Sprintf("#%02x%02x00", r, g)
}

// channel rounds to the nearest integer with exact halves resolved downward,
// so the midpoint score 0 renders as #7f7f00.
func channel(v float64) int {
	return int(math.Ceil(v - 0.5))
}

// Stop is one entry of the legend gradient.
type Stop struct {
	Score  float64 `json:"score"`
	Offset float64 `json:"offset"` // position along the ruler, 0..1
	Color  string  `json:"color"`
}

// Legend samples the ramp at steps evenly spaced scores from -1 to 1.
// steps below 2 is raised to 2.
func Legend(steps int) []Stop {
	if steps < 2 {
		steps = 2
	}
	stops := make([]Stop, steps)
	for i := 0; i < steps; i++ {
		score := MinScore + (MaxScore-MinScore)*float64(i)/float64(steps-1)
		stops[i] = Stop{
			Score:  score,
			Offset: Normalize(score),
			Color:  ColorFor(score),
		}
	}
	return stops
}
