// Package util provides common utility functions for strike and price calculations.
package util

import "math"

// RoundToStrike rounds x to the nearest strike increment.
// For NIFTY options the increment is 50, so 20980 becomes 21000 and 20970 becomes 20950.
func RoundToStrike(x float64, increment int) int {
	if increment <= 0 {
		return int(math.Round(x))
	}
	inc := float64(increment)
	return int(math.Round(x/inc) * inc)
}

// RoundToTick rounds x to the nearest tick increment.
// For example, with tick=0.05, 102.32 becomes 102.30.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Round(x/tick) * tick
}
