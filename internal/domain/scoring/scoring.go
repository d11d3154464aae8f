// Package scoring computes per-round scores from correctness, speed and streak.
package scoring

import "math"

// Config tunes the scoring curve.
type Config struct {
	// StreakDivisor controls multiplier growth: multiplier = 1 + streak/divisor.
	// Smaller values reward streaks more aggressively.
	StreakDivisor int
}

// DefaultConfig returns the standard curve.
func DefaultConfig() Config {
	return Config{StreakDivisor: 2}
}

// Result is the outcome of scoring one answer.
type Result struct {
	Earned     int
	NextStreak int
	Multiplier float64
}

// minSpeedFactor is the floor applied to very slow correct answers.
const minSpeedFactor = 0.25

// Apply scores a single answer.
//
// A miss (or no submission) earns nothing and resets the streak. A correct
// answer earns baseScore scaled by a streak multiplier and a linear speed
// factor over the round duration, floored at 25%. The multiplier grows with
// every consecutive correct answer and resets to 1 after any miss.
func Apply(cfg Config, correct bool, responseMs, playingMs int64, streak, baseScore int) Result {
	if !correct {
		return Result{Earned: 0, NextStreak: 0, Multiplier: 1}
	}

	divisor := cfg.StreakDivisor
	if divisor <= 0 {
		divisor = DefaultConfig().StreakDivisor
	}
	multiplier := 1 + float64(streak)/float64(divisor)

	speed := minSpeedFactor
	if playingMs > 0 {
		speed = math.Max(minSpeedFactor, 1-float64(responseMs)/float64(playingMs))
	}

	earned := int(math.Round(float64(baseScore) * multiplier * speed))
	return Result{
		Earned:     earned,
		NextStreak: streak + 1,
		Multiplier: multiplier,
	}
}
