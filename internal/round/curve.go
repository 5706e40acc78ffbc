package round

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// Growth curve f(t) = 1 + (e^{bt} - 1) + c*t^p. Strictly increasing with
// f(0) = 1; the live multiplier is f(elapsed) and a round crashes at the
// instant where f reaches its target.
const (
	growthB   = 0.55
	growthC   = 0.12
	growthPow = 1.7
)

// Inversion search bounds: no sampled target takes longer than an hour of
// game time to reach, 60s is already past x10^14.
const (
	searchHorizonSec  = 60.0
	searchIterations  = 50
	targetFloor       = 1.05
	targetTailerScale = 4.0
	targetTailerPow   = 1.15
)

// Growth returns the multiplier after t seconds of flight, clamped to >= 1.
func Growth(t float64) float64 {
	if t <= 0 {
		return 1
	}

	return 1 + (math.Exp(growthB*t) - 1) + growthC*math.Pow(t, growthPow)
}

// TimeToReach inverts Growth by bisection: the smallest t (seconds, within
// the iteration precision) with Growth(t) >= target.
func TimeToReach(target float64) float64 {
	lo, hi := 0.0, searchHorizonSec

	for range searchIterations {
		mid := (lo + hi) / 2
		if Growth(mid) >= target {
			hi = mid
		} else {
			lo = mid
		}
	}

	return hi
}

// NewSeed draws a fairness seed: 16 hex characters from crypto/rand.
func NewSeed() string {
	var b [8]byte
	_, _ = rand.Read(b[:])

	return hex.EncodeToString(b[:])
}

// TargetFromSeed deterministically derives the crash target from the seed,
// so any published seed can be audited after the fact. The draw is skewed
// toward low multipliers with a long right tail:
//
//	T = max(1.05, round2(1 + (1 - ln(1-r))^1.15 * 4)), r in [0,1)
func TargetFromSeed(seed string) float64 {
	r := seedFloat(seed)
	t := 1 + math.Pow(1-math.Log(1-r), targetTailerPow)*targetTailerScale

	if t < targetFloor {
		t = targetFloor
	}

	return math.Round(t*100) / 100
}

// seedFloat maps a seed to [0, 1): first 8 bytes of SHA-256(seed) read as
// a uint64, scaled by 2^64.
func seedFloat(seed string) float64 {
	sum := sha256.Sum256([]byte(seed))
	u := binary.BigEndian.Uint64(sum[:8])

	return float64(u) / math.Pow(2, 64)
}
