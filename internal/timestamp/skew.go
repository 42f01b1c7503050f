package timestamp

import "time"

// Level classifies the magnitude of a client's clock skew. It is used for
// logging and metrics only and never decides acceptance.
type Level string

const (
	LevelNormal        Level = "NORMAL"
	LevelWarning       Level = "WARNING"
	LevelCritical      Level = "CRITICAL"
	LevelNoData        Level = "NO_DATA"
	LevelInvalidFormat Level = "INVALID_FORMAT"
)

// Classify maps a skew in seconds to a severity level.
func (g *Guard) Classify(skewSeconds int64) Level {
	abs := skewSeconds
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs > seconds(g.config.CriticalThreshold):
		return LevelCritical
	case abs > seconds(g.config.WarningThreshold):
		return LevelWarning
	default:
		return LevelNormal
	}
}

// SkewRatio is |skew| divided by the tolerance; values above 1 are rejected.
func (g *Guard) SkewRatio(skewSeconds int64) float64 {
	abs := skewSeconds
	if abs < 0 {
		abs = -abs
	}
	return float64(abs) / float64(seconds(g.config.Tolerance))
}

// ShouldSyncClock reports whether the client should be told to fix its clock.
func (g *Guard) ShouldSyncClock(skewSeconds int64) bool {
	return g.Classify(skewSeconds) != LevelNormal
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
