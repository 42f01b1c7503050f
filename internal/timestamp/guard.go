// Package timestamp bounds how far a request's signed-date may drift from the
// gateway clock.
package timestamp

import (
	"errors"
	"fmt"
	"time"

	"hmac-gateway/internal/common/logging"
)

var (
	// ErrInvalidTimestamp means the signed-date is not an ISO-8601 instant with offset.
	ErrInvalidTimestamp = errors.New("invalid timestamp format")
	// ErrClockSkew means the signed-date lies outside the tolerance window.
	ErrClockSkew = errors.New("timestamp outside tolerance")
)

// Config holds the tolerance window and the observability thresholds.
type Config struct {
	Tolerance         time.Duration
	WarningThreshold  time.Duration
	CriticalThreshold time.Duration
}

// DefaultConfig returns a five minute window with 3 and 10 minute severity thresholds.
func DefaultConfig() Config {
	return Config{
		Tolerance:         5 * time.Minute,
		WarningThreshold:  3 * time.Minute,
		CriticalThreshold: 10 * time.Minute,
	}
}

// Result describes one validation.
type Result struct {
	// SkewSeconds is client minus server time, truncated to whole seconds.
	SkewSeconds int64
	Level       Level
	Accepted    bool
	// SyncRecommended is set when the skew is past the warning threshold.
	SyncRecommended bool
}

// AbsSkewSeconds returns the magnitude of the skew.
func (r Result) AbsSkewSeconds() int64 {
	if r.SkewSeconds < 0 {
		return -r.SkewSeconds
	}
	return r.SkewSeconds
}

// Guard validates signed-dates against the local clock.
type Guard struct {
	config Config
	now    func() time.Time
	logger logging.Logger
}

// Option customizes a Guard.
type Option func(*Guard)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// NewGuard creates a guard. Zero thresholds fall back to DefaultConfig.
func NewGuard(config Config, logger logging.Logger, opts ...Option) *Guard {
	defaults := DefaultConfig()
	if config.Tolerance <= 0 {
		config.Tolerance = defaults.Tolerance
	}
	if config.WarningThreshold <= 0 {
		config.WarningThreshold = defaults.WarningThreshold
	}
	if config.CriticalThreshold <= 0 {
		config.CriticalThreshold = defaults.CriticalThreshold
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	g := &Guard{config: config, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Validate accepts signedDate iff |server - client| <= tolerance, measured in
// whole seconds. A parse failure returns ErrInvalidTimestamp; a stale or
// future-dated request returns ErrClockSkew. The Result carries the measured
// skew either way.
func (g *Guard) Validate(signedDate string) (Result, error) {
	if signedDate == "" {
		return Result{Level: LevelNoData}, fmt.Errorf("%w: empty", ErrInvalidTimestamp)
	}

	clientTime, err := time.Parse(time.RFC3339, signedDate)
	if err != nil {
		return Result{Level: LevelInvalidFormat}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, signedDate)
	}

	skew := int64(clientTime.Sub(g.now()) / time.Second)
	result := Result{
		SkewSeconds:     skew,
		Level:           g.Classify(skew),
		SyncRecommended: g.ShouldSyncClock(skew),
	}
	abs := result.AbsSkewSeconds()
	tolerance := seconds(g.config.Tolerance)

	if ratio := g.SkewRatio(skew); ratio > 0.5 {
		g.logger.Info("clock skew detected",
			logging.Int64("skew_seconds", skew),
			logging.Int64("tolerance_seconds", tolerance),
			logging.Any("skew_ratio", ratio),
			logging.String("signed_date", signedDate),
		)
	}
	g.logLevel(result, signedDate)

	if abs > tolerance {
		return result, fmt.Errorf("%w: skew %ds exceeds %ds", ErrClockSkew, skew, tolerance)
	}
	result.Accepted = true
	return result, nil
}

func (g *Guard) logLevel(result Result, signedDate string) {
	fields := []logging.Field{
		logging.Int64("skew_seconds", result.SkewSeconds),
		logging.String("signed_date", signedDate),
		logging.String("level", string(result.Level)),
	}
	switch result.Level {
	case LevelCritical:
		g.logger.Error("critical clock skew", nil, fields...)
	case LevelWarning:
		g.logger.Warn("clock skew above warning threshold", fields...)
	default:
		g.logger.Debug("clock skew within tolerance", fields...)
	}
}
