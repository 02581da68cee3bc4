package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// Policy configures retry behavior with exponential backoff
type Policy struct {
	MaxAttempts int           `koanf:"max_attempts"` // Total attempts including the first (default: 3)
	BaseDelay   time.Duration `koanf:"base_delay"`   // Delay before the first retry (default: 1s)
	MaxDelay    time.Duration `koanf:"max_delay"`    // Upper bound for a single delay (default: 30s)
	Multiplier  float64       `koanf:"multiplier"`   // Exponential backoff multiplier (default: 2.0)
	Jitter      bool          `koanf:"jitter"`       // Add up to 10% random jitter (default: false)

	// Logger receives one event per failed attempt. The zero value discards.
	Logger zerolog.Logger `koanf:"-"`
}

// Result contains information about a retried operation
type Result struct {
	Attempts      int           `json:"attempts"`
	TotalDuration time.Duration `json:"total_duration"`
	LastError     error         `json:"-"`
	Success       bool          `json:"success"`
	RetryReasons  []string      `json:"retry_reasons"`
}

// DefaultPolicy returns the policy used for every GitHub call
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      false,
		Logger:      zerolog.Nop(),
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do executes operation until it succeeds, returns a permanent error, the context is
// done, or MaxAttempts is exhausted. The final error is returned.
func (p Policy) Do(ctx context.Context, operation func(ctx context.Context) error) error {
	result := p.DoWithResult(ctx, operation)
	if result.Success {
		return nil
	}
	return result.LastError
}

// DoWithResult is Do with attempt bookkeeping
func (p Policy) DoWithResult(ctx context.Context, operation func(ctx context.Context) error) Result {
	startTime := time.Now()
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	result := Result{RetryReasons: make([]string, 0)}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		result.Attempts = attempt + 1

		err := operation(ctx)
		if err == nil {
			result.Success = true
			result.LastError = nil
			result.TotalDuration = time.Since(startTime)
			if attempt > 0 {
				p.Logger.Debug().
					Int("attempts", result.Attempts).
					Dur("duration", result.TotalDuration).
					Msg("operation succeeded after retry")
			}
			return result
		}

		result.RetryReasons = append(result.RetryReasons, err.Error())

		var perm *permanentError
		if errors.As(err, &perm) {
			result.LastError = perm.err
			result.TotalDuration = time.Since(startTime)
			return result
		}

		if attempt == maxAttempts-1 {
			result.LastError = fmt.Errorf("giving up after %d attempts: %w", result.Attempts, err)
			result.TotalDuration = time.Since(startTime)
			p.Logger.Warn().Err(err).
				Int("attempts", result.Attempts).
				Dur("duration", result.TotalDuration).
				Msg("operation failed")
			return result
		}

		if ctx.Err() != nil {
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(startTime)
			return result
		}

		delay := p.delay(attempt)
		p.Logger.Warn().Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", maxAttempts).
			Dur("delay", delay).
			Msg("request failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(startTime)
			return result
		case <-timer.C:
		}
	}

	result.TotalDuration = time.Since(startTime)
	return result
}

// delay returns BaseDelay * Multiplier^attempt, capped at MaxDelay
func (p Policy) delay(attempt int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))

	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.Jitter {
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(p.BaseDelay)
		}
	}

	return time.Duration(delay)
}
