package otp

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/metakgp/iitkgp-erp-login/internal/pkg/clock"
)

// DefaultBaseDelay is the sleep before the first poll attempt; attempt i
// sleeps DefaultBaseDelay * 2^i.
const DefaultBaseDelay = 5 * time.Second

// Waiter polls a Source with exponential backoff, one attempt at a time.
type Waiter struct {
	source Source
	clock  clock.Clocker
	base   time.Duration
}

// NewWaiter constructs a Waiter. A non-positive base falls back to
// DefaultBaseDelay.
func NewWaiter(source Source, clk clock.Clocker, base time.Duration) *Waiter {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if clk == nil {
		clk = clock.New()
	}

	return &Waiter{source: source, clock: clk, base: base}
}

// Wait polls the source up to maxAttempts times, sleeping base*2^i before
// attempt i. It returns the first OTP whose message timestamp is not before
// afterUnix. Exhausting every attempt without a match is not an error: the
// caller interprets the empty result as "fall back to manual entry".
// Cancelling ctx aborts the current sleep and returns ctx's error.
func (w *Waiter) Wait(ctx context.Context, afterUnix int64, maxAttempts int) (string, error) {
	backoff := retry.NewExponential(w.base)

	for i := 0; i < maxAttempts; i++ {
		delay, stop := backoff.Next()
		if stop {
			break
		}

		slog.InfoContext(ctx, "checking otp after sleep", "sleep", delay, "attempt", i+1)

		if err := w.clock.Sleep(ctx, delay); err != nil {
			return "", err
		}

		msg, err := w.source.FetchLatest(ctx, afterUnix)
		if err != nil {
			return "", err
		}

		// The source already applies the cutoff; guard again so a sloppy
		// source can never replay a stale code.
		if msg != nil && msg.OTP != "" && msg.Timestamp >= afterUnix {
			return msg.OTP, nil
		}
	}

	return "", nil
}
