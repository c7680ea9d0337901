package clock

import (
	"context"
	"time"
)

// Clocker abstracts time so callers can replace real time in tests.
//
// The OTP polling loop depends on both reading the current time (message
// timestamp cutoffs) and sleeping between attempts, so both live here.
type Clocker interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is cancelled, returning ctx.Err()
	// in the cancelled case.
	Sleep(ctx context.Context, d time.Duration) error
}

// TimeClocker is the production clock implementation backed by time.Now.
type TimeClocker struct{}

// New returns a TimeClocker that reads the current system time.
func New() *TimeClocker {
	return &TimeClocker{}
}

// Now returns the current system time.
func (*TimeClocker) Now() time.Time {
	return time.Now()
}

// Sleep waits for d using a timer, honoring context cancellation.
func (*TimeClocker) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
