// Package clock provides a tiny time abstraction.
//
// Production code should depend on the Clocker interface instead of calling
// time.Now() or time.Sleep() directly. This makes the login flow easier to
// test because a fake clock can return deterministic times and record the
// exact sleep schedule of the OTP poller.
package clock
