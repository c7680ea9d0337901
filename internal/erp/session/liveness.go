package session

import (
	"context"
	"io"
	"log/slog"

	"github.com/metakgp/iitkgp-erp-login/internal/erp"
)

// Alive reports whether the session's cookie state still reaches the portal
// as authenticated. The signal is the exact byte length of the welcome page;
// any portal change to that page invalidates the check, so the comparison is
// kept in one place (isWelcomeLength) instead of inline.
func (s *Session) Alive(ctx context.Context) (bool, error) {
	resp, err := s.get(ctx, s.endpoints.WelcomePage)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	n := resp.ContentLength
	if n < 0 {
		// Chunked response: fall back to counting the body.
		n, err = io.Copy(io.Discard, resp.Body)
		if err != nil {
			return false, err
		}
	}

	alive := isWelcomeLength(n)
	slog.InfoContext(ctx, "liveness check", "alive", alive, "length", n)

	return alive, nil
}

// isWelcomeLength is the liveness predicate: the welcome page served to a
// live session has a fixed, known byte length.
func isWelcomeLength(n int64) bool {
	return n == erp.WelcomePageLength
}
