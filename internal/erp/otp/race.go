package otp

import (
	"context"
	"errors"
)

// First races producers and returns the first non-empty value; the remaining
// producers are cancelled through the derived context.
//
// Policy (deliberately explicit, the upstream behavior leaves it undefined):
// there is no precedence between sources. A producer returning an empty value
// or an error does not end the race; the race ends when a value arrives or
// every producer has returned. The first non-cancellation error is reported
// only when no producer delivered a value.
func First(ctx context.Context, producers ...func(context.Context) (string, error)) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		value string
		err   error
	}

	results := make(chan outcome, len(producers))
	for _, produce := range producers {
		go func(produce func(context.Context) (string, error)) {
			value, err := produce(ctx)
			results <- outcome{value: value, err: err}
		}(produce)
	}

	var firstErr error
	for range producers {
		r := <-results

		if r.err != nil {
			if firstErr == nil && !errors.Is(r.err, context.Canceled) {
				firstErr = r.err
			}
			continue
		}

		if r.value != "" {
			return r.value, nil
		}
	}

	return "", firstErr
}
