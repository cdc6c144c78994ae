// Package fanout provides the race-N-providers pattern: launch every probe
// concurrently, keep the first success, cancel the rest.
package fanout

import (
	"context"
	"errors"
)

// ErrNoProbes is returned when First is called with nothing to race.
var ErrNoProbes = errors.New("no probes to race")

// First runs every probe in its own goroutine and returns the first result
// that arrives without error, cancelling the siblings. When all probes fail,
// the joined errors are returned. The context passed to each probe is
// cancelled as soon as a winner is picked, so probes must honor cancellation.
func First[T any](ctx context.Context, probes []func(context.Context) (T, error)) (T, error) {
	var zero T

	if len(probes) == 0 {
		return zero, ErrNoProbes
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}

	results := make(chan outcome, len(probes))
	for _, probe := range probes {
		probe := probe
		go func() {
			value, err := probe(raceCtx)
			results <- outcome{value: value, err: err}
		}()
	}

	errs := make([]error, 0, len(probes))
	for range probes {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case res := <-results:
			if res.err == nil {
				return res.value, nil
			}
			errs = append(errs, res.err)
		}
	}

	return zero, errors.Join(errs...)
}
