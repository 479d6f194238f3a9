package contract

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/stationcheck/stationcheck/internal/station"
)

// WaitForService polls getVersion on id until the service answers within the
// contract envelope or maxWait elapses. Transport failures and 5xx replies are
// retried with exponential backoff; any other reply ends the wait. This is a
// caller-side readiness policy: each poll is still a single client attempt.
// A non-positive maxWait polls exactly once.
func WaitForService(ctx context.Context, c Client, id station.StationID, maxWait time.Duration) error {
	if maxWait <= 0 {
		_, err := c.GetVersion(ctx, id)
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = maxWait

	operation := func() error {
		_, err := c.GetVersion(ctx, id)
		if err == nil || retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	return backoff.Retry(operation, backoff.WithContext(bo, ctx))
}

func retryable(err error) bool {
	if errors.Is(err, station.ErrTransport) {
		return true
	}
	var cv *station.ContractViolation
	return errors.As(err, &cv) && cv.StatusCode >= http.StatusInternalServerError
}
