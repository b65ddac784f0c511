package errorstore

import (
	"strings"

	"faultline-go/internal/constants"
	"github.com/cenkalti/backoff/v4"
)

// retryBusy runs op, retrying while SQLite reports lock contention.
func retryBusy(op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = constants.StoreRetryInitialInterval
	b.MaxInterval = constants.StoreRetryMaxInterval
	b.MaxElapsedTime = constants.StoreRetryMaxElapsed
	b.RandomizationFactor = 0.1

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if isBusy(err) {
			return err
		}
		return backoff.Permanent(err)
	}, b)
}

// isBusy matches modernc.org/sqlite lock errors by message.
func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}
