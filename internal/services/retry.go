// Package services – transient-failure retry helper.
//
// SQLite surfaces short-lived contention as "database is locked"/"busy"
// errors. Writes are retried a bounded number of times with a small backoff
// before the failure is surfaced; anything non-transient is returned
// immediately.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/grovechat/grove/pkg/apperr"
)

const (
	retryAttempts = 3
	retryBaseWait = 25 * time.Millisecond
)

// nowUTC is the single clock used for service-side timestamps.
func nowUTC() time.Time { return time.Now().UTC() }

// isTransient recognizes store errors that are safe to retry.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if apperr.IsCode(err, apperr.CodeUnavailable) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "database is locked") ||
		strings.Contains(low, "database table is locked") ||
		strings.Contains(low, "busy")
}

// withRetry runs fn up to retryAttempts times, backing off linearly between
// transient failures. The context is honored between attempts.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if err = fn(); err == nil || !isTransient(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBaseWait * time.Duration(attempt+1)):
		}
	}
	return err
}
