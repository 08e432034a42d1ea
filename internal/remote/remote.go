// Package remote abstracts the upload target behind a small capability
// interface so the pipeline never touches a provider SDK directly.
package remote

import (
	"context"
	"errors"
	"net"
	"time"

	"packrat/internal/auth"
	"packrat/internal/logger"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
)

var (
	ErrAuthRejected  = errors.New("remote rejected the credentials")
	ErrQuotaExceeded = errors.New("remote storage quota exceeded")
)

type Remote interface {
	Name() string
	// Upload transfers the archive as a single object, overwriting any
	// previous object of the same name, and returns a provider reference.
	Upload(ctx context.Context, archivePath string) (string, error)
}

// Do runs an upload with bounded exponential backoff. Only transient
// network-class failures are retried; auth and quota errors surface
// immediately as the pipeline's terminal error.
func Do(ctx context.Context, r Remote, archivePath string, attempts uint64) (string, error) {
	if attempts == 0 {
		attempts = 1
	}

	var ref string
	backoff := retry.WithMaxRetries(attempts-1, retry.NewExponential(time.Second))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		ref, err = r.Upload(ctx, archivePath)
		if err == nil {
			return nil
		}

		if !IsTransient(err) {
			return err
		}

		logger.Log.Warn("transient upload failure, will retry",
			zap.String("remote", r.Name()),
			zap.Error(err))
		return retry.RetryableError(err)
	})

	return ref, err
}

// IsTransient reports whether an upload failure is worth retrying.
func IsTransient(err error) bool {
	switch {
	case errors.Is(err, ErrAuthRejected),
		errors.Is(err, ErrQuotaExceeded),
		errors.Is(err, auth.ErrAuthRequired),
		errors.Is(err, auth.ErrCredentialsMissing),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}

	if gerr, ok := errors.AsType[*googleapi.Error](err); ok {
		if gerr.Code == 429 || gerr.Code >= 500 {
			return true
		}

		// Drive signals rate limiting as 403 with a reason code.
		for _, item := range gerr.Errors {
			if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
				return true
			}
		}

		return false
	}

	if _, ok := errors.AsType[net.Error](err); ok {
		return true
	}

	return false
}
