package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/scriptreel/api/internal/model"
)

var (
	// ErrSizeLimitExceeded is returned before any network call when the
	// local file is larger than the configured maximum.
	ErrSizeLimitExceeded = errors.New("upload exceeds configured size limit")

	// ErrMissingETag is returned in strict mode when a successful upload
	// response carries no ETag header. Without it there is no integrity
	// confirmation short of re-downloading the object.
	ErrMissingETag = errors.New("upload response missing ETag")
)

// StatusError is a non-2xx response from a storage endpoint. 5xx responses
// are retryable, 4xx are not.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("storage endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the failed call may succeed on a later attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500
}

// UploadObserver receives coarse per-object upload events. All methods may
// be called from the uploading goroutine; implementations must not block.
type UploadObserver interface {
	UploadStarted(key string)
	UploadDone(key string, result *model.UploadResult)
	UploadFailed(key string, err error)
}

// Provider uploads a local file to durable object storage under the given
// key and returns its public URL and integrity metadata. obs may be nil.
type Provider interface {
	Upload(ctx context.Context, key, localPath, contentType string, obs UploadObserver) (*model.UploadResult, error)
}
