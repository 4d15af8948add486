package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/scriptreel/api/internal/config"
	"github.com/scriptreel/api/internal/model"
)

// RemoteProvider uploads through the storage authority's presigned-URL
// protocol: presign → streamed PUT to the signed target → completion
// notice. Each of the three network calls carries its own retry budget.
type RemoteProvider struct {
	httpClient   *http.Client
	authorityURL string
	apiKey       string
	maxBytes     int64
	strictETag   bool
	retry        RetryPolicy
}

// NewRemoteProvider creates a provider talking to the storage authority.
func NewRemoteProvider(cfg *config.StorageConfig) *RemoteProvider {
	retry := RetryPolicy{
		MaxRetries: cfg.RetryMax,
		Base:       time.Duration(cfg.RetryBaseMS) * time.Millisecond,
	}
	if retry.MaxRetries <= 0 {
		retry = DefaultRetryPolicy()
	}
	return &RemoteProvider{
		httpClient:   &http.Client{Timeout: time.Duration(cfg.Authority.Timeout) * time.Second},
		authorityURL: cfg.Authority.BaseURL,
		apiKey:       cfg.Authority.APIKey,
		maxBytes:     cfg.MaxUploadMB * 1024 * 1024,
		strictETag:   cfg.StrictETag,
		retry:        retry,
	}
}

type presignRequest struct {
	ObjectKey     string `json:"objectKey"`
	ContentType   string `json:"contentType"`
	ContentLength int64  `json:"contentLength"`
}

type presignResponse struct {
	UploadURL  string            `json:"uploadUrl"`
	PublicURL  string            `json:"publicUrl"`
	Headers    map[string]string `json:"headers"`
	ExpiresSec int               `json:"expiresSec"`
}

type completeRequest struct {
	ObjectKey   string `json:"objectKey"`
	ETag        string `json:"etag"`
	SizeBytes   int64  `json:"sizeBytes"`
	ContentType string `json:"contentType"`
	PublicURL   string `json:"publicUrl"`
}

// Upload runs the full envelope for one local file.
func (p *RemoteProvider) Upload(ctx context.Context, key, localPath, contentType string, obs UploadObserver) (*model.UploadResult, error) {
	result, err := p.upload(ctx, key, localPath, contentType, obs)
	if err != nil {
		if obs != nil {
			obs.UploadFailed(key, err)
		}
		return nil, err
	}
	if obs != nil {
		obs.UploadDone(key, result)
	}
	return result, nil
}

func (p *RemoteProvider) upload(ctx context.Context, key, localPath, contentType string, obs UploadObserver) (*model.UploadResult, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", localPath, err)
	}
	size := info.Size()
	if p.maxBytes > 0 && size > p.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes > %d", ErrSizeLimitExceeded, size, p.maxBytes)
	}

	if obs != nil {
		obs.UploadStarted(key)
	}

	// 1. Presign
	var signed presignResponse
	err = p.retry.Do(ctx, func() error {
		return p.postJSON(ctx, "/v1/uploads/presign", &presignRequest{
			ObjectKey:     key,
			ContentType:   contentType,
			ContentLength: size,
		}, &signed)
	})
	if err != nil {
		return nil, fmt.Errorf("presign %s: %w", key, err)
	}

	// 2. PUT the file body to the signed target. The file is re-opened per
	// attempt so a retried PUT always streams from offset zero.
	var etag string
	err = p.retry.Do(ctx, func() error {
		var putErr error
		etag, putErr = p.putFile(ctx, &signed, localPath, contentType, size)
		return putErr
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}

	if etag == "" {
		if p.strictETag {
			return nil, fmt.Errorf("upload %s: %w", key, ErrMissingETag)
		}
		log.Printf("[Storage] Warning: no ETag on upload of %s (relaxed mode, proceeding)", key)
	}

	// 3. Completion notice so the authority can persist object metadata.
	err = p.retry.Do(ctx, func() error {
		return p.postJSON(ctx, "/v1/uploads/complete", &completeRequest{
			ObjectKey:   key,
			ETag:        etag,
			SizeBytes:   size,
			ContentType: contentType,
			PublicURL:   signed.PublicURL,
		}, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("complete %s: %w", key, err)
	}

	return &model.UploadResult{
		ObjectKey:   key,
		PublicURL:   signed.PublicURL,
		ETag:        etag,
		SizeBytes:   size,
		ContentType: contentType,
	}, nil
}

// putFile streams the file as the PUT body; it never buffers the whole file
// in memory.
func (p *RemoteProvider) putFile(ctx context.Context, signed *presignResponse, localPath, contentType string, size int64) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, signed.UploadURL, f)
	if err != nil {
		return "", err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)
	for k, v := range signed.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return strings.Trim(resp.Header.Get("ETag"), `"`), nil
}

func (p *RemoteProvider) postJSON(ctx context.Context, endpoint string, payload, result interface{}) error {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.authorityURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}
