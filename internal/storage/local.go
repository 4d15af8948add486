package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/scriptreel/api/internal/config"
	"github.com/scriptreel/api/internal/model"
)

// LocalProvider copies files under a public root on local disk. Intended
// for development; the ETag is an md5 of the content so strict-mode
// consumers behave the same as against real object storage.
type LocalProvider struct {
	root     string
	baseURL  string
	maxBytes int64
}

func NewLocalProvider(cfg *config.StorageConfig) *LocalProvider {
	return &LocalProvider{
		root:     cfg.Local.Root,
		baseURL:  cfg.Local.BaseURL,
		maxBytes: cfg.MaxUploadMB * 1024 * 1024,
	}
}

func (p *LocalProvider) Upload(ctx context.Context, key, localPath, contentType string, obs UploadObserver) (*model.UploadResult, error) {
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

func (p *LocalProvider) upload(ctx context.Context, key, localPath, contentType string, obs UploadObserver) (*model.UploadResult, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", localPath, err)
	}
	if p.maxBytes > 0 && info.Size() > p.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes > %d", ErrSizeLimitExceeded, info.Size(), p.maxBytes)
	}

	if obs != nil {
		obs.UploadStarted(key)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dstPath := filepath.Join(p.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return nil, err
	}

	dst, err := os.Create(dstPath)
	if err != nil {
		return nil, err
	}
	defer dst.Close()

	hash := md5.New()
	if _, err := io.Copy(io.MultiWriter(dst, hash), src); err != nil {
		return nil, fmt.Errorf("copy to %s: %w", dstPath, err)
	}

	return &model.UploadResult{
		ObjectKey:   key,
		PublicURL:   fmt.Sprintf("%s/%s", p.baseURL, key),
		ETag:        hex.EncodeToString(hash.Sum(nil)),
		SizeBytes:   info.Size(),
		ContentType: contentType,
	}, nil
}
