package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptreel/api/internal/config"
)

func newLocalProvider(t *testing.T, maxUploadMB int64) (*LocalProvider, string) {
	t.Helper()
	root := t.TempDir()
	p := NewLocalProvider(&config.StorageConfig{
		MaxUploadMB: maxUploadMB,
		Local: config.LocalStorageConfig{
			Root:    root,
			BaseURL: "http://localhost:3000/assets",
		},
	})
	return p, root
}

func TestLocalUpload(t *testing.T) {
	p, root := newLocalProvider(t, 512)
	content := []byte("slide bytes")
	src := filepath.Join(t.TempDir(), "slide.png")
	require.NoError(t, os.WriteFile(src, content, 0o644))

	result, err := p.Upload(context.Background(), "videos/v1/s1/j1/thumbnail.png", src, "image/png", nil)
	require.NoError(t, err)

	stored, err := os.ReadFile(filepath.Join(root, "videos", "v1", "s1", "j1", "thumbnail.png"))
	require.NoError(t, err)
	assert.Equal(t, content, stored)

	sum := md5.Sum(content)
	assert.Equal(t, hex.EncodeToString(sum[:]), result.ETag)
	assert.Equal(t, "http://localhost:3000/assets/videos/v1/s1/j1/thumbnail.png", result.PublicURL)
	assert.EqualValues(t, len(content), result.SizeBytes)
	assert.Equal(t, "image/png", result.ContentType)
}

func TestLocalUpload_SizeGate(t *testing.T) {
	p, _ := newLocalProvider(t, 1)
	src := filepath.Join(t.TempDir(), "big.mp4")
	require.NoError(t, os.WriteFile(src, make([]byte, 1024*1024+1), 0o644))

	_, err := p.Upload(context.Background(), "k", src, "video/mp4", nil)
	require.ErrorIs(t, err, ErrSizeLimitExceeded)
}

func TestLocalUpload_MissingSource(t *testing.T) {
	p, _ := newLocalProvider(t, 512)
	_, err := p.Upload(context.Background(), "k", "/nonexistent/file", "video/mp4", nil)
	require.Error(t, err)
}
