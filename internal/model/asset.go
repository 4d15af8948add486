package model

// VideoAsset holds the output URLs of a succeeded render job.
type VideoAsset struct {
	VideoURL     string  `json:"videoUrl"`
	SubtitleURL  string  `json:"subtitleUrl"`
	ThumbnailURL string  `json:"thumbnailUrl"`
	DurationSec  float64 `json:"durationSec"`
}

// UploadResult describes one object written to durable storage. ETag is the
// only integrity signal available without re-downloading; in strict mode an
// empty ETag is an upload failure.
type UploadResult struct {
	ObjectKey   string `json:"objectKey"`
	PublicURL   string `json:"publicUrl"`
	ETag        string `json:"etag"`
	SizeBytes   int64  `json:"sizeBytes"`
	ContentType string `json:"contentType"`
}
