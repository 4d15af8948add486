package storage

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/scriptreel/api/internal/config"
	"github.com/scriptreel/api/internal/model"
)

// S3Provider uploads directly to S3-compatible object storage (Cloudflare
// R2 in production) through the AWS SDK, bypassing the presign authority.
type S3Provider struct {
	s3Client   *s3.Client
	bucketName string
	publicURL  string
	maxBytes   int64
	strictETag bool
}

// NewS3Provider creates a provider for an R2/S3 bucket.
func NewS3Provider(cfg *config.StorageConfig) (*S3Provider, error) {
	s3cfg := cfg.S3
	if s3cfg.AccountID == "" || s3cfg.AccessKeyID == "" || s3cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("S3 storage configuration incomplete")
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", s3cfg.AccountID)

	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{URL: endpoint}, nil
	})

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithEndpointResolverWithOptions(resolver),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s3cfg.AccessKeyID,
			s3cfg.SecretAccessKey,
			"",
		)),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3Provider{
		s3Client:   s3.NewFromConfig(awsCfg),
		bucketName: s3cfg.BucketName,
		publicURL:  s3cfg.PublicURL,
		maxBytes:   cfg.MaxUploadMB * 1024 * 1024,
		strictETag: cfg.StrictETag,
	}, nil
}

func (p *S3Provider) Upload(ctx context.Context, key, localPath, contentType string, obs UploadObserver) (*model.UploadResult, error) {
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

func (p *S3Provider) upload(ctx context.Context, key, localPath, contentType string, obs UploadObserver) (*model.UploadResult, error) {
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

	f, err := os.Open(localPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out, err := p.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucketName),
		Key:           aws.String(key),
		Body:          f,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to bucket: %w", err)
	}

	etag := strings.Trim(aws.ToString(out.ETag), `"`)
	if etag == "" {
		if p.strictETag {
			return nil, fmt.Errorf("upload %s: %w", key, ErrMissingETag)
		}
		log.Printf("[Storage] Warning: no ETag on upload of %s (relaxed mode, proceeding)", key)
	}

	return &model.UploadResult{
		ObjectKey:   key,
		PublicURL:   p.GetPublicURL(key),
		ETag:        etag,
		SizeBytes:   info.Size(),
		ContentType: contentType,
	}, nil
}

// GetPublicURL returns the public CDN URL for a key
func (p *S3Provider) GetPublicURL(key string) string {
	if p.publicURL != "" {
		return fmt.Sprintf("%s/%s", p.publicURL, key)
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com/%s", p.bucketName, key)
}
