package minio

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"wavesight-core/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("minio", fx.Provide(NewUploader))

// EvidenceTypes maps accepted evidence file extensions to their content type.
var EvidenceTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
	".mp4":  "video/mp4",
}

type Upload struct {
	ObjectKey   string    `json:"object_key"`
	ContentType string    `json:"content_type"`
	UploadURL   string    `json:"upload_url"`
	PublicURL   string    `json:"public_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Uploader hands out presigned PUT URLs so clients upload evidence media straight to the bucket.
type Uploader struct {
	client    *minio.Client
	bucket    string
	publicURL string
	ttl       time.Duration
	now       func() time.Time
}

// NewUploader returns nil when MINIO.ENDPOINT is not configured.
func NewUploader(c *config.Config) (*Uploader, error) {
	if c.Minio.Endpoint == "" {
		zap.L().Info("[MinIO] endpoint not configured, evidence uploads disabled")
		return nil, nil
	}

	client, err := minio.New(c.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Minio.AccessKey, c.Minio.SecretKey, ""),
		Secure: c.Minio.Secure,
		Region: c.Minio.Region,
	})
	if err != nil {
		return nil, err
	}

	ttl := c.Minio.UploadTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	publicURL := c.Minio.PublicURL
	if publicURL == "" {
		publicURL = client.EndpointURL().String() + "/" + c.Minio.BucketName
	}

	zap.L().Info("[MinIO] client initialized", zap.String("endpoint", c.Minio.Endpoint), zap.String("bucket", c.Minio.BucketName))
	return &Uploader{
		client:    client,
		bucket:    c.Minio.BucketName,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

// ContentType reports the content type for an evidence filename, false when the extension is not accepted.
func ContentType(filename string) (string, bool) {
	ct, ok := EvidenceTypes[strings.ToLower(path.Ext(filename))]
	return ct, ok
}

// PresignEvidence signs an upload for evidence/<owner>/<name><ext>.
func (u *Uploader) PresignEvidence(ctx context.Context, owner, name, filename string) (*Upload, error) {
	ct, ok := ContentType(filename)
	if !ok {
		return nil, fmt.Errorf("unsupported evidence file type %q", path.Ext(filename))
	}

	key := fmt.Sprintf("evidence/%s/%s%s", owner, name, strings.ToLower(path.Ext(filename)))
	signed, err := u.client.PresignedPutObject(ctx, u.bucket, key, u.ttl)
	if err != nil {
		return nil, err
	}

	return &Upload{
		ObjectKey:   key,
		ContentType: ct,
		UploadURL:   signed.String(),
		PublicURL:   u.publicURL + "/" + key,
		ExpiresAt:   u.now().UTC().Add(u.ttl),
	}, nil
}
