package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/digkill/NabiBot/internal/config"
)

// ErrDisabled is returned by NewUploader when no bucket is configured.
var ErrDisabled = errors.New("s3 rehosting disabled")

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader rehosts inbound WhatsApp media under a public URL so that
// generation providers can fetch it without platform credentials.
type Uploader struct {
	bucket        string
	publicBaseURL string
	prefix        string
	client        objectPutter
	now           func() time.Time
}

func NewUploader(cfg config.Config) (*Uploader, error) {
	if cfg.S3Bucket == "" {
		return nil, ErrDisabled
	}
	if cfg.S3Region == "" {
		return nil, fmt.Errorf("s3 region is required")
	}
	if cfg.S3AccessKey == "" || cfg.S3SecretKey == "" {
		return nil, fmt.Errorf("s3 credentials are required")
	}
	if cfg.S3PublicBaseURL == "" {
		return nil, fmt.Errorf("s3 public base url is required")
	}

	options := s3.Options{
		Region:       cfg.S3Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		UsePathStyle: cfg.S3UsePathStyle,
	}
	if cfg.S3Endpoint != "" {
		options.BaseEndpoint = aws.String(cfg.S3Endpoint)
	}

	return newUploader(s3.New(options), cfg.S3Bucket, cfg.S3PublicBaseURL, cfg.S3Prefix), nil
}

func newUploader(client objectPutter, bucket, publicBaseURL, prefix string) *Uploader {
	if prefix == "" {
		prefix = "inbound"
	}
	return &Uploader{
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		prefix:        strings.Trim(prefix, "/"),
		client:        client,
		now:           time.Now,
	}
}

// Upload stores data as a public-read object and returns its public URL.
func (u *Uploader) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("no data to upload")
	}
	contentType = normalizeContentType(contentType)

	key := u.objectKey(contentType)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}
	return u.publicBaseURL + "/" + key, nil
}

// objectKey lays objects out as <prefix>/<yyyy>/<mm>/<dd>/<uuid><ext>.
func (u *Uploader) objectKey(contentType string) string {
	day := u.now().UTC().Format("2006/01/02")
	return path.Join(u.prefix, day, uuid.NewString()+extension(contentType))
}

func normalizeContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType == "" {
		return "image/jpeg"
	}
	return strings.ToLower(mediaType)
}

func extension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "audio/ogg":
		return ".ogg"
	case "audio/mpeg":
		return ".mp3"
	case "video/mp4":
		return ".mp4"
	default:
		return ".bin"
	}
}
