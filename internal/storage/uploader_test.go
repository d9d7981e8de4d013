package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/NabiBot/internal/config"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	if params.Body != nil {
		f.body, _ = io.ReadAll(params.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestUploader_Upload(t *testing.T) {
	putter := &fakePutter{}
	u := newUploader(putter, "nabi-media", "https://cdn.example.com/", "/inbound/")
	u.now = func() time.Time { return time.Date(2026, 10, 18, 23, 0, 0, 0, time.UTC) }

	url, err := u.Upload(context.Background(), []byte("png-bytes"), "image/png; charset=binary")
	require.NoError(t, err)

	require.NotNil(t, putter.input)
	key := *putter.input.Key
	assert.True(t, strings.HasPrefix(key, "inbound/2026/10/18/"), key)
	assert.True(t, strings.HasSuffix(key, ".png"), key)
	assert.Equal(t, "nabi-media", *putter.input.Bucket)
	assert.Equal(t, "image/png", *putter.input.ContentType)
	assert.Equal(t, types.ObjectCannedACLPublicRead, putter.input.ACL)
	assert.Equal(t, []byte("png-bytes"), putter.body)
	assert.Equal(t, "https://cdn.example.com/"+key, url)
}

func TestUploader_Upload_Errors(t *testing.T) {
	u := newUploader(&fakePutter{err: errors.New("access denied")}, "b", "https://cdn", "")

	_, err := u.Upload(context.Background(), nil, "image/jpeg")
	assert.Error(t, err)

	_, err = u.Upload(context.Background(), []byte("x"), "")
	assert.ErrorContains(t, err, "access denied")
}

func TestNewUploader_Validation(t *testing.T) {
	_, err := NewUploader(config.Config{})
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = NewUploader(config.Config{S3Bucket: "b", S3Region: "us-east-1"})
	assert.ErrorContains(t, err, "credentials")

	u, err := NewUploader(config.Config{
		S3Bucket:        "b",
		S3Region:        "us-east-1",
		S3AccessKey:     "ak",
		S3SecretKey:     "sk",
		S3PublicBaseURL: "https://cdn",
		S3Endpoint:      "https://s3.example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "inbound", u.prefix)
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".jpg", extension(normalizeContentType("")))
	assert.Equal(t, ".webp", extension(normalizeContentType("IMAGE/WEBP")))
	assert.Equal(t, ".bin", extension(normalizeContentType("application/pdf")))
}
