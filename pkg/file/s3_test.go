package file_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/file"
)

type mockS3Client struct{ mock.Mock }

func (m *mockS3Client) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func (m *mockS3Client) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.HeadObjectOutput)
	return out, args.Error(1)
}

func (m *mockS3Client) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.DeleteObjectOutput)
	return out, args.Error(1)
}

func newS3(t *testing.T, client file.S3Client, cfg file.S3Config) *file.S3Storage {
	t.Helper()
	if cfg.Bucket == "" {
		cfg.Bucket = "billing"
	}
	if cfg.Region == "" {
		cfg.Region = "sa-east-1"
	}
	s, err := file.NewS3Storage(context.Background(), cfg, file.WithS3Client(client))
	require.NoError(t, err)
	return s
}

func TestNewS3Storage(t *testing.T) {
	t.Parallel()

	_, err := file.NewS3Storage(context.Background(), file.S3Config{Region: "x"})
	require.ErrorIs(t, err, file.ErrInvalidConfig)

	assert.False(t, file.S3Config{}.Enabled())
	assert.True(t, file.S3Config{Bucket: "b"}.Enabled())

	s := newS3(t, &mockS3Client{}, file.S3Config{})
	assert.Equal(t, "https://billing.s3.sa-east-1.amazonaws.com/pix/a.png", s.URL("/pix/a.png"))

	s = newS3(t, &mockS3Client{}, file.S3Config{Endpoint: "http://minio:9000/"})
	assert.Equal(t, "http://minio:9000/billing/pix/a.png", s.URL("pix/a.png"))

	s = newS3(t, &mockS3Client{}, file.S3Config{BaseURL: "https://cdn.example.com"})
	assert.Equal(t, "https://cdn.example.com/pix/a.png", s.URL("pix/a.png"))
}

func TestS3StoragePut(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("uploads and returns url", func(t *testing.T) {
		t.Parallel()
		client := &mockS3Client{}
		client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
			body, _ := io.ReadAll(in.Body)
			return *in.Bucket == "billing" && *in.Key == "pix/pay_1.png" &&
				*in.ContentType == "image/png" && string(body) == "png" &&
				in.CacheControl != nil && *in.CacheControl == "max-age=60"
		})).Return(&s3.PutObjectOutput{}, nil).Once()

		s := newS3(t, client, file.S3Config{CacheControl: "max-age=60"})
		url, err := s.Put(ctx, "pix/pay_1.png", []byte("png"), "image/png")
		require.NoError(t, err)
		assert.Equal(t, "https://billing.s3.sa-east-1.amazonaws.com/pix/pay_1.png", url)
		client.AssertExpectations(t)
	})

	t.Run("rejects traversal and empty body", func(t *testing.T) {
		t.Parallel()
		s := newS3(t, &mockS3Client{}, file.S3Config{})
		_, err := s.Put(ctx, "../etc/passwd", []byte("x"), "text/plain")
		require.ErrorIs(t, err, file.ErrInvalidPath)
		_, err = s.Put(ctx, "pix/a.png", nil, "image/png")
		require.ErrorIs(t, err, file.ErrEmptyObject)
	})

	t.Run("classifies sdk errors", func(t *testing.T) {
		t.Parallel()
		tests := []struct {
			err  error
			want error
		}{
			{&smithy.GenericAPIError{Code: "AccessDenied"}, file.ErrAccessDenied},
			{&smithy.GenericAPIError{Code: "SlowDown"}, file.ErrServiceUnavailable},
			{&types.NoSuchBucket{}, file.ErrBucketNotFound},
			{context.DeadlineExceeded, file.ErrOperationTimeout},
		}
		for _, tt := range tests {
			client := &mockS3Client{}
			client.On("PutObject", mock.Anything, mock.Anything).Return(nil, tt.err)
			_, err := newS3(t, client, file.S3Config{}).Put(ctx, "k.png", []byte("x"), "image/png")
			require.ErrorIs(t, err, tt.want)
		}

		client := &mockS3Client{}
		client.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))
		_, err := newS3(t, client, file.S3Config{}).Put(ctx, "k.png", []byte("x"), "image/png")
		require.ErrorContains(t, err, "boom")
	})
}

func TestS3StorageDeleteExists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client := &mockS3Client{}
	client.On("HeadObject", mock.Anything, mock.MatchedBy(func(in *s3.HeadObjectInput) bool {
		return *in.Key == "pix/a.png"
	})).Return(&s3.HeadObjectOutput{}, nil)
	client.On("HeadObject", mock.Anything, mock.Anything).Return(nil, &types.NotFound{})
	client.On("DeleteObject", mock.Anything, mock.Anything).Return(&s3.DeleteObjectOutput{}, nil)

	s := newS3(t, client, file.S3Config{})
	assert.True(t, s.Exists(ctx, "pix/a.png"))
	assert.False(t, s.Exists(ctx, "pix/b.png"))
	assert.False(t, s.Exists(ctx, ".."))
	require.NoError(t, s.Delete(ctx, "pix/a.png"))
}
