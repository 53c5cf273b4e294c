package storage

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahilchouksey/icm-reconcile/config"
	"github.com/sahilchouksey/icm-reconcile/model"
)

type fakeS3 struct {
	s3iface.S3API
	objects map[string][]byte
	failGet error
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	b, _ := io.ReadAll(in.Body)
	f.objects[*in.Key] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	if f.failGet != nil {
		return nil, f.failGet
	}
	b, ok := f.objects[*in.Key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "missing", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func TestSpacesStoreRoundTrip(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	store := NewSpacesStoreWithClient(fake, SpacesConfig{Bucket: "icm", Endpoint: "https://fra1.digitaloceanspaces.com"})

	url, err := store.Upload(context.Background(), "sheets/1.pdf", []byte("%PDF"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://icm.fra1.digitaloceanspaces.com/sheets/1.pdf", url)

	data, err := store.Download(context.Background(), "sheets/1.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))
}

func TestSpacesStoreErrors(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	store := NewSpacesStoreWithClient(fake, SpacesConfig{Bucket: "icm", CDNURL: "https://cdn.example.com/"})
	assert.Equal(t, "https://cdn.example.com/k", store.URL("k"))

	_, err := store.Download(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrFileNotFound)

	fake.failGet = awserr.New("RequestError", "connection reset", nil)
	_, err = store.Download(context.Background(), "nope")
	assert.ErrorIs(t, err, model.ErrTransient)
}

func TestConfigFromEnv(t *testing.T) {
	_, err := ConfigFromEnv(&config.EnviornmentVariable{})
	assert.Error(t, err)

	cfg, err := ConfigFromEnv(&config.EnviornmentVariable{
		DO_SPACES_BUCKET:     "icm",
		DO_SPACES_REGION:     "fra1",
		DO_SPACES_ACCESS_KEY: "a",
		DO_SPACES_SECRET_KEY: "b",
	})
	require.NoError(t, err)
	assert.Equal(t, "fra1.digitaloceanspaces.com", cfg.Endpoint)
}

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore()
	_, err := m.Upload(context.Background(), "a", []byte("x"), "")
	require.NoError(t, err)

	b, err := m.Download(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "x", string(b))

	_, err = m.Download(context.Background(), "b")
	assert.ErrorIs(t, err, ErrFileNotFound)
}
