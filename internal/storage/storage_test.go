package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactKeys(t *testing.T) {
	keys := ArtifactKeys("demo-client", "2026-01")
	assert.Equal(t, "reports/demo-client/2026-01.html", keys.HTML)
	assert.Equal(t, "reports/demo-client/2026-01.pdf", keys.PDF)
}

func TestMemoryStore_Overwrites(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "reports/a/2026-01.html", []byte("v1"), ContentTypeHTML))
	require.NoError(t, store.Put(ctx, "reports/a/2026-01.html", []byte("v2"), ContentTypeHTML))

	obj, ok := store.Get("reports/a/2026-01.html")
	require.True(t, ok)
	assert.Equal(t, "v2", string(obj.Data))
	assert.Equal(t, ContentTypeHTML, obj.ContentType)
	assert.Equal(t, []string{"reports/a/2026-01.html"}, store.Keys())
	assert.Equal(t, 2, store.Puts())
}

func TestMemoryStore_CopiesInput(t *testing.T) {
	store := NewMemoryStore()
	data := []byte("abc")
	require.NoError(t, store.Put(context.Background(), "k", data, ContentTypePDF))
	data[0] = 'z'

	obj, _ := store.Get("k")
	assert.Equal(t, "abc", string(obj.Data))
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	f.body, _ = io.ReadAll(params.Body)
	return &s3.PutObjectOutput{}, f.err
}

func TestS3Store_Put(t *testing.T) {
	fake := &fakeS3{}
	store := &S3Store{client: fake, bucket: "reports-bucket"}

	require.NoError(t, store.Put(context.Background(), "reports/a/2026-01.pdf", []byte("%PDF-"), ContentTypePDF))
	assert.Equal(t, "reports-bucket", aws.ToString(fake.input.Bucket))
	assert.Equal(t, "reports/a/2026-01.pdf", aws.ToString(fake.input.Key))
	assert.Equal(t, ContentTypePDF, aws.ToString(fake.input.ContentType))
	assert.Equal(t, int64(5), aws.ToInt64(fake.input.ContentLength))
	assert.Equal(t, "%PDF-", string(fake.body))
}

func TestS3Store_PutError(t *testing.T) {
	fake := &fakeS3{err: errors.New("access denied")}
	store := &S3Store{client: fake, bucket: "b"}

	err := store.Put(context.Background(), "k", nil, ContentTypeHTML)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://b/k")
}

func TestNew_Memory(t *testing.T) {
	store, err := New(context.Background(), Options{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	_, err = New(context.Background(), Options{Backend: "ftp"})
	assert.Error(t, err)
}
