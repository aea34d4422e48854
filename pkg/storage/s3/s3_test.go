package s3

import (
	"testing"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stormrose-io/filegate/pkg/storage"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Bucket: "bucket"})
	assert.Error(t, err, "client is required")

	_, err = New(Config{Client: &awss3.Client{}})
	assert.Error(t, err, "bucket is required")
}

func TestObjectKey(t *testing.T) {
	plain, err := New(Config{Client: &awss3.Client{}, Bucket: "b"})
	require.NoError(t, err)

	key, err := plain.objectKey("docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "docs/a.txt", key)

	prefixed, err := New(Config{Client: &awss3.Client{}, Bucket: "b", KeyPrefix: "tenant-1/"})
	require.NoError(t, err)

	key, err = prefixed.objectKey("docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1/docs/a.txt", key, "the trailing slash of the prefix is normalized")

	for _, bad := range []string{"", "/abs.txt", "../up.txt", "docs/../../up.txt"} {
		_, err := plain.objectKey(bad)
		assert.ErrorIs(t, err, storage.ErrInvalidKey, "key %q", bad)
	}
}
