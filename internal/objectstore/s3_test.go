package objectstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"mbacore/internal/config"
)

func TestS3StoreFullKeyAndStripPrefix(t *testing.T) {
	noPrefix := &S3Store{bucket: "b"}
	assert.Equal(t, "docs/a.pdf", noPrefix.fullKey("docs/a.pdf"))
	assert.Equal(t, "docs/a.pdf", noPrefix.stripPrefix("docs/a.pdf"))

	withPrefix := &S3Store{bucket: "b", prefix: "workspaces"}
	assert.Equal(t, "workspaces/docs/a.pdf", withPrefix.fullKey("docs/a.pdf"))
	assert.Equal(t, "docs/a.pdf", withPrefix.stripPrefix("workspaces/docs/a.pdf"))
}

func TestS3StoreApplySSE(t *testing.T) {
	none := &S3Store{sse: config.S3SSEConfig{Mode: "none"}}
	var enc s3types.ServerSideEncryption
	var kmsID *string
	none.applySSE(&enc, &kmsID)
	assert.Equal(t, s3types.ServerSideEncryption(""), enc)
	assert.Nil(t, kmsID)

	s3mode := &S3Store{sse: config.S3SSEConfig{Mode: "sse-s3"}}
	enc, kmsID = "", nil
	s3mode.applySSE(&enc, &kmsID)
	assert.Equal(t, s3types.ServerSideEncryptionAes256, enc)
	assert.Nil(t, kmsID)

	kms := &S3Store{sse: config.S3SSEConfig{Mode: "sse-kms", KMSKeyID: "key-123"}}
	enc, kmsID = "", nil
	kms.applySSE(&enc, &kmsID)
	assert.Equal(t, s3types.ServerSideEncryptionAwsKms, enc)
	if assert.NotNil(t, kmsID) {
		assert.Equal(t, "key-123", *kmsID)
	}
}
