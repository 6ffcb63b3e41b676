package storage

import (
	"context"
	"testing"

	"github.com/studio-arteamo/sitecms/internal/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirestoreStorageConfig(t *testing.T) {
	ctx := context.Background()
	encryptor, err := crypto.NewEncryptor([]byte("test-encryption-key-32-bytes-ok!"))
	require.NoError(t, err)

	t.Run("missing project", func(t *testing.T) {
		_, err := NewFirestoreStorage(ctx, "", "(default)", "sitecms", encryptor)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "projectID is required")
	})

	t.Run("nil encryptor", func(t *testing.T) {
		_, err := NewFirestoreStorage(ctx, "test-project", "(default)", "sitecms", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "encryptor is required")
	})

	t.Run("missing prefix", func(t *testing.T) {
		_, err := NewFirestoreStorage(ctx, "test-project", "(default)", "", encryptor)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "collection prefix is required")
	})
}
