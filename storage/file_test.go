package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ruteri/parametric-insurance-coordinator/common"
	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	backend, err := NewFileBackend(dir, common.DiscardLogger())
	require.NoError(t, err)
	assert.True(t, backend.Available(ctx))
	assert.Equal(t, "file://"+dir, backend.LocationURI())

	data := []byte(`{"abi":[],"bytecode":"0x6000"}`)
	id, err := backend.Store(ctx, data, interfaces.ArtifactType)
	require.NoError(t, err)
	assert.Equal(t, interfaces.ComputeID(data), id)
	assert.FileExists(t, filepath.Join(dir, "artifacts", id.String()))

	got, err := backend.Fetch(ctx, id, interfaces.ArtifactType)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// Namespaces are separate.
	_, err = backend.Fetch(ctx, id, interfaces.TermsType)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	// Storing twice is harmless.
	again, err := backend.Store(ctx, data, interfaces.ArtifactType)
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestFetchVerifiedRejectsTamperedFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	backend, err := NewFileBackend(dir, common.DiscardLogger())
	require.NoError(t, err)

	id, err := backend.Store(ctx, []byte("terms"), interfaces.TermsType)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "terms", id.String()), []byte("changed"), 0o644))

	_, err = FetchVerified(ctx, backend, id, interfaces.TermsType)
	assert.ErrorIs(t, err, ErrContentMismatch)
}

func TestStorageBackendFor(t *testing.T) {
	factory := NewStorageBackendFactory(common.DiscardLogger())
	dir := t.TempDir()

	backend, err := factory.StorageBackendFor("file://" + dir)
	require.NoError(t, err)
	assert.IsType(t, &FileBackend{}, backend)

	backend, err = factory.StorageBackendFor("s3://AK:SK@bucket/prefix/?region=eu-west-1&endpoint=http://localhost:9000")
	require.NoError(t, err)
	s3b := backend.(*S3Backend)
	assert.Equal(t, "s3-bucket", s3b.Name())
	assert.NotContains(t, s3b.LocationURI(), "SK")

	backend, err = factory.StorageBackendFor("ipfs://127.0.0.1/?root=/policies&timeout=5s")
	require.NoError(t, err)
	assert.Equal(t, "ipfs-127.0.0.1-5001", backend.Name())

	for _, bad := range []string{"ftp://host/x", "ipfs://127.0.0.1/?root=relative", "ipfs://127.0.0.1/?timeout=soon", "s3:///nobucket", "file://"} {
		_, err := factory.StorageBackendFor(bad)
		assert.Error(t, err, bad)
	}
}

func TestCreateMultiBackend(t *testing.T) {
	factory := NewStorageBackendFactory(common.DiscardLogger())

	single, err := factory.CreateMultiBackend([]string{"file://" + t.TempDir(), "ftp://ignored"})
	require.NoError(t, err)
	assert.IsType(t, &FileBackend{}, single)

	multi, err := factory.CreateMultiBackend([]string{"file://" + t.TempDir(), "file://" + t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &MultiStorageBackend{}, multi)

	_, err = factory.CreateMultiBackend([]string{"ftp://ignored"})
	assert.Error(t, err)
}

func TestSplitLocations(t *testing.T) {
	assert.Equal(t, []string{"file:///a", "s3://b"}, SplitLocations(" file:///a, ,s3://b "))
	assert.Nil(t, SplitLocations(""))
}
