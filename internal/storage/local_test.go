package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"exproctor/pkg/types"

	"github.com/gorilla/securecookie"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T) (*Local, string) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	root := t.TempDir()
	local, err := NewLocal(root, "http://localhost:8080/", "exproctor-",
		securecookie.GenerateRandomKey(32), securecookie.GenerateRandomKey(32), logger)
	require.NoError(t, err)

	return local, root
}

func TestLocal_PutResolveDelete(t *testing.T) {
	ctx := context.Background()
	local, root := newTestLocal(t)

	require.NoError(t, local.CreateContainer(ctx, "exproctor-abc123"))

	loc, err := local.Put(ctx, "exproctor-abc123", "webcam-42-9-1-1700000000-x1.png", []byte("frame"), "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(loc.URL, "http://localhost:8080/files/"), loc.URL)

	data, err := os.ReadFile(filepath.Join(root, "exproctor-abc123", "webcam-42-9-1-1700000000-x1.png"))
	require.NoError(t, err)
	assert.Equal(t, "frame", string(data))

	url, err := local.URL(ctx, loc, 0)
	require.NoError(t, err)

	path, err := local.Resolve(strings.TrimPrefix(url, "http://localhost:8080/files/"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "exproctor-abc123", loc.Key), path)

	keys, err := local.ListObjects(ctx, "exproctor-abc123")
	require.NoError(t, err)
	assert.Equal(t, []string{loc.Key}, keys)

	require.NoError(t, local.Delete(ctx, loc))
	// deleting twice is fine
	require.NoError(t, local.Delete(ctx, loc))

	_, err = local.Resolve(strings.TrimPrefix(url, "http://localhost:8080/files/"))
	assert.ErrorIs(t, err, types.ErrEvidenceNotFound)
}

func TestLocal_PutRequiresContainer(t *testing.T) {
	local, _ := newTestLocal(t)

	_, err := local.Put(context.Background(), "exproctor-missing", "a.png", []byte("x"), "image/png")
	assert.ErrorIs(t, err, types.ErrStorage)
}

func TestLocal_RejectsInvalidNames(t *testing.T) {
	ctx := context.Background()
	local, _ := newTestLocal(t)

	for _, name := range []string{"", "ab", "../etc", "Upper-Case", "double--dash", "-lead"} {
		err := local.CreateContainer(ctx, name)
		assert.ErrorIs(t, err, types.ErrStorage, name)
	}

	require.NoError(t, local.CreateContainer(ctx, "exproctor-ok1"))
	for _, key := range []string{"../escape.png", ".hidden", "a/b.png"} {
		_, err := local.Put(ctx, "exproctor-ok1", key, []byte("x"), "image/png")
		assert.ErrorIs(t, err, types.ErrStorage, key)
	}
}

func TestLocal_ResolveRejectsTamperedToken(t *testing.T) {
	local, _ := newTestLocal(t)

	_, err := local.Resolve("not-a-token")
	assert.ErrorIs(t, err, types.ErrEvidenceNotFound)
}

func TestLocal_ContainerLifecycle(t *testing.T) {
	ctx := context.Background()
	local, root := newTestLocal(t)

	require.NoError(t, local.CreateContainer(ctx, "exproctor-one"))
	require.NoError(t, local.CreateContainer(ctx, "exproctor-two"))
	require.NoError(t, os.Mkdir(filepath.Join(root, "unrelated"), 0o750))

	_, err := local.Put(ctx, "exproctor-one", "a.png", []byte("x"), "image/png")
	require.NoError(t, err)

	names, err := local.ListContainers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"exproctor-one", "exproctor-two"}, names)

	require.NoError(t, local.DeleteContainer(ctx, "exproctor-one"))
	require.NoError(t, local.DeleteContainer(ctx, "exproctor-one"))

	names, err = local.ListContainers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"exproctor-two"}, names)
}

func TestLocal_ListContainersRequiresPrefix(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	local, err := NewLocal(t.TempDir(), "http://localhost:8080", "", nil, nil, logger)
	require.NoError(t, err)
	require.NoError(t, local.CreateContainer(context.Background(), "someone-elses"))

	names, err := local.ListContainers(context.Background())
	require.ErrorIs(t, err, types.ErrStorage)
	assert.Nil(t, names)
}

func TestBackends_For(t *testing.T) {
	local, _ := newTestLocal(t)
	backends := NewBackends(local, nil)

	got, err := backends.For(types.StorageMethodLocal)
	require.NoError(t, err)
	assert.Same(t, local, got)

	_, err = backends.For(types.StorageMethodS3)
	assert.ErrorIs(t, err, types.ErrStorage)

	assert.Len(t, backends.All(), 1)
	assert.Equal(t, "backends[local]", backends.String())
}

func TestLocal_FileHandler(t *testing.T) {
	ctx := context.Background()
	local, _ := newTestLocal(t)

	require.NoError(t, local.CreateContainer(ctx, "exproctor-files"))
	loc, err := local.Put(ctx, "exproctor-files", "screen-1.png", []byte("pixels"), "image/png")
	require.NoError(t, err)

	srv := httptest.NewServer(local.FileHandler())
	defer srv.Close()

	path := strings.TrimPrefix(loc.URL, "http://localhost:8080")
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pixels", string(body))

	missing, err := http.Get(srv.URL + FilesPath + "bogus")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}
