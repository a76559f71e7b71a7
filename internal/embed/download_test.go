package embed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureModelFilesDownloadsMissingFile(t *testing.T) {
	body := strings.Repeat("x", 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	dir := t.TempDir()
	files := []RemoteFile{{Name: "model.onnx", URL: srv.URL, MinBytes: 64}}

	require.NoError(t, EnsureModelFiles(context.Background(), dir, files, nil))

	data, err := os.ReadFile(filepath.Join(dir, "model.onnx"))
	require.NoError(t, err)
	assert.Equal(t, body, string(data))
}

func TestEnsureModelFilesSkipsCompleteFile(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.onnx"), []byte(strings.Repeat("y", 64)), 0o644))

	files := []RemoteFile{{Name: "model.onnx", URL: srv.URL, MinBytes: 64}}
	require.NoError(t, EnsureModelFiles(context.Background(), dir, files, nil))
	assert.Zero(t, atomic.LoadInt32(&hits), "a complete file must not be re-downloaded")
}

func TestEnsureModelFilesRejectsTruncatedDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("short"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	files := []RemoteFile{{Name: "model.onnx", URL: srv.URL, MinBytes: 1024}}

	err := EnsureModelFiles(context.Background(), dir, files, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncated")

	_, statErr := os.Stat(filepath.Join(dir, "model.onnx"))
	assert.True(t, os.IsNotExist(statErr), "a truncated download must not become visible")
}

func TestEnsureModelFilesSurfacesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	files := []RemoteFile{{Name: "model.onnx", URL: srv.URL, MinBytes: 16}}

	err := EnsureModelFiles(context.Background(), dir, files, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestEnsureModelUnknownModelIsNoOp(t *testing.T) {
	require.NoError(t, EnsureModel(context.Background(), "my-hand-placed-model", t.TempDir(), nil))
}
