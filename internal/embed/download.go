package embed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// RemoteFile is one artifact of a model export: where to fetch it and the
// smallest plausible size for a complete download. A partial or truncated
// fetch below MinBytes is discarded rather than handed to the ONNX runtime.
type RemoteFile struct {
	Name     string
	URL      string
	MinBytes int64
}

// knownModelSources maps an embedding_model_id to its downloadable export.
// Size floors are deliberately loose; they exist to catch truncation and
// error-page bodies, not to pin exact artifact sizes across re-exports.
var knownModelSources = map[string][]RemoteFile{
	"bge-small-en-v1.5": {
		{Name: "model.onnx", URL: "https://huggingface.co/BAAI/bge-small-en-v1.5/resolve/main/onnx/model.onnx", MinBytes: 10 << 20},
		{Name: "tokenizer.json", URL: "https://huggingface.co/BAAI/bge-small-en-v1.5/resolve/main/tokenizer.json", MinBytes: 100 << 10},
	},
	"bge-base-en-v1.5": {
		{Name: "model.onnx", URL: "https://huggingface.co/BAAI/bge-base-en-v1.5/resolve/main/onnx/model.onnx", MinBytes: 50 << 20},
		{Name: "tokenizer.json", URL: "https://huggingface.co/BAAI/bge-base-en-v1.5/resolve/main/tokenizer.json", MinBytes: 100 << 10},
	},
	"all-MiniLM-L6-v2": {
		{Name: "model.onnx", URL: "https://huggingface.co/sentence-transformers/all-MiniLM-L6-v2/resolve/main/onnx/model.onnx", MinBytes: 10 << 20},
		{Name: "tokenizer.json", URL: "https://huggingface.co/sentence-transformers/all-MiniLM-L6-v2/resolve/main/tokenizer.json", MinBytes: 100 << 10},
	},
}

var downloadClient = &http.Client{Timeout: 10 * time.Minute}

// EnsureModel makes sure modelID's files are present under dir, downloading
// any that are missing or undersized. An unrecognized model id is not an
// error: the caller may have placed the files by hand, and NewONNXProvider
// reports cleanly if they aren't there.
func EnsureModel(ctx context.Context, modelID, dir string, logger *slog.Logger) error {
	files, ok := knownModelSources[modelID]
	if !ok {
		return nil
	}
	return EnsureModelFiles(ctx, dir, files, logger)
}

// EnsureModelFiles downloads each missing file into dir under a
// cross-process FileLock, so concurrent docsearch processes (a server and
// a CLI `index` run, say) never clobber each other's partial downloads.
func EnsureModelFiles(ctx context.Context, dir string, files []RemoteFile, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	needed := false
	for _, f := range files {
		if !fileComplete(filepath.Join(dir, f.Name), f.MinBytes) {
			needed = true
			break
		}
	}
	if !needed {
		return nil
	}

	lock := NewFileLock(dir)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire model download lock: %w", err)
	}
	defer lock.Unlock()

	// Re-check under the lock: another process may have finished the
	// download while we waited.
	for _, f := range files {
		dest := filepath.Join(dir, f.Name)
		if fileComplete(dest, f.MinBytes) {
			continue
		}
		logger.Info("downloading model file", "file", f.Name, "url", f.URL)
		if err := downloadFile(ctx, f.URL, dest, f.MinBytes); err != nil {
			return fmt.Errorf("download %s: %w", f.Name, err)
		}
	}
	return nil
}

func fileComplete(path string, minBytes int64) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() >= minBytes
}

// downloadFile fetches url into dest via a temp file and rename, verifying
// the byte count against minBytes before the file becomes visible.
func downloadFile(ctx context.Context, url, dest string, minBytes int64) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := downloadClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".partial-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if n < minBytes {
		return fmt.Errorf("download truncated: got %d bytes, need at least %d", n, minBytes)
	}
	return os.Rename(tmp.Name(), dest)
}
