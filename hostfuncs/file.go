package hostfuncs

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/reglet-dev/reglet-fetch/domain/entities"
	"github.com/reglet-dev/reglet-fetch/domain/errors"
)

// FileOption is a functional option for configuring file fetch behavior.
type FileOption func(*fileConfig)

type fileConfig struct {
	root        string
	maxFileSize int64
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		maxFileSize: 64 * 1024 * 1024, // 64MB
	}
}

// WithFileRoot confines file resources to dir. Relative paths resolve
// against it and paths escaping it are rejected.
func WithFileRoot(dir string) FileOption {
	return func(c *fileConfig) {
		c.root = dir
	}
}

// WithFileMaxSize sets the largest file that will be read.
func WithFileMaxSize(size int64) FileOption {
	return func(c *fileConfig) {
		if size > 0 {
			c.maxFileSize = size
		}
	}
}

// FileFetcher loads resources from the local filesystem.
type FileFetcher struct {
	cfg fileConfig
}

// NewFileFetcher creates a file fetcher.
func NewFileFetcher(opts ...FileOption) *FileFetcher {
	cfg := defaultFileConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &FileFetcher{cfg: cfg}
}

// PerformFileFetch reads a single file resource.
func PerformFileFetch(ctx context.Context, res entities.Resource, opts ...FileOption) (entities.Response, error) {
	return NewFileFetcher(opts...).Fetch(ctx, res)
}

// Fetch reads the file named by res. A file not modified since
// res.PriorModified is reported as NotModified without reading it.
func (f *FileFetcher) Fetch(ctx context.Context, res entities.Resource) (entities.Response, error) {
	path, err := f.resolvePath(res.URL)
	if err != nil {
		return entities.Response{}, errors.NewFetchError(entities.ErrorKindOther, res.URL, err)
	}
	if err := ctx.Err(); err != nil {
		return entities.Response{}, fmt.Errorf("%w: %v", errors.ErrCancelled, err)
	}

	file, err := f.open(path)
	if err != nil {
		return entities.Response{}, classifyFileError(res.URL, err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return entities.Response{}, classifyFileError(res.URL, err)
	}
	if info.IsDir() {
		return entities.Response{}, &errors.FetchError{Kind: entities.ErrorKindOther, URL: res.URL, Message: "is a directory"}
	}
	if info.Size() > f.cfg.maxFileSize {
		return entities.Response{}, &errors.FetchError{
			Kind:    entities.ErrorKindOther,
			URL:     res.URL,
			Message: fmt.Sprintf("file exceeds %d bytes", f.cfg.maxFileSize),
		}
	}

	modified := info.ModTime().UTC().Truncate(time.Second)
	if res.PriorModified != nil && !modified.After(res.PriorModified.UTC()) {
		return entities.Response{Status: entities.StatusSuccess, NotModified: true, Modified: &modified}, nil
	}

	buf := NewBoundedBuffer(int(f.cfg.maxFileSize))
	if _, err := io.Copy(buf, contextReader{ctx: ctx, r: file}); err != nil {
		if ctx.Err() != nil {
			return entities.Response{}, fmt.Errorf("%w: %v", errors.ErrCancelled, err)
		}
		return entities.Response{}, errors.NewFetchError(entities.ErrorKindOther, res.URL, err)
	}
	if buf.Truncated {
		return entities.Response{}, &errors.FetchError{
			Kind:    entities.ErrorKindOther,
			URL:     res.URL,
			Message: fmt.Sprintf("file exceeds %d bytes", f.cfg.maxFileSize),
		}
	}

	out := entities.Success(buf.Bytes())
	out.Modified = &modified
	return out, nil
}

// open opens path, confined to the configured root when there is one.
// Symlinks inside the root may not lead out of it.
func (f *FileFetcher) open(path string) (*os.File, error) {
	if f.cfg.root == "" {
		return os.Open(path)
	}
	root, err := os.OpenRoot(f.cfg.root)
	if err != nil {
		return nil, err
	}
	defer func() { _ = root.Close() }()
	return root.Open(path)
}

// resolvePath turns a file:// URL or plain path into a filesystem path.
// With a root configured the result is relative to it.
func (f *FileFetcher) resolvePath(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("path is required")
	}

	path := raw
	if strings.HasPrefix(raw, "file://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", err
		}
		path = u.Path
		if u.Host != "" && u.Host != "localhost" {
			path = u.Host + u.Path
		}
	}

	if f.cfg.root == "" {
		return filepath.Clean(path), nil
	}

	rel := strings.TrimPrefix(filepath.Clean("/"+path), "/")
	if filepath.IsAbs(path) {
		r, err := filepath.Rel(f.cfg.root, filepath.Clean(path))
		if err != nil || !filepath.IsLocal(r) {
			return "", fmt.Errorf("path %q is outside %s", raw, f.cfg.root)
		}
		rel = r
	}
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("path %q is outside %s", raw, f.cfg.root)
	}
	return rel, nil
}

func classifyFileError(rawURL string, err error) error {
	kind := entities.ErrorKindOther
	if stdErrors.Is(err, fs.ErrNotExist) {
		kind = entities.ErrorKindNotFound
	}
	return errors.NewFetchError(kind, rawURL, err)
}

// contextReader stops a copy once ctx is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
