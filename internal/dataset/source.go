// Package dataset implements loading, cleaning and caching of per-horizon
// station datasets. Sources are delimited-text files (semicolon separator,
// decimal-comma numbers) living on the local filesystem or in S3, optionally
// gzip- or zstd-compressed. Parsed datasets are immutable and memoized per
// source identity plus content fingerprint.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"rainpoint/internal/types"
)

// Source abstracts where dataset files live. Implementations map their
// native "does not exist" failures to ErrCodeLoadNotFound and availability
// failures to ErrCodeUpstreamSource so the loader stays storage-agnostic.
type Source interface {
	// Open returns the decoded (decompressed) content of the identified
	// dataset. The caller must close the returned reader.
	Open(ctx context.Context, id string) (io.ReadCloser, error)

	// Fingerprint returns an identity for the current content of the
	// dataset (mtime+size locally, ETag on S3). A changed fingerprint
	// means the cached parse is stale.
	Fingerprint(ctx context.Context, id string) (string, error)
}

// FileSource serves datasets from a local directory.
type FileSource struct {
	dir string
}

// NewFileSource creates a Source rooted at the given directory.
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

// Open opens the named dataset file, transparently decompressing .gz and
// .zst contents.
func (s *FileSource) Open(_ context.Context, id string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.dir, filepath.Clean(id)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, types.NewAppError(
				types.ErrCodeLoadNotFound,
				fmt.Sprintf("dataset source %s not found", id),
				err,
			)
		}
		return nil, types.NewAppError(
			types.ErrCodeUpstreamSource,
			fmt.Sprintf("failed to open dataset source %s", id),
			err,
		)
	}
	return decodeBody(id, f)
}

// Fingerprint returns "mtime:size" for the named file.
func (s *FileSource) Fingerprint(_ context.Context, id string) (string, error) {
	fi, err := os.Stat(filepath.Join(s.dir, filepath.Clean(id)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", types.NewAppError(
				types.ErrCodeLoadNotFound,
				fmt.Sprintf("dataset source %s not found", id),
				err,
			)
		}
		return "", types.NewAppError(
			types.ErrCodeUpstreamSource,
			fmt.Sprintf("failed to stat dataset source %s", id),
			err,
		)
	}
	return fmt.Sprintf("%d:%d", fi.ModTime().UnixNano(), fi.Size()), nil
}

// ObjectClient abstracts S3 object retrieval for testability.
type ObjectClient interface {
	// GetObject fetches an object by bucket and key, returning its body.
	// Implementations wrap fs.ErrNotExist for missing keys.
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// StatObject returns the object's ETag without fetching the body.
	StatObject(ctx context.Context, bucket, key string) (string, error)
}

// S3Source serves datasets from an S3 bucket via an ObjectClient.
type S3Source struct {
	client ObjectClient
	bucket string
}

// NewS3Source creates a Source backed by the given bucket.
func NewS3Source(client ObjectClient, bucket string) *S3Source {
	return &S3Source{client: client, bucket: bucket}
}

// Open fetches the named object, transparently decompressing .gz and .zst
// contents.
func (s *S3Source) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	body, err := s.client.GetObject(ctx, s.bucket, path.Clean(id))
	if err != nil {
		return nil, mapObjectError(id, err)
	}
	return decodeBody(id, body)
}

// Fingerprint returns the object's ETag.
func (s *S3Source) Fingerprint(ctx context.Context, id string) (string, error) {
	etag, err := s.client.StatObject(ctx, s.bucket, path.Clean(id))
	if err != nil {
		return "", mapObjectError(id, err)
	}
	return etag, nil
}

// mapObjectError translates object-store failures into the load error
// taxonomy: missing keys are NotFound, everything else is an availability
// failure.
func mapObjectError(id string, err error) *types.AppError {
	if errors.Is(err, fs.ErrNotExist) {
		return types.NewAppError(
			types.ErrCodeLoadNotFound,
			fmt.Sprintf("dataset source %s not found", id),
			err,
		)
	}
	return types.NewAppError(
		types.ErrCodeUpstreamSource,
		fmt.Sprintf("failed to fetch dataset source %s", id),
		err,
	)
}

// decodeBody wraps the raw body with a decompressing reader when the source
// identifier carries a compression extension. Unknown extensions pass
// through untouched.
func decodeBody(id string, body io.ReadCloser) (io.ReadCloser, error) {
	switch strings.ToLower(path.Ext(id)) {
	case ".gz":
		zr, err := gzip.NewReader(body)
		if err != nil {
			body.Close()
			return nil, types.NewAppError(
				types.ErrCodeLoadMalformed,
				fmt.Sprintf("dataset source %s is not valid gzip", id),
				err,
			)
		}
		return &compositeCloser{Reader: zr, closers: []io.Closer{zr, body}}, nil
	case ".zst":
		zr, err := zstd.NewReader(body, zstd.WithDecoderConcurrency(1))
		if err != nil {
			body.Close()
			return nil, types.NewAppError(
				types.ErrCodeLoadMalformed,
				fmt.Sprintf("dataset source %s is not valid zstd", id),
				err,
			)
		}
		dec := zr.IOReadCloser()
		return &compositeCloser{Reader: dec, closers: []io.Closer{dec, body}}, nil
	default:
		return body, nil
	}
}

// compositeCloser closes the decompressor and the underlying body in order.
type compositeCloser struct {
	io.Reader
	closers []io.Closer
}

func (c *compositeCloser) Close() error {
	var first error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
