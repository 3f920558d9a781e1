package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// FilesystemStore stores objects on local disk. It exists for
// development and tests; signed URLs are plain file paths.
type FilesystemStore struct {
	basePath string
}

func NewFilesystemStore(basePath string) (*FilesystemStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FilesystemStore{basePath: basePath}, nil
}

func (fs *FilesystemStore) Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) (*PutResult, error) {
	full := filepath.Join(fs.basePath, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("create object dir: %w", err)
	}

	f, err := os.Create(full)
	if err != nil {
		return nil, fmt.Errorf("create object: %w", err)
	}
	defer f.Close()

	// Copy in chunks so cancellation takes effect mid-transfer.
	buf := make([]byte, 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			os.Remove(full)
			return nil, err
		}
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return nil, fmt.Errorf("write object: %w", werr)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, fmt.Errorf("read source: %w", rerr)
		}
	}

	return &PutResult{Path: path, URL: "file://" + full}, nil
}

func (fs *FilesystemStore) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	full := filepath.Join(fs.basePath, filepath.FromSlash(path))
	if _, err := os.Stat(full); err != nil {
		return "", fmt.Errorf("stat object: %w", err)
	}
	return "file://" + full, nil
}

func (fs *FilesystemStore) Delete(ctx context.Context, path string) error {
	return os.Remove(filepath.Join(fs.basePath, filepath.FromSlash(path)))
}
