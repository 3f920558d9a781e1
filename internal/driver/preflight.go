package driver

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/PaulBabatuyi/MediaQueue/internal/queue"
)

// Per-category upload ceilings. A file over its ceiling never starts a
// transfer; it goes straight to validation_error.
var defaultSizeLimits = map[queue.FileType]int64{
	queue.FileTypeImage:    50 * 1024 * 1024,
	queue.FileTypeVideo:    2 * 1024 * 1024 * 1024,
	queue.FileTypeAudio:    500 * 1024 * 1024,
	queue.FileTypeDocument: 100 * 1024 * 1024,
	queue.FileTypeOther:    512 * 1024 * 1024,
}

const defaultMaxImageDim = 8192

// preflight runs the checks that must pass before any bytes move:
// per-category size ceiling, declared-vs-detected content type, and
// image resolution limits.
func (d *Driver) preflight(f queue.FileRef) error {
	limit, ok := d.cfg.SizeLimits[f.Type()]
	if !ok {
		limit = defaultSizeLimits[queue.FileTypeOther]
	}
	if f.Size > limit {
		return fmt.Errorf("file too large: %d bytes exceeds %d byte limit for %s files", f.Size, limit, f.Type())
	}

	file, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	if err := validateContentType(file, f.ContentType); err != nil {
		return err
	}

	if f.Type() == queue.FileTypeImage {
		if _, err := file.Seek(0, 0); err != nil {
			return fmt.Errorf("rewind file: %w", err)
		}
		cfg, _, err := image.DecodeConfig(file)
		if err != nil {
			return fmt.Errorf("unreadable image: %w", err)
		}
		if cfg.Width > d.cfg.MaxImageDim || cfg.Height > d.cfg.MaxImageDim {
			return fmt.Errorf("unsupported resolution: %dx%d exceeds %dpx limit", cfg.Width, cfg.Height, d.cfg.MaxImageDim)
		}
	}

	return nil
}

// validateContentType checks if the file's magic bytes match the declared content type
func validateContentType(reader io.Reader, declaredType string) error {
	buffer := make([]byte, 512)
	n, err := reader.Read(buffer)
	if err != nil && err != io.EOF {
		return fmt.Errorf("read magic bytes: %w", err)
	}

	actualType := http.DetectContentType(buffer[:n])

	// Normalize types (handle aliases)
	if !isContentTypeMatch(actualType, declaredType) {
		return fmt.Errorf("content type mismatch: declared=%s, detected=%s",
			declaredType, actualType)
	}

	return nil
}

func isContentTypeMatch(actual, declared string) bool {
	// Exact match
	if actual == declared {
		return true
	}

	// Handle MIME type prefix (e.g., "image/jpeg" matches "image/*")
	actualPrefix := strings.Split(actual, "/")[0]
	declaredPrefix := strings.Split(declared, "/")[0]
	if actualPrefix == declaredPrefix {
		return true
	}

	// Handle common aliases
	aliases := map[string][]string{
		"text/plain":       {"text/plain; charset=utf-8"},
		"application/json": {"text/plain; charset=utf-8"},
	}

	if compatibles, ok := aliases[declared]; ok {
		for _, compat := range compatibles {
			if actual == compat {
				return true
			}
		}
	}

	return false
}
