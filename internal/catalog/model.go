package catalog

import "time"

// FileRecord is a stored media file's catalog row.
type FileRecord struct {
	ID          string
	UserID      string
	Name        string
	ContentType string
	Size        int64
	Fingerprint string
	StoragePath string
	UploadedAt  time.Time
	DeletedAt   *time.Time

	ThumbSmall  string
	ThumbMedium string
	ThumbLarge  string
	Width       int
	Height      int
}
