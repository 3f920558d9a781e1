package queue

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Status is the lifecycle state of a queued file.
type Status string

const (
	StatusPending         Status = "pending"
	StatusUploading       Status = "uploading"
	StatusPaused          Status = "paused"
	StatusCompleted       Status = "completed"
	StatusError           Status = "error"
	StatusValidationError Status = "validation_error"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusValidationError
}

type FileType string

const (
	FileTypeImage    FileType = "image"
	FileTypeVideo    FileType = "video"
	FileTypeAudio    FileType = "audio"
	FileTypeDocument FileType = "document"
	FileTypeOther    FileType = "other"
)

func DeriveFileType(contentType string) FileType {
	if strings.HasPrefix(contentType, "image/") {
		return FileTypeImage
	}
	if strings.HasPrefix(contentType, "video/") {
		return FileTypeVideo
	}
	if strings.HasPrefix(contentType, "audio/") {
		return FileTypeAudio
	}
	if strings.Contains(contentType, "pdf") {
		return FileTypeDocument
	}
	return FileTypeOther
}

// FileRef identifies a local file selected for upload.
type FileRef struct {
	Path        string
	Name        string
	Size        int64
	ContentType string
}

// Key is the (name, size) identity used for in-queue duplicate checks.
func (f FileRef) Key() string {
	return fmt.Sprintf("%s:%d", f.Name, f.Size)
}

// Fingerprint is the content signature sent to the remote library for
// existence checks. The library owns the matching semantics; we only
// guarantee the same file always produces the same fingerprint.
func (f FileRef) Fingerprint() string {
	sum := sha256.Sum256([]byte(f.Key()))
	return hex.EncodeToString(sum[:])
}

func (f FileRef) Type() FileType {
	return DeriveFileType(f.ContentType)
}

// Metadata carries the user-editable attributes of a queue item.
/// Tags, Folders and Mentions behave as sets: Merge unions, it never
// overwrites.
type Metadata struct {
	Tags           []string
	Folders        []string
	Mentions       []string
	Description    string
	SuggestedPrice *float64
}

// Merge unions patch into m. Set fields append only values not already
// present, preserving existing order. Description and SuggestedPrice are
// taken from patch only when m has none.
func (m *Metadata) Merge(patch Metadata) {
	m.Tags = unionStrings(m.Tags, patch.Tags)
	m.Folders = unionStrings(m.Folders, patch.Folders)
	m.Mentions = unionStrings(m.Mentions, patch.Mentions)
	if m.Description == "" {
		m.Description = patch.Description
	}
	if m.SuggestedPrice == nil && patch.SuggestedPrice != nil {
		price := *patch.SuggestedPrice
		m.SuggestedPrice = &price
	}
}

func unionStrings(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, v := range existing {
		seen[v] = struct{}{}
	}
	for _, v := range incoming {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		existing = append(existing, v)
	}
	return existing
}

// Item is a single file pending, in-flight, or resolved within the
// upload pipeline.
type Item struct {
	ID       string
	File     FileRef
	Status   Status
	Progress int // 0-100
	Meta     Metadata
	Err      string
}

func (it *Item) clone() *Item {
	cp := *it
	cp.Meta.Tags = append([]string(nil), it.Meta.Tags...)
	cp.Meta.Folders = append([]string(nil), it.Meta.Folders...)
	cp.Meta.Mentions = append([]string(nil), it.Meta.Mentions...)
	if it.Meta.SuggestedPrice != nil {
		price := *it.Meta.SuggestedPrice
		cp.Meta.SuggestedPrice = &price
	}
	return &cp
}
