// Package dedup flags files that collide with the queue or with the
// remote media library before they are uploaded.
package dedup

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/PaulBabatuyi/MediaQueue/internal/queue"
)

// ExistenceChecker answers batched fingerprint lookups against the remote
// library. The matching semantics (hashing included) belong to the
// backend; the detector treats it as opaque.
type ExistenceChecker interface {
	CheckExists(ctx context.Context, fingerprints []string) (map[string]bool, error)
}

// ProgressFunc receives (current, total, step) updates while a multi-step
// check runs.
type ProgressFunc func(current, total int, step string)

type MatchKind string

const (
	MatchQueued MatchKind = "queued" // collides with an item already in the queue
	MatchRemote MatchKind = "remote" // collides with a stored library record
)

// Match pairs a candidate file with what it collides against.
type Match struct {
	File     queue.FileRef
	Kind     MatchKind
	QueuedID string // set for MatchQueued
}

// Resolution is the user's explicit choice for a set of matches. There
// is no automatic policy.
type Resolution int

const (
	ResolutionDrop     Resolution = iota // drop the flagged files
	ResolutionKeepBoth                   // keep both, tagging the new one
	ResolutionAbort                      // abort the whole batch
)

// KeepBothTag is unioned into a kept duplicate's tags so the copy stays
// identifiable in the library.
const KeepBothTag = "duplicate"

const defaultBatchSize = 50

type Detector struct {
	checker   ExistenceChecker
	batchSize int
	logger    *zap.Logger
}

func NewDetector(checker ExistenceChecker, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		checker:   checker,
		batchSize: defaultBatchSize,
		logger:    logger,
	}
}

// Check returns the candidates that collide with queued items (exact
// name+size match) or with remote records. Remote lookups run in batches
// and report progress per batch; a candidate matched in-queue is not
// checked remotely again.
func (d *Detector) Check(ctx context.Context, queued []*queue.Item, candidates []queue.FileRef, progress ProgressFunc) ([]Match, error) {
	if progress == nil {
		progress = func(int, int, string) {}
	}

	byKey := make(map[string]string, len(queued))
	for _, item := range queued {
		byKey[item.File.Key()] = item.ID
	}

	var matches []Match
	var unmatched []queue.FileRef

	total := len(candidates)
	progress(0, total, "comparing against queue")
	for i, f := range candidates {
		if id, ok := byKey[f.Key()]; ok {
			matches = append(matches, Match{File: f, Kind: MatchQueued, QueuedID: id})
		} else {
			unmatched = append(unmatched, f)
		}
		progress(i+1, total, "comparing against queue")
	}

	if d.checker == nil || len(unmatched) == 0 {
		return matches, nil
	}

	checked := 0
	total = len(unmatched)
	for start := 0; start < len(unmatched); start += d.batchSize {
		end := start + d.batchSize
		if end > len(unmatched) {
			end = len(unmatched)
		}
		batch := unmatched[start:end]

		fingerprints := make([]string, 0, len(batch))
		for _, f := range batch {
			fingerprints = append(fingerprints, f.Fingerprint())
		}

		exists, err := d.checker.CheckExists(ctx, fingerprints)
		if err != nil {
			return nil, fmt.Errorf("remote existence check: %w", err)
		}

		for _, f := range batch {
			if exists[f.Fingerprint()] {
				matches = append(matches, Match{File: f, Kind: MatchRemote})
			}
			checked++
			progress(checked, total, "checking media library")
		}
	}

	if len(matches) > 0 {
		d.logger.Info("duplicate check flagged files",
			zap.Int("candidates", len(candidates)),
			zap.Int("matches", len(matches)))
	}

	return matches, nil
}
