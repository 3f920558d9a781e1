// Package worker generates and stores thumbnail renditions after an
// upload completes. Thumbnailing is best-effort: a failure degrades to
// no thumbnail, it never fails the upload itself.
package worker

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/PaulBabatuyi/MediaQueue/internal/queue"
	"github.com/PaulBabatuyi/MediaQueue/internal/remote"
	"github.com/PaulBabatuyi/MediaQueue/internal/thumbnail"
)

// CatalogWriter records generated renditions.
type CatalogWriter interface {
	SetThumbnails(ctx context.Context, fileID, small, medium, large string, width, height int) error
}

// Job asks for thumbnails of one uploaded file.
type Job struct {
	FileID      string
	LocalPath   string
	ObjectKey   string
	ContentType string
}

type envelope struct {
	job     Job
	ctx     context.Context
	release func()
}

type Worker struct {
	store   remote.Store
	catalog CatalogWriter
	gen     *thumbnail.Generator
	logger  *zap.Logger

	jobs chan envelope
	done chan struct{}
	wg   sync.WaitGroup
}

func New(store remote.Store, catalog CatalogWriter, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		store:   store,
		catalog: catalog,
		gen:     thumbnail.NewGenerator(),
		logger:  logger,
		jobs:    make(chan envelope, 32),
		done:    make(chan struct{}),
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
	w.logger.Info("processing worker started")
}

// Stop drains nothing: queued jobs not yet picked up are released and
// skipped. In-flight work finishes first.
func (w *Worker) Stop() {
	close(w.done)
	w.wg.Wait()
	w.logger.Info("processing worker stopped")
}

// Enqueue hands a completed upload to the worker. jobCtx is the item's
// lifetime context; release is called when the worker is done with the
// job. Returns false when the worker is stopped.
func (w *Worker) Enqueue(jobCtx context.Context, job Job, release func()) bool {
	if release == nil {
		release = func() {}
	}
	select {
	case w.jobs <- envelope{job: job, ctx: jobCtx, release: release}:
		return true
	case <-w.done:
		release()
		return false
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			w.drain()
			return
		case <-ctx.Done():
			w.drain()
			return
		case env := <-w.jobs:
			w.process(ctx, env)
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case env := <-w.jobs:
			env.release()
		default:
			return
		}
	}
}

func (w *Worker) process(ctx context.Context, env envelope) {
	defer env.release()

	job := env.job
	if queue.DeriveFileType(job.ContentType) != queue.FileTypeImage {
		return
	}
	if env.ctx.Err() != nil {
		// Item was cancelled after upload; leave no trace.
		return
	}

	result, err := w.gen.Generate(env.ctx, job.LocalPath)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			w.logger.Debug("thumbnail job aborted", zap.String("file_id", job.FileID))
			return
		}
		w.logger.Warn("thumbnail generation failed, keeping fallback",
			zap.String("file_id", job.FileID), zap.Error(err))
		return
	}

	// Re-check after the decode: a cancellation that raced the generate
	// must not produce a state update.
	if env.ctx.Err() != nil {
		return
	}

	keys := make(map[string]string, len(result.Thumbs))
	for name, data := range result.Thumbs {
		key := remote.ThumbKey(job.ObjectKey, name)
		if _, err := w.store.Upload(env.ctx, key, bytes.NewReader(data), int64(len(data)), "image/jpeg"); err != nil {
			w.logger.Warn("thumbnail upload failed",
				zap.String("file_id", job.FileID),
				zap.String("rendition", name),
				zap.Error(err))
			return
		}
		keys[name] = key
	}

	if w.catalog == nil {
		return
	}
	if env.ctx.Err() != nil {
		return
	}
	err = w.catalog.SetThumbnails(ctx, job.FileID,
		keys["small"], keys["medium"], keys["large"],
		result.Width, result.Height)
	if err != nil {
		w.logger.Error("failed to record thumbnails",
			zap.String("file_id", job.FileID), zap.Error(err))
		return
	}

	w.logger.Info("thumbnails generated",
		zap.String("file_id", job.FileID),
		zap.Int("width", result.Width),
		zap.Int("height", result.Height))
}
