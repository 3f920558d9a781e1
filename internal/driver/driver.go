// Package driver sequences per-file uploads: pre-flight validation, the
// pending → uploading → {paused ⇄ uploading} → {completed | error} state
// machine, pause/resume/cancel signals, and progress reporting.
package driver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/PaulBabatuyi/MediaQueue/internal/catalog"
	"github.com/PaulBabatuyi/MediaQueue/internal/observability"
	"github.com/PaulBabatuyi/MediaQueue/internal/queue"
	"github.com/PaulBabatuyi/MediaQueue/internal/remote"
)

// Recorder persists the catalog row of a completed upload.
type Recorder interface {
	SaveFile(ctx context.Context, rec *catalog.FileRecord) error
}

// Completion is handed to the OnComplete hook after a successful upload.
// Ctx is the item's lifetime context: a cancelled item's post-processing
// must observe it and stand down. Release must be called exactly once
// when post-processing is done with the item.
type Completion struct {
	Item      *queue.Item
	ObjectKey string
	LocalPath string
	Ctx       context.Context
	Release   func()
}

type Config struct {
	UserID      string
	Concurrency int64 // in-flight transfers; 1 means strictly sequential
	MaxRetries  uint64
	RetryBase   time.Duration
	SizeLimits  map[queue.FileType]int64
	MaxImageDim int
}

func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.RetryBase == 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.SizeLimits == nil {
		c.SizeLimits = defaultSizeLimits
	}
	if c.MaxImageDim == 0 {
		c.MaxImageDim = defaultMaxImageDim
	}
}

type Driver struct {
	cfg      Config
	queue    *queue.Manager
	store    remote.Store
	recorder Recorder
	logger   *zap.Logger

	chain Middleware
	sem   *semaphore.Weighted

	mu         sync.Mutex
	controls   map[string]*control
	claimed    map[string]struct{}
	onComplete func(Completion)
}

func New(q *queue.Manager, store remote.Store, recorder Recorder, metrics *observability.Metrics, logger *zap.Logger, cfg Config) *Driver {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		cfg:      cfg,
		queue:    q,
		store:    store,
		recorder: recorder,
		logger:   logger,
		chain: Chain(
			withLogging(logger),
			withMetrics(metrics),
			withRetry(cfg.MaxRetries, cfg.RetryBase),
		),
		sem:      semaphore.NewWeighted(cfg.Concurrency),
		controls: make(map[string]*control),
		claimed:  make(map[string]struct{}),
	}
}

// SetOnComplete registers the post-upload hook (thumbnail worker).
func (d *Driver) SetOnComplete(fn func(Completion)) {
	d.mu.Lock()
	d.onComplete = fn
	d.mu.Unlock()
}

// Run processes the queue until no pending items remain or ctx is
// cancelled. Items advance strictly in queue order; more than one is
// in flight only when Concurrency was set above 1 for an explicit
// batch. A transfer error does not halt the rest of the queue.
func (d *Driver) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		item, ok := d.nextUnclaimed()
		if !ok {
			return nil
		}
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		wg.Add(1)
		go func(item *queue.Item) {
			defer wg.Done()
			defer d.sem.Release(1)
			defer d.unclaim(item.ID)
			d.process(ctx, item)
		}(item)
	}
}

// Pause suspends an uploading item. The transfer parks between chunk
// reads; no bytes move until Resume.
func (d *Driver) Pause(id string) error {
	ctrl := d.getControl(id)
	if ctrl == nil {
		return fmt.Errorf("pause %s: %w", id, queue.ErrItemNotFound)
	}
	if err := d.queue.Transition(id, queue.StatusPaused); err != nil {
		return err
	}
	ctrl.pause()
	return nil
}

// Resume continues a paused item. Progress picks up where it stopped;
// it never resets on resume.
func (d *Driver) Resume(id string) error {
	ctrl := d.getControl(id)
	if ctrl == nil {
		return fmt.Errorf("resume %s: %w", id, queue.ErrItemNotFound)
	}
	if err := d.queue.Transition(id, queue.StatusUploading); err != nil {
		return err
	}
	ctrl.unpause()
	return nil
}

// Retry re-queues an errored item; the next Run picks it up from the
// start.
func (d *Driver) Retry(id string) error {
	return d.queue.Transition(id, queue.StatusPending)
}

// Cancel is terminal: it aborts any in-flight transfer or post-processing
// and removes the item from the queue. Late events from the aborted work
// are dropped by the queue's status checks.
func (d *Driver) Cancel(id string) error {
	if ctrl := d.getControl(id); ctrl != nil {
		ctrl.unpause()
		ctrl.cancel()
	}
	return d.queue.Drop(id)
}

func (d *Driver) process(ctx context.Context, item *queue.Item) {
	if err := d.preflight(item.File); err != nil {
		if ierr := d.queue.Invalidate(item.ID, err.Error()); ierr == nil {
			d.logger.Warn("pre-flight rejected file",
				zap.String("item_id", item.ID),
				zap.String("filename", item.File.Name),
				zap.Error(err))
		}
		return
	}

	// The item may have been removed while pre-flight ran.
	if err := d.queue.Transition(item.ID, queue.StatusUploading); err != nil {
		return
	}

	itemCtx, cancel := context.WithCancel(ctx)
	ctrl := newControl(cancel)
	d.setControl(item.ID, ctrl)
	defer d.clearControl(item.ID)

	itemCtx, span := observability.Tracer().Start(itemCtx, "driver.upload",
		trace.WithAttributes(
			attribute.String("item.id", item.ID),
			attribute.String("file.name", item.File.Name),
			attribute.Int64("file.size", item.File.Size),
		))
	defer span.End()

	var result *remote.PutResult
	transfer := d.chain(func(ctx context.Context, it *queue.Item) error {
		res, err := d.upload(ctx, it, ctrl)
		if err != nil {
			return err
		}
		result = res
		return nil
	})

	if err := transfer(itemCtx, item); err != nil {
		cancel()
		if errors.Is(err, context.Canceled) {
			// Cancelled by the user; Cancel already dropped the item.
			return
		}
		// Transfer error: keep the item queued for manual retry.
		d.queue.Fail(item.ID, err.Error())
		return
	}

	if err := d.queue.Transition(item.ID, queue.StatusCompleted); err != nil {
		// Cancelled between the last byte and completion; do not record.
		cancel()
		return
	}

	if d.recorder != nil {
		rec := &catalog.FileRecord{
			ID:          item.ID,
			UserID:      d.cfg.UserID,
			Name:        item.File.Name,
			ContentType: item.File.ContentType,
			Size:        item.File.Size,
			Fingerprint: item.File.Fingerprint(),
			StoragePath: result.Path,
		}
		if err := d.recorder.SaveFile(ctx, rec); err != nil {
			d.logger.Error("failed to save catalog record",
				zap.String("item_id", item.ID), zap.Error(err))
		}
	}

	d.mu.Lock()
	hook := d.onComplete
	d.mu.Unlock()
	if hook == nil {
		cancel()
		return
	}
	done, ok := d.queue.Get(item.ID)
	if !ok {
		cancel()
		return
	}
	hook(Completion{
		Item:      done,
		ObjectKey: result.Path,
		LocalPath: item.File.Path,
		Ctx:       itemCtx,
		Release:   cancel,
	})
}

func (d *Driver) upload(ctx context.Context, item *queue.Item, ctrl *control) (*remote.PutResult, error) {
	file, err := os.Open(item.File.Path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	reader := &progressReader{
		r:     file,
		ctx:   ctx,
		ctrl:  ctrl,
		total: item.File.Size,
		report: func(pct int) {
			d.queue.SetProgress(item.ID, pct)
		},
	}

	key := remote.ObjectKey(d.cfg.UserID, item.ID, item.File.Name)
	res, err := d.store.Upload(ctx, key, reader, item.File.Size, item.File.ContentType)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("upload %s: %w", item.File.Name, err)
	}
	return res, nil
}

func (d *Driver) nextUnclaimed() (*queue.Item, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, item := range d.queue.Items() {
		if item.Status != queue.StatusPending {
			continue
		}
		if _, taken := d.claimed[item.ID]; taken {
			continue
		}
		d.claimed[item.ID] = struct{}{}
		return item, true
	}
	return nil, false
}

func (d *Driver) unclaim(id string) {
	d.mu.Lock()
	delete(d.claimed, id)
	d.mu.Unlock()
}

func (d *Driver) setControl(id string, c *control) {
	d.mu.Lock()
	d.controls[id] = c
	d.mu.Unlock()
}

func (d *Driver) getControl(id string) *control {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.controls[id]
}

func (d *Driver) clearControl(id string) {
	d.mu.Lock()
	delete(d.controls, id)
	d.mu.Unlock()
}
