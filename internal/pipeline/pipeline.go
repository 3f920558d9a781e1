// Package pipeline wires the upload queue, duplicate detector, quota
// check, driver and thumbnail worker into one explicitly-constructed
// application object. Nothing in here is global: tests build isolated
// instances.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/MediaQueue/internal/config"
	"github.com/PaulBabatuyi/MediaQueue/internal/dedup"
	"github.com/PaulBabatuyi/MediaQueue/internal/driver"
	"github.com/PaulBabatuyi/MediaQueue/internal/observability"
	"github.com/PaulBabatuyi/MediaQueue/internal/queue"
	"github.com/PaulBabatuyi/MediaQueue/internal/quota"
	"github.com/PaulBabatuyi/MediaQueue/internal/remote"
	"github.com/PaulBabatuyi/MediaQueue/internal/review"
	"github.com/PaulBabatuyi/MediaQueue/internal/worker"
)

// Deps are the pipeline's external collaborators. Checker, Recorder and
// Thumbs are nil-able: without a catalog the pipeline skips remote
// duplicate checks and record keeping.
type Deps struct {
	Store    remote.Store
	Checker  dedup.ExistenceChecker
	Recorder driver.Recorder
	Thumbs   worker.CatalogWriter
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

type Pipeline struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *observability.Metrics
	queue     *queue.Manager
	selection *review.Selection
	detector  *dedup.Detector
	driver    *driver.Driver
	worker    *worker.Worker

	mu      sync.Mutex
	subs    map[int]*Subscription
	nextSub int
}

func New(cfg *config.Config, deps Deps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	q := queue.NewManager(cfg.MaxQueueFiles)
	drv := driver.New(q, deps.Store, deps.Recorder, deps.Metrics, logger, driver.Config{
		UserID:      cfg.UserID,
		Concurrency: cfg.Concurrency,
		MaxRetries:  cfg.MaxRetries,
	})
	wrk := worker.New(deps.Store, deps.Thumbs, logger)

	p := &Pipeline{
		cfg:       cfg,
		logger:    logger,
		metrics:   deps.Metrics,
		queue:     q,
		selection: review.NewSelection(),
		detector:  dedup.NewDetector(deps.Checker, logger),
		driver:    drv,
		worker:    wrk,
		subs:      make(map[int]*Subscription),
	}

	drv.SetOnComplete(func(c driver.Completion) {
		wrk.Enqueue(c.Ctx, worker.Job{
			FileID:      c.Item.ID,
			LocalPath:   c.LocalPath,
			ObjectKey:   c.ObjectKey,
			ContentType: c.Item.File.ContentType,
		}, c.Release)
	})
	q.SetOnChange(p.handleEvent)

	return p
}

// Queue exposes the queue manager for review/selection operations.
func (p *Pipeline) Queue() *queue.Manager { return p.queue }

// Selection is the review selection set over queue item IDs.
func (p *Pipeline) Selection() *review.Selection { return p.selection }

// IntakeResult is what a batch drop produces: the admitted items plus
// the two decision points the caller must resolve explicitly before
// uploads start.
type IntakeResult struct {
	Added      []*queue.Item
	Duplicates []dedup.Match
	Quota      quota.Partition
}

// Intake runs the acceptance flow for a batch of dropped files:
// duplicate detection (in-queue, then remote), admission of clean files,
// and the quota check over all pending items. Flagged duplicates are
// diverted into the result, never silently admitted.
func (p *Pipeline) Intake(ctx context.Context, files []queue.FileRef, progress dedup.ProgressFunc) (*IntakeResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "pipeline.intake",
		trace.WithAttributes(attribute.Int("batch.size", len(files))))
	defer span.End()

	matches, err := p.detector.Check(ctx, p.queue.Items(), files, progress)
	if err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}

	flagged := make(map[string]bool, len(matches))
	for _, m := range matches {
		flagged[m.File.Key()] = true
	}

	clean := make([]queue.FileRef, 0, len(files))
	for _, f := range files {
		if !flagged[f.Key()] {
			clean = append(clean, f)
		}
	}

	added, diverted, err := p.queue.Add(clean)
	if err != nil {
		return nil, err
	}
	// Files colliding within the batch itself surface as queue matches.
	for _, f := range diverted {
		matches = append(matches, dedup.Match{File: f, Kind: dedup.MatchQueued})
	}

	if p.metrics != nil && len(matches) > 0 {
		p.metrics.DuplicateHits.Add(float64(len(matches)))
	}

	return &IntakeResult{
		Added:      added,
		Duplicates: matches,
		Quota:      p.validatePending(),
	}, nil
}

// ResolveDuplicates applies the user's choice for a batch's flagged
// files. Drop keeps them out (they were never admitted). KeepBoth admits
// each flagged file under a copy name and tags it. Abort removes the
// whole batch's admitted items too.
func (p *Pipeline) ResolveDuplicates(res *IntakeResult, resolution dedup.Resolution) error {
	switch resolution {
	case dedup.ResolutionDrop:
		return nil

	case dedup.ResolutionKeepBoth:
		refs := make([]queue.FileRef, 0, len(res.Duplicates))
		for _, m := range res.Duplicates {
			f := m.File
			f.Name = copyName(f.Name)
			refs = append(refs, f)
		}
		added, _, err := p.queue.Add(refs)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(added))
		for _, item := range added {
			ids = append(ids, item.ID)
		}
		p.queue.ApplyMetadata(ids, queue.Metadata{Tags: []string{dedup.KeepBothTag}})
		res.Added = append(res.Added, added...)
		res.Quota = p.validatePending()
		return nil

	case dedup.ResolutionAbort:
		for _, item := range res.Added {
			if err := p.queue.Remove(item.ID); err != nil {
				return err
			}
		}
		res.Added = nil
		res.Quota = p.validatePending()
		return nil
	}
	return fmt.Errorf("unknown resolution %d", resolution)
}

// QuotaDecision resolves a partial-acceptance dialog.
type QuotaDecision int

const (
	// AcceptFitting uploads the accepted partition and removes the rest.
	AcceptFitting QuotaDecision = iota
	// AbortBatch removes every pending item.
	AbortBatch
)

// ResolveQuota applies the user's choice when the batch exceeds the
// ceiling. It is a no-op when everything fits.
func (p *Pipeline) ResolveQuota(res *IntakeResult, decision QuotaDecision) error {
	if res.Quota.Fits {
		return nil
	}
	switch decision {
	case AcceptFitting:
		for _, item := range res.Quota.Reject {
			if err := p.queue.Remove(item.ID); err != nil {
				return err
			}
		}
	case AbortBatch:
		for _, item := range res.Quota.Accept {
			if err := p.queue.Remove(item.ID); err != nil {
				return err
			}
		}
		for _, item := range res.Quota.Reject {
			if err := p.queue.Remove(item.ID); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown quota decision %d", decision)
	}
	res.Quota = p.validatePending()
	return nil
}

// Process drives every pending item to a terminal state. The quota
// invariant holds because Intake/ResolveQuota ran first; Process itself
// refuses to start over-ceiling.
func (p *Pipeline) Process(ctx context.Context) error {
	if part := p.validatePending(); !part.Fits {
		return fmt.Errorf("queued bytes %d exceed quota ceiling %d; resolve the quota dialog first",
			part.TotalBytes, p.cfg.QuotaCeilingBytes)
	}

	p.worker.Start(ctx)
	defer p.worker.Stop()

	return p.driver.Run(ctx)
}

// Pause, Resume and Cancel forward user signals to the driver.
func (p *Pipeline) Pause(id string) error  { return p.driver.Pause(id) }
func (p *Pipeline) Resume(id string) error { return p.driver.Resume(id) }
func (p *Pipeline) Cancel(id string) error { return p.driver.Cancel(id) }

func (p *Pipeline) validatePending() quota.Partition {
	var pending []*queue.Item
	for _, item := range p.queue.Items() {
		if item.Status == queue.StatusPending {
			pending = append(pending, item)
		}
	}
	return quota.Validate(pending, p.cfg.QuotaCeilingBytes)
}

func (p *Pipeline) handleEvent(ev queue.Event) {
	if p.metrics != nil {
		p.metrics.QueueDepth.Set(float64(ev.QueueLen))
		p.metrics.QueuedBytes.Set(float64(ev.TotalBytes))
	}
	if ev.Removed {
		p.selection.Drop(ev.Item.ID)
	}

	p.mu.Lock()
	for _, sub := range p.subs {
		sub.send(ev)
	}
	p.mu.Unlock()
}

func copyName(name string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return base + " (copy)" + ext
}
