package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/PaulBabatuyi/MediaQueue/internal/catalog"
	"github.com/PaulBabatuyi/MediaQueue/internal/config"
	"github.com/PaulBabatuyi/MediaQueue/internal/dedup"
	"github.com/PaulBabatuyi/MediaQueue/internal/observability"
	"github.com/PaulBabatuyi/MediaQueue/internal/pipeline"
	"github.com/PaulBabatuyi/MediaQueue/internal/queue"
	"github.com/PaulBabatuyi/MediaQueue/internal/remote"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}
	if len(cfg.Paths) == 0 {
		return fmt.Errorf("usage: uploader [flags] <file>...")
	}

	logger, err := observability.InitLogger(cfg.Dev)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics, err := observability.InitMetrics()
	if err != nil {
		return err
	}
	observability.StartMetricsServer(cfg.MetricsPort, metrics, logger)

	tp, err := observability.InitTracerProvider(ctx, logger)
	if err != nil {
		return err
	}
	defer observability.ShutdownTracerProvider(context.Background(), tp, logger)

	var store remote.Store
	if cfg.S3BaseEndpoint != "" {
		store, err = remote.NewS3Store(ctx, remote.S3Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			BaseEndpoint: cfg.S3BaseEndpoint,
		})
	} else {
		store, err = remote.NewFilesystemStore(cfg.LocalStoragePath)
	}
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	deps := pipeline.Deps{
		Store:   store,
		Metrics: metrics,
		Logger:  logger,
	}
	if cfg.CatalogDSN != "" {
		cat, err := catalog.New(cfg.CatalogDSN)
		if err != nil {
			return fmt.Errorf("connect catalog: %w", err)
		}
		defer cat.Close()
		if err := cat.RunMigrations(ctx); err != nil {
			return fmt.Errorf("migrate catalog: %w", err)
		}
		deps.Checker = cat
		deps.Recorder = cat
		deps.Thumbs = cat
	}

	p := pipeline.New(cfg, deps)

	files, err := scanPaths(cfg.Paths)
	if err != nil {
		return err
	}
	logger.Info("queueing files", zap.Int("count", len(files)))

	sub := p.Subscribe(64)
	defer sub.Close()
	go printProgress(sub)

	res, err := p.Intake(ctx, files, func(current, total int, step string) {
		fmt.Printf("\r%s: %d/%d", step, current, total)
		if current == total {
			fmt.Println()
		}
	})
	if err != nil {
		return err
	}

	if len(res.Duplicates) > 0 {
		fmt.Printf("%d duplicate file(s) detected (resolution: %s)\n", len(res.Duplicates), cfg.OnDuplicate)
		resolution, err := parseResolution(cfg.OnDuplicate)
		if err != nil {
			return err
		}
		if err := p.ResolveDuplicates(res, resolution); err != nil {
			return err
		}
	}

	if !res.Quota.Fits {
		fmt.Printf("batch exceeds quota: %d of %d bytes fit (resolution: %s)\n",
			res.Quota.AcceptBytes, res.Quota.TotalBytes, cfg.OnQuota)
		decision, err := parseQuotaDecision(cfg.OnQuota)
		if err != nil {
			return err
		}
		if err := p.ResolveQuota(res, decision); err != nil {
			return err
		}
	}

	if err := p.Process(ctx); err != nil {
		return err
	}

	failed := 0
	for _, item := range p.Queue().Items() {
		switch item.Status {
		case queue.StatusError, queue.StatusValidationError:
			failed++
			fmt.Printf("failed: %s: %s\n", item.File.Name, item.Err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d file(s) failed", failed)
	}
	return nil
}

func printProgress(sub *pipeline.Subscription) {
	for ev := range sub.Events() {
		if ev.Removed || ev.Item.Status != queue.StatusUploading {
			continue
		}
		fmt.Printf("\rUploading %s: %d%%", ev.Item.File.Name, ev.Item.Progress)
		if ev.Item.Progress == 100 {
			fmt.Println()
		}
	}
}

// scanPaths expands files and directories into queue candidates.
func scanPaths(paths []string) ([]queue.FileRef, error) {
	var files []queue.FileRef
	for _, p := range paths {
		err := filepath.Walk(p, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			files = append(files, queue.FileRef{
				Path:        path,
				Name:        info.Name(),
				Size:        info.Size(),
				ContentType: detectContentType(path),
			})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", p, err)
		}
	}
	return files, nil
}

func detectContentType(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func parseResolution(s string) (dedup.Resolution, error) {
	switch s {
	case "drop":
		return dedup.ResolutionDrop, nil
	case "keep-both":
		return dedup.ResolutionKeepBoth, nil
	case "abort":
		return dedup.ResolutionAbort, nil
	}
	return 0, fmt.Errorf("unknown duplicate resolution %q", s)
}

func parseQuotaDecision(s string) (pipeline.QuotaDecision, error) {
	switch s {
	case "accept":
		return pipeline.AcceptFitting, nil
	case "abort":
		return pipeline.AbortBatch, nil
	}
	return 0, fmt.Errorf("unknown quota decision %q", s)
}
