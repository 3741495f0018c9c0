// Package app wires configuration, the ClearBooks client, storage and
// publishers into runnable programs.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/springboardpro/clearbooks/internal/config"
	"github.com/springboardpro/clearbooks/internal/exporter"
	"github.com/springboardpro/clearbooks/internal/logger"
	"github.com/springboardpro/clearbooks/internal/storage"
	"github.com/springboardpro/clearbooks/pkg/exports"
	"github.com/springboardpro/clearbooks/pkg/publishers"
)

// Exporter is the cbexport runtime: it runs the enabled export jobs once or on an interval.
type Exporter struct {
	jobs     []exports.Job
	fanout   *publishers.Fanout
	service  *exporter.Service
	store    storage.Store
	interval time.Duration
	log      logger.Logger
}

// NewExporter loads the jobs and publishers files and opens storage.
func NewExporter(ctx context.Context, cfg *config.Config, log logger.Logger) (*Exporter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = &logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := NewClient(cfg, log)
	if err != nil {
		return nil, err
	}

	jobReg, err := exports.LoadRegistry(cfg.ExportsFile)
	if err != nil {
		return nil, fmt.Errorf("load exports registry: %w", err)
	}
	jobs := jobReg.Enabled()
	jobIDs := make([]string, 0, len(jobs))
	for _, j := range jobs {
		jobIDs = append(jobIDs, j.ID)
	}
	log.InfoObj("exports registry loaded", "exports_meta", map[string]any{
		"count": len(jobIDs),
		"ids":   jobIDs,
	})

	publisherReg, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}
	enabled := publisherReg.Enabled()
	if len(enabled) == 0 {
		return nil, fmt.Errorf("no publishers configured")
	}
	pubs, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}
	fanout := publishers.NewFanout(pubs)
	summaries := make([]map[string]string, 0, len(enabled))
	for _, p := range enabled {
		summaries = append(summaries, map[string]string{"id": p.ID, "type": p.Type})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(summaries),
		"publishers": summaries,
	})

	store, err := storage.NewStore(cfg.StorageType, cfg.BBoltPath, storage.Options{
		RowTTL:          cfg.StorageTTL,
		CleanupInterval: cfg.StorageCleanupInterval,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("init storage: %w", err), fanout.Close())
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":                     cfg.StorageType,
		"path":                     cfg.BBoltPath,
		"row_ttl_seconds":          int(cfg.StorageTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.StorageCleanupInterval.Seconds()),
	})

	return &Exporter{
		jobs:     jobs,
		fanout:   fanout,
		service:  exporter.NewService(client, fanout, store, log),
		store:    store,
		interval: cfg.ExportInterval,
		log:      log,
	}, nil
}

// Run exports once when no interval is configured, otherwise repeats until ctx is cancelled.
func (e *Exporter) Run(ctx context.Context) error {
	if e == nil || e.service == nil {
		return fmt.Errorf("exporter is not initialized")
	}
	defer e.close()

	if len(e.jobs) == 0 {
		e.log.WarnObj("no enabled export jobs; nothing to do", "exports_meta", nil)
		return nil
	}

	if e.interval <= 0 {
		return e.runOnce(ctx)
	}

	e.log.InfoObj("export loop starting", "exporter_state", map[string]any{
		"jobs_count":       len(e.jobs),
		"publishers_count": e.fanout.Size(),
		"export_interval":  e.interval.String(),
	})
	if err := e.runOnce(ctx); err != nil {
		e.log.ErrorObj("initial export failed", "error", err)
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.log.InfoObj("export loop exiting", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			if err := e.runOnce(ctx); err != nil {
				e.log.ErrorObj("scheduled export failed", "error", err)
			}
		}
	}
}

func (e *Exporter) runOnce(ctx context.Context) error {
	start := time.Now()
	results, err := e.service.Run(ctx, e.jobs)
	published := 0
	for _, r := range results {
		published += r.Published
	}
	e.log.InfoObj("export pass finished", "export_meta", map[string]any{
		"jobs_count":     len(e.jobs),
		"rows_published": published,
		"elapsed_ms":     time.Since(start).Milliseconds(),
		"failed":         err != nil,
	})
	return err
}

func (e *Exporter) close() {
	if err := e.fanout.Close(); err != nil {
		e.log.ErrorObj("publisher close failed", "error", err)
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.log.ErrorObj("storage close failed", "error", err)
		}
	}
}
