// Package exporter pushes ClearBooks rows from configured jobs to publishers.
package exporter

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/springboardpro/clearbooks/internal/logger"
	"github.com/springboardpro/clearbooks/pkg/clearbooks"
	"github.com/springboardpro/clearbooks/pkg/exports"
	"github.com/springboardpro/clearbooks/pkg/publishers"
)

// cellSeparator cannot appear in CSV cells ClearBooks emits.
const cellSeparator = "\x1f"

// Service runs export jobs one after another.
type Service struct {
	fetcher   TableFetcher
	publisher EventPublisher
	store     RowStore
	log       Logger
	now       func() time.Time
}

// JobResult counts what happened to the rows of one job.
type JobResult struct {
	JobID     string
	Resource  clearbooks.Resource
	Fetched   int
	Skipped   int
	Published int
	Failed    int
}

// NewService wires the exporter. A nil store disables de-duplication.
func NewService(fetcher TableFetcher, publisher EventPublisher, store RowStore, log Logger) *Service {
	if log == nil {
		log = &logger.NopLogger{}
	}
	return &Service{
		fetcher:   fetcher,
		publisher: publisher,
		store:     store,
		log:       log,
		now:       time.Now,
	}
}

// Run executes every job. A failing job does not stop the others; all job
// errors are returned joined.
func (s *Service) Run(ctx context.Context, jobs []exports.Job) ([]JobResult, error) {
	if s == nil || s.fetcher == nil || s.publisher == nil {
		return nil, fmt.Errorf("exporter service is not initialized")
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("no export jobs configured")
	}

	results := make([]JobResult, 0, len(jobs))
	var errs []error
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := s.runJob(ctx, job)
		results = append(results, res)
		if err != nil {
			errs = append(errs, err)
			s.logJobError(job, err)
			continue
		}
		s.log.InfoObj("export job completed", "export_result", map[string]any{
			"job_id":    res.JobID,
			"resource":  res.Resource.String(),
			"fetched":   res.Fetched,
			"skipped":   res.Skipped,
			"published": res.Published,
			"failed":    res.Failed,
		})
	}
	return results, errors.Join(errs...)
}

func (s *Service) logJobError(job exports.Job, err error) {
	fields := map[string]any{
		"job_id":   job.ID,
		"resource": job.ResourceType().String(),
		"error":    err.Error(),
	}
	if errors.Is(err, clearbooks.ErrPermission) {
		s.log.WarnObj("clearbooks account lacks permission for resource", "export_permission", fields)
		return
	}
	s.log.ErrorObj("export job failed", "export_error", fields)
}

func (s *Service) runJob(ctx context.Context, job exports.Job) (JobResult, error) {
	resource := job.ResourceType()
	res := JobResult{JobID: job.ID, Resource: resource}

	q, err := job.Query(s.now())
	if err != nil {
		return res, err
	}
	table, err := s.fetcher.Fetch(ctx, resource, q)
	if err != nil {
		return res, fmt.Errorf("export %s: %w", job.ID, err)
	}
	res.Fetched = table.Len()

	var errs []error
	occurrences := make(map[string]int, table.Len())
	for i := 0; i < table.Len(); i++ {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		values := table.Values(i)
		key := strings.Join(values, cellSeparator)
		fp := Fingerprint(resource, values, occurrences[key])
		occurrences[key]++
		if s.store != nil {
			seen, err := s.store.SeenRow(fp)
			if err != nil {
				errs = append(errs, fmt.Errorf("check row %s: %w", fp, err))
				res.Failed++
				continue
			}
			if seen {
				res.Skipped++
				continue
			}
		}

		delivered, err := s.publisher.Publish(ctx, publishers.NewEvent(job.ID, resource, fp, table, i))
		if err != nil {
			errs = append(errs, fmt.Errorf("publish row %d: %w", i, err))
		}
		if delivered == 0 {
			res.Failed++
			continue
		}
		res.Published++
		if s.store != nil {
			if err := s.store.MarkRow(fp); err != nil {
				errs = append(errs, fmt.Errorf("mark row %s: %w", fp, err))
			}
		}
	}
	if len(errs) > 0 {
		return res, fmt.Errorf("export %s: %w", job.ID, errors.Join(errs...))
	}
	return res, nil
}

// Fingerprint identifies a row by its resource, its cell values in column order and
// occurrence, the number of identical rows before it in the same table.
func Fingerprint(resource clearbooks.Resource, values []string, occurrence int) string {
	h := sha1.New()
	h.Write([]byte(resource))
	for _, v := range values {
		h.Write([]byte(cellSeparator))
		h.Write([]byte(v))
	}
	h.Write([]byte(cellSeparator))
	h.Write([]byte(strconv.Itoa(occurrence)))
	return hex.EncodeToString(h.Sum(nil))
}
