package exports

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/springboardpro/clearbooks/pkg/clearbooks"
	"gopkg.in/yaml.v3"
)

// Package exports loads export job definitions (YAML/JSON).

const dateLayout = "2006-01-02"

// Job describes one recurring download: which resource and which date window.
// From/To are YYYY-MM-DD. Without From, LookbackDays counts back from today; with neither,
// the window starts at the first day of ClearBooks data.
type Job struct {
	ID           string            `json:"id" yaml:"id"`
	Name         string            `json:"name" yaml:"name"`
	Resource     string            `json:"resource" yaml:"resource"`
	From         string            `json:"from" yaml:"from"`
	To           string            `json:"to" yaml:"to"`
	LookbackDays int               `json:"lookback_days" yaml:"lookback_days"`
	Params       map[string]string `json:"params" yaml:"params"`
	Enabled      *bool             `json:"enabled" yaml:"enabled"`
}

type configFile struct {
	Exports []Job `json:"exports" yaml:"exports"`
}

// Registry holds the jobs loaded from a file.
type Registry struct {
	mu   sync.RWMutex
	jobs []Job
	idx  map[string]Job
}

// LoadRegistry loads export jobs from file.
func LoadRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("exports file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open exports file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read exports file: %w", err)
	}

	return ParseRegistry(raw, filepath.Ext(path))
}

// ParseRegistry decodes jobs from raw file content; ext selects the decoder (".yaml", ".yml",
// ".json") or, when empty, every decoder is tried.
func ParseRegistry(data []byte, ext string) (*Registry, error) {
	cf, err := parseConfigFile(data, ext)
	if err != nil {
		return nil, err
	}
	if len(cf.Exports) == 0 {
		return nil, errors.New("exports file contains no exports entries")
	}

	reg := &Registry{
		jobs: make([]Job, len(cf.Exports)),
		idx:  make(map[string]Job, len(cf.Exports)),
	}
	for i := range cf.Exports {
		j := sanitizeJob(cf.Exports[i])
		if err := validateJob(j); err != nil {
			return nil, fmt.Errorf("exports[%d]: %w", i, err)
		}
		if _, exists := reg.idx[j.ID]; exists {
			return nil, fmt.Errorf("duplicate export id %q", j.ID)
		}
		reg.jobs[i] = j
		reg.idx[j.ID] = j
	}
	return reg, nil
}

type unmarshalFn func([]byte, any) error

func parseConfigFile(data []byte, ext string) (configFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   unmarshalFn
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	var errs []error
	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var cf configFile
		if err := d.fn(data, &cf); err != nil {
			errs = append(errs, fmt.Errorf("decode %s exports: %w", d.name, err))
			continue
		}
		return cf, nil
	}

	if len(errs) > 0 {
		return configFile{}, errors.Join(errs...)
	}
	return configFile{}, errors.New("exports file format not recognized (expected YAML or JSON)")
}

func sanitizeJob(j Job) Job {
	j.ID = strings.TrimSpace(j.ID)
	j.Name = strings.TrimSpace(j.Name)
	j.Resource = strings.ToLower(strings.TrimSpace(j.Resource))
	j.From = strings.TrimSpace(j.From)
	j.To = strings.TrimSpace(j.To)
	if j.Name == "" {
		j.Name = j.ID
	}
	if j.Enabled == nil {
		def := true
		j.Enabled = &def
	}
	return j
}

func validateJob(j Job) error {
	if j.ID == "" {
		return errors.New("id is required")
	}
	if j.Resource == "" {
		return fmt.Errorf("resource is required for export %q", j.ID)
	}
	if _, err := clearbooks.ParseResource(j.Resource); err != nil {
		return fmt.Errorf("export %q: %w", j.ID, err)
	}
	if j.LookbackDays < 0 {
		return fmt.Errorf("lookback_days must not be negative for export %q", j.ID)
	}
	from, err := parseDate(j.From)
	if err != nil {
		return fmt.Errorf("from for export %q: %w", j.ID, err)
	}
	to, err := parseDate(j.To)
	if err != nil {
		return fmt.Errorf("to for export %q: %w", j.ID, err)
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return fmt.Errorf("export %q: to (%s) cannot be before from (%s)", j.ID, j.To, j.From)
	}
	return nil
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, raw)
}

// ResourceType returns the ClearBooks resource of the job.
func (j Job) ResourceType() clearbooks.Resource {
	r, _ := clearbooks.ParseResource(j.Resource)
	return r
}

// Query resolves the job window relative to now.
func (j Job) Query(now time.Time) (clearbooks.Query, error) {
	from, err := parseDate(j.From)
	if err != nil {
		return clearbooks.Query{}, fmt.Errorf("export %q from: %w", j.ID, err)
	}
	to, err := parseDate(j.To)
	if err != nil {
		return clearbooks.Query{}, fmt.Errorf("export %q to: %w", j.ID, err)
	}
	if from.IsZero() && j.LookbackDays > 0 {
		from = now.AddDate(0, 0, -j.LookbackDays)
	}

	q := clearbooks.Query{From: from, To: to}
	if len(j.Params) > 0 {
		q.Params = make(map[string]string, len(j.Params))
		for k, v := range j.Params {
			q.Params[k] = v
		}
	}
	return q, nil
}

// EnabledValue returns enabled flag defaulting to true.
func (j Job) EnabledValue() bool {
	if j.Enabled == nil {
		return true
	}
	return *j.Enabled
}

// All returns all configured jobs in file order.
func (r *Registry) All() []Job {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}

// Enabled returns the jobs that are enabled.
func (r *Registry) Enabled() []Job {
	all := r.All()
	out := make([]Job, 0, len(all))
	for _, j := range all {
		if j.EnabledValue() {
			out = append(out, j)
		}
	}
	return out
}

// ByID returns the job with the given id, if loaded.
func (r *Registry) ByID(id string) (Job, bool) {
	if r == nil {
		return Job{}, false
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Job{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.idx[id]
	return j, ok
}
