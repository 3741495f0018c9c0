package exports

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/springboardpro/clearbooks/pkg/clearbooks"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadRegistryYAML(t *testing.T) {
	path := writeFile(t, "exports.yaml", `
exports:
  - id: recent-bills
    resource: Bills
    lookback_days: 28
  - id: timesheets-2021
    name: Timesheets 2021
    resource: timesheets
    from: 2021-01-01
    to: 2021-12-31
    params:
      filter[project_id]: "12"
  - id: old-pos
    resource: pos
    enabled: false
`)

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if got := len(reg.All()); got != 3 {
		t.Fatalf("expected 3 jobs, got %d", got)
	}
	enabled := reg.Enabled()
	if len(enabled) != 2 {
		t.Fatalf("expected 2 enabled jobs, got %d", len(enabled))
	}

	bills, ok := reg.ByID("recent-bills")
	if !ok {
		t.Fatalf("expected recent-bills to be loaded")
	}
	if bills.ResourceType() != clearbooks.Bills {
		t.Fatalf("unexpected resource %s", bills.ResourceType())
	}
	if bills.Name != "recent-bills" {
		t.Fatalf("expected name to default to id, got %q", bills.Name)
	}

	now := time.Date(2021, 6, 7, 9, 0, 0, 0, time.UTC)
	q, err := bills.Query(now)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if want := time.Date(2021, 5, 10, 9, 0, 0, 0, time.UTC); !q.From.Equal(want) {
		t.Fatalf("expected lookback from %s, got %s", want, q.From)
	}
	if !q.To.IsZero() {
		t.Fatalf("expected open-ended window, got to=%s", q.To)
	}

	ts, _ := reg.ByID("timesheets-2021")
	q, err = ts.Query(now)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if q.From.Format(dateLayout) != "2021-01-01" || q.To.Format(dateLayout) != "2021-12-31" {
		t.Fatalf("unexpected window %s..%s", q.From, q.To)
	}
	if q.Params["filter[project_id]"] != "12" {
		t.Fatalf("expected params to be carried, got %v", q.Params)
	}
}

func TestLoadRegistryJSON(t *testing.T) {
	path := writeFile(t, "exports.json", `{"exports":[{"id":"inv","resource":"sales"}]}`)
	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	j, _ := reg.ByID("inv")
	if j.ResourceType() != clearbooks.Invoices {
		t.Fatalf("unexpected resource %s", j.ResourceType())
	}
	q, err := j.Query(time.Now())
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !q.From.IsZero() {
		t.Fatalf("expected zero from so the client falls back to its start date")
	}
}

func TestParseRegistryRejectsInvalidJobs(t *testing.T) {
	cases := map[string]string{
		"duplicate id":     "exports:\n  - {id: a, resource: bills}\n  - {id: a, resource: invoices}\n",
		"unknown resource": "exports:\n  - {id: a, resource: payroll}\n",
		"missing id":       "exports:\n  - {resource: bills}\n",
		"bad date":         "exports:\n  - {id: a, resource: bills, from: 01/02/2021}\n",
		"reversed window":  "exports:\n  - {id: a, resource: bills, from: 2021-02-01, to: 2021-01-01}\n",
		"empty":            "exports: []\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseRegistry([]byte(raw), ".yaml"); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestParseRegistryUnknownFormat(t *testing.T) {
	_, err := ParseRegistry([]byte("exports: [}"), ".toml")
	if err == nil || !strings.Contains(err.Error(), "not recognized") {
		t.Fatalf("expected unrecognized format error, got %v", err)
	}
}
