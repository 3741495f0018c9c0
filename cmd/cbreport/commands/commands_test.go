package commands

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/springboardpro/clearbooks/internal/config"
	"github.com/springboardpro/clearbooks/internal/logger"
	"github.com/springboardpro/clearbooks/pkg/clearbooks"
)

type stubFetcher struct {
	table    *clearbooks.Table
	resource clearbooks.Resource
	query    clearbooks.Query
}

func (s *stubFetcher) Fetch(_ context.Context, r clearbooks.Resource, q clearbooks.Query) (*clearbooks.Table, error) {
	s.resource, s.query = r, q
	return s.table, nil
}

func runCLI(t *testing.T, f *stubFetcher, args ...string) string {
	t.Helper()
	fromFlag, toFlag, headFlag = "", "", 5

	origLoad, origFetcher, origNow := loadConfig, newFetcher, now
	t.Cleanup(func() { loadConfig, newFetcher, now = origLoad, origFetcher, origNow })
	loadConfig = func() (*config.Config, error) { return &config.Config{LogLevel: "error"}, nil }
	newFetcher = func(*config.Config, logger.Logger) (fetcher, error) { return f, nil }
	now = func() time.Time { return time.Date(2021, 6, 30, 0, 0, 0, 0, time.UTC) }

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("execute %v: %v", args, err)
	}
	return out.String()
}

func TestBillsPrintsHeadAndSummary(t *testing.T) {
	tbl := clearbooks.NewTable(clearbooks.BillColumns)
	for _, net := range []string{"10", "20", "60"} {
		tbl.Rows = append(tbl.Rows, clearbooks.Row{"reference": "ref-" + net, "net": net, "vat": "1"})
	}
	f := &stubFetcher{table: tbl}

	out := runCLI(t, f, "bills", "--from", "2021-05-01", "--to", "2021-05-31", "--head", "2")

	if f.resource != clearbooks.Bills {
		t.Fatalf("unexpected resource %s", f.resource)
	}
	if got := f.query.From.Format(flagDateLayout); got != "2021-05-01" {
		t.Fatalf("unexpected from %s", got)
	}
	if !strings.Contains(out, "ref-20") || strings.Contains(out, "ref-60") {
		t.Fatalf("expected only the first two rows:\n%s", out)
	}
	for _, want := range []string{"3.00", "30.00", "20.00", "2 of 3 rows"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output misses %q:\n%s", want, out)
		}
	}
}

func TestTimesheetsDefaultWindowAndTotals(t *testing.T) {
	tbl := clearbooks.NewTable(clearbooks.Timesheets.Columns())
	tbl.Rows = append(tbl.Rows,
		clearbooks.Row{clearbooks.TimesheetEmployee: "Zoe", clearbooks.TimesheetWorkingDays: "3"},
		clearbooks.Row{clearbooks.TimesheetEmployee: "Ann", clearbooks.TimesheetWorkingDays: "0.5"},
	)
	f := &stubFetcher{table: tbl}

	out := runCLI(t, f, "timesheets")

	if want := time.Date(2020, 6, 30, 0, 0, 0, 0, time.UTC); !f.query.From.Equal(want) {
		t.Fatalf("expected one year lookback, got %s", f.query.From)
	}
	summary := out[strings.Index(out, "2 of 2 rows"):]
	if strings.Index(summary, "Ann") > strings.Index(summary, "Zoe") {
		t.Fatalf("expected ascending working days:\n%s", out)
	}
	if !strings.Contains(out, "0.50") || !strings.Contains(out, "3.00") {
		t.Fatalf("totals missing:\n%s", out)
	}
}

func TestWindowRejectsBadDate(t *testing.T) {
	fromFlag, toFlag = "01/05/2021", ""
	t.Cleanup(func() { fromFlag = "" })
	if _, err := window(28); err == nil {
		t.Fatalf("expected invalid --from error")
	}
}

func TestNegativeHeadRejectedBeforeFetch(t *testing.T) {
	fromFlag, toFlag, headFlag = "", "", -1
	t.Cleanup(func() { headFlag = 5 })
	if _, err := window(28); err == nil {
		t.Fatalf("expected invalid --head error")
	}

	f := &stubFetcher{table: clearbooks.NewTable(clearbooks.BillColumns)}
	origLoad, origFetcher := loadConfig, newFetcher
	t.Cleanup(func() { loadConfig, newFetcher = origLoad, origFetcher })
	loadConfig = func() (*config.Config, error) { return &config.Config{LogLevel: "error"}, nil }
	newFetcher = func(*config.Config, logger.Logger) (fetcher, error) { return f, nil }

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"bills", "--head=-1"})
	if err := rootCmd.ExecuteContext(context.Background()); err == nil {
		t.Fatalf("expected bills --head -1 to fail")
	}
	if f.resource != "" {
		t.Fatalf("fetch ran with a negative head: %q", f.resource)
	}
	if strings.Contains(out.String(), "-1 of") {
		t.Fatalf("unexpected caption:\n%s", out.String())
	}
}
