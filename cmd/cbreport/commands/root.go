package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/springboardpro/clearbooks/internal/app"
	"github.com/springboardpro/clearbooks/internal/config"
	"github.com/springboardpro/clearbooks/internal/logger"
	"github.com/springboardpro/clearbooks/pkg/clearbooks"
)

const flagDateLayout = "2006-01-02"

type fetcher interface {
	Fetch(ctx context.Context, resource clearbooks.Resource, q clearbooks.Query) (*clearbooks.Table, error)
}

// Swapped in tests.
var (
	loadConfig = config.Load
	newFetcher = func(cfg *config.Config, log logger.Logger) (fetcher, error) {
		return app.NewClient(cfg, log)
	}
	now = time.Now
)

var (
	fromFlag string
	toFlag   string
	headFlag int
)

var rootCmd = &cobra.Command{
	Use:          "cbreport",
	Short:        "cbreport downloads ClearBooks tables and prints a short summary.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&fromFlag, "from", "", "first day to include (YYYY-MM-DD)")
	rootCmd.PersistentFlags().StringVar(&toFlag, "to", "", "last day to include (YYYY-MM-DD), defaults to today")
	rootCmd.PersistentFlags().IntVar(&headFlag, "head", 5, "number of rows to print")
}

// ExecuteContext runs the command line and returns the process exit code.
func ExecuteContext(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// window resolves --from/--to; without --from it looks back lookbackDays from today.
func window(lookbackDays int) (clearbooks.Query, error) {
	var q clearbooks.Query
	if headFlag < 0 {
		return q, fmt.Errorf("invalid --head %d: must not be negative", headFlag)
	}
	if fromFlag != "" {
		from, err := time.Parse(flagDateLayout, fromFlag)
		if err != nil {
			return q, fmt.Errorf("invalid --from %q: %w", fromFlag, err)
		}
		q.From = from
	} else {
		q.From = now().AddDate(0, 0, -lookbackDays)
	}
	if toFlag != "" {
		to, err := time.Parse(flagDateLayout, toFlag)
		if err != nil {
			return q, fmt.Errorf("invalid --to %q: %w", toFlag, err)
		}
		q.To = to
	}
	return q, nil
}

func fetch(cmd *cobra.Command, resource clearbooks.Resource, lookbackDays int) (*clearbooks.Table, error) {
	q, err := window(lookbackDays)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.InitTo(cfg, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	client, err := newFetcher(cfg, log)
	if err != nil {
		return nil, err
	}
	return client.Fetch(cmd.Context(), resource, q)
}
