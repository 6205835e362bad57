package text

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/olivierlemasle/cloud-init/internal/core/domain"
	"github.com/olivierlemasle/cloud-init/internal/core/ports"
)

const ReporterTypeText = "text"

type Config struct {
	NoColor bool `yaml:"no_color" mapstructure:"no_color"`
}

// Reporter renders stage results as a human-readable table.
type Reporter struct {
	config Config
	writer io.Writer
	logger ports.Logger
}

func NewReporter(cfg Config, logger ports.Logger) (*Reporter, error) {
	if cfg.NoColor || !isTerminal(os.Stdout) {
		color.NoColor = true
	}

	return &Reporter{
		config: cfg,
		writer: os.Stdout,
		logger: logger,
	}, nil
}

func isTerminal(f *os.File) bool {
	stat, _ := f.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

func (r *Reporter) Report(ctx context.Context, results []domain.StageResult) error {
	if len(results) == 0 {
		fmt.Fprintln(r.writer, "No stages executed.")
		return nil
	}

	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	w := tabwriter.NewWriter(r.writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tMODULE\tSTATUS\tDURATION\tDETAIL")
	for _, result := range results {
		for _, o := range result.Ran {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", result.Stage, o.Name, green("ran"), o.Duration.Round(time.Millisecond), o.Detail)
		}
		for _, o := range result.Skipped {
			fmt.Fprintf(w, "%s\t%s\t%s\t\t%s\n", result.Stage, o.Name, yellow("skipped"), o.Detail)
		}
		for _, o := range result.Failed {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", result.Stage, o.Name, red("failed"), o.Duration.Round(time.Millisecond), o.Detail)
		}
		if result.Aborted {
			fmt.Fprintf(w, "%s\t\t%s\t\t%s\n", result.Stage, red("aborted"), result.AbortReason)
		}
	}
	if err := w.Flush(); err != nil {
		r.logger.Errorf(ctx, err, "failed to render stage report")
		return err
	}
	return nil
}
