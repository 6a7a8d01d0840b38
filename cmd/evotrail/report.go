package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joss/evotrail/internal/metrics"
	"github.com/joss/evotrail/internal/report"
)

func reportCmd() *cobra.Command {
	var (
		format string
		days   int
		output string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate an evolution report",
		Long: `Generate a report over the recent change history.

Formats:
  markdown - human-readable summary (default)
  html     - standalone page with embedded JSON payload
  json     - machine-readable document

Examples:
  evotrail report
  evotrail report -f html -d 90 -o /tmp/q3.html
  evotrail report -f json | jq .summary`,
		Run: func(cmd *cobra.Command, args []string) {
			started := time.Now()
			gen := report.NewGenerator(queries)
			path, err := gen.Render(context.Background(), format, days, output)
			if err != nil {
				metrics.Global().RecordReport(false, time.Since(started).Milliseconds())
				exitOnError(err)
			}
			metrics.Global().RecordReport(true, time.Since(started).Milliseconds())

			fmt.Printf("Report written: %s\n", path)
			if info, err := os.Stat(path); err == nil {
				fmt.Printf("Size: %s\n", formatSize(info.Size()))
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", report.FormatMarkdown, "Output format (markdown|html|json)")
	cmd.Flags().IntVarP(&days, "days", "d", report.DefaultWindowDays, "Window in days")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default: reports directory)")
	return cmd
}
