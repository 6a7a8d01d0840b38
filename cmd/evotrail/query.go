package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/joss/evotrail/internal/domain"
	"github.com/joss/evotrail/internal/metrics"
	"github.com/joss/evotrail/internal/render"
	"github.com/joss/evotrail/internal/store"
)

func logCmd() *cobra.Command {
	var (
		changeType string
		status     string
		author     string
		impact     string
		tag        string
		sinceDays  int
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "List changes, newest first",
		Long: `List tracked changes. All filters combine with AND.

Examples:
  evotrail log
  evotrail log -t bug_fix -s implemented
  evotrail log --author alice --since 14
  evotrail log --tag hotfix -n 50`,
		Run: func(cmd *cobra.Command, args []string) {
			f := store.Filter{
				Type:           domain.ChangeType(changeType),
				Status:         domain.Status(status),
				AuthorContains: author,
				Impact:         domain.ImpactLevel(impact),
				Tag:            tag,
				Limit:          limit,
			}
			if sinceDays > 0 {
				f.Since = time.Now().AddDate(0, 0, -sinceDays)
			}

			records, err := queries.Query(context.Background(), f)
			if err != nil {
				exitOnError(err)
			}
			metrics.Global().RecordQuery()

			out := render.NewChanges(pretty)
			out.List(records)
		},
	}

	cmd.Flags().StringVarP(&changeType, "type", "t", "", "Filter by change type")
	cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status")
	cmd.Flags().StringVarP(&author, "author", "a", "", "Filter by author substring")
	cmd.Flags().StringVarP(&impact, "impact", "i", "", "Filter by impact level")
	cmd.Flags().StringVar(&tag, "tag", "", "Filter by tag")
	cmd.Flags().IntVar(&sinceDays, "since", 0, "Only changes from the last N days")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum results (default 100)")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate statistics over the full history",
		Run: func(cmd *cobra.Command, args []string) {
			stats, err := queries.Statistics(context.Background())
			if err != nil {
				exitOnError(err)
			}
			metrics.Global().RecordQuery()

			out := render.NewChanges(pretty)
			out.Stats(stats)
		},
	}
}

func timelineCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Show daily change activity",
		Run: func(cmd *cobra.Command, args []string) {
			buckets, err := queries.Timeline(context.Background(), days)
			if err != nil {
				exitOnError(err)
			}
			metrics.Global().RecordQuery()

			out := render.NewChanges(pretty)
			out.Timeline(buckets)
		},
	}

	cmd.Flags().IntVarP(&days, "days", "d", 14, "Window in days, today inclusive")
	return cmd
}
