package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/joss/evotrail/internal/domain"
	"github.com/joss/evotrail/internal/metrics"
	"github.com/joss/evotrail/internal/render"
)

func changeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "change",
		Aliases: []string{"ch"},
		Short:   "Manage the change lifecycle",
		Long: `Start, annotate, and complete tracked changes.

A change moves proposed -> in_progress -> implemented -> tested ->
deployed, with rolled_back / failed reachable from any non-terminal
state. Attach files before editing them; completion snapshots the
files again, diffs them, and records the statistics.

Examples:
  evotrail change start -t feature -i high "add retry logic"
  evotrail change attach 01J... 'internal/**/*.go'
  evotrail change complete 01J... --rationale "flaky upstream"
  evotrail change show 01J...
  evotrail change set-status 01J... tested`,
	}

	cmd.AddCommand(
		changeStartCmd(),
		changeAttachCmd(),
		changeCompleteCmd(),
		changeShowCmd(),
		changeSetStatusCmd(),
		changeRelateCmd(),
		changeEffortCmd(),
		changeTypesCmd(),
	)
	return cmd
}

func changeStartCmd() *cobra.Command {
	var (
		changeType  string
		impact      string
		author      string
		description string
		files       []string
	)

	cmd := &cobra.Command{
		Use:   "start <title>",
		Short: "Start tracking a new change",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			id, err := tracker.StartChange(ctx,
				domain.ChangeType(changeType), args[0], description,
				resolveAuthor(author), domain.ImpactLevel(impact))
			if err != nil {
				metrics.Global().RecordStart(false)
				exitOnError(err)
			}
			metrics.Global().RecordStart(true)

			if len(files) > 0 {
				paths, err := expandGlobs(files)
				if err != nil {
					exitOnError(err)
				}
				if len(paths) > 0 {
					if err := tracker.AttachFiles(ctx, id, paths); err != nil {
						exitOnError(err)
					}
					metrics.Global().RecordSnapshots(len(paths))
				}
			}

			fmt.Println(id)
		},
	}

	cmd.Flags().StringVarP(&changeType, "type", "t", "code_update", "Change type (see 'change types')")
	cmd.Flags().StringVarP(&impact, "impact", "i", "", "Impact level (critical|high|medium|low|none)")
	cmd.Flags().StringVarP(&author, "author", "a", "", "Change author (default: EVOTRAIL_AUTHOR, then OS user)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Longer description")
	cmd.Flags().StringSliceVarP(&files, "files", "f", nil, "Files or glob patterns to attach immediately")
	return cmd
}

func changeAttachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach <change-id> <path|glob>...",
		Short: "Attach files to a change (before-snapshots)",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			paths, err := expandGlobs(args[1:])
			if err != nil {
				exitOnError(err)
			}
			if len(paths) == 0 {
				exitOnError(fmt.Errorf("no files matched"))
			}
			if err := tracker.AttachFiles(context.Background(), args[0], paths); err != nil {
				exitOnError(err)
			}
			metrics.Global().RecordSnapshots(len(paths))
			fmt.Printf("Attached %d file(s)\n", len(paths))
		},
	}
}

func changeCompleteCmd() *cobra.Command {
	var (
		rationale       string
		testResults     string
		deploymentNotes string
	)

	cmd := &cobra.Command{
		Use:   "complete <change-id>",
		Short: "Complete a change: after-snapshots, diffs, statistics",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			started := time.Now()
			rec, err := tracker.CompleteChange(context.Background(),
				args[0], rationale, testResults, deploymentNotes)
			if err != nil {
				metrics.Global().RecordComplete(false, time.Since(started).Milliseconds())
				exitOnError(err)
			}
			metrics.Global().RecordComplete(true, time.Since(started).Milliseconds())
			metrics.Global().RecordSnapshots(len(rec.AfterSnapshots))
			metrics.Global().RecordDiffs(len(rec.Diffs))

			out := render.NewChanges(pretty)
			out.Detail(rec)
		},
	}

	cmd.Flags().StringVarP(&rationale, "rationale", "r", "", "Why the change was made")
	cmd.Flags().StringVar(&testResults, "tests", "", "Test results summary")
	cmd.Flags().StringVar(&deploymentNotes, "notes", "", "Deployment notes")
	return cmd
}

func changeShowCmd() *cobra.Command {
	var showDiffs bool

	cmd := &cobra.Command{
		Use:   "show <change-id>",
		Short: "Show one change in full",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			rec, err := tracker.GetChange(ctx, args[0])
			if err != nil {
				exitOnError(err)
			}

			out := render.NewChanges(pretty)
			out.Detail(rec)

			if showDiffs {
				diffs, err := st.DiffsFor(ctx, rec.ChangeID)
				if err != nil {
					exitOnError(err)
				}
				out.Line()
				out.Diffs(diffs)
			}
		},
	}

	cmd.Flags().BoolVar(&showDiffs, "diffs", false, "Include stored diffs")
	return cmd
}

func changeSetStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <change-id> <status>",
		Short: "Move a change to a new lifecycle status",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			next := domain.Status(args[1])
			if !next.IsValid() {
				exitOnError(fmt.Errorf("unknown status %q", args[1]))
			}
			if err := tracker.UpdateStatus(context.Background(), args[0], next); err != nil {
				exitOnError(err)
			}
			fmt.Printf("%s -> %s\n", args[0], next)
		},
	}
}

func changeRelateCmd() *cobra.Command {
	var (
		dependsOn []string
		related   []string
	)

	cmd := &cobra.Command{
		Use:   "relate <change-id>",
		Short: "Record dependency or relatedness references",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if len(dependsOn) == 0 && len(related) == 0 {
				exitOnError(fmt.Errorf("nothing to relate: use --depends-on or --related"))
			}
			if err := tracker.AddRelation(context.Background(), args[0], dependsOn, related); err != nil {
				exitOnError(err)
			}
			fmt.Println("Relations recorded")
		},
	}

	cmd.Flags().StringSliceVar(&dependsOn, "depends-on", nil, "Change IDs this one depends on")
	cmd.Flags().StringSliceVar(&related, "related", nil, "Related change IDs")
	return cmd
}

func changeEffortCmd() *cobra.Command {
	var (
		duration float64
		estimate float64
	)

	cmd := &cobra.Command{
		Use:   "effort <change-id>",
		Short: "Record expended and estimated effort in hours",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := tracker.SetEffort(context.Background(), args[0], duration, estimate); err != nil {
				exitOnError(err)
			}
			fmt.Println("Effort recorded")
		},
	}

	cmd.Flags().Float64Var(&duration, "hours", -1, "Actual hours spent")
	cmd.Flags().Float64Var(&estimate, "estimate", -1, "Estimated hours")
	return cmd
}

func changeTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List known change types",
		Run: func(cmd *cobra.Command, args []string) {
			types := domain.ChangeTypes()
			names := make([]string, 0, len(types))
			for _, t := range types {
				names = append(names, string(t))
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("%-16s %s\n", name, domain.ChangeType(name).Label())
			}
		},
	}
}
