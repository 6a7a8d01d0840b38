// Package main provides the evotrail CLI entrypoint.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/joss/evotrail/internal/change"
	"github.com/joss/evotrail/internal/config"
	"github.com/joss/evotrail/internal/logging"
	"github.com/joss/evotrail/internal/metrics"
	"github.com/joss/evotrail/internal/query"
	"github.com/joss/evotrail/internal/render"
	"github.com/joss/evotrail/internal/selftest"
	"github.com/joss/evotrail/internal/store"
)

var (
	version = "0.1.0"
	st      *store.SQLite
	tracker *change.Tracker
	queries *query.Engine
	pretty  = true
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "evotrail",
		Short: "evotrail - change audit and evolution tracking",
		Long: `evotrail tracks code changes through their lifecycle: snapshots
files before and after a change, diffs them, samples performance, and
answers queries over the accumulated history.

Typical flow:
  evotrail change start -t feature "add retry logic"
  evotrail change attach <id> 'internal/**/*.go'
  evotrail change complete <id> --rationale "flaky upstream"
  evotrail log
  evotrail report -f markdown`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			path := config.StorePath()
			var err error
			st, err = store.Open(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: cannot open store at %s: %v\n", path, err)
				os.Exit(1)
			}
			tracker = change.NewTracker(st)
			queries = query.NewEngine(st)

			tty := term.IsTerminal(int(os.Stdout.Fd()))
			pretty = resolvePretty(cmd.Flags().Changed("pretty"), pretty, config.Env().NoColor, tty)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if st != nil {
				st.Close()
			}
		},
	}

	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", true, "Pretty print output")

	rootCmd.AddCommand(
		changeCmd(),
		logCmd(),
		statsCmd(),
		timelineCmd(),
		reportCmd(),
		backupCmd(),
		statusCmd(),
		doctorCmd(),
	)

	// Panics anywhere under a command surface as a structured
	// panic_recovered event and a non-zero exit instead of a raw trace.
	run := logging.NewRecoveryHandler("cli")
	run.OnPanic = func(interface{}, string) { os.Exit(1) }
	run.Wrap(func() {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
	})
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show store health and session counters",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			connected := st.Ping(ctx) == nil

			total := 0
			if connected {
				var err error
				total, err = st.CountChanges(ctx, store.Filter{})
				if err != nil {
					total = 0
				}
			}

			out := render.NewChanges(pretty)
			out.Status(connected, st.Path(), total, metrics.Global().Snapshot())
		},
	}
}

func doctorCmd() *cobra.Command {
	var quick bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate the runtime environment",
		Run: func(cmd *cobra.Command, args []string) {
			env := selftest.Check()
			if quick {
				fmt.Println(env.QuickCheck())
			} else {
				fmt.Print(env.Summary())
			}
			if !env.IsHealthy() {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().BoolVarP(&quick, "quick", "q", false, "One-line status output")
	return cmd
}
