package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/joss/evotrail/internal/backup"
	"github.com/joss/evotrail/internal/config"
)

func backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "backup",
		Aliases: []string{"bak"},
		Short:   "Export and restore the change history",
		Long: `Backup and restore the full change history.

Examples:
  evotrail backup export                     # Export to timestamped file
  evotrail backup export -o history.tar.gz   # Export to specific file
  evotrail backup import history.tar.gz      # Restore (merges over existing)
  evotrail backup list history.tar.gz        # Show archive contents`,
	}

	cmd.AddCommand(
		backupExportCmd(),
		backupImportCmd(),
		backupListCmd(),
	)
	return cmd
}

func backupExportCmd() *cobra.Command {
	var (
		output      string
		description string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the change history to a compressed archive",
		Run: func(cmd *cobra.Command, args []string) {
			if output == "" {
				dir := config.GetPaths().Backups
				if err := config.EnsureDir(dir); err != nil {
					exitOnError(err)
				}
				output = filepath.Join(dir,
					fmt.Sprintf("evotrail-backup-%s.tar.gz", time.Now().Format("20060102-150405")))
			}

			meta, err := backup.NewManager(st).Export(context.Background(), output, description)
			if err != nil {
				exitOnError(err)
			}

			fmt.Printf("Backup created: %s\n", output)
			fmt.Println("\nContents:")
			for name, count := range meta.Counts {
				fmt.Printf("  %-12s %d\n", name+":", count)
			}
			if info, err := os.Stat(output); err == nil {
				fmt.Printf("\nSize: %s\n", formatSize(info.Size()))
			}
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file path")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Backup description")
	return cmd
}

func backupImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <archive>",
		Short: "Restore an archive into the store",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			meta, err := backup.NewManager(st).Import(context.Background(), args[0])
			if err != nil {
				exitOnError(err)
			}

			fmt.Printf("Restored from %s (created %s)\n",
				args[0], meta.CreatedAt.Format("2006-01-02 15:04:05"))
			for name, count := range meta.Counts {
				fmt.Printf("  %-12s %d\n", name+":", count)
			}
		},
	}
}

func backupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <archive>",
		Short: "Show archive contents without importing",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			meta, err := backup.NewManager(st).List(args[0])
			if err != nil {
				exitOnError(err)
			}

			fmt.Printf("Version:     %s\n", meta.Version)
			fmt.Printf("Created:     %s\n", meta.CreatedAt.Format("2006-01-02 15:04:05"))
			if meta.Description != "" {
				fmt.Printf("Description: %s\n", meta.Description)
			}
			fmt.Println("Contents:")
			for name, count := range meta.Counts {
				fmt.Printf("  %-12s %d\n", name+":", count)
			}
		},
	}
}
