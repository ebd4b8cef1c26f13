/*
 *  status.go
 *  cmd
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/genoflow/genoflow"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the outcome of the last run",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func showStatus() error {
	entries, err := genoflow.ReadJournal(genoflow.JournalPath("."))
	if err != nil {
		return err
	}
	run, err := genoflow.LatestRun(entries)
	if err != nil {
		return err
	}

	fmt.Printf("run      %s\n", run.ID)
	fmt.Printf("workflow %s\n", run.Workflow)
	fmt.Printf("started  %s\n", run.Started.Format("2006-01-02 15:04:05"))
	switch {
	case !run.Finished:
		fmt.Println("state    interrupted or still running")
	case run.Error != "":
		fmt.Printf("state    failed: %s\n", run.Error)
	default:
		fmt.Println("state    finished")
	}
	if run.Stats != nil {
		s := run.Stats
		fmt.Printf("jobs     %d planned, %d done, %d failed, %d skipped\n",
			s.Planned, s.Done, s.Failed, s.Skipped)
		fmt.Printf("wall     %.1fs, peak rss %.0f MB\n", s.Seconds, s.MaxRSSMB)
	}

	failed := 0
	for _, e := range run.Entries {
		if e.Event == genoflow.EventJobFailed {
			failed++
			fmt.Printf("failed   %s (attempt %d, exit %d): %s\n",
				e.Job, e.Attempts, e.ExitCode, e.Error)
		}
	}
	if failed == 0 && !run.Finished {
		done, started := 0, 0
		for _, e := range run.Entries {
			switch e.Event {
			case genoflow.EventJobDone:
				done++
			case genoflow.EventJobStarted:
				started++
			}
		}
		fmt.Printf("jobs     %s dispatched so far are done\n", genoflow.Percentage(done, started))
	}
	return nil
}
