/*
 *  report.go
 *  cmd
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package main

import (
	"github.com/spf13/cobra"

	"github.com/genoflow/genoflow"
)

var (
	reportServe   bool
	reportPort    int
	reportOut     string
	reportThreads int

	reportCmd = &cobra.Command{
		Use:   "report",
		Short: "Summarize the last run and the files it produced",
		Long: `Report reads the run journal and the result files, computes per rule
runtimes plus FASTQ and BAM summaries, and writes report.json,
job_seconds.npy and a self-contained report.html.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := genoflow.LoadConfig(configPath)
			if err != nil {
				return err
			}
			r := &genoflow.Reporter{
				Config:  cfg,
				OutDir:  reportOut,
				Serve:   reportServe,
				Port:    reportPort,
				Threads: reportThreads,
			}
			return r.Run()
		},
	}
)

func init() {
	reportCmd.Flags().BoolVar(&reportServe, "serve", false, "serve the report over HTTP after writing it")
	reportCmd.Flags().IntVar(&reportPort, "port", 3000, "first port to try when serving")
	reportCmd.Flags().StringVarP(&reportOut, "output", "o", "", "report directory (default: <outdir>/report)")
	reportCmd.Flags().IntVar(&reportThreads, "threads", 4, "threads for scanning result files")
	rootCmd.AddCommand(reportCmd)
}
