/*
 *  root.go
 *  cmd
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package main

import (
	"github.com/spf13/cobra"

	"github.com/genoflow/genoflow"
	"github.com/genoflow/genoflow/pipelines"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "genoflow",
		Short: "Reproducible genomics workflows over command line tools",
		Long: `Genoflow runs genomics analyses as dependency graphs of shell rules,
the way a Makefile would, with wildcards tying sample names to files.
Workflows are built in, selected in genoflow.yaml and driven by a
sample manifest. Finished work is skipped on rerun unless its inputs
are newer.`,
		Version:       genoflow.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c",
		genoflow.ConfigFileName, "workflow configuration file")
}

// Execute routes to the selected subcommand
func Execute() error {
	return rootCmd.Execute()
}

// buildWorkflow loads the configuration and assembles the workflow it
// selects
func buildWorkflow() (*genoflow.Config, *genoflow.Workflow, error) {
	cfg, err := genoflow.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	wf, err := pipelines.Build(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, wf, nil
}
