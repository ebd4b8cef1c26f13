/*
 *  run.go
 *  cmd
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/genoflow/genoflow"
)

var (
	runCores    int
	runMemMB    int
	runDryRun   bool
	runKeep     bool
	runForce    bool
	runForceAll bool
	runMonitor  string

	runCmd = &cobra.Command{
		Use:   "run [target ...]",
		Short: "Execute the configured workflow",
		Long: `Run builds the job graph for the requested targets (default: the
workflow's own targets), skips everything already up to date and
executes the rest under the core and memory budget. Interrupting the
run stops dispatch and removes the outputs of unfinished jobs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(args)
		},
	}
)

func init() {
	runCmd.Flags().IntVarP(&runCores, "cores", "j", 0, "total cores, overrides the configuration")
	runCmd.Flags().IntVar(&runMemMB, "mem", 0, "total memory budget in MB, overrides the configuration")
	runCmd.Flags().BoolVarP(&runDryRun, "dry-run", "n", false, "show what would run without running it")
	runCmd.Flags().BoolVarP(&runKeep, "keep-going", "k", false, "after a failure, keep running jobs that do not depend on it")
	runCmd.Flags().BoolVar(&runForce, "force", false, "rerun the jobs producing the requested targets")
	runCmd.Flags().BoolVar(&runForceAll, "forceall", false, "rerun every job regardless of timestamps")
	runCmd.Flags().StringVar(&runMonitor, "monitor", "", "serve run status on this address, e.g. :8080")
	rootCmd.AddCommand(runCmd)
}

func runWorkflow(targets []string) error {
	cfg, wf, err := buildWorkflow()
	if err != nil {
		return err
	}
	plan, err := genoflow.BuildPlan(wf, genoflow.PlanOptions{
		Targets:      targets,
		ForceAll:     runForceAll,
		ForceTargets: runForce,
	})
	if err != nil {
		return err
	}

	cores := cfg.Cores
	if runCores > 0 {
		cores = runCores
	}
	mem := cfg.MemMB
	if runMemMB > 0 {
		mem = runMemMB
	}

	runner := &genoflow.Runner{
		Plan:      plan,
		Cores:     cores,
		MemMB:     mem,
		KeepGoing: runKeep,
		DryRun:    runDryRun,
	}
	if !runDryRun {
		jn, err := genoflow.OpenJournal(".")
		if err != nil {
			return err
		}
		defer jn.Close()
		runner.Journal = jn
	}
	if runMonitor != "" {
		mon := &genoflow.Monitor{Addr: runMonitor, Runner: runner}
		mon.Start()
		defer mon.Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	_, err = runner.Run(ctx)
	return err
}
