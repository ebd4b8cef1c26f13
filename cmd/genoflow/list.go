/*
 *  list.go
 *  cmd
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/genoflow/genoflow/pipelines"
)

var (
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List the built-in workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range pipelines.Names() {
				fmt.Printf("%-12s %s\n", name, pipelines.Describe(name))
			}
			return nil
		},
	}

	rulesCmd = &cobra.Command{
		Use:   "rules",
		Short: "List the rules of the configured workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRules()
		},
	}
)

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(rulesCmd)
}

func listRules() error {
	_, wf, err := buildWorkflow()
	if err != nil {
		return err
	}
	fmt.Printf("workflow %s: %s\n\n", wf.Name, wf.Description)
	for _, r := range wf.Rules {
		doc := r.Doc
		if doc == "" {
			doc = shortShell(r.Shell)
		}
		fmt.Printf("%-24s %s\n", r.Name, doc)
	}
	fmt.Printf("\ntargets:\n")
	for _, t := range wf.Targets {
		fmt.Printf("  %s\n", t)
	}
	return nil
}

// shortShell trims a command down to something that fits on a listing
// line
func shortShell(shell string) string {
	const n = 60
	if len(shell) <= n {
		return shell
	}
	return shell[:n-3] + "..."
}
