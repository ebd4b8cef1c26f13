/*
 *  dag.go
 *  cmd
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/genoflow/genoflow"
)

var (
	dagOut string

	dagCmd = &cobra.Command{
		Use:   "dag [target ...]",
		Short: "Write the job graph as Graphviz DOT",
		Long: `Dag prints the job graph that run would execute. Pending jobs are
drawn solid, up to date ones dashed. Pipe through dot:

  genoflow dag | dot -Tpdf > dag.pdf`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeDAG(args)
		},
	}
)

func init() {
	dagCmd.Flags().StringVarP(&dagOut, "output", "o", "", "write to this file instead of stdout")
	rootCmd.AddCommand(dagCmd)
}

func writeDAG(targets []string) error {
	_, wf, err := buildWorkflow()
	if err != nil {
		return err
	}
	plan, err := genoflow.BuildPlan(wf, genoflow.PlanOptions{Targets: targets})
	if err != nil {
		return err
	}
	w := os.Stdout
	if dagOut != "" {
		f, err := os.Create(dagOut)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return plan.WriteDOT(w)
}
