/*
 *  init.go
 *  cmd
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package main

import (
	"fmt"
	"os"
	"path"

	"github.com/spf13/cobra"

	"github.com/genoflow/genoflow"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write a starter configuration and sample manifest",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		return initWorkdir(dir)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func initWorkdir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	files := []struct {
		name, content string
	}{
		{genoflow.ConfigFileName, genoflow.DefaultConfigYAML},
		{genoflow.SampleSheetName, genoflow.DefaultSampleSheet},
	}
	for _, f := range files {
		target := path.Join(dir, f.name)
		if genoflow.FileExists(target) {
			return fmt.Errorf("refusing to overwrite `%s`", target)
		}
		if err := os.WriteFile(target, []byte(f.content), 0644); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", target)
	}
	fmt.Println("edit the manifest, pick a workflow in the configuration, then `genoflow run`")
	return nil
}
