/*
 *  exec.go
 *  genoflow
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package genoflow

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// Executor runs one job's shell command under bash with strict mode on,
// wiring up the log sidecar and enforcing the output contract: after a
// successful command every declared output exists, and after a failed
// one none of them do
type Executor struct {
	// Shell is the interpreter, /bin/bash when empty
	Shell string
	// Env entries are appended to the inherited environment
	Env []string
	// Stdout and Stderr receive command output when no log file is
	// declared; they default to the process's own streams
	Stdout io.Writer
	Stderr io.Writer
}

// Run executes the job and returns its benchmark. The command runs as
// `bash -euo pipefail -c`, so an unset variable or a failure mid-pipe
// fails the job instead of slipping through.
func (e *Executor) Run(ctx context.Context, j *Job) (*Benchmark, error) {
	command, err := j.ShellCommand()
	if err != nil {
		return nil, err
	}
	bench := &Benchmark{}
	if command == "" {
		return bench, nil
	}
	if err := makeParentDirs(j); err != nil {
		return nil, errors.Wrapf(err, "job %s", j.Key())
	}

	shell := e.Shell
	if shell == "" {
		shell = "/bin/bash"
	}
	cmd := exec.CommandContext(ctx, shell, "-euo", "pipefail", "-c", command)
	cmd.Env = append(os.Environ(), e.Env...)

	// The log sidecar captures both streams unless the command claims
	// {log} for itself, in which case the redirection is its business
	var logFile *os.File
	if j.LogPath != "" && !referencesLog(j.Rule.Shell) {
		logFile, err = os.Create(j.LogPath)
		if err != nil {
			return nil, errors.Wrapf(err, "job %s: log sidecar", j.Key())
		}
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	} else {
		cmd.Stdout = e.Stdout
		if cmd.Stdout == nil {
			cmd.Stdout = os.Stdout
		}
		cmd.Stderr = e.Stderr
		if cmd.Stderr == nil {
			cmd.Stderr = os.Stderr
		}
	}

	start := time.Now()
	runErr := cmd.Run()
	bench.Seconds = time.Since(start).Seconds()
	bench.MaxRSSMB, bench.CPUSeconds = collectRusage(cmd.ProcessState)
	if logFile != nil {
		logFile.Close()
	}

	if runErr != nil {
		bench.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			bench.ExitCode = exitErr.ExitCode()
		}
		removeIncomplete(j)
		if ctx.Err() != nil {
			return bench, errors.Wrapf(ctx.Err(), "job %s interrupted", j.Key())
		}
		if j.LogPath != "" {
			return bench, errors.Errorf("job %s failed (exit %d), see %s", j.Key(), bench.ExitCode, j.LogPath)
		}
		return bench, errors.Wrapf(runErr, "job %s failed (exit %d)", j.Key(), bench.ExitCode)
	}

	for _, out := range j.Output {
		if !FileExists(out) {
			removeIncomplete(j)
			return bench, errors.Errorf("job %s finished but did not create output %s", j.Key(), out)
		}
	}
	if j.BenchPath != "" {
		if err := bench.WriteFile(j.BenchPath); err != nil {
			return bench, errors.Wrapf(err, "job %s: benchmark sidecar", j.Key())
		}
	}
	return bench, nil
}

// referencesLog reports whether the shell template routes output into
// {log} on its own
func referencesLog(shell string) bool {
	_, err := renderTemplate(shell, func(tag string) (string, error) {
		if tag == "log" {
			return "", errFoundLog
		}
		return "", nil
	})
	return err != nil
}

var errFoundLog = errors.New("log referenced")

// makeParentDirs creates the directories of every declared output and
// sidecar before the command runs
func makeParentDirs(j *Job) error {
	dirs := make(map[string]bool)
	for _, out := range j.Output {
		dirs[filepath.Dir(out)] = true
	}
	if j.LogPath != "" {
		dirs[filepath.Dir(j.LogPath)] = true
	}
	if j.BenchPath != "" {
		dirs[filepath.Dir(j.BenchPath)] = true
	}
	for dir := range dirs {
		if dir == "." || dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// removeIncomplete deletes outputs left behind by a failed command so a
// rerun never trusts a half-written file. The log sidecar survives for
// debugging.
func removeIncomplete(j *Job) {
	for _, out := range j.Output {
		if FileExists(out) {
			log.Noticef("Removing incomplete output %s", out)
			os.Remove(out)
		}
	}
}
