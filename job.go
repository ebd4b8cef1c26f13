/*
 *  job.go
 *  genoflow
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package genoflow

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// JobState tracks one job through the run
type JobState int32

// Job states
const (
	JobWaiting JobState = iota
	JobRunning
	JobDone
	JobFailed
	JobSkipped
)

// String outputs the state in lowercase, as logged and journaled
func (s JobState) String() string {
	switch s {
	case JobWaiting:
		return "waiting"
	case JobRunning:
		return "running"
	case JobDone:
		return "done"
	case JobFailed:
		return "failed"
	case JobSkipped:
		return "skipped"
	}
	return "unknown"
}

// Job is one rule instantiated with concrete wildcard values: the unit
// the scheduler dispatches and the journal records
type Job struct {
	Rule      *Rule
	Wildcards Wildcards
	Input     []string
	Output    []string
	LogPath   string
	BenchPath string
	Reason    string
	Attempts  int

	id        int
	state     JobState
	heapIndex int
}

// NewJob instantiates a rule under one wildcard assignment, spelling out
// every pattern into a concrete path
func NewJob(r *Rule, wc Wildcards) (*Job, error) {
	j := &Job{Rule: r, Wildcards: wc}
	fill := func(label, text string) (string, error) {
		p, err := MakePattern(text)
		if err != nil {
			return "", errors.Wrapf(err, "rule %s: %s", r.Name, label)
		}
		path, err := p.Fill(wc)
		if err != nil {
			return "", errors.Wrapf(err, "rule %s: %s", r.Name, label)
		}
		return path, nil
	}
	for _, in := range r.Input {
		path, err := fill("input", in)
		if err != nil {
			return nil, err
		}
		j.Input = append(j.Input, path)
	}
	for _, out := range r.Output {
		path, err := fill("output", out)
		if err != nil {
			return nil, err
		}
		j.Output = append(j.Output, path)
	}
	if r.Log != "" {
		path, err := fill("log", r.Log)
		if err != nil {
			return nil, err
		}
		j.LogPath = path
	}
	if r.Benchmark != "" {
		path, err := fill("benchmark", r.Benchmark)
		if err != nil {
			return nil, err
		}
		j.BenchPath = path
	}
	return j, nil
}

// Key identifies the job within a run, e.g. "align_bwa[sample=S1]"
func (j *Job) Key() string {
	if len(j.Wildcards) == 0 {
		return j.Rule.Name
	}
	return fmt.Sprintf("%s[%s]", j.Rule.Name, j.Wildcards)
}

func (j *Job) String() string { return j.Key() }

// State returns the current lifecycle state
func (j *Job) State() JobState { return j.state }

// ShellCommand renders the rule's shell template against this job's
// paths, wildcards, params and resources. Every placeholder must
// resolve; a typo in a workflow definition surfaces here, before
// anything runs.
func (j *Job) ShellCommand() (string, error) {
	cmd, err := renderTemplate(j.Rule.Shell, j.resolvePlaceholder)
	if err != nil {
		return "", errors.Wrapf(err, "rule %s", j.Rule.Name)
	}
	return strings.TrimSpace(cmd), nil
}

func (j *Job) resolvePlaceholder(tag string) (string, error) {
	tag = strings.TrimSpace(tag)
	switch {
	case tag == "input":
		if len(j.Input) == 0 {
			return "", fmt.Errorf("{input} used but no inputs declared")
		}
		return strings.Join(j.Input, " "), nil
	case tag == "output":
		return strings.Join(j.Output, " "), nil
	case tag == "log":
		if j.LogPath == "" {
			return "", fmt.Errorf("{log} used but no log file declared")
		}
		return j.LogPath, nil
	case tag == "threads":
		return strconv.Itoa(j.Rule.Threads), nil
	case tag == "resources.mem_mb":
		return strconv.Itoa(j.Rule.Resources.MemMB), nil
	case tag == "resources.disk_mb":
		return strconv.Itoa(j.Rule.Resources.DiskMB), nil
	case strings.HasPrefix(tag, "input["):
		return indexedPath(j.Input, tag, "input")
	case strings.HasPrefix(tag, "output["):
		return indexedPath(j.Output, tag, "output")
	case strings.HasPrefix(tag, "params."):
		name := tag[len("params."):]
		value, ok := j.Rule.Params[name]
		if !ok {
			return "", fmt.Errorf("unknown param {%s}", tag)
		}
		return value, nil
	case strings.HasPrefix(tag, "wildcards."):
		name := tag[len("wildcards."):]
		value, ok := j.Wildcards[name]
		if !ok {
			return "", fmt.Errorf("unknown wildcard {%s}", tag)
		}
		return value, nil
	default:
		if value, ok := j.Wildcards[tag]; ok {
			return value, nil
		}
		return "", fmt.Errorf("unknown placeholder {%s}", tag)
	}
}

// indexedPath resolves {input[2]} style access
func indexedPath(list []string, tag, kind string) (string, error) {
	closing := strings.IndexByte(tag, ']')
	if closing != len(tag)-1 {
		return "", fmt.Errorf("malformed placeholder {%s}", tag)
	}
	idx, err := strconv.Atoi(tag[len(kind)+1 : closing])
	if err != nil {
		return "", fmt.Errorf("malformed placeholder {%s}", tag)
	}
	if idx < 0 || idx >= len(list) {
		return "", fmt.Errorf("{%s} out of range, rule declares %d %s files", tag, len(list), kind)
	}
	return list[idx], nil
}
