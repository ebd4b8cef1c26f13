/*
 *  schedule_test.go
 *  genoflow
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package genoflow_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/genoflow/genoflow"
)

func planTargets(t *testing.T, wf *genoflow.Workflow, targets ...string) *genoflow.Plan {
	t.Helper()
	plan, err := genoflow.BuildPlan(wf, genoflow.PlanOptions{Targets: targets})
	if err != nil {
		t.Fatal(err)
	}
	return plan
}

func TestRunnerChain(t *testing.T) {
	dir := t.TempDir()
	wf := chainWorkflow(t, dir, "S1", "S2")
	plan := planTargets(t, wf, dir+"/align/S1.txt", dir+"/align/S2.txt")

	r := &genoflow.Runner{Plan: plan, Executor: quietExecutor(), Cores: 2}
	stats, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Planned != 4 || stats.Done != 4 || stats.Failed != 0 || stats.Skipped != 0 {
		t.Errorf("stats = %+v", stats)
	}
	for _, s := range []string{"S1", "S2"} {
		data, err := os.ReadFile(filepath.Join(dir, "align", s+".txt"))
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != s+"\n" {
			t.Errorf("align/%s.txt = %q", s, data)
		}
	}

	// Everything fresh now, a second pass has nothing to do
	plan = planTargets(t, wf, dir+"/align/S1.txt", dir+"/align/S2.txt")
	stats, err = (&genoflow.Runner{Plan: plan, Executor: quietExecutor()}).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Planned != 0 || stats.Done != 0 {
		t.Errorf("second run stats = %+v", stats)
	}
}

func TestRunnerDryRun(t *testing.T) {
	dir := t.TempDir()
	wf := chainWorkflow(t, dir, "S1")
	plan := planTargets(t, wf, dir+"/align/S1.txt")

	r := &genoflow.Runner{Plan: plan, Executor: quietExecutor(), DryRun: true}
	stats, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Planned != 2 || stats.Done != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if genoflow.FileExists(dir + "/trim/S1.txt") {
		t.Error("dry run must not touch the filesystem")
	}
}

func TestRunnerFailFast(t *testing.T) {
	dir := t.TempDir()
	wf := &genoflow.Workflow{
		Name: "failing",
		Rules: []*genoflow.Rule{
			{Name: "bad", Output: []string{dir + "/bad.txt"}, Shell: "exit 1"},
			{Name: "down", Input: []string{dir + "/bad.txt"}, Output: []string{dir + "/down.txt"}, Shell: "cp {input} {output}"},
		},
	}
	plan := planTargets(t, wf, dir+"/down.txt")

	stats, err := (&genoflow.Runner{Plan: plan, Executor: quietExecutor()}).Run(context.Background())
	if err == nil {
		t.Fatal("expected the run to fail")
	}
	if !strings.Contains(err.Error(), "failed (exit 1)") {
		t.Errorf("error = %v", err)
	}
	if stats.Failed != 1 || stats.Done != 0 || stats.Skipped != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRunnerKeepGoing(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(dir+"/in.txt", []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	wf := &genoflow.Workflow{
		Name: "split",
		Rules: []*genoflow.Rule{
			{Name: "bad", Output: []string{dir + "/bad.txt"}, Shell: "exit 1"},
			{Name: "bad_down", Input: []string{dir + "/bad.txt"}, Output: []string{dir + "/bad_down.txt"}, Shell: "cp {input} {output}"},
			{Name: "good", Input: []string{dir + "/in.txt"}, Output: []string{dir + "/good.txt"}, Shell: "cp {input} {output}"},
		},
	}
	plan := planTargets(t, wf, dir+"/bad_down.txt", dir+"/good.txt")

	r := &genoflow.Runner{Plan: plan, Executor: quietExecutor(), KeepGoing: true}
	stats, err := r.Run(context.Background())
	if err == nil || err.Error() != "1 job(s) failed" {
		t.Fatalf("err = %v", err)
	}
	if stats.Done != 1 || stats.Failed != 1 || stats.Skipped != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if !genoflow.FileExists(dir + "/good.txt") {
		t.Error("the healthy branch must still finish")
	}
	if genoflow.FileExists(dir + "/bad_down.txt") {
		t.Error("descendants of a failure must not run")
	}
}

func TestRunnerRetries(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(dir+"/in.txt", []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	wf := &genoflow.Workflow{
		Name: "retrying",
		Rules: []*genoflow.Rule{
			{
				Name:    "flaky",
				Input:   []string{dir + "/in.txt"},
				Output:  []string{dir + "/out.txt"},
				Params:  map[string]string{"marker": dir + "/attempted"},
				Retries: 2,
				Shell:   "if [ -f {params.marker} ]; then cp {input} {output}; else touch {params.marker}; false; fi",
			},
		},
	}
	plan := planTargets(t, wf, dir+"/out.txt")
	jobs := plan.PendingJobs()
	if len(jobs) != 1 {
		t.Fatalf("pending = %d", len(jobs))
	}

	stats, err := (&genoflow.Runner{Plan: plan, Executor: quietExecutor()}).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Done != 1 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if jobs[0].Attempts != 2 {
		t.Errorf("attempts = %d, want success on the second try", jobs[0].Attempts)
	}
}

func TestRunnerPriorityOrder(t *testing.T) {
	dir := t.TempDir()
	seq := dir + "/order.txt"
	wf := &genoflow.Workflow{
		Name: "ordered",
		Rules: []*genoflow.Rule{
			{
				Name:     "lo",
				Output:   []string{dir + "/lo.txt"},
				Params:   map[string]string{"seq": seq},
				Shell:    "echo lo >> {params.seq} && touch {output}",
				Priority: 0,
			},
			{
				Name:     "hi",
				Output:   []string{dir + "/hi.txt"},
				Params:   map[string]string{"seq": seq},
				Shell:    "echo hi >> {params.seq} && touch {output}",
				Priority: 10,
			},
		},
	}
	plan := planTargets(t, wf, dir+"/lo.txt", dir+"/hi.txt")

	// One core serializes the two jobs, so dispatch order is visible
	if _, err := (&genoflow.Runner{Plan: plan, Executor: quietExecutor(), Cores: 1}).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(seq)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hi\nlo\n" {
		t.Errorf("order = %q, want the high priority rule first", data)
	}
}

func TestRunnerCancel(t *testing.T) {
	dir := t.TempDir()
	wf := &genoflow.Workflow{
		Name: "slow",
		Rules: []*genoflow.Rule{
			{Name: "sleep", Output: []string{dir + "/out.txt"}, Shell: "sleep 10 && touch {output}"},
		},
	}
	plan := planTargets(t, wf, dir+"/out.txt")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(100*time.Millisecond, cancel)
	stats, err := (&genoflow.Runner{Plan: plan, Executor: quietExecutor()}).Run(ctx)
	if err == nil {
		t.Fatal("a canceled run must report an error")
	}
	if stats.Skipped != 1 || stats.Done != 0 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if genoflow.FileExists(dir + "/out.txt") {
		t.Error("the interrupted job must not leave outputs")
	}
}

func TestRunnerJournal(t *testing.T) {
	dir := t.TempDir()
	wf := chainWorkflow(t, dir, "S1")
	plan := planTargets(t, wf, dir+"/align/S1.txt")

	journal, err := genoflow.OpenJournal(dir)
	if err != nil {
		t.Fatal(err)
	}
	r := &genoflow.Runner{Plan: plan, Executor: quietExecutor(), Journal: journal}
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := journal.Close(); err != nil {
		t.Fatal(err)
	}

	entries, err := genoflow.ReadJournal(genoflow.JournalPath(dir))
	if err != nil {
		t.Fatal(err)
	}
	run, err := genoflow.LatestRun(entries)
	if err != nil {
		t.Fatal(err)
	}
	if run.Workflow != "chain" || !run.Finished {
		t.Errorf("run = %+v", run)
	}
	if run.Stats == nil || run.Stats.Done != 2 {
		t.Errorf("stats = %+v", run.Stats)
	}
	if len(run.Entries) != 4 {
		t.Errorf("job events = %d, want a start and a finish per job", len(run.Entries))
	}
}
