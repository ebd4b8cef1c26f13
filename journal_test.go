/*
 *  journal_test.go
 *  genoflow
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package genoflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/genoflow/genoflow"
)

// runChainOnce executes the toy chain in dir once, journaled
func runChainOnce(t *testing.T, dir string, samples ...string) {
	t.Helper()
	wf := chainWorkflow(t, dir, samples...)
	var targets []string
	for _, s := range samples {
		targets = append(targets, dir+"/align/"+s+".txt")
	}
	plan := planTargets(t, wf, targets...)
	journal, err := genoflow.OpenJournal(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer journal.Close()
	r := &genoflow.Runner{Plan: plan, Executor: quietExecutor(), Journal: journal}
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestJournalRoundTrip(t *testing.T) {
	dir := t.TempDir()
	runChainOnce(t, dir, "S1")

	entries, err := genoflow.ReadJournal(genoflow.JournalPath(dir))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 6 {
		t.Fatalf("entries = %d, want header, 2 starts, 2 dones, trailer", len(entries))
	}
	if entries[0].Event != genoflow.EventRunStarted || entries[0].Workflow != "chain" {
		t.Errorf("header = %+v", entries[0])
	}
	if entries[0].RunID == "" {
		t.Error("entries must carry a run id")
	}
	for _, e := range entries[1:] {
		if e.RunID != entries[0].RunID {
			t.Errorf("entry %s has run id %s, want %s", e.Event, e.RunID, entries[0].RunID)
		}
	}
	last := entries[len(entries)-1]
	if last.Event != genoflow.EventRunFinished || last.Stats == nil || last.Stats.Done != 2 {
		t.Errorf("trailer = %+v", last)
	}

	var dones []string
	for _, e := range entries {
		if e.Event == genoflow.EventJobDone {
			dones = append(dones, e.Job)
		}
	}
	if len(dones) != 2 {
		t.Errorf("job_done events = %v", dones)
	}
}

func TestJournalLatestRun(t *testing.T) {
	dir := t.TempDir()
	runChainOnce(t, dir, "S1")

	// Invalidate one output so the second run has work, then run again
	writeAligned(t, dir, "S1", time.Hour, 2*time.Hour, 3*time.Hour)
	runChainOnce(t, dir, "S1")

	entries, err := genoflow.ReadJournal(genoflow.JournalPath(dir))
	if err != nil {
		t.Fatal(err)
	}
	run, err := genoflow.LatestRun(entries)
	if err != nil {
		t.Fatal(err)
	}
	if !run.Finished || run.Stats == nil || run.Stats.Done != 2 {
		t.Errorf("latest run = %+v", run)
	}

	var started []string
	for _, e := range entries {
		if e.Event == genoflow.EventRunStarted {
			started = append(started, e.RunID)
		}
	}
	if len(started) != 2 {
		t.Fatalf("runs recorded = %d", len(started))
	}
	if run.ID != started[1] {
		t.Errorf("latest run id = %s, want the second run %s", run.ID, started[1])
	}
	if run.ID == started[0] {
		t.Error("runs must get distinct ids")
	}
}

func TestJournalFailureRecorded(t *testing.T) {
	dir := t.TempDir()
	wf := &genoflow.Workflow{
		Name: "failing",
		Rules: []*genoflow.Rule{
			{Name: "bad", Output: []string{dir + "/bad.txt"}, Shell: "exit 7"},
		},
	}
	plan := planTargets(t, wf, dir+"/bad.txt")
	journal, err := genoflow.OpenJournal(dir)
	if err != nil {
		t.Fatal(err)
	}
	r := &genoflow.Runner{Plan: plan, Executor: quietExecutor(), Journal: journal}
	if _, err := r.Run(context.Background()); err == nil {
		t.Fatal("expected a failure")
	}
	journal.Close()

	entries, err := genoflow.ReadJournal(genoflow.JournalPath(dir))
	if err != nil {
		t.Fatal(err)
	}
	run, err := genoflow.LatestRun(entries)
	if err != nil {
		t.Fatal(err)
	}
	if !run.Finished || run.Error == "" {
		t.Errorf("run = %+v, the trailer must carry the failure", run)
	}
	var failed *genoflow.JournalEntry
	for i := range run.Entries {
		if run.Entries[i].Event == genoflow.EventJobFailed {
			failed = &run.Entries[i]
		}
	}
	if failed == nil {
		t.Fatal("no job_failed event recorded")
	}
	if failed.Job != "bad" || failed.ExitCode != 7 || failed.Error == "" {
		t.Errorf("failed entry = %+v", failed)
	}
}

func TestLatestRunEmptyJournal(t *testing.T) {
	if _, err := genoflow.LatestRun(nil); err == nil {
		t.Fatal("an empty journal records no runs")
	}
}
