/*
 *  dag_test.go
 *  genoflow
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package genoflow_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/genoflow/genoflow"
)

// chainWorkflow is a two step raw -> trim -> align toy pipeline rooted
// in dir, with one raw file per sample already on disk
func chainWorkflow(t *testing.T, dir string, samples ...string) *genoflow.Workflow {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, "raw"), 0755); err != nil {
		t.Fatal(err)
	}
	for _, s := range samples {
		raw := filepath.Join(dir, "raw", s+".txt")
		if err := os.WriteFile(raw, []byte(s+"\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return &genoflow.Workflow{
		Name: "chain",
		Rules: []*genoflow.Rule{
			{
				Name:   "trim",
				Input:  []string{dir + "/raw/{sample}.txt"},
				Output: []string{dir + "/trim/{sample}.txt"},
				Shell:  "cp {input} {output}",
			},
			{
				Name:   "align",
				Input:  []string{dir + "/trim/{sample}.txt"},
				Output: []string{dir + "/align/{sample}.txt"},
				Shell:  "cp {input} {output}",
			},
		},
	}
}

func writeAligned(t *testing.T, dir, sample string, rawAge, trimAge, alignAge time.Duration) {
	t.Helper()
	now := time.Now()
	for _, step := range []struct {
		sub string
		age time.Duration
	}{
		{"raw", rawAge}, {"trim", trimAge}, {"align", alignAge},
	} {
		p := filepath.Join(dir, step.sub, sample+".txt")
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(sample), 0644); err != nil {
			t.Fatal(err)
		}
		mtime := now.Add(-step.age)
		if err := os.Chtimes(p, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
}

func TestBuildPlanChain(t *testing.T) {
	dir := t.TempDir()
	wf := chainWorkflow(t, dir, "S1", "S2")

	plan, err := genoflow.BuildPlan(wf, genoflow.PlanOptions{
		Targets: []string{dir + "/align/S1.txt", dir + "/align/S2.txt"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Jobs) != 4 {
		t.Fatalf("planned %d jobs, want 4", len(plan.Jobs))
	}
	if plan.CountPending() != 4 {
		t.Errorf("pending = %d, want 4", plan.CountPending())
	}

	trim := plan.Job("trim[sample=S1]")
	align := plan.Job("align[sample=S1]")
	if trim == nil || align == nil {
		t.Fatal("expected trim and align jobs for S1")
	}
	pos := make(map[string]int, len(plan.Jobs))
	for i, j := range plan.Jobs {
		pos[j.Key()] = i
	}
	if pos["trim[sample=S1]"] > pos["align[sample=S1]"] {
		t.Error("trim must sort before align")
	}
	if !strings.Contains(align.Reason, "missing output") {
		t.Errorf("align reason = %q", align.Reason)
	}
	deps := plan.Deps(align)
	if len(deps) != 1 || deps[0] != trim {
		t.Errorf("align should depend on trim, got %v", deps)
	}
	cons := plan.Consumers(trim)
	if len(cons) != 1 || cons[0] != align {
		t.Errorf("trim should feed align, got %v", cons)
	}

	tallies := plan.Tally()
	if len(tallies) != 2 || tallies[0].Rule != "align" || tallies[0].Count != 2 {
		t.Errorf("tally = %+v", tallies)
	}
}

func TestBuildPlanUpToDate(t *testing.T) {
	dir := t.TempDir()
	wf := chainWorkflow(t, dir, "S1")
	writeAligned(t, dir, "S1", 3*time.Hour, 2*time.Hour, time.Hour)

	plan, err := genoflow.BuildPlan(wf, genoflow.PlanOptions{
		Targets: []string{dir + "/align/S1.txt"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !plan.UpToDate() {
		t.Errorf("everything is fresh, pending = %d", plan.CountPending())
	}
}

func TestBuildPlanStaleInput(t *testing.T) {
	dir := t.TempDir()
	wf := chainWorkflow(t, dir, "S1")
	// raw younger than trim: the trim job reruns and drags align along
	writeAligned(t, dir, "S1", time.Hour, 2*time.Hour, time.Minute)

	plan, err := genoflow.BuildPlan(wf, genoflow.PlanOptions{
		Targets: []string{dir + "/align/S1.txt"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if plan.CountPending() != 2 {
		t.Fatalf("pending = %d, want 2", plan.CountPending())
	}
	trim := plan.Job("trim[sample=S1]")
	if !strings.Contains(trim.Reason, "newer than") {
		t.Errorf("trim reason = %q", trim.Reason)
	}
	align := plan.Job("align[sample=S1]")
	if !strings.Contains(align.Reason, "upstream") {
		t.Errorf("align reason = %q", align.Reason)
	}
}

func TestBuildPlanMissingInput(t *testing.T) {
	dir := t.TempDir()
	wf := chainWorkflow(t, dir) // no raw files on disk

	_, err := genoflow.BuildPlan(wf, genoflow.PlanOptions{
		Targets: []string{dir + "/align/S1.txt"},
	})
	var miss *genoflow.MissingInputError
	if !errors.As(err, &miss) {
		t.Fatalf("expected MissingInputError, got %v", err)
	}
	if len(miss.Missing) != 1 || !strings.Contains(miss.Missing[0], "required by trim[sample=S1]") {
		t.Errorf("missing = %v", miss.Missing)
	}
}

func TestBuildPlanAmbiguousProducers(t *testing.T) {
	dir := t.TempDir()
	wf := &genoflow.Workflow{
		Name: "amb",
		Rules: []*genoflow.Rule{
			{Name: "a", Output: []string{dir + "/x/{s}.txt"}, Shell: "touch {output}"},
			{Name: "b", Output: []string{dir + "/x/{t}.txt"}, Shell: "touch {output}"},
		},
	}
	_, err := genoflow.BuildPlan(wf, genoflow.PlanOptions{Targets: []string{dir + "/x/S1.txt"}})
	if err == nil || !strings.Contains(err.Error(), "ambiguous") {
		t.Fatalf("expected ambiguity error, got %v", err)
	}

	wf.Rules[1].Priority = 5
	plan, err := genoflow.BuildPlan(wf, genoflow.PlanOptions{Targets: []string{dir + "/x/S1.txt"}})
	if err != nil {
		t.Fatal(err)
	}
	if plan.Job("b[t=S1]") == nil {
		t.Error("priority should pick rule b")
	}
}

func TestBuildPlanOutputClash(t *testing.T) {
	dir := t.TempDir()
	wf := &genoflow.Workflow{
		Name: "clash",
		Rules: []*genoflow.Rule{
			{Name: "a", Output: []string{dir + "/a.txt", dir + "/shared.txt"}, Shell: "touch {output}"},
			{Name: "b", Output: []string{dir + "/b.txt", dir + "/shared.txt"}, Priority: 1, Shell: "touch {output}"},
		},
	}
	_, err := genoflow.BuildPlan(wf, genoflow.PlanOptions{Targets: []string{dir + "/a.txt", dir + "/b.txt"}})
	if err == nil || !strings.Contains(err.Error(), "claimed by both") {
		t.Fatalf("expected output clash error, got %v", err)
	}
}

func TestBuildPlanForce(t *testing.T) {
	dir := t.TempDir()
	wf := chainWorkflow(t, dir, "S1")
	writeAligned(t, dir, "S1", 3*time.Hour, 2*time.Hour, time.Hour)
	target := dir + "/align/S1.txt"

	plan, err := genoflow.BuildPlan(wf, genoflow.PlanOptions{Targets: []string{target}, ForceAll: true})
	if err != nil {
		t.Fatal(err)
	}
	if plan.CountPending() != 2 {
		t.Errorf("forceall pending = %d, want 2", plan.CountPending())
	}

	plan, err = genoflow.BuildPlan(wf, genoflow.PlanOptions{Targets: []string{target}, ForceTargets: true})
	if err != nil {
		t.Fatal(err)
	}
	if plan.CountPending() != 1 {
		t.Errorf("forced target pending = %d, want 1", plan.CountPending())
	}
	if j := plan.Job("align[sample=S1]"); j.Reason != "forced target" {
		t.Errorf("reason = %q", j.Reason)
	}
}

func TestBuildPlanPhonyTarget(t *testing.T) {
	dir := t.TempDir()
	wf := chainWorkflow(t, dir, "S1", "S2")
	wf.Rules = append(wf.Rules, &genoflow.Rule{
		Name:  "all",
		Input: []string{dir + "/align/S1.txt", dir + "/align/S2.txt"},
	})

	plan, err := genoflow.BuildPlan(wf, genoflow.PlanOptions{Targets: []string{"all"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Jobs) != 4 {
		t.Errorf("planned %d jobs, want 4", len(plan.Jobs))
	}
}

func TestBuildPlanCycle(t *testing.T) {
	dir := t.TempDir()
	wf := &genoflow.Workflow{
		Name: "cyc",
		Rules: []*genoflow.Rule{
			{Name: "a", Input: []string{dir + "/b.txt"}, Output: []string{dir + "/a.txt"}, Shell: "true"},
			{Name: "b", Input: []string{dir + "/a.txt"}, Output: []string{dir + "/b.txt"}, Shell: "true"},
		},
	}
	_, err := genoflow.BuildPlan(wf, genoflow.PlanOptions{Targets: []string{dir + "/a.txt"}})
	if err == nil || !strings.Contains(err.Error(), "circular") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestResolveTargetRejectsWildcards(t *testing.T) {
	dir := t.TempDir()
	wf := chainWorkflow(t, dir, "S1")
	_, err := genoflow.BuildPlan(wf, genoflow.PlanOptions{Targets: []string{dir + "/align/{sample}.txt"}})
	if err == nil || !strings.Contains(err.Error(), "wildcards") {
		t.Fatalf("expected wildcard rejection, got %v", err)
	}
	_, err = genoflow.BuildPlan(wf, genoflow.PlanOptions{Targets: []string{"align"}})
	if err == nil || !strings.Contains(err.Error(), "cannot be targeted by name") {
		t.Fatalf("expected rule name rejection, got %v", err)
	}
}

func TestWriteDOT(t *testing.T) {
	dir := t.TempDir()
	wf := chainWorkflow(t, dir, "S1")
	plan, err := genoflow.BuildPlan(wf, genoflow.PlanOptions{Targets: []string{dir + "/align/S1.txt"}})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := plan.WriteDOT(&buf); err != nil {
		t.Fatal(err)
	}
	dot := buf.String()
	if !strings.Contains(dot, "align[sample=S1]") || !strings.Contains(dot, "->") {
		t.Errorf("dot output looks wrong:\n%s", dot)
	}
}
