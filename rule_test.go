/*
 *  rule_test.go
 *  genoflow
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package genoflow_test

import (
	"strings"
	"testing"

	"github.com/genoflow/genoflow"
)

func TestRuleValidate(t *testing.T) {
	r := &genoflow.Rule{
		Name:   "align",
		Input:  []string{"trim/{sample}.fastq.gz"},
		Output: []string{"align/{sample}.bam"},
		Log:    "logs/align/{sample}.log",
		Shell:  "bwa mem {input} > {output}",
	}
	if err := r.Validate(); err != nil {
		t.Fatal(err)
	}
	if r.Threads != 1 {
		t.Errorf("threads normalized to %d, want 1", r.Threads)
	}
}

func TestRuleValidateRejects(t *testing.T) {
	cases := []struct {
		name string
		rule genoflow.Rule
	}{
		{"bad name", genoflow.Rule{Name: "no spaces"}},
		{"shell without outputs", genoflow.Rule{Name: "x", Shell: "true"}},
		{"outputs without shell", genoflow.Rule{Name: "x", Output: []string{"a.txt"}}},
		{"undetermined input wildcard", genoflow.Rule{
			Name:   "x",
			Input:  []string{"in/{sample}_{lane}.fq"},
			Output: []string{"out/{sample}.bam"},
			Shell:  "true",
		}},
		{"outputs disagree on wildcards", genoflow.Rule{
			Name:   "x",
			Output: []string{"out/{sample}.bam", "out/{lane}.bai"},
			Shell:  "true",
		}},
		{"undetermined log wildcard", genoflow.Rule{
			Name:   "x",
			Output: []string{"out/{sample}.bam"},
			Log:    "logs/{lane}.log",
			Shell:  "true",
		}},
		{"negative retries", genoflow.Rule{
			Name:    "x",
			Output:  []string{"out.txt"},
			Shell:   "true",
			Retries: -1,
		}},
	}
	for _, c := range cases {
		if err := c.rule.Validate(); err == nil {
			t.Errorf("%s: expected a validation error", c.name)
		}
	}
}

func TestWorkflowValidate(t *testing.T) {
	wf := &genoflow.Workflow{
		Name: "demo",
		Rules: []*genoflow.Rule{
			{Name: "a", Output: []string{"a.txt"}, Shell: "touch {output}"},
			{Name: "b", Input: []string{"a.txt"}, Output: []string{"b.txt"}, Shell: "cp {input} {output}"},
		},
	}
	if err := wf.Validate(); err != nil {
		t.Fatal(err)
	}

	dup := &genoflow.Workflow{
		Name: "demo",
		Rules: []*genoflow.Rule{
			{Name: "a", Output: []string{"x.txt"}, Shell: "true"},
			{Name: "b", Output: []string{"x.txt"}, Shell: "true"},
		},
	}
	if err := dup.Validate(); err == nil {
		t.Error("two rules claiming one output must not validate")
	}

	same := &genoflow.Workflow{
		Name: "demo",
		Rules: []*genoflow.Rule{
			{Name: "a", Output: []string{"x.txt"}, Shell: "true"},
			{Name: "a", Output: []string{"y.txt"}, Shell: "true"},
		},
	}
	if err := same.Validate(); err == nil {
		t.Error("duplicate rule names must not validate")
	}
}

func TestShellCommand(t *testing.T) {
	r := &genoflow.Rule{
		Name:      "call",
		Input:     []string{"ref.fa", "align/{sample}.bam"},
		Output:    []string{"calls/{sample}.vcf.gz", "calls/{sample}.vcf.gz.tbi"},
		Log:       "logs/call/{sample}.log",
		Threads:   4,
		Resources: genoflow.Resources{MemMB: 2048},
		Params:    map[string]string{"ploidy": "2"},
		Shell: "bcftools mpileup -f {input[0]} --threads {threads} -m {resources.mem_mb}M " +
			"--ploidy {params.ploidy} --sample {wildcards.sample} {input[1]} " +
			"-o {output[0]} 2> {log}",
	}
	if err := r.Validate(); err != nil {
		t.Fatal(err)
	}
	j, err := genoflow.NewJob(r, genoflow.Wildcards{"sample": "S1"})
	if err != nil {
		t.Fatal(err)
	}
	cmd, err := j.ShellCommand()
	if err != nil {
		t.Fatal(err)
	}
	want := "bcftools mpileup -f ref.fa --threads 4 -m 2048M " +
		"--ploidy 2 --sample S1 align/S1.bam " +
		"-o calls/S1.vcf.gz 2> logs/call/S1.log"
	if cmd != want {
		t.Errorf("command = %q\nwant      %q", cmd, want)
	}
	if j.Key() != "call[sample=S1]" {
		t.Errorf("key = %q", j.Key())
	}
}

func TestShellCommandEscapedBraces(t *testing.T) {
	r := &genoflow.Rule{
		Name:   "tally",
		Input:  []string{"in/{sample}.txt"},
		Output: []string{"out/{sample}.txt"},
		Shell:  `awk 'BEGIN {{ OFS = "\t" }} {{ n++ }} END {{ print "{sample}", n }}' {input} > {output}`,
	}
	j, err := genoflow.NewJob(r, genoflow.Wildcards{"sample": "S1"})
	if err != nil {
		t.Fatal(err)
	}
	cmd, err := j.ShellCommand()
	if err != nil {
		t.Fatal(err)
	}
	want := `awk 'BEGIN { OFS = "\t" } { n++ } END { print "S1", n }' in/S1.txt > out/S1.txt`
	if cmd != want {
		t.Errorf("command = %q\nwant      %q", cmd, want)
	}
}

func TestShellCommandUnknownPlaceholder(t *testing.T) {
	r := &genoflow.Rule{
		Name:   "x",
		Output: []string{"out.txt"},
		Shell:  "echo {params.missing} > {output}",
	}
	j, err := genoflow.NewJob(r, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := j.ShellCommand(); err == nil {
		t.Fatal("unknown param should fail the render")
	} else if !strings.Contains(err.Error(), "params.missing") {
		t.Errorf("error should name the placeholder, got %v", err)
	}
}

func TestShellCommandIndexOutOfRange(t *testing.T) {
	r := &genoflow.Rule{
		Name:   "x",
		Input:  []string{"only.txt"},
		Output: []string{"out.txt"},
		Shell:  "cp {input[1]} {output}",
	}
	j, err := genoflow.NewJob(r, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := j.ShellCommand(); err == nil {
		t.Fatal("out of range index should fail the render")
	}
}
