/*
 *  pipelines.go
 *  genoflow
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

// Package pipelines holds the built-in workflow definitions. Each
// workflow lays out the rules for one kind of analysis, from raw reads
// to the final MultiQC report; the engine in the parent package decides
// what actually has to run.
package pipelines

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	logging "github.com/op/go-logging"

	"github.com/genoflow/genoflow"
)

var log = logging.MustGetLogger("genoflow")

// Builder constructs a workflow from the project configuration
type Builder func(*genoflow.Config) (*genoflow.Workflow, error)

// Entry describes one built-in workflow
type Entry struct {
	Name        string
	Description string
	Build       Builder
}

var registry = map[string]Entry{}

func register(name, description string, build Builder) {
	registry[name] = Entry{Name: name, Description: description, Build: build}
}

// Names lists the built-in workflows sorted by name
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get looks a workflow up by name
func Get(name string) (Entry, error) {
	e, ok := registry[name]
	if !ok {
		return Entry{}, fmt.Errorf("unknown workflow %q, available: %s",
			name, strings.Join(Names(), ", "))
	}
	return e, nil
}

// Describe returns the description of a workflow, empty when unknown
func Describe(name string) string {
	return registry[name].Description
}

// Build constructs and validates the workflow the configuration selects
func Build(cfg *genoflow.Config) (*genoflow.Workflow, error) {
	e, err := Get(cfg.Workflow)
	if err != nil {
		return nil, err
	}
	wf, err := e.Build(cfg)
	if err != nil {
		return nil, err
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return wf, nil
}

// itoa keeps the params maps readable
func itoa(v int) string { return strconv.Itoa(v) }

// ruleName turns an arbitrary sample name into a rule name suffix.
// Collisions surface as duplicate rule names during validation.
func ruleName(parts ...string) string {
	name := strings.Join(parts, "_")
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if mapped == "" || (mapped[0] >= '0' && mapped[0] <= '9') {
		mapped = "x" + mapped
	}
	return mapped
}

// requireGenome rejects configurations that select a reference-based
// workflow without naming a reference
func requireGenome(cfg *genoflow.Config) error {
	if cfg.Genome == "" {
		return fmt.Errorf("workflow %s needs a genome in the configuration", cfg.Workflow)
	}
	return nil
}

// requireUniformLayout rejects manifests that mix paired and single-end
// samples; the aligner invocations differ too much to mix them in one
// rule set
func requireUniformLayout(cfg *genoflow.Config) (paired bool, err error) {
	samples := cfg.Samples()
	if len(samples) == 0 {
		return false, fmt.Errorf("workflow %s needs samples, check the sample sheet", cfg.Workflow)
	}
	paired = samples[0].Paired()
	for _, s := range samples[1:] {
		if s.Paired() != paired {
			return false, fmt.Errorf("workflow %s needs uniformly paired or single-end samples, %s differs",
				cfg.Workflow, s.Name)
		}
	}
	return paired, nil
}

// stageFastqRules links each sample's read files from wherever the
// manifest points into raw/<sample>_R1.fastq.gz under the output
// directory. Everything downstream then addresses reads through the
// {sample} wildcard instead of manifest paths.
func stageFastqRules(cfg *genoflow.Config) []*genoflow.Rule {
	var rules []*genoflow.Rule
	for _, s := range cfg.Samples() {
		r := &genoflow.Rule{
			Name:   ruleName("stage", s.Name),
			Input:  []string{s.Fastq1},
			Output: []string{cfg.ResultPath("raw", s.Name+"_R1.fastq.gz")},
			Shell:  "ln -sf $(readlink -f {input[0]}) {output[0]}",
		}
		if s.Paired() {
			r.Input = append(r.Input, s.Fastq2)
			r.Output = append(r.Output, cfg.ResultPath("raw", s.Name+"_R2.fastq.gz"))
			r.Shell += " && ln -sf $(readlink -f {input[1]}) {output[1]}"
		}
		rules = append(rules, r)
	}
	return rules
}

// rawR1 and rawR2 are the staged read patterns the stage rules produce
func rawR1(cfg *genoflow.Config) string { return cfg.ResultPath("raw", "{sample}_R1.fastq.gz") }
func rawR2(cfg *genoflow.Config) string { return cfg.ResultPath("raw", "{sample}_R2.fastq.gz") }

// trimRule runs fastp over the staged reads, producing trimmed FASTQs
// plus the QC reports MultiQC picks up
func trimRule(cfg *genoflow.Config, paired bool, threads int) *genoflow.Rule {
	r := &genoflow.Rule{
		Name:      "trim_fastp",
		Doc:       "Adapter and quality trimming with fastp",
		Threads:   threads,
		Resources: genoflow.Resources{MemMB: 2048},
		Log:       cfg.LogPath("trim_fastp", "{sample}.log"),
		Benchmark: cfg.BenchPath("trim_fastp", "{sample}.tsv"),
	}
	if paired {
		r.Input = []string{rawR1(cfg), rawR2(cfg)}
		r.Output = []string{
			cfg.ResultPath("trim", "{sample}_R1.fastq.gz"),
			cfg.ResultPath("trim", "{sample}_R2.fastq.gz"),
			cfg.ResultPath("qc", "fastp", "{sample}.json"),
			cfg.ResultPath("qc", "fastp", "{sample}.html"),
		}
		r.Shell = "fastp --in1 {input[0]} --in2 {input[1]} " +
			"--out1 {output[0]} --out2 {output[1]} " +
			"--json {output[2]} --html {output[3]} " +
			"--thread {threads} --detect_adapter_for_pe 2> {log}"
	} else {
		r.Input = []string{rawR1(cfg)}
		r.Output = []string{
			cfg.ResultPath("trim", "{sample}_R1.fastq.gz"),
			cfg.ResultPath("qc", "fastp", "{sample}.json"),
			cfg.ResultPath("qc", "fastp", "{sample}.html"),
		}
		r.Shell = "fastp --in1 {input[0]} --out1 {output[0]} " +
			"--json {output[1]} --html {output[2]} " +
			"--thread {threads} 2> {log}"
	}
	return r
}

// trimmedR1 and trimmedR2 are the trimmed read patterns
func trimmedR1(cfg *genoflow.Config) string { return cfg.ResultPath("trim", "{sample}_R1.fastq.gz") }
func trimmedR2(cfg *genoflow.Config) string { return cfg.ResultPath("trim", "{sample}_R2.fastq.gz") }

// multiqcRule aggregates every listed QC artifact into one HTML report.
// The inputs pin the ordering; MultiQC itself rescans the directories.
func multiqcRule(cfg *genoflow.Config, inputs []string) *genoflow.Rule {
	return &genoflow.Rule{
		Name:      "multiqc",
		Doc:       "Aggregate QC metrics across samples",
		Input:     inputs,
		Output:    []string{cfg.ResultPath("report", "multiqc_report.html")},
		Log:       cfg.LogPath("multiqc.log"),
		Threads:   1,
		Priority:  -10,
		Resources: genoflow.Resources{MemMB: 2048},
		Shell: "multiqc --force --no-data-dir -n $(basename {output[0]}) " +
			"-o $(dirname {output[0]}) " + cfg.OutDir + " 2> {log}",
	}
}

// expandSamples substitutes every sample name into a pattern
func expandSamples(cfg *genoflow.Config, pattern string) []string {
	return genoflow.MustExpand(pattern, map[string][]string{
		"sample": cfg.SampleNames(),
	})
}
