/*
 *  rnaseq.go
 *  genoflow
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package pipelines

import (
	"fmt"
	"strings"

	"github.com/genoflow/genoflow"
)

func init() {
	register("rnaseq", "Expression profiling: hisat2, stringtie assembly, featureCounts matrix", buildRnaseq)
}

type rnaseqParams struct {
	Stranded     string `yaml:"stranded"` // none, rf or fr
	AlignThreads int    `yaml:"align_threads"`
}

// hisat2IndexSuffixes are the files `hisat2-build` produces
var hisat2IndexSuffixes = []string{
	".1.ht2", ".2.ht2", ".3.ht2", ".4.ht2",
	".5.ht2", ".6.ht2", ".7.ht2", ".8.ht2",
}

// buildRnaseq lays out spliced alignment, per-sample transcript
// assembly, a merged annotation compared against the reference one, and
// a gene level count matrix over the whole cohort
func buildRnaseq(cfg *genoflow.Config) (*genoflow.Workflow, error) {
	if err := requireGenome(cfg); err != nil {
		return nil, err
	}
	if cfg.Annotation == "" {
		return nil, fmt.Errorf("workflow rnaseq needs an annotation (GTF) in the configuration")
	}
	paired, err := requireUniformLayout(cfg)
	if err != nil {
		return nil, err
	}
	p := rnaseqParams{Stranded: "none", AlignThreads: 4}
	if err := cfg.WorkflowParams("rnaseq", &p); err != nil {
		return nil, err
	}
	strandFlag := map[string]string{"none": "", "rf": "--rna-strandness RF ", "fr": "--rna-strandness FR "}
	hisatStrand, ok := strandFlag[p.Stranded]
	if !ok {
		return nil, fmt.Errorf("workflow rnaseq: stranded must be none, rf or fr, got %q", p.Stranded)
	}
	fcStrand := map[string]string{"none": "0", "rf": "2", "fr": "1"}[p.Stranded]

	var rules []*genoflow.Rule
	rules = append(rules, stageFastqRules(cfg)...)
	rules = append(rules, trimRule(cfg, paired, 2))

	indexOutputs := make([]string, 0, len(hisat2IndexSuffixes))
	for _, suffix := range hisat2IndexSuffixes {
		indexOutputs = append(indexOutputs, cfg.Genome+suffix)
	}
	rules = append(rules, &genoflow.Rule{
		Name:      "hisat2_index",
		Doc:       "Build the hisat2 index of the reference",
		Input:     []string{cfg.Genome},
		Output:    indexOutputs,
		Log:       cfg.LogPath("hisat2_index.log"),
		Threads:   4,
		Resources: genoflow.Resources{MemMB: 8192},
		Shell:     "hisat2-build -p {threads} {input[0]} {input[0]} 2> {log}",
	})

	align := &genoflow.Rule{
		Name:      "align_hisat2",
		Doc:       "Spliced alignment; --dta keeps the assembler happy",
		Output:    []string{sortedBam(cfg)},
		Log:       cfg.LogPath("align_hisat2", "{sample}.log"),
		Benchmark: cfg.BenchPath("align_hisat2", "{sample}.tsv"),
		Threads:   p.AlignThreads,
		Resources: genoflow.Resources{MemMB: 8192},
		Params:    map[string]string{"index": cfg.Genome},
	}
	if paired {
		align.Input = []string{trimmedR1(cfg), trimmedR2(cfg), cfg.Genome + ".1.ht2"}
		align.Shell = "hisat2 -p {threads} --dta " + hisatStrand + "-x {params.index} " +
			"-1 {input[0]} -2 {input[1]} 2> {log} " +
			"| samtools sort -@ {threads} -o {output[0]} -"
	} else {
		align.Input = []string{trimmedR1(cfg), cfg.Genome + ".1.ht2"}
		align.Shell = "hisat2 -p {threads} --dta " + hisatStrand + "-x {params.index} " +
			"-U {input[0]} 2> {log} " +
			"| samtools sort -@ {threads} -o {output[0]} -"
	}
	rules = append(rules, align)

	rules = append(rules, &genoflow.Rule{
		Name:      "assemble_stringtie",
		Doc:       "Assemble transcripts per sample guided by the annotation",
		Input:     []string{sortedBam(cfg), cfg.Annotation},
		Output:    []string{cfg.ResultPath("asm", "{sample}.gtf")},
		Log:       cfg.LogPath("assemble_stringtie", "{sample}.log"),
		Benchmark: cfg.BenchPath("assemble_stringtie", "{sample}.tsv"),
		Threads:   4,
		Resources: genoflow.Resources{MemMB: 4096},
		Shell:     "stringtie {input[0]} -G {input[1]} -p {threads} -o {output[0]} 2> {log}",
	})

	sampleGtfs := expandSamples(cfg, cfg.ResultPath("asm", "{sample}.gtf"))
	rules = append(rules, &genoflow.Rule{
		Name:      "merge_stringtie",
		Doc:       "Merge the per-sample assemblies into one annotation",
		Input:     append([]string{cfg.Annotation}, sampleGtfs...),
		Output:    []string{cfg.ResultPath("asm", "merged.gtf")},
		Log:       cfg.LogPath("merge_stringtie.log"),
		Threads:   2,
		Resources: genoflow.Resources{MemMB: 4096},
		Params:    map[string]string{"gtfs": strings.Join(sampleGtfs, " ")},
		Shell:     "stringtie --merge -G {input[0]} -p {threads} -o {output[0]} {params.gtfs} 2> {log}",
	})

	rules = append(rules, &genoflow.Rule{
		Name:  "compare_gffcompare",
		Doc:   "Classify assembled transcripts against the reference",
		Input: []string{cfg.ResultPath("asm", "merged.gtf"), cfg.Annotation},
		Output: []string{
			cfg.ResultPath("asm", "gffcmp.annotated.gtf"),
			cfg.ResultPath("asm", "gffcmp.stats"),
		},
		Log:     cfg.LogPath("compare_gffcompare.log"),
		Threads: 1,
		Params:  map[string]string{"prefix": cfg.ResultPath("asm", "gffcmp")},
		Shell:   "gffcompare -r {input[1]} -o {params.prefix} {input[0]} 2> {log}",
	})

	bams := expandSamples(cfg, sortedBam(cfg))
	counts := &genoflow.Rule{
		Name:  "count_features",
		Doc:   "Gene level count matrix over all samples",
		Input: append([]string{cfg.Annotation}, bams...),
		Output: []string{
			cfg.ResultPath("counts", "gene_counts.tsv"),
			cfg.ResultPath("counts", "gene_counts.tsv.summary"),
		},
		Log:       cfg.LogPath("count_features.log"),
		Benchmark: cfg.BenchPath("count_features.tsv"),
		Threads:   4,
		Resources: genoflow.Resources{MemMB: 4096},
		Params: map[string]string{
			"bams":   strings.Join(bams, " "),
			"strand": fcStrand,
		},
	}
	pairedFlag := ""
	if paired {
		pairedFlag = "-p --countReadPairs "
	}
	counts.Shell = "featureCounts -T {threads} " + pairedFlag +
		"-s {params.strand} -a {input[0]} -o {output[0]} {params.bams} 2> {log}"
	rules = append(rules, counts)

	qc := expandSamples(cfg, cfg.ResultPath("qc", "fastp", "{sample}.json"))
	qc = append(qc,
		cfg.ResultPath("asm", "gffcmp.stats"),
		cfg.ResultPath("counts", "gene_counts.tsv.summary"),
	)
	rules = append(rules, multiqcRule(cfg, qc))

	return &genoflow.Workflow{
		Name:        "rnaseq",
		Description: Describe("rnaseq"),
		Rules:       rules,
		Targets: []string{
			cfg.ResultPath("counts", "gene_counts.tsv"),
			cfg.ResultPath("asm", "merged.gtf"),
			cfg.ResultPath("report", "multiqc_report.html"),
		},
	}, nil
}
