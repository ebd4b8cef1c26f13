/*
 *  align.go
 *  genoflow
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package pipelines

import (
	"github.com/genoflow/genoflow"
)

// bwaIndexSuffixes are the files `bwa index` leaves next to the FASTA
var bwaIndexSuffixes = []string{".bwt", ".amb", ".ann", ".pac", ".sa"}

// bwaIndexRule indexes the reference once per project
func bwaIndexRule(cfg *genoflow.Config) *genoflow.Rule {
	outputs := make([]string, 0, len(bwaIndexSuffixes))
	for _, suffix := range bwaIndexSuffixes {
		outputs = append(outputs, cfg.Genome+suffix)
	}
	return &genoflow.Rule{
		Name:      "bwa_index",
		Doc:       "Build the BWA index of the reference",
		Input:     []string{cfg.Genome},
		Output:    outputs,
		Log:       cfg.LogPath("bwa_index.log"),
		Threads:   1,
		Resources: genoflow.Resources{MemMB: 4096},
		Shell:     "bwa index {input[0]} 2> {log}",
	}
}

// faidxRule builds the samtools FASTA index the callers depend on
func faidxRule(cfg *genoflow.Config) *genoflow.Rule {
	return &genoflow.Rule{
		Name:    "faidx",
		Doc:     "Index the reference for region lookups",
		Input:   []string{cfg.Genome},
		Output:  []string{cfg.Genome + ".fai"},
		Threads: 1,
		Shell:   "samtools faidx {input[0]}",
	}
}

// alignBwaRule maps trimmed reads with bwa mem and sorts the result.
// The read group carries the sample name so joint calling can tell the
// columns apart.
func alignBwaRule(cfg *genoflow.Config, paired bool, threads int) *genoflow.Rule {
	r := &genoflow.Rule{
		Name:      "align_bwa",
		Doc:       "Map reads to the reference with bwa mem",
		Output:    []string{cfg.ResultPath("align", "{sample}.sorted.bam")},
		Log:       cfg.LogPath("align_bwa", "{sample}.log"),
		Benchmark: cfg.BenchPath("align_bwa", "{sample}.tsv"),
		Threads:   threads,
		Resources: genoflow.Resources{MemMB: 8192},
	}
	rg := `-R '@RG\tID:{sample}\tSM:{sample}\tPL:ILLUMINA'`
	if paired {
		r.Input = []string{trimmedR1(cfg), trimmedR2(cfg), cfg.Genome, cfg.Genome + ".bwt"}
		r.Shell = "bwa mem -t {threads} " + rg + " {input[2]} {input[0]} {input[1]} 2> {log} " +
			"| samtools sort -@ {threads} -o {output[0]} -"
	} else {
		r.Input = []string{trimmedR1(cfg), cfg.Genome, cfg.Genome + ".bwt"}
		r.Shell = "bwa mem -t {threads} " + rg + " {input[1]} {input[0]} 2> {log} " +
			"| samtools sort -@ {threads} -o {output[0]} -"
	}
	return r
}

// sortedBam is the coordinate-sorted alignment pattern
func sortedBam(cfg *genoflow.Config) string {
	return cfg.ResultPath("align", "{sample}.sorted.bam")
}

// markdupRule marks (or drops) duplicates and indexes the result. The
// fixmate/markdup chain needs the name sort up front, so the whole
// round trip lives in one rule.
func markdupRule(cfg *genoflow.Config, inPattern string, remove bool, threads int) *genoflow.Rule {
	flag := ""
	if remove {
		flag = "-r "
	}
	return &genoflow.Rule{
		Name:  "markdup",
		Doc:   "Mark duplicate read pairs",
		Input: []string{inPattern},
		Output: []string{
			cfg.ResultPath("align", "{sample}.markdup.bam"),
			cfg.ResultPath("align", "{sample}.markdup.bam.bai"),
			cfg.ResultPath("qc", "markdup", "{sample}.txt"),
		},
		Log:       cfg.LogPath("markdup", "{sample}.log"),
		Benchmark: cfg.BenchPath("markdup", "{sample}.tsv"),
		Threads:   threads,
		Resources: genoflow.Resources{MemMB: 4096},
		Shell: "samtools sort -n -@ {threads} {input[0]} 2> {log} " +
			"| samtools fixmate -m - - 2>> {log} " +
			"| samtools sort -@ {threads} - 2>> {log} " +
			"| samtools markdup " + flag + "-@ {threads} -f {output[2]} - {output[0]} 2>> {log} " +
			"&& samtools index {output[0]}",
	}
}

// markdupBam is the duplicate-marked alignment pattern
func markdupBam(cfg *genoflow.Config) string {
	return cfg.ResultPath("align", "{sample}.markdup.bam")
}
