/*
 *  atacseq.go
 *  genoflow
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package pipelines

import (
	"github.com/genoflow/genoflow"
)

func init() {
	register("atacseq", "Chromatin accessibility: bowtie2, macs2 peaks, coverage tracks", buildAtacseq)
}

type atacseqParams struct {
	GenomeSize   string `yaml:"genome_size"`
	MinMapQ      int    `yaml:"min_mapq"`
	Qvalue       string `yaml:"qvalue"`
	Shift        int    `yaml:"shift"`
	ExtSize      int    `yaml:"ext_size"`
	BinSize      int    `yaml:"bin_size"`
	AlignThreads int    `yaml:"align_threads"`
}

// bowtie2IndexSuffixes are the files `bowtie2-build` produces
var bowtie2IndexSuffixes = []string{
	".1.bt2", ".2.bt2", ".3.bt2", ".4.bt2", ".rev.1.bt2", ".rev.2.bt2",
}

// buildAtacseq lays out per-sample accessibility peak calling: strict
// alignment filtering, duplicate removal, macs2 peaks, normalized
// coverage tracks and a FRiP score per sample
func buildAtacseq(cfg *genoflow.Config) (*genoflow.Workflow, error) {
	if err := requireGenome(cfg); err != nil {
		return nil, err
	}
	paired, err := requireUniformLayout(cfg)
	if err != nil {
		return nil, err
	}
	p := atacseqParams{
		GenomeSize:   "hs",
		MinMapQ:      30,
		Qvalue:       "0.05",
		Shift:        -100,
		ExtSize:      200,
		BinSize:      10,
		AlignThreads: 4,
	}
	if err := cfg.WorkflowParams("atacseq", &p); err != nil {
		return nil, err
	}

	var rules []*genoflow.Rule
	rules = append(rules, stageFastqRules(cfg)...)
	rules = append(rules, trimRule(cfg, paired, 2))

	indexOutputs := make([]string, 0, len(bowtie2IndexSuffixes))
	for _, suffix := range bowtie2IndexSuffixes {
		indexOutputs = append(indexOutputs, cfg.Genome+suffix)
	}
	rules = append(rules, &genoflow.Rule{
		Name:      "bowtie2_index",
		Doc:       "Build the bowtie2 index of the reference",
		Input:     []string{cfg.Genome},
		Output:    indexOutputs,
		Log:       cfg.LogPath("bowtie2_index.log"),
		Threads:   2,
		Resources: genoflow.Resources{MemMB: 4096},
		Shell:     "bowtie2-build --threads {threads} {input[0]} {input[0]} 2> {log}",
	})

	align := &genoflow.Rule{
		Name:      "align_bowtie2",
		Doc:       "Map reads with bowtie2; the log keeps the alignment rate",
		Output:    []string{sortedBam(cfg)},
		Log:       cfg.LogPath("align_bowtie2", "{sample}.log"),
		Benchmark: cfg.BenchPath("align_bowtie2", "{sample}.tsv"),
		Threads:   p.AlignThreads,
		Resources: genoflow.Resources{MemMB: 8192},
		Params:    map[string]string{"index": cfg.Genome},
	}
	if paired {
		align.Input = []string{trimmedR1(cfg), trimmedR2(cfg), cfg.Genome + ".1.bt2"}
		align.Shell = "bowtie2 -p {threads} --very-sensitive -X 2000 -x {params.index} " +
			"-1 {input[0]} -2 {input[1]} 2> {log} " +
			"| samtools sort -@ {threads} -o {output[0]} -"
	} else {
		align.Input = []string{trimmedR1(cfg), cfg.Genome + ".1.bt2"}
		align.Shell = "bowtie2 -p {threads} --very-sensitive -x {params.index} " +
			"-U {input[0]} 2> {log} " +
			"| samtools sort -@ {threads} -o {output[0]} -"
	}
	rules = append(rules, align)

	filterFlags := "-F 1804"
	if paired {
		filterFlags = "-f 2 -F 1804"
	}
	rules = append(rules, &genoflow.Rule{
		Name:    "filter_alignments",
		Doc:     "Keep confident, properly placed reads",
		Input:   []string{sortedBam(cfg)},
		Output:  []string{cfg.ResultPath("align", "{sample}.filtered.bam")},
		Log:     cfg.LogPath("filter_alignments", "{sample}.log"),
		Threads: 2,
		Params:  map[string]string{"min_mapq": itoa(p.MinMapQ)},
		Shell: "samtools view -b -q {params.min_mapq} " + filterFlags +
			" -@ {threads} -o {output[0]} {input[0]} 2> {log}",
	})

	rules = append(rules, markdupRule(cfg, cfg.ResultPath("align", "{sample}.filtered.bam"), true, 2))

	macs := &genoflow.Rule{
		Name: "callpeak_macs2",
		Doc:  "Call accessible regions per sample",
		Input: []string{
			markdupBam(cfg),
		},
		Output: []string{
			cfg.ResultPath("peaks", "{sample}_peaks.narrowPeak"),
			cfg.ResultPath("peaks", "{sample}_peaks.xls"),
			cfg.ResultPath("peaks", "{sample}_summits.bed"),
		},
		Log:       cfg.LogPath("callpeak_macs2", "{sample}.log"),
		Benchmark: cfg.BenchPath("callpeak_macs2", "{sample}.tsv"),
		Threads:   1,
		Resources: genoflow.Resources{MemMB: 4096},
		Params: map[string]string{
			"gsize":   p.GenomeSize,
			"qvalue":  p.Qvalue,
			"peakdir": cfg.ResultPath("peaks"),
		},
	}
	if paired {
		macs.Shell = "macs2 callpeak -t {input[0]} -f BAMPE -g {params.gsize} " +
			"-n {sample} --outdir {params.peakdir} --nomodel " +
			"-q {params.qvalue} --keep-dup all 2> {log}"
	} else {
		macs.Shell = "macs2 callpeak -t {input[0]} -f BAM -g {params.gsize} " +
			"-n {sample} --outdir {params.peakdir} --nomodel " +
			"--shift {params.shift} --extsize {params.ext_size} " +
			"-q {params.qvalue} --keep-dup all 2> {log}"
		macs.Params["shift"] = itoa(p.Shift)
		macs.Params["ext_size"] = itoa(p.ExtSize)
	}
	rules = append(rules, macs)

	rules = append(rules, &genoflow.Rule{
		Name: "coverage_track",
		Doc:  "CPM normalized coverage for genome browsers",
		Input: []string{
			markdupBam(cfg),
			markdupBam(cfg) + ".bai",
		},
		Output:    []string{cfg.ResultPath("tracks", "{sample}.bw")},
		Log:       cfg.LogPath("coverage_track", "{sample}.log"),
		Benchmark: cfg.BenchPath("coverage_track", "{sample}.tsv"),
		Threads:   4,
		Resources: genoflow.Resources{MemMB: 4096},
		Params:    map[string]string{"bin_size": itoa(p.BinSize)},
		Shell: "bamCoverage -b {input[0]} -o {output[0]} -p {threads} " +
			"--normalizeUsing CPM --binSize {params.bin_size} 2> {log}",
	})

	rules = append(rules, &genoflow.Rule{
		Name: "frip",
		Doc:  "Fraction of reads in peaks, the key ATAC signal metric",
		Input: []string{
			markdupBam(cfg),
			cfg.ResultPath("peaks", "{sample}_peaks.narrowPeak"),
		},
		Output:  []string{cfg.ResultPath("qc", "frip", "{sample}.txt")},
		Threads: 1,
		Shell: `TOTAL=$(samtools view -c -F 260 {input[0]}); ` +
			`IN=$(bedtools intersect -a {input[0]} -b {input[1]} -u -ubam | samtools view -c); ` +
			`awk -v t="$TOTAL" -v i="$IN" 'BEGIN {{ printf "%s\t%.4f\n", "{sample}", (t ? i/t : 0) }}' > {output[0]}`,
	})

	qc := expandSamples(cfg, cfg.ResultPath("qc", "fastp", "{sample}.json"))
	qc = append(qc, expandSamples(cfg, cfg.ResultPath("qc", "markdup", "{sample}.txt"))...)
	qc = append(qc, expandSamples(cfg, cfg.ResultPath("peaks", "{sample}_peaks.xls"))...)
	qc = append(qc, expandSamples(cfg, cfg.ResultPath("qc", "frip", "{sample}.txt"))...)
	rules = append(rules, multiqcRule(cfg, qc))

	targets := expandSamples(cfg, cfg.ResultPath("peaks", "{sample}_peaks.narrowPeak"))
	targets = append(targets, expandSamples(cfg, cfg.ResultPath("tracks", "{sample}.bw"))...)
	targets = append(targets, cfg.ResultPath("report", "multiqc_report.html"))

	return &genoflow.Workflow{
		Name:        "atacseq",
		Description: Describe("atacseq"),
		Rules:       rules,
		Targets:     targets,
	}, nil
}
