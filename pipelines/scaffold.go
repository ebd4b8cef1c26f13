/*
 *  scaffold.go
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
	register("scaffold", "Hi-C scaffolding: bwa mem -5SP, samblaster, allhic partition/optimize/build", buildScaffold)
}

type scaffoldParams struct {
	RE           string `yaml:"re"` // restriction site, comma separated for multiple enzymes
	K            int    `yaml:"k"`  // number of chromosome groups
	MinMapQ      int    `yaml:"min_mapq"`
	AllelesTable string `yaml:"alleles_table"` // enables allelic pruning when set
	AlignThreads int    `yaml:"align_threads"`
}

// buildScaffold orders and orients a draft assembly into K pseudo
// chromosomes from Hi-C libraries. The draft goes in as the genome, the
// scaffolded release comes out as hic/scaffolds.fasta plus its AGP.
func buildScaffold(cfg *genoflow.Config) (*genoflow.Workflow, error) {
	if err := requireGenome(cfg); err != nil {
		return nil, err
	}
	paired, err := requireUniformLayout(cfg)
	if err != nil {
		return nil, err
	}
	if !paired {
		return nil, fmt.Errorf("workflow scaffold needs paired-end Hi-C reads, manifest has single-end samples")
	}
	p := scaffoldParams{RE: "GATC", K: 8, MinMapQ: 30, AlignThreads: 4}
	if err := cfg.WorkflowParams("scaffold", &p); err != nil {
		return nil, err
	}
	if p.K < 1 {
		return nil, fmt.Errorf("workflow scaffold: k must be positive, got %d", p.K)
	}

	var rules []*genoflow.Rule
	rules = append(rules, stageFastqRules(cfg)...)
	rules = append(rules, trimRule(cfg, true, 2))
	rules = append(rules, bwaIndexRule(cfg), faidxRule(cfg))

	sampleBam := cfg.ResultPath("hic", "align", "{sample}.bam")
	rules = append(rules, &genoflow.Rule{
		Name:      "align_hic",
		Doc:       "Map Hi-C pairs; -5SP scores split reads the way proximity libraries need",
		Input:     []string{cfg.Genome, trimmedR1(cfg), trimmedR2(cfg), cfg.Genome + ".bwt"},
		Output:    []string{sampleBam},
		Log:       cfg.LogPath("align_hic", "{sample}.log"),
		Benchmark: cfg.BenchPath("align_hic", "{sample}.tsv"),
		Threads:   p.AlignThreads,
		Resources: genoflow.Resources{MemMB: 8192},
		Params:    map[string]string{"min_mapq": itoa(p.MinMapQ)},
		Shell: "bwa mem -5SP -t {threads} {input[0]} {input[1]} {input[2]} 2> {log} " +
			"| samblaster 2>> {log} " +
			"| samtools view -b -F 3340 -q {params.min_mapq} -o {output[0]} -",
	})

	rules = append(rules, &genoflow.Rule{
		Name:   "flagstat_hic",
		Input:  []string{sampleBam},
		Output: []string{cfg.ResultPath("qc", "flagstat", "{sample}.txt")},
		Shell:  "samtools flagstat {input[0]} > {output[0]}",
	})

	mergedBam := cfg.ResultPath("hic", "merged.bam")
	sampleBams := expandSamples(cfg, sampleBam)
	rules = append(rules, &genoflow.Rule{
		Name:      "merge_hic",
		Doc:       "Alignments are unsorted so concatenation is the correct merge",
		Input:     sampleBams,
		Output:    []string{mergedBam},
		Log:       cfg.LogPath("merge_hic.log"),
		Threads:   2,
		Resources: genoflow.Resources{MemMB: 2048},
		Shell:     "samtools cat -o {output[0]} {input} 2> {log}",
	})

	// allhic names its outputs after the bam prefix
	prefix := cfg.ResultPath("hic", "merged")
	countsFile := prefix + ".counts_" + strings.ReplaceAll(p.RE, ",", "_") + ".txt"
	pairsFile := prefix + ".pairs.txt"
	clmFile := prefix + ".clm"
	rules = append(rules, &genoflow.Rule{
		Name:      "extract_links",
		Doc:       "Tally Hi-C links and restriction sites per contig",
		Input:     []string{mergedBam, cfg.Genome, cfg.Genome + ".fai"},
		Output:    []string{countsFile, pairsFile, clmFile},
		Log:       cfg.LogPath("extract_links.log"),
		Benchmark: cfg.BenchPath("extract_links.tsv"),
		Resources: genoflow.Resources{MemMB: 8192},
		Params:    map[string]string{"re": p.RE},
		Shell:     "allhic extract {input[0]} {input[1]} --RE {params.re} 2> {log}",
	})

	partitionPairs := pairsFile
	if p.AllelesTable != "" {
		partitionPairs = prefix + ".pairs.prune.txt"
		rules = append(rules, &genoflow.Rule{
			Name:      "prune_links",
			Doc:       "Drop inter-allelic links before clustering",
			Input:     []string{p.AllelesTable, pairsFile},
			Output:    []string{partitionPairs},
			Log:       cfg.LogPath("prune_links.log"),
			Resources: genoflow.Resources{MemMB: 4096},
			Shell:     "allhic prune {input[0]} {input[1]} 2> {log}",
		})
	}

	groupCounts := make([]string, 0, p.K)
	groupIDs := make([]string, 0, p.K)
	for i := 1; i <= p.K; i++ {
		groupCounts = append(groupCounts, groupCountsFile(countsFile, p.K, i))
		groupIDs = append(groupIDs, itoa(i))
	}
	rules = append(rules, &genoflow.Rule{
		Name:      "partition_contigs",
		Doc:       "Cluster contigs into K chromosome groups",
		Input:     []string{countsFile, partitionPairs},
		Output:    groupCounts,
		Log:       cfg.LogPath("partition_contigs.log"),
		Benchmark: cfg.BenchPath("partition_contigs.tsv"),
		Resources: genoflow.Resources{MemMB: 8192},
		Params:    map[string]string{"k": itoa(p.K)},
		Shell:     "allhic partition {input[0]} {input[1]} {params.k} 2> {log}",
	})

	groupPattern := "{group," + strings.Join(groupIDs, "|") + "}"
	groupCountsPattern := fmt.Sprintf("%s.%dg%s.txt", genoflow.RemoveExt(countsFile), p.K, groupPattern)
	tourPattern := genoflow.RemoveExt(groupCountsPattern) + ".tour"
	rules = append(rules, &genoflow.Rule{
		Name:      "optimize_group",
		Doc:       "Order and orient the contigs of one group",
		Input:     []string{groupCountsPattern, clmFile},
		Output:    []string{tourPattern},
		Log:       cfg.LogPath("optimize_group", "g{group}.log"),
		Benchmark: cfg.BenchPath("optimize_group", "g{group}.tsv"),
		Resources: genoflow.Resources{MemMB: 8192},
		Retries:   1,
		Shell:     "allhic optimize {input[0]} {input[1]} 2> {log}",
	})

	tours := make([]string, 0, p.K)
	agps := make([]string, 0, p.K)
	for _, counts := range groupCounts {
		tours = append(tours, genoflow.RemoveExt(counts)+".tour")
		agps = append(agps, genoflow.RemoveExt(counts)+".agp")
	}
	scaffoldsFasta := cfg.ResultPath("hic", "scaffolds.fasta")
	rules = append(rules, &genoflow.Rule{
		Name:      "build_scaffolds",
		Doc:       "Stitch the tours into the chromosome level release",
		Input:     append(append([]string{}, tours...), cfg.Genome),
		Output:    append([]string{scaffoldsFasta}, agps...),
		Log:       cfg.LogPath("build_scaffolds.log"),
		Resources: genoflow.Resources{MemMB: 8192},
		Shell:     "allhic build {input} {output[0]} 2> {log}",
	})

	rules = append(rules, &genoflow.Rule{
		Name:   "collect_agp",
		Input:  agps,
		Output: []string{cfg.ResultPath("hic", "scaffolds.agp")},
		Shell:  "cat {input} > {output[0]}",
	})

	qc := expandSamples(cfg, cfg.ResultPath("qc", "fastp", "{sample}.json"))
	qc = append(qc, expandSamples(cfg, cfg.ResultPath("qc", "flagstat", "{sample}.txt"))...)
	rules = append(rules, multiqcRule(cfg, qc))

	return &genoflow.Workflow{
		Name:        "scaffold",
		Description: Describe("scaffold"),
		Rules:       rules,
		Targets: []string{
			scaffoldsFasta,
			cfg.ResultPath("hic", "scaffolds.agp"),
			cfg.ResultPath("report", "multiqc_report.html"),
		},
	}, nil
}

// groupCountsFile mirrors how `allhic partition` names the per group
// counts file, e.g. merged.counts_GATC.8g3.txt
func groupCountsFile(countsFile string, k, group int) string {
	return fmt.Sprintf("%s.%dg%d.txt", genoflow.RemoveExt(countsFile), k, group)
}
