/*
 *  bsamap.go
 *  genoflow
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package pipelines

import (
	"fmt"

	"github.com/genoflow/genoflow"
)

func init() {
	register("bsamap", "Bulked segregant mapping: joint calling and windowed delta SNP-index", buildBsamap)
}

type bsamapParams struct {
	HighBulk     string `yaml:"high_bulk"` // sample name of the high phenotype pool
	LowBulk      string `yaml:"low_bulk"`
	WindowSize   int    `yaml:"window_size"`
	MinDepth     int    `yaml:"min_depth"`
	DeltaCutoff  string `yaml:"delta_cutoff"`
	AlignThreads int    `yaml:"align_threads"`
}

// buildBsamap locates trait associated regions from two phenotype
// pools. Every manifest sample is aligned, only the two bulks enter the
// joint call and the SNP-index scan.
func buildBsamap(cfg *genoflow.Config) (*genoflow.Workflow, error) {
	if err := requireGenome(cfg); err != nil {
		return nil, err
	}
	paired, err := requireUniformLayout(cfg)
	if err != nil {
		return nil, err
	}
	p := bsamapParams{WindowSize: 1000000, MinDepth: 10, DeltaCutoff: "0.3", AlignThreads: 4}
	if err := cfg.WorkflowParams("bsamap", &p); err != nil {
		return nil, err
	}
	if p.HighBulk == "" || p.LowBulk == "" {
		return nil, fmt.Errorf("workflow bsamap: set params.bsamap.high_bulk and low_bulk to manifest sample names")
	}
	for _, bulk := range []string{p.HighBulk, p.LowBulk} {
		if _, ok := cfg.Sample(bulk); !ok {
			return nil, fmt.Errorf("workflow bsamap: bulk %q is not in the sample manifest", bulk)
		}
	}
	if p.HighBulk == p.LowBulk {
		return nil, fmt.Errorf("workflow bsamap: the two bulks must be different samples")
	}
	if p.WindowSize < 1 {
		return nil, fmt.Errorf("workflow bsamap: window_size must be positive, got %d", p.WindowSize)
	}

	var rules []*genoflow.Rule
	rules = append(rules, stageFastqRules(cfg)...)
	rules = append(rules, trimRule(cfg, paired, 2))
	rules = append(rules, bwaIndexRule(cfg), faidxRule(cfg))
	rules = append(rules, alignBwaRule(cfg, paired, p.AlignThreads))
	rules = append(rules, markdupRule(cfg, sortedBam(cfg), false, 2))

	bulkBam := func(sample string) string {
		return genoflow.MustExpand(markdupBam(cfg), map[string][]string{"sample": {sample}})[0]
	}
	highBam := bulkBam(p.HighBulk)
	lowBam := bulkBam(p.LowBulk)

	vcf := cfg.ResultPath("bsa", "variants.vcf.gz")
	rules = append(rules, &genoflow.Rule{
		Name:      "call_bulks",
		Doc:       "Joint call over the two pools, AD carried for the index",
		Input:     []string{cfg.Genome, highBam, lowBam, highBam + ".bai", lowBam + ".bai"},
		Output:    []string{vcf, vcf + ".tbi"},
		Log:       cfg.LogPath("call_bulks.log"),
		Benchmark: cfg.BenchPath("call_bulks.tsv"),
		Threads:   2,
		Resources: genoflow.Resources{MemMB: 4096},
		Shell: "bcftools mpileup -Ou -f {input[0]} -a AD,DP {input[1]} {input[2]} 2> {log} " +
			"| bcftools call -mv -Oz -o {output[0]} 2>> {log} " +
			"&& bcftools index -t {output[0]}",
	})

	snpIndex := cfg.ResultPath("bsa", "snp_index.tsv")
	rules = append(rules, &genoflow.Rule{
		Name:   "snp_index",
		Doc:    "Windowed SNP-index per bulk and their difference",
		Input:  []string{vcf},
		Output: []string{snpIndex},
		Log:    cfg.LogPath("snp_index.log"),
		Params: map[string]string{
			"high":      p.HighBulk,
			"low":       p.LowBulk,
			"window":    itoa(p.WindowSize),
			"min_depth": itoa(p.MinDepth),
		},
		Shell: `bcftools query -s {params.high},{params.low} -f '%CHROM\t%POS[\t%AD]\n' {input[0]} 2> {log} ` +
			`| awk -v w={params.window} -v d={params.min_depth} 'BEGIN {{ OFS = "\t" }} ` +
			`{{ split($3, h, ","); split($4, l, ","); hd = h[1] + h[2]; ld = l[1] + l[2]; ` +
			`if (hd < d || ld < d) next; win = int($2 / w) * w; key = $1 OFS win; ` +
			`n[key]++; hi[key] += h[2] / hd; lo[key] += l[2] / ld }} ` +
			`END {{ for (k in n) print k, n[k], hi[k] / n[k], lo[k] / n[k], hi[k] / n[k] - lo[k] / n[k] }}' ` +
			`| sort -k1,1 -k2,2n > {output[0]}`,
	})

	candidates := cfg.ResultPath("bsa", "candidates.tsv")
	rules = append(rules, &genoflow.Rule{
		Name:   "candidate_regions",
		Doc:    "Windows whose delta SNP-index clears the cutoff",
		Input:  []string{snpIndex},
		Output: []string{candidates},
		Params: map[string]string{"cutoff": p.DeltaCutoff},
		Shell:  "awk -v c={params.cutoff} '$6 >= c || $6 <= -c' {input[0]} > {output[0]}",
	})

	rules = append(rules, &genoflow.Rule{
		Name:   "vcf_stats",
		Input:  []string{vcf},
		Output: []string{cfg.ResultPath("qc", "bcftools_stats.txt")},
		Shell:  "bcftools stats {input[0]} > {output[0]}",
	})

	qc := expandSamples(cfg, cfg.ResultPath("qc", "fastp", "{sample}.json"))
	qc = append(qc, expandSamples(cfg, cfg.ResultPath("qc", "markdup", "{sample}.txt"))...)
	qc = append(qc, cfg.ResultPath("qc", "bcftools_stats.txt"))
	rules = append(rules, multiqcRule(cfg, qc))

	return &genoflow.Workflow{
		Name:        "bsamap",
		Description: Describe("bsamap"),
		Rules:       rules,
		Targets: []string{
			snpIndex,
			candidates,
			cfg.ResultPath("report", "multiqc_report.html"),
		},
	}, nil
}
