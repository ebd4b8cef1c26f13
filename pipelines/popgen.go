/*
 *  popgen.go
 *  genoflow
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package pipelines

import (
	"regexp"
	"strings"

	"github.com/genoflow/genoflow"
)

func init() {
	register("popgen", "Population variant calling: fastp, bwa mem, bcftools over all samples", buildPopgen)
}

type popgenParams struct {
	MinQual      int `yaml:"min_qual"`
	MinDepth     int `yaml:"min_depth"`
	Ploidy       int `yaml:"ploidy"`
	AlignThreads int `yaml:"align_threads"`
}

// buildPopgen lays out joint variant calling across the whole cohort.
// Calling scatters over the reference contigs and gathers into a single
// filtered VCF, so the wide middle of the graph runs in parallel.
func buildPopgen(cfg *genoflow.Config) (*genoflow.Workflow, error) {
	if err := requireGenome(cfg); err != nil {
		return nil, err
	}
	paired, err := requireUniformLayout(cfg)
	if err != nil {
		return nil, err
	}
	p := popgenParams{MinQual: 30, MinDepth: 4, Ploidy: 2, AlignThreads: 4}
	if err := cfg.WorkflowParams("popgen", &p); err != nil {
		return nil, err
	}
	contigs, err := genoflow.ContigSizes(cfg.Genome)
	if err != nil {
		return nil, err
	}
	if len(contigs) > 1024 {
		log.Warningf("Reference has %d contigs, calling will scatter into as many jobs", len(contigs))
	}

	var names []string
	var quoted []string
	for _, c := range contigs {
		names = append(names, c.Name)
		quoted = append(quoted, regexp.QuoteMeta(c.Name))
	}
	contigPattern := cfg.ResultPath("calls", "contigs",
		"{contig,"+strings.Join(quoted, "|")+"}.bcf")

	bams := expandSamples(cfg, markdupBam(cfg))

	var rules []*genoflow.Rule
	rules = append(rules, stageFastqRules(cfg)...)
	rules = append(rules,
		trimRule(cfg, paired, 2),
		bwaIndexRule(cfg),
		faidxRule(cfg),
		alignBwaRule(cfg, paired, p.AlignThreads),
		markdupRule(cfg, sortedBam(cfg), false, 2),
	)

	mpileup := &genoflow.Rule{
		Name:      "call_mpileup",
		Doc:       "Joint genotype likelihoods and calls for one contig",
		Input:     append([]string{cfg.Genome, cfg.Genome + ".fai"}, bams...),
		Output:    []string{contigPattern},
		Log:       cfg.LogPath("call_mpileup", "{contig}.log"),
		Benchmark: cfg.BenchPath("call_mpileup", "{contig}.tsv"),
		Threads:   2,
		Resources: genoflow.Resources{MemMB: 2048},
		Params: map[string]string{
			"bams":   strings.Join(bams, " "),
			"ploidy": itoa(p.Ploidy),
		},
		Shell: "bcftools mpileup -Ou -f {input[0]} -r {wildcards.contig} -a AD,DP {params.bams} 2> {log} " +
			"| bcftools call -mv --ploidy {params.ploidy} -Ob -o {output[0]} 2>> {log}",
	}
	rules = append(rules, mpileup)

	contigCalls := genoflow.MustExpand(cfg.ResultPath("calls", "contigs", "{contig}.bcf"),
		map[string][]string{"contig": names})
	rules = append(rules, &genoflow.Rule{
		Name:      "concat_calls",
		Doc:       "Gather the per-contig calls in reference order",
		Input:     contigCalls,
		Output:    []string{cfg.ResultPath("calls", "all.raw.bcf")},
		Log:       cfg.LogPath("concat_calls.log"),
		Threads:   1,
		Resources: genoflow.Resources{MemMB: 1024},
		Shell:     "bcftools concat -Ob -o {output[0]} {input} 2> {log}",
	})

	rules = append(rules, &genoflow.Rule{
		Name:   "filter_calls",
		Doc:    "Drop low quality and shallow sites",
		Input:  []string{cfg.ResultPath("calls", "all.raw.bcf")},
		Output: []string{
			cfg.ResultPath("calls", "all.filtered.vcf.gz"),
			cfg.ResultPath("calls", "all.filtered.vcf.gz.tbi"),
		},
		Log:     cfg.LogPath("filter_calls.log"),
		Threads: 1,
		Params: map[string]string{
			"min_qual":  itoa(p.MinQual),
			"min_depth": itoa(p.MinDepth),
		},
		Shell: "bcftools view -e 'QUAL<{params.min_qual} || INFO/DP<{params.min_depth}' " +
			"-Oz -o {output[0]} {input[0]} 2> {log} " +
			"&& bcftools index -t {output[0]}",
	})

	rules = append(rules, &genoflow.Rule{
		Name:    "vcf_stats",
		Doc:     "Site and genotype statistics over the final call set",
		Input:   []string{cfg.ResultPath("calls", "all.filtered.vcf.gz")},
		Output:  []string{cfg.ResultPath("qc", "bcftools", "all.stats.txt")},
		Threads: 1,
		Shell:   "bcftools stats {input[0]} > {output[0]}",
	})

	qc := expandSamples(cfg, cfg.ResultPath("qc", "fastp", "{sample}.json"))
	qc = append(qc, expandSamples(cfg, cfg.ResultPath("qc", "markdup", "{sample}.txt"))...)
	qc = append(qc, cfg.ResultPath("qc", "bcftools", "all.stats.txt"))
	rules = append(rules, multiqcRule(cfg, qc))

	return &genoflow.Workflow{
		Name:        "popgen",
		Description: Describe("popgen"),
		Rules:       rules,
		Targets: []string{
			cfg.ResultPath("calls", "all.filtered.vcf.gz"),
			cfg.ResultPath("report", "multiqc_report.html"),
		},
	}, nil
}
