/*
 *  metagen.go
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
	register("metagen", "Taxonomic profiling: kraken2, bracken abundance, krona chart", buildMetagen)
}

type metagenParams struct {
	DB            string `yaml:"db"`       // kraken2/bracken database directory
	ReadLen       int    `yaml:"read_len"` // must match the bracken build
	KrakenMemMB   int    `yaml:"kraken_mem_mb"`
	KrakenThreads int    `yaml:"kraken_threads"`
}

// buildMetagen classifies reads against a kraken2 database and
// re-estimates species abundance with bracken. No reference genome is
// involved so the genome setting is ignored.
func buildMetagen(cfg *genoflow.Config) (*genoflow.Workflow, error) {
	paired, err := requireUniformLayout(cfg)
	if err != nil {
		return nil, err
	}
	p := metagenParams{ReadLen: 150, KrakenMemMB: 65536, KrakenThreads: 8}
	if err := cfg.WorkflowParams("metagen", &p); err != nil {
		return nil, err
	}
	if p.DB == "" {
		return nil, fmt.Errorf("workflow metagen: set params.metagen.db to a kraken2 database directory")
	}

	var rules []*genoflow.Rule
	rules = append(rules, stageFastqRules(cfg)...)
	rules = append(rules, trimRule(cfg, paired, 2))

	krakenOut := cfg.ResultPath("meta", "kraken", "{sample}.out")
	krakenReport := cfg.ResultPath("meta", "kraken", "{sample}.report.txt")
	kraken := &genoflow.Rule{
		Name:      "classify_kraken2",
		Doc:       "Read level taxonomic assignment; the database is held in memory",
		Output:    []string{krakenOut, krakenReport},
		Log:       cfg.LogPath("classify_kraken2", "{sample}.log"),
		Benchmark: cfg.BenchPath("classify_kraken2", "{sample}.tsv"),
		Threads:   p.KrakenThreads,
		Resources: genoflow.Resources{MemMB: p.KrakenMemMB},
		Params:    map[string]string{"db": p.DB},
	}
	if paired {
		kraken.Input = []string{trimmedR1(cfg), trimmedR2(cfg)}
		kraken.Shell = "kraken2 --db {params.db} --threads {threads} --paired " +
			"--output {output[0]} --report {output[1]} {input[0]} {input[1]} 2> {log}"
	} else {
		kraken.Input = []string{trimmedR1(cfg)}
		kraken.Shell = "kraken2 --db {params.db} --threads {threads} " +
			"--output {output[0]} --report {output[1]} {input[0]} 2> {log}"
	}
	rules = append(rules, kraken)

	brackenOut := cfg.ResultPath("meta", "bracken", "{sample}.species.tsv")
	brackenReport := cfg.ResultPath("meta", "bracken", "{sample}.report.txt")
	rules = append(rules, &genoflow.Rule{
		Name:      "abundance_bracken",
		Doc:       "Bayesian re-estimation of species abundance from kraken counts",
		Input:     []string{krakenReport},
		Output:    []string{brackenOut, brackenReport},
		Log:       cfg.LogPath("abundance_bracken", "{sample}.log"),
		Resources: genoflow.Resources{MemMB: 2048},
		Params: map[string]string{
			"db":       p.DB,
			"read_len": itoa(p.ReadLen),
		},
		Shell: "bracken -d {params.db} -i {input[0]} -o {output[0]} -w {output[1]} " +
			"-r {params.read_len} -l S > {log} 2>&1",
	})

	combined := cfg.ResultPath("meta", "bracken", "combined.species.tsv")
	rules = append(rules, &genoflow.Rule{
		Name:   "combine_bracken",
		Input:  expandSamples(cfg, brackenOut),
		Output: []string{combined},
		Log:    cfg.LogPath("combine_bracken.log"),
		Shell:  "combine_bracken_outputs.py --files {input} -o {output[0]} 2> {log}",
	})

	labelled := make([]string, 0, len(cfg.Samples()))
	for _, s := range cfg.Samples() {
		out := cfg.ResultPath("meta", "kraken", s.Name+".out")
		labelled = append(labelled, out+","+s.Name)
	}
	krona := cfg.ResultPath("meta", "krona.html")
	rules = append(rules, &genoflow.Rule{
		Name:      "krona_chart",
		Doc:       "Interactive composition chart over all samples",
		Input:     expandSamples(cfg, krakenOut),
		Output:    []string{krona},
		Log:       cfg.LogPath("krona_chart.log"),
		Resources: genoflow.Resources{MemMB: 2048},
		Params:    map[string]string{"labelled": strings.Join(labelled, " ")},
		Shell:     "ktImportTaxonomy -q 2 -t 3 {params.labelled} -o {output[0]} 2> {log}",
	})

	qc := expandSamples(cfg, cfg.ResultPath("qc", "fastp", "{sample}.json"))
	qc = append(qc, expandSamples(cfg, krakenReport)...)
	rules = append(rules, multiqcRule(cfg, qc))

	return &genoflow.Workflow{
		Name:        "metagen",
		Description: Describe("metagen"),
		Rules:       rules,
		Targets: []string{
			combined,
			krona,
			cfg.ResultPath("report", "multiqc_report.html"),
		},
	}, nil
}
