/*
 *  annotate.go
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
	register("annotate", "Functional annotation: TransDecoder ORFs, diamond vs UniProt, Pfam domains", buildAnnotate)
}

type annotateParams struct {
	UniprotFasta  string `yaml:"uniprot_fasta"`
	PfamHMM       string `yaml:"pfam_hmm"`
	Evalue        string `yaml:"evalue"`
	SearchThreads int    `yaml:"search_threads"`
}

// hmmpressSuffixes are the binary files `hmmpress` adds next to a
// profile database
var hmmpressSuffixes = []string{".h3f", ".h3i", ".h3m", ".h3p"}

// buildAnnotate attaches protein level function to a structural
// annotation. No sample manifest is involved, the unit of work is the
// genome plus its gene models.
func buildAnnotate(cfg *genoflow.Config) (*genoflow.Workflow, error) {
	if err := requireGenome(cfg); err != nil {
		return nil, err
	}
	if cfg.Annotation == "" {
		return nil, fmt.Errorf("workflow annotate needs an annotation (GFF/GTF) in the configuration")
	}
	p := annotateParams{Evalue: "1e-5", SearchThreads: 8}
	if err := cfg.WorkflowParams("annotate", &p); err != nil {
		return nil, err
	}
	if p.UniprotFasta == "" {
		return nil, fmt.Errorf("workflow annotate: set params.annotate.uniprot_fasta to a protein FASTA")
	}
	if p.PfamHMM == "" {
		return nil, fmt.Errorf("workflow annotate: set params.annotate.pfam_hmm to a Pfam-A.hmm file")
	}

	var rules []*genoflow.Rule
	rules = append(rules, faidxRule(cfg))

	transcripts := cfg.ResultPath("ann", "transcripts.fa")
	rules = append(rules, &genoflow.Rule{
		Name:   "extract_transcripts",
		Doc:    "Pull spliced transcript sequences out of the gene models",
		Input:  []string{cfg.Annotation, cfg.Genome, cfg.Genome + ".fai"},
		Output: []string{transcripts},
		Log:    cfg.LogPath("extract_transcripts.log"),
		Shell:  "gffread -w {output[0]} -g {input[1]} {input[0]} 2> {log}",
	})

	// TransDecoder writes next to its working directory, hence the cd
	orfDir := transcripts + ".transdecoder_dir"
	rules = append(rules, &genoflow.Rule{
		Name:      "long_orfs",
		Input:     []string{transcripts},
		Output:    []string{orfDir + "/longest_orfs.pep"},
		Log:       cfg.LogPath("long_orfs.log"),
		Resources: genoflow.Resources{MemMB: 4096},
		Shell:     "( cd $(dirname {input[0]}) && TransDecoder.LongOrfs -t $(basename {input[0]}) ) > {log} 2>&1",
	})

	peptides := transcripts + ".transdecoder.pep"
	rules = append(rules, &genoflow.Rule{
		Name:  "predict_orfs",
		Doc:   "Keep one best ORF per transcript",
		Input: []string{transcripts, orfDir + "/longest_orfs.pep"},
		Output: []string{
			peptides,
			transcripts + ".transdecoder.gff3",
		},
		Log:       cfg.LogPath("predict_orfs.log"),
		Resources: genoflow.Resources{MemMB: 4096},
		Shell:     "( cd $(dirname {input[0]}) && TransDecoder.Predict -t $(basename {input[0]}) --single_best_only ) > {log} 2>&1",
	})

	diamondDB := cfg.ResultPath("ann", "uniprot.dmnd")
	rules = append(rules, &genoflow.Rule{
		Name:      "diamond_db",
		Input:     []string{p.UniprotFasta},
		Output:    []string{diamondDB},
		Log:       cfg.LogPath("diamond_db.log"),
		Threads:   4,
		Resources: genoflow.Resources{MemMB: 8192},
		Params:    map[string]string{"prefix": genoflow.RemoveExt(diamondDB)},
		Shell:     "diamond makedb --in {input[0]} -d {params.prefix} --threads {threads} 2> {log}",
	})

	uniprotHits := cfg.ResultPath("ann", "uniprot_hits.tsv")
	rules = append(rules, &genoflow.Rule{
		Name:      "diamond_blastp",
		Doc:       "Best UniProt hit per predicted protein",
		Input:     []string{peptides, diamondDB},
		Output:    []string{uniprotHits},
		Log:       cfg.LogPath("diamond_blastp.log"),
		Benchmark: cfg.BenchPath("diamond_blastp.tsv"),
		Threads:   p.SearchThreads,
		Resources: genoflow.Resources{MemMB: 8192},
		Params:    map[string]string{"evalue": p.Evalue},
		Shell: "diamond blastp -q {input[0]} -d {input[1]} -o {output[0]} " +
			"--outfmt 6 --max-target-seqs 1 --evalue {params.evalue} --threads {threads} 2> {log}",
	})

	pressed := make([]string, 0, len(hmmpressSuffixes))
	for _, suffix := range hmmpressSuffixes {
		pressed = append(pressed, p.PfamHMM+suffix)
	}
	rules = append(rules, &genoflow.Rule{
		Name:   "hmmpress_pfam",
		Input:  []string{p.PfamHMM},
		Output: pressed,
		Log:    cfg.LogPath("hmmpress_pfam.log"),
		Shell:  "hmmpress -f {input[0]} > {log} 2>&1",
	})

	pfamDomains := cfg.ResultPath("ann", "pfam_domains.txt")
	rules = append(rules, &genoflow.Rule{
		Name:      "hmmscan_pfam",
		Doc:       "Pfam domain hits per predicted protein",
		Input:     []string{peptides, p.PfamHMM, p.PfamHMM + ".h3m"},
		Output:    []string{pfamDomains},
		Log:       cfg.LogPath("hmmscan_pfam.log"),
		Benchmark: cfg.BenchPath("hmmscan_pfam.tsv"),
		Threads:   p.SearchThreads,
		Resources: genoflow.Resources{MemMB: 8192},
		Shell:     "hmmscan --cpu {threads} --domtblout {output[0]} {input[1]} {input[0]} > {log} 2>&1",
	})

	functional := cfg.ResultPath("ann", "functional_annotation.tsv")
	rules = append(rules, &genoflow.Rule{
		Name:   "functional_table",
		Doc:    "Join blast and domain evidence into one table per protein",
		Input:  []string{uniprotHits, pfamDomains},
		Output: []string{functional},
		Shell: `awk 'NR == FNR {{ hit[$1] = $2; next }} ` +
			`!/^#/ && !($4 in dom) {{ dom[$4] = $1 }} ` +
			`END {{ for (q in hit) print q "\t" hit[q] "\t" (q in dom ? dom[q] : "NA"); ` +
			`for (q in dom) if (!(q in hit)) print q "\tNA\t" dom[q] }}' ` +
			`{input[0]} {input[1]} > {output[0]}`,
	})

	stats := cfg.ResultPath("qc", "annotation_stats.txt")
	rules = append(rules, &genoflow.Rule{
		Name:   "annotation_stats",
		Input:  []string{cfg.Annotation},
		Output: []string{stats},
		Log:    cfg.LogPath("annotation_stats.log"),
		Shell:  "agat_sp_statistics.pl --gff {input[0]} -o {output[0]} > {log} 2>&1",
	})

	return &genoflow.Workflow{
		Name:        "annotate",
		Description: Describe("annotate"),
		Rules:       rules,
		Targets:     []string{functional, peptides, stats},
	}, nil
}
