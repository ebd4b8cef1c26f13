/*
 *  config.go
 *  genoflow
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package genoflow

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultConfigYAML is the project configuration written by `genoflow init`
const DefaultConfigYAML = `# genoflow project configuration
workflow: popgen
samples: samples.tsv
genome: ref/genome.fa
# annotation: ref/genes.gtf
outdir: results
cores: 4
mem_mb: 16000
params:
  popgen:
    min_qual: 30
    min_depth: 4
`

// DefaultSampleSheet is the sample manifest written by `genoflow init`
const DefaultSampleSheet = "sample\tfastq_1\tfastq_2\tgroup\n" +
	"# S1\traw/S1_R1.fastq.gz\traw/S1_R2.fastq.gz\tpopA\n"

// Config is the project configuration, read from genoflow.yaml with
// GENOFLOW_* environment variables layered on top
type Config struct {
	Workflow    string `yaml:"workflow" envconfig:"workflow"`
	SampleSheet string `yaml:"samples" envconfig:"samples"`
	Genome      string `yaml:"genome" envconfig:"genome"`
	Annotation  string `yaml:"annotation" envconfig:"annotation"`
	OutDir      string `yaml:"outdir" envconfig:"outdir"`
	LogDir      string `yaml:"logdir" envconfig:"logdir"`
	BenchDir    string `yaml:"benchdir" envconfig:"benchdir"`
	Cores       int    `yaml:"cores" envconfig:"cores"`
	MemMB       int    `yaml:"mem_mb" envconfig:"mem_mb"`
	KeepGoing   bool   `yaml:"keep_going" envconfig:"keep_going"`
	Monitor     string `yaml:"monitor" envconfig:"monitor"`

	// Params holds one free-form block per workflow, decoded by the
	// workflow that owns it
	Params map[string]map[string]interface{} `yaml:"params" ignored:"true"`

	samples []Sample
}

// Sample is one row of the sample manifest
type Sample struct {
	Name   string
	Fastq1 string
	Fastq2 string
	Group  string
}

// Paired reports whether the sample has a second read file
func (s Sample) Paired() bool { return s.Fastq2 != "" }

// LoadConfig reads and validates a project configuration. Unknown keys
// in the file are rejected so a misspelled setting cannot be silently
// ignored.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "config")
	}
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "config %s", filename)
	}
	if err := envconfig.Process("genoflow", cfg); err != nil {
		return nil, errors.Wrap(err, "config environment")
	}
	cfg.applyDefaults()
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", filename)
	}
	if cfg.SampleSheet != "" {
		samples, err := LoadSamples(cfg.SampleSheet)
		if err != nil {
			return nil, err
		}
		cfg.samples = samples
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.OutDir == "" {
		c.OutDir = "results"
	}
	if c.LogDir == "" {
		c.LogDir = path.Join(c.OutDir, "logs")
	}
	if c.BenchDir == "" {
		c.BenchDir = path.Join(c.OutDir, "benchmarks")
	}
	if c.Cores == 0 {
		c.Cores = DefaultCores
	}
}

func (c *Config) normalize() {
	clean := func(p *string) {
		if *p != "" {
			*p = path.Clean(strings.ReplaceAll(*p, "\\", "/"))
		}
	}
	clean(&c.SampleSheet)
	clean(&c.Genome)
	clean(&c.Annotation)
	clean(&c.OutDir)
	clean(&c.LogDir)
	clean(&c.BenchDir)
}

func (c *Config) validate() error {
	if c.Workflow == "" {
		return fmt.Errorf("no workflow selected")
	}
	if c.Cores < 1 {
		return fmt.Errorf("cores must be positive, got %d", c.Cores)
	}
	if c.MemMB < 0 {
		return fmt.Errorf("mem_mb must not be negative, got %d", c.MemMB)
	}
	return nil
}

// Samples returns the loaded sample manifest
func (c *Config) Samples() []Sample { return c.samples }

// SampleNames lists sample names in manifest order
func (c *Config) SampleNames() []string {
	names := make([]string, 0, len(c.samples))
	for _, s := range c.samples {
		names = append(names, s.Name)
	}
	return names
}

// Sample looks a sample up by name
func (c *Config) Sample(name string) (Sample, bool) {
	for _, s := range c.samples {
		if s.Name == name {
			return s, true
		}
	}
	return Sample{}, false
}

// Groups maps group names to their samples, in manifest order. Samples
// without a group land in "all".
func (c *Config) Groups() map[string][]string {
	groups := make(map[string][]string)
	for _, s := range c.samples {
		g := s.Group
		if g == "" {
			g = "all"
		}
		groups[g] = append(groups[g], s.Name)
	}
	return groups
}

// GroupNames lists the group names sorted
func (c *Config) GroupNames() []string {
	var names []string
	for g := range c.Groups() {
		names = append(names, g)
	}
	sort.Strings(names)
	return names
}

// AllPaired reports whether every sample has two read files
func (c *Config) AllPaired() bool {
	for _, s := range c.samples {
		if !s.Paired() {
			return false
		}
	}
	return len(c.samples) > 0
}

// ResultPath joins path elements under the configured output directory
func (c *Config) ResultPath(parts ...string) string {
	return path.Join(append([]string{c.OutDir}, parts...)...)
}

// LogPath joins path elements under the log directory
func (c *Config) LogPath(parts ...string) string {
	return path.Join(append([]string{c.LogDir}, parts...)...)
}

// BenchPath joins path elements under the benchmark directory
func (c *Config) BenchPath(parts ...string) string {
	return path.Join(append([]string{c.BenchDir}, parts...)...)
}

// WorkflowParams decodes the named params block into a typed struct the
// workflow provides, leaving absent settings at their defaults. An
// unknown key is an error for the same reason unknown config keys are.
func (c *Config) WorkflowParams(name string, out interface{}) error {
	raw, ok := c.Params[name]
	if !ok {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "yaml",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return errors.Wrapf(err, "params.%s", name)
	}
	return nil
}

// LoadSamples parses a sample manifest. Expected columns are sample,
// fastq_1, fastq_2 and group; the last two may be empty or "-".
func LoadSamples(filename string) ([]Sample, error) {
	rows, err := ReadTSVRecords(filename)
	if err != nil {
		return nil, errors.Wrap(err, "sample sheet")
	}
	var samples []Sample
	seen := make(map[string]bool)
	for i, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("sample sheet %s: row %d has %d column(s), expected at least sample and fastq_1",
				filename, i+2, len(row))
		}
		s := Sample{Name: strings.TrimSpace(row[0]), Fastq1: strings.TrimSpace(row[1])}
		if len(row) > 2 {
			s.Fastq2 = cleanCell(row[2])
		}
		if len(row) > 3 {
			s.Group = cleanCell(row[3])
		}
		if s.Name == "" || s.Fastq1 == "" {
			return nil, fmt.Errorf("sample sheet %s: row %d is missing the sample name or fastq_1", filename, i+2)
		}
		if strings.ContainsAny(s.Name, "/{} \t") {
			return nil, fmt.Errorf("sample sheet %s: sample name %q contains reserved characters", filename, s.Name)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("sample sheet %s: duplicate sample %q", filename, s.Name)
		}
		seen[s.Name] = true
		samples = append(samples, s)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("sample sheet %s lists no samples", filename)
	}
	return samples, nil
}

func cleanCell(cell string) string {
	cell = strings.TrimSpace(cell)
	if cell == "-" || cell == "." {
		return ""
	}
	return cell
}
