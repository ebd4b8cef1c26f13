/*
 *  report.go
 *  genoflow
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package genoflow

import (
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/Jeffail/gabs"
	"github.com/exascience/pargo/parallel"
	"github.com/gobuffalo/packr"
	"github.com/kshedden/gonpy"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// RuleMetric summarizes the finished jobs of one rule in the latest run
type RuleMetric struct {
	Rule     string
	Jobs     int
	TotalS   float64
	MeanS    float64
	MaxS     float64
	MaxRSSMB float64
}

// Reporter assembles the latest run's journal, the sample FASTQ tallies
// and the alignment flag tallies into report.json, job_seconds.npy and a
// self-contained report.html
type Reporter struct {
	Config  *Config
	Workdir string
	OutDir  string
	Serve   bool
	Port    int
	Threads int
}

// Run builds the report and optionally serves it
func (r *Reporter) Run() error {
	if r.Workdir == "" {
		r.Workdir = "."
	}
	if r.OutDir == "" {
		r.OutDir = r.Config.ResultPath("report")
	}
	if r.Port == 0 {
		r.Port = 3000
	}
	entries, err := ReadJournal(JournalPath(r.Workdir))
	if err != nil {
		return errors.Wrap(err, "no runs recorded yet")
	}
	run, err := LatestRun(entries)
	if err != nil {
		return err
	}
	log.Noticef("Reporting on run %s (workflow %s, %d events)", run.ID, run.Workflow, len(run.Entries))

	metrics, seconds := ruleMetrics(run)
	fastqs := r.collectFastqStats()
	bams := r.collectBamStats()

	if err := os.MkdirAll(r.OutDir, 0755); err != nil {
		return err
	}
	if err := r.writeJSON(run, metrics, fastqs, bams); err != nil {
		return err
	}
	if err := writeSecondsNpy(path.Join(r.OutDir, "job_seconds.npy"), seconds); err != nil {
		return err
	}
	if err := r.writeHTML(); err != nil {
		return err
	}
	log.Noticef("Report written to %s", r.OutDir)
	if r.Serve {
		r.host()
	}
	return nil
}

// ruleMetrics folds the run's finished jobs into per-rule statistics and
// returns the raw duration vector alongside
func ruleMetrics(run *RunRecord) ([]RuleMetric, []float64) {
	byRule := make(map[string][]float64)
	rss := make(map[string]float64)
	var seconds []float64
	for _, e := range run.Entries {
		if e.Event != EventJobDone {
			continue
		}
		byRule[e.Rule] = append(byRule[e.Rule], e.Seconds)
		if e.MaxRSSMB > rss[e.Rule] {
			rss[e.Rule] = e.MaxRSSMB
		}
		seconds = append(seconds, e.Seconds)
	}
	names := make([]string, 0, len(byRule))
	for name := range byRule {
		names = append(names, name)
	}
	sort.Strings(names)
	metrics := make([]RuleMetric, 0, len(names))
	for _, name := range names {
		xs := byRule[name]
		m := RuleMetric{
			Rule:     name,
			Jobs:     len(xs),
			TotalS:   floats.Sum(xs),
			MeanS:    stat.Mean(xs, nil),
			MaxS:     floats.Max(xs),
			MaxRSSMB: rss[name],
		}
		metrics = append(metrics, m)
	}
	return metrics, seconds
}

type fastqReport struct {
	Sample string
	File   string
	Stats  *FastqStats
	Err    error
}

// collectFastqStats counts the manifest's read files in parallel
func (r *Reporter) collectFastqStats() []fastqReport {
	var tasks []fastqReport
	for _, s := range r.Config.Samples() {
		tasks = append(tasks, fastqReport{Sample: s.Name, File: s.Fastq1})
		if s.Paired() {
			tasks = append(tasks, fastqReport{Sample: s.Name, File: s.Fastq2})
		}
	}
	parallel.Range(0, len(tasks), r.Threads, func(low, high int) {
		for i := low; i < high; i++ {
			if !FileExists(tasks[i].File) {
				tasks[i].Err = fmt.Errorf("not found")
				continue
			}
			tasks[i].Stats, tasks[i].Err = CountFastq(tasks[i].File)
		}
	})
	for _, t := range tasks {
		if t.Err != nil {
			log.Warningf("Skipping %s in report: %v", t.File, t.Err)
		}
	}
	return tasks
}

type bamReport struct {
	File  string
	Stats *BamStats
	Err   error
}

// collectBamStats finds every BAM under the output directory and
// tallies each in parallel
func (r *Reporter) collectBamStats() []bamReport {
	found, err := GlobWildcards(r.Config.OutDir + "/{relpath,.+}.bam")
	if err != nil {
		log.Warningf("BAM discovery failed: %v", err)
		return nil
	}
	tasks := make([]bamReport, len(found))
	for i, wc := range found {
		tasks[i].File = r.Config.OutDir + "/" + wc["relpath"] + ".bam"
	}
	parallel.Range(0, len(tasks), r.Threads, func(low, high int) {
		for i := low; i < high; i++ {
			tasks[i].Stats, tasks[i].Err = CollectBamStats(tasks[i].File)
		}
	})
	for _, t := range tasks {
		if t.Err != nil {
			log.Warningf("Skipping %s in report: %v", t.File, t.Err)
		}
	}
	return tasks
}

func (r *Reporter) writeJSON(run *RunRecord, metrics []RuleMetric, fastqs []fastqReport, bams []bamReport) error {
	root := gabs.New()
	root.SetP(Version, "genoflow.version")
	root.SetP(run.ID, "run.id")
	root.SetP(run.Workflow, "run.workflow")
	root.SetP(run.Started, "run.started")
	root.SetP(run.Cores, "run.cores")
	root.SetP(run.Finished, "run.finished")
	if run.Error != "" {
		root.SetP(run.Error, "run.error")
	}
	if run.Stats != nil {
		root.SetP(run.Stats.Planned, "run.jobs.planned")
		root.SetP(run.Stats.Done, "run.jobs.done")
		root.SetP(run.Stats.Failed, "run.jobs.failed")
		root.SetP(run.Stats.Skipped, "run.jobs.skipped")
		root.SetP(run.Stats.Seconds, "run.seconds")
		root.SetP(run.Stats.MaxRSSMB, "run.max_rss_mb")
	}
	if _, err := root.Array("rules"); err != nil {
		return err
	}
	for _, m := range metrics {
		obj := gabs.New()
		obj.SetP(m.Rule, "rule")
		obj.SetP(m.Jobs, "jobs")
		obj.SetP(m.TotalS, "total_s")
		obj.SetP(m.MeanS, "mean_s")
		obj.SetP(m.MaxS, "max_s")
		obj.SetP(m.MaxRSSMB, "max_rss_mb")
		if err := root.ArrayAppend(obj.Data(), "rules"); err != nil {
			return err
		}
	}
	if _, err := root.Array("fastq"); err != nil {
		return err
	}
	for _, t := range fastqs {
		if t.Stats == nil {
			continue
		}
		obj := gabs.New()
		obj.SetP(t.Sample, "sample")
		obj.SetP(t.File, "file")
		obj.SetP(t.Stats.Records, "reads")
		obj.SetP(t.Stats.Bases, "bases")
		if err := root.ArrayAppend(obj.Data(), "fastq"); err != nil {
			return err
		}
	}
	if _, err := root.Array("alignments"); err != nil {
		return err
	}
	for _, t := range bams {
		if t.Stats == nil {
			continue
		}
		obj := gabs.New()
		obj.SetP(t.File, "file")
		obj.SetP(t.Stats.Total, "total")
		obj.SetP(t.Stats.Mapped, "mapped")
		obj.SetP(t.Stats.Duplicates, "duplicates")
		obj.SetP(t.Stats.ProperPairs, "proper_pairs")
		obj.SetP(t.Stats.MapQ30, "mapq30")
		obj.SetP(t.Stats.MappedRate(), "mapped_rate")
		obj.SetP(t.Stats.DuplicateRate(), "duplicate_rate")
		if err := root.ArrayAppend(obj.Data(), "alignments"); err != nil {
			return err
		}
	}
	return os.WriteFile(path.Join(r.OutDir, "report.json"), []byte(root.StringIndent("", "  ")), 0644)
}

// writeSecondsNpy stores the raw job duration vector for numpy plotting
func writeSecondsNpy(filename string, seconds []float64) error {
	w, err := gonpy.NewFileWriter(filename)
	if err != nil {
		return err
	}
	w.Shape = []int{len(seconds)}
	return w.WriteFloat64(seconds)
}

// writeHTML materializes the embedded report page next to its data
func (r *Reporter) writeHTML() error {
	box := packr.NewBox("./templates")
	s, err := box.FindString("report.html")
	if err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(r.OutDir, "report.html"))
	if err != nil {
		return err
	}
	if _, err := f.WriteString(s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// host serves the report directory, walking up ports until one is free
func (r *Reporter) host() {
	http.Handle("/", http.FileServer(http.Dir(r.OutDir)))
	port := r.Port
	for {
		log.Noticef("Serving report on localhost:%d ...", port)
		if err := http.ListenAndServe(":"+strconv.Itoa(port), nil); err != nil {
			log.Debug(err)
			port++
		} else {
			break
		}
	}
}
