/*
 *  dag.go
 *  genoflow
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package genoflow

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
	"github.com/pkg/errors"
	"github.com/willf/bitset"
)

// PlanOptions select what a run should build and how eagerly
type PlanOptions struct {
	// Targets are file paths or wildcard-free rule names; empty means
	// the workflow's default targets
	Targets []string
	// ForceAll reruns every job regardless of file timestamps
	ForceAll bool
	// ForceTargets reruns the jobs producing the requested targets
	ForceTargets bool
}

// Plan is the job graph derived from a workflow and a set of targets,
// with staleness already decided per job
type Plan struct {
	Workflow *Workflow
	Jobs     []*Job // topological order; Job.id indexes into this
	Targets  []string

	dag       graph.Graph[string, string]
	jobsByKey map[string]*Job
	deps      [][]int
	consumers [][]int
	need      *bitset.BitSet
	targetSet map[string]bool
}

// MissingInputError reports input files that no rule produces and that
// are absent from the working directory
type MissingInputError struct {
	Missing []string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("missing input files:\n  %s", strings.Join(e.Missing, "\n  "))
}

// BuildPlan matches the requested targets against the workflow's rules,
// pulls in every producer transitively, and marks the jobs whose outputs
// are missing or out of date
func BuildPlan(w *Workflow, opts PlanOptions) (*Plan, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	targets := opts.Targets
	if len(targets) == 0 {
		targets = w.Targets
	}
	paths, err := resolveTargets(w, targets)
	if err != nil {
		return nil, err
	}

	type producer struct {
		rule     *Rule
		patterns []*Pattern
	}
	var producers []producer
	for _, r := range w.Rules {
		if len(r.Output) == 0 {
			continue
		}
		pr := producer{rule: r}
		for _, out := range r.Output {
			p, err := MakePattern(out)
			if err != nil {
				return nil, errors.Wrapf(err, "rule %s", r.Name)
			}
			pr.patterns = append(pr.patterns, p)
		}
		producers = append(producers, pr)
	}
	findProducer := func(path string) (*Job, error) {
		type hit struct {
			rule *Rule
			wc   Wildcards
		}
		var hits []hit
		for _, pr := range producers {
			for _, p := range pr.patterns {
				if wc, ok := p.Match(path); ok {
					hits = append(hits, hit{pr.rule, wc})
					break
				}
			}
		}
		if len(hits) == 0 {
			return nil, nil
		}
		if len(hits) > 1 {
			sort.SliceStable(hits, func(i, j int) bool {
				return hits[i].rule.Priority > hits[j].rule.Priority
			})
			if hits[0].rule.Priority == hits[1].rule.Priority {
				names := make([]string, 0, len(hits))
				for _, h := range hits {
					names = append(names, h.rule.Name)
				}
				return nil, fmt.Errorf("ambiguous producers for %q: rules %s agree on priority; raise one to break the tie",
					path, strings.Join(names, ", "))
			}
		}
		return NewJob(hits[0].rule, hits[0].wc)
	}

	plan := &Plan{
		Workflow:  w,
		Targets:   paths,
		jobsByKey: make(map[string]*Job),
		targetSet: make(map[string]bool, len(paths)),
	}
	for _, t := range paths {
		plan.targetSet[t] = true
	}

	type want struct{ path, neededBy string }
	work := make([]want, 0, len(paths))
	for _, t := range paths {
		work = append(work, want{t, "targets"})
	}
	resolved := make(map[string]bool)
	producerOf := make(map[string]*Job)
	var order []*Job
	var missing []string
	for len(work) > 0 {
		wnt := work[0]
		work = work[1:]
		if resolved[wnt.path] {
			continue
		}
		resolved[wnt.path] = true
		job, err := findProducer(wnt.path)
		if err != nil {
			return nil, err
		}
		if job == nil {
			if !FileExists(wnt.path) {
				missing = append(missing, fmt.Sprintf("%s (required by %s)", wnt.path, wnt.neededBy))
			}
			continue
		}
		if existing, ok := plan.jobsByKey[job.Key()]; ok {
			job = existing
		} else {
			plan.jobsByKey[job.Key()] = job
			order = append(order, job)
			for _, in := range job.Input {
				work = append(work, want{in, job.Key()})
			}
			for _, out := range job.Output {
				if prev, ok := producerOf[out]; ok {
					return nil, fmt.Errorf("output %s claimed by both %s and %s", out, prev.Key(), job.Key())
				}
				producerOf[out] = job
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MissingInputError{Missing: missing}
	}

	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	for _, j := range order {
		if err := g.AddVertex(j.Key()); err != nil {
			return nil, err
		}
	}
	for _, j := range order {
		for _, in := range j.Input {
			prod, ok := producerOf[in]
			if !ok {
				continue
			}
			err := g.AddEdge(prod.Key(), j.Key())
			if err == nil || errors.Is(err, graph.ErrEdgeAlreadyExists) {
				continue
			}
			if errors.Is(err, graph.ErrEdgeCreatesCycle) {
				return nil, fmt.Errorf("circular dependency between %s and %s", prod.Key(), j.Key())
			}
			return nil, err
		}
	}
	plan.dag = g

	keys, err := graph.StableTopologicalSort(g, func(a, b string) bool { return a < b })
	if err != nil {
		return nil, err
	}
	plan.Jobs = make([]*Job, 0, len(keys))
	for i, key := range keys {
		j := plan.jobsByKey[key]
		j.id = i
		plan.Jobs = append(plan.Jobs, j)
	}

	pred, err := g.PredecessorMap()
	if err != nil {
		return nil, err
	}
	adj, err := g.AdjacencyMap()
	if err != nil {
		return nil, err
	}
	plan.deps = make([][]int, len(plan.Jobs))
	plan.consumers = make([][]int, len(plan.Jobs))
	for _, j := range plan.Jobs {
		for key := range pred[j.Key()] {
			plan.deps[j.id] = append(plan.deps[j.id], plan.jobsByKey[key].id)
		}
		for key := range adj[j.Key()] {
			plan.consumers[j.id] = append(plan.consumers[j.id], plan.jobsByKey[key].id)
		}
		sort.Ints(plan.deps[j.id])
		sort.Ints(plan.consumers[j.id])
	}

	plan.need = bitset.New(uint(len(plan.Jobs)))
	for _, j := range plan.Jobs {
		reason := ""
		switch {
		case opts.ForceAll:
			reason = "forced"
		case opts.ForceTargets && plan.producesTarget(j):
			reason = "forced target"
		default:
			reason = j.staleReason()
			if reason == "" {
				for _, d := range plan.deps[j.id] {
					if plan.need.Test(uint(d)) {
						reason = fmt.Sprintf("upstream %s will rerun", plan.Jobs[d].Key())
						break
					}
				}
			}
		}
		if reason != "" {
			plan.need.Set(uint(j.id))
			j.Reason = reason
		}
	}
	return plan, nil
}

// resolveTargets turns rule names into their concrete outputs and leaves
// file paths alone. A rule without outputs stands for its inputs.
func resolveTargets(w *Workflow, targets []string) ([]string, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("workflow %s: no targets requested", w.Name)
	}
	var paths []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	for _, t := range targets {
		r := w.Rule(t)
		if r == nil {
			if strings.ContainsAny(t, "{}") {
				return nil, fmt.Errorf("target %q contains wildcards; request a concrete path or a rule name", t)
			}
			add(t)
			continue
		}
		expand := r.Output
		if len(expand) == 0 {
			expand = r.Input
		}
		for _, out := range expand {
			p, err := MakePattern(out)
			if err != nil {
				return nil, errors.Wrapf(err, "rule %s", r.Name)
			}
			if p.HasWildcards() {
				return nil, fmt.Errorf("rule %s has wildcard paths and cannot be targeted by name; request a concrete path instead", t)
			}
			add(out)
		}
	}
	return paths, nil
}

// staleReason decides whether the job's own files justify a rerun,
// before upstream propagation is considered
func (j *Job) staleReason() string {
	for _, out := range j.Output {
		if !FileExists(out) {
			return fmt.Sprintf("missing output %s", out)
		}
	}
	for _, in := range j.Input {
		for _, out := range j.Output {
			if IsNewerFile(in, out) {
				return fmt.Sprintf("input %s newer than %s", in, out)
			}
		}
	}
	return ""
}

func (p *Plan) producesTarget(j *Job) bool {
	for _, out := range j.Output {
		if p.targetSet[out] {
			return true
		}
	}
	return false
}

// NeedsRun reports whether the plan decided to execute this job
func (p *Plan) NeedsRun(j *Job) bool { return p.need.Test(uint(j.id)) }

// UpToDate reports whether nothing at all has to run
func (p *Plan) UpToDate() bool { return !p.need.Any() }

// CountPending returns the number of jobs scheduled to run
func (p *Plan) CountPending() int { return int(p.need.Count()) }

// PendingJobs lists the jobs to execute, dependency order preserved
func (p *Plan) PendingJobs() []*Job {
	var jobs []*Job
	for _, j := range p.Jobs {
		if p.need.Test(uint(j.id)) {
			jobs = append(jobs, j)
		}
	}
	return jobs
}

// Job looks a planned job up by key, nil when absent
func (p *Plan) Job(key string) *Job { return p.jobsByKey[key] }

// Deps returns the producers this job waits for
func (p *Plan) Deps(j *Job) []*Job {
	out := make([]*Job, 0, len(p.deps[j.id]))
	for _, d := range p.deps[j.id] {
		out = append(out, p.Jobs[d])
	}
	return out
}

// Consumers returns the jobs waiting for this one
func (p *Plan) Consumers(j *Job) []*Job {
	out := make([]*Job, 0, len(p.consumers[j.id]))
	for _, c := range p.consumers[j.id] {
		out = append(out, p.Jobs[c])
	}
	return out
}

// JobTally is one row of the dry-run summary
type JobTally struct {
	Rule    string
	Count   int
	Threads int
	MemMB   int
}

// Tally aggregates the pending jobs per rule, sorted by rule name
func (p *Plan) Tally() []JobTally {
	byRule := make(map[string]*JobTally)
	for _, j := range p.PendingJobs() {
		t, ok := byRule[j.Rule.Name]
		if !ok {
			t = &JobTally{Rule: j.Rule.Name, Threads: j.Rule.Threads, MemMB: j.Rule.Resources.MemMB}
			byRule[j.Rule.Name] = t
		}
		t.Count++
	}
	names := make([]string, 0, len(byRule))
	for name := range byRule {
		names = append(names, name)
	}
	sort.Strings(names)
	tallies := make([]JobTally, 0, len(names))
	for _, name := range names {
		tallies = append(tallies, *byRule[name])
	}
	return tallies
}

// WriteDOT renders the job graph in Graphviz format, up-to-date jobs
// drawn dashed and gray
func (p *Plan) WriteDOT(w io.Writer) error {
	g := graph.New(graph.StringHash, graph.Directed())
	for _, j := range p.Jobs {
		attrs := []func(*graph.VertexProperties){
			graph.VertexAttribute("label", j.Key()),
			graph.VertexAttribute("shape", "box"),
			graph.VertexAttribute("fontname", "Helvetica"),
		}
		if p.need.Test(uint(j.id)) {
			attrs = append(attrs, graph.VertexAttribute("style", "rounded"))
		} else {
			attrs = append(attrs,
				graph.VertexAttribute("style", "rounded,dashed"),
				graph.VertexAttribute("color", "gray"),
				graph.VertexAttribute("fontcolor", "gray"))
		}
		if err := g.AddVertex(j.Key(), attrs...); err != nil {
			return err
		}
	}
	for _, j := range p.Jobs {
		for _, d := range p.deps[j.id] {
			if err := g.AddEdge(p.Jobs[d].Key(), j.Key()); err != nil {
				return err
			}
		}
	}
	return draw.DOT(g, w)
}
