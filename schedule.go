/*
 *  schedule.go
 *  genoflow
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package genoflow

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// RunStats summarizes one run for the journal and the exit message
type RunStats struct {
	Planned  int     `json:"planned"`
	Done     int     `json:"done"`
	Failed   int     `json:"failed"`
	Skipped  int     `json:"skipped"`
	Seconds  float64 `json:"seconds"`
	MaxRSSMB float64 `json:"max_rss_mb"`
}

// JobStatus is the monitor's view of one job
type JobStatus struct {
	Key      string  `json:"key"`
	Rule     string  `json:"rule"`
	State    string  `json:"state"`
	Reason   string  `json:"reason,omitempty"`
	Attempts int     `json:"attempts"`
	Seconds  float64 `json:"seconds,omitempty"`
}

// Runner executes a plan's pending jobs under a global core and memory
// budget. Jobs become eligible as their producers finish and dispatch by
// rule priority; a failure stops new dispatches unless KeepGoing is set,
// in which case only the failed job's descendants are abandoned.
type Runner struct {
	Plan      *Plan
	Executor  *Executor
	Journal   *Journal
	Cores     int
	MemMB     int
	KeepGoing bool
	DryRun    bool

	mu    sync.Mutex
	stats RunStats
	began time.Time
}

// Run drives the plan to completion or first failure
func (r *Runner) Run(ctx context.Context) (*RunStats, error) {
	if r.Cores < 1 {
		r.Cores = DefaultCores
	}
	if r.Executor == nil {
		r.Executor = &Executor{}
	}
	pending := r.Plan.PendingJobs()
	r.mu.Lock()
	r.stats = RunStats{Planned: len(pending)}
	r.began = time.Now()
	r.mu.Unlock()

	if len(pending) == 0 {
		log.Notice("Nothing to be done.")
		return r.statsCopy(), nil
	}
	// A typo in a shell template should surface now, not three hours in
	for _, j := range pending {
		if _, err := j.ShellCommand(); err != nil {
			return r.statsCopy(), err
		}
	}
	if r.DryRun {
		for _, j := range pending {
			command, _ := j.ShellCommand()
			log.Noticef("Would run %s (%s)", j.Key(), j.Reason)
			log.Debugf("    %s", command)
		}
		return r.statsCopy(), nil
	}

	if r.Journal != nil {
		if err := r.Journal.RunStarted(r.Plan, r.Cores); err != nil {
			return r.statsCopy(), err
		}
	}

	inPlan := make([]bool, len(r.Plan.Jobs))
	for _, j := range pending {
		inPlan[j.id] = true
	}
	unmet := make([]int, len(r.Plan.Jobs))
	for _, j := range pending {
		for _, d := range r.Plan.deps[j.id] {
			if inPlan[d] {
				unmet[j.id]++
			}
		}
	}
	ready := &PriorityQueue{}
	heap.Init(ready)
	for _, j := range pending {
		if unmet[j.id] == 0 {
			heap.Push(ready, j)
		}
	}

	// A job asking for more than the whole machine gets the whole
	// machine rather than an unschedulable plan
	effCores := func(j *Job) int { return min(j.Rule.Threads, r.Cores) }
	effMem := func(j *Job) int {
		if r.MemMB <= 0 {
			return 0
		}
		m := j.Rule.Resources.MemMB
		if m == 0 {
			m = DefaultJobMemMB
		}
		return min(m, r.MemMB)
	}
	coresAvail, memAvail := r.Cores, r.MemMB

	type completion struct {
		job   *Job
		bench *Benchmark
		err   error
	}
	ch := make(chan completion, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	running := 0
	stop := false

	popFitting := func() *Job {
		var back []*Job
		var picked *Job
		for ready.Len() > 0 {
			j := heap.Pop(ready).(*Job)
			if j.state == JobSkipped {
				continue
			}
			if effCores(j) <= coresAvail && (r.MemMB <= 0 || effMem(j) <= memAvail) {
				picked = j
				break
			}
			back = append(back, j)
		}
		for _, j := range back {
			heap.Push(ready, j)
		}
		return picked
	}

	for {
		if !stop {
			for {
				j := popFitting()
				if j == nil {
					break
				}
				coresAvail -= effCores(j)
				memAvail -= effMem(j)
				r.setState(j, JobRunning)
				log.Noticef("Running %s (threads=%d, reason: %s)", j.Key(), effCores(j), j.Reason)
				if r.Journal != nil {
					r.Journal.JobStarted(j)
				}
				running++
				job := j
				g.Go(func() error {
					bench, err := r.runWithRetries(gctx, job)
					ch <- completion{job, bench, err}
					if err != nil && !r.KeepGoing {
						return err
					}
					return nil
				})
			}
		}
		if running == 0 {
			break
		}
		c := <-ch
		running--
		coresAvail += effCores(c.job)
		memAvail += effMem(c.job)
		switch {
		case c.err == nil:
			r.setState(c.job, JobDone)
			r.bump(func(s *RunStats) { s.Done++ })
			if r.Journal != nil {
				r.Journal.JobFinished(c.job, c.bench, nil)
			}
			secs := 0.0
			if c.bench != nil {
				secs = c.bench.Seconds
			}
			log.Noticef("Finished %s in %s", c.job.Key(), formatHMS(secs))
			for _, cid := range r.Plan.consumers[c.job.id] {
				consumer := r.Plan.Jobs[cid]
				if inPlan[cid] && consumer.state == JobWaiting {
					unmet[cid]--
					if unmet[cid] == 0 {
						heap.Push(ready, consumer)
					}
				}
			}
		case errors.Is(c.err, context.Canceled) || errors.Is(c.err, context.DeadlineExceeded):
			r.setState(c.job, JobSkipped)
			r.bump(func(s *RunStats) { s.Skipped++ })
			if r.Journal != nil {
				r.Journal.JobFinished(c.job, c.bench, c.err)
			}
		default:
			r.setState(c.job, JobFailed)
			r.bump(func(s *RunStats) { s.Failed++ })
			if r.Journal != nil {
				r.Journal.JobFinished(c.job, c.bench, c.err)
			}
			log.Error(c.err.Error())
			if r.KeepGoing {
				r.skipDownstream(c.job, inPlan)
			} else {
				stop = true
			}
		}
	}
	groupErr := g.Wait()

	for _, j := range pending {
		if j.state == JobWaiting {
			r.setState(j, JobSkipped)
			r.bump(func(s *RunStats) { s.Skipped++ })
		}
	}
	r.mu.Lock()
	r.stats.Seconds = time.Since(r.began).Seconds()
	r.stats.MaxRSSMB = ChildrenMaxRSSMB()
	stats := r.stats
	r.mu.Unlock()
	if r.Journal != nil {
		r.Journal.RunFinished(&stats, groupErr)
	}
	if groupErr != nil {
		return &stats, groupErr
	}
	if stats.Failed > 0 {
		return &stats, fmt.Errorf("%d job(s) failed", stats.Failed)
	}
	log.Noticef("Workflow %s complete: %d job(s) in %s", r.Plan.Workflow.Name, stats.Done, formatHMS(stats.Seconds))
	return &stats, nil
}

// runWithRetries reruns a failing job up to its rule's retry count with
// exponential backoff between attempts
func (r *Runner) runWithRetries(ctx context.Context, j *Job) (*Benchmark, error) {
	var bench *Benchmark
	attempt := 0
	op := func() error {
		attempt++
		r.mu.Lock()
		j.Attempts = attempt
		r.mu.Unlock()
		b, err := r.Executor.Run(ctx, j)
		bench = b
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			if attempt <= j.Rule.Retries {
				log.Warningf("Job %s failed on attempt %d of %d: %v", j.Key(), attempt, j.Rule.Retries+1, err)
			}
			return err
		}
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(j.Rule.Retries)), ctx)
	err := backoff.Retry(op, bo)
	return bench, err
}

// skipDownstream abandons every descendant of a failed job; the rest of
// the graph keeps going
func (r *Runner) skipDownstream(j *Job, inPlan []bool) {
	queue := []int{j.id}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, cid := range r.Plan.consumers[id] {
			c := r.Plan.Jobs[cid]
			if inPlan[cid] && c.state == JobWaiting {
				r.setState(c, JobSkipped)
				r.bump(func(s *RunStats) { s.Skipped++ })
				log.Warningf("Skipping %s: upstream %s failed", c.Key(), j.Key())
				queue = append(queue, cid)
			}
		}
	}
}

func (r *Runner) setState(j *Job, s JobState) {
	r.mu.Lock()
	j.state = s
	r.mu.Unlock()
}

func (r *Runner) bump(f func(*RunStats)) {
	r.mu.Lock()
	f(&r.stats)
	r.mu.Unlock()
}

func (r *Runner) statsCopy() *RunStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := r.stats
	return &stats
}

// Snapshot reports the live state of every pending job, for the monitor
func (r *Runner) Snapshot() ([]JobStatus, RunStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var statuses []JobStatus
	for _, j := range r.Plan.Jobs {
		if !r.Plan.NeedsRun(j) {
			continue
		}
		statuses = append(statuses, JobStatus{
			Key:      j.Key(),
			Rule:     j.Rule.Name,
			State:    j.state.String(),
			Reason:   j.Reason,
			Attempts: j.Attempts,
		})
	}
	stats := r.stats
	if !r.began.IsZero() {
		stats.Seconds = time.Since(r.began).Seconds()
	}
	return statuses, stats
}
