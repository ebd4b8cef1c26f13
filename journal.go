/*
 *  journal.go
 *  genoflow
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package genoflow

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Journal events
const (
	EventRunStarted  = "run_started"
	EventJobStarted  = "job_started"
	EventJobDone     = "job_done"
	EventJobFailed   = "job_failed"
	EventJobSkipped  = "job_skipped"
	EventRunFinished = "run_finished"
)

// JournalEntry is one line of the append-only run journal. Every run of
// a workflow in a working directory lands in the same file, so the
// history of the analysis stays with the analysis.
type JournalEntry struct {
	Time     time.Time `json:"time"`
	RunID    string    `json:"run_id"`
	Event    string    `json:"event"`
	Workflow string    `json:"workflow,omitempty"`
	Targets  []string  `json:"targets,omitempty"`
	Cores    int       `json:"cores,omitempty"`
	Job      string    `json:"job,omitempty"`
	Rule     string    `json:"rule,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Attempts int       `json:"attempts,omitempty"`
	Seconds  float64   `json:"seconds,omitempty"`
	MaxRSSMB float64   `json:"max_rss_mb,omitempty"`
	ExitCode int       `json:"exit_code,omitempty"`
	Error    string    `json:"error,omitempty"`
	Stats    *RunStats `json:"stats,omitempty"`
}

// Journal appends run and job events to .genoflow/journal.jsonl. Each
// run gets a fresh UUID tying its entries together.
type Journal struct {
	RunID string

	mu sync.Mutex
	f  *os.File
}

// JournalPath locates the journal inside a working directory
func JournalPath(workdir string) string {
	return filepath.Join(workdir, StateDirName, "journal.jsonl")
}

// OpenJournal opens the working directory's journal for appending,
// creating the state directory on first use
func OpenJournal(workdir string) (*Journal, error) {
	path := JournalPath(workdir)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "journal")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "journal")
	}
	return &Journal{RunID: uuid.New().String(), f: f}, nil
}

// Close flushes and closes the journal file
func (jn *Journal) Close() error {
	jn.mu.Lock()
	defer jn.mu.Unlock()
	return jn.f.Close()
}

func (jn *Journal) append(e JournalEntry) error {
	e.Time = time.Now().UTC()
	e.RunID = jn.RunID
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	jn.mu.Lock()
	defer jn.mu.Unlock()
	_, err = jn.f.Write(append(line, '\n'))
	return err
}

// RunStarted records the run header; an unwritable journal fails the
// run here rather than losing history silently
func (jn *Journal) RunStarted(plan *Plan, cores int) error {
	err := jn.append(JournalEntry{
		Event:    EventRunStarted,
		Workflow: plan.Workflow.Name,
		Targets:  plan.Targets,
		Cores:    cores,
	})
	return errors.Wrap(err, "journal")
}

// JobStarted records a dispatch; failures past the header only warn
func (jn *Journal) JobStarted(j *Job) {
	err := jn.append(JournalEntry{
		Event:  EventJobStarted,
		Job:    j.Key(),
		Rule:   j.Rule.Name,
		Reason: j.Reason,
	})
	if err != nil {
		log.Warningf("journal: %v", err)
	}
}

// JobFinished records the job's outcome along with its benchmark
func (jn *Journal) JobFinished(j *Job, b *Benchmark, jobErr error) {
	e := JournalEntry{
		Job:      j.Key(),
		Rule:     j.Rule.Name,
		Attempts: j.Attempts,
	}
	switch j.State() {
	case JobDone:
		e.Event = EventJobDone
	case JobSkipped:
		e.Event = EventJobSkipped
	default:
		e.Event = EventJobFailed
	}
	if b != nil {
		e.Seconds = b.Seconds
		e.MaxRSSMB = b.MaxRSSMB
		e.ExitCode = b.ExitCode
	}
	if jobErr != nil {
		e.Error = jobErr.Error()
	}
	if err := jn.append(e); err != nil {
		log.Warningf("journal: %v", err)
	}
}

// RunFinished records the run trailer with the aggregate stats
func (jn *Journal) RunFinished(stats *RunStats, runErr error) {
	e := JournalEntry{Event: EventRunFinished, Stats: stats}
	if runErr != nil {
		e.Error = runErr.Error()
	}
	if err := jn.append(e); err != nil {
		log.Warningf("journal: %v", err)
	}
}

// RunRecord is one run reassembled from its journal entries
type RunRecord struct {
	ID       string
	Workflow string
	Started  time.Time
	Targets  []string
	Cores    int
	Entries  []JournalEntry
	Stats    *RunStats
	Error    string
	Finished bool
}

// LatestRun extracts the most recent run from a journal
func LatestRun(entries []JournalEntry) (*RunRecord, error) {
	start := -1
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Event == EventRunStarted {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, errors.New("journal records no runs")
	}
	header := entries[start]
	run := &RunRecord{
		ID:       header.RunID,
		Workflow: header.Workflow,
		Started:  header.Time,
		Targets:  header.Targets,
		Cores:    header.Cores,
	}
	for _, e := range entries[start:] {
		if e.RunID != run.ID {
			continue
		}
		switch e.Event {
		case EventRunStarted:
		case EventRunFinished:
			run.Stats = e.Stats
			run.Error = e.Error
			run.Finished = true
		default:
			run.Entries = append(run.Entries, e)
		}
	}
	return run, nil
}

// ReadJournal parses a journal file back into entries, oldest first
func ReadJournal(path string) ([]JournalEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var entries []JournalEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e JournalEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, errors.Wrapf(err, "journal %s", path)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
