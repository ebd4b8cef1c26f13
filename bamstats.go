/*
 *  bamstats.go
 *  genoflow
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package genoflow

import (
	"io"
	"os"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/pkg/errors"
)

// BamStats is the flag tally of one alignment file, the numbers the run
// report prints per sample
type BamStats struct {
	Total         int64 `json:"total"`
	Mapped        int64 `json:"mapped"`
	Secondary     int64 `json:"secondary"`
	Supplementary int64 `json:"supplementary"`
	Duplicates    int64 `json:"duplicates"`
	Paired        int64 `json:"paired"`
	ProperPairs   int64 `json:"proper_pairs"`
	MapQ30        int64 `json:"mapq30"`
}

// CollectBamStats reads through a BAM file once and tallies its flags
func CollectBamStats(filename string) (*BamStats, error) {
	fh, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "bam %s", filename)
	}
	defer fh.Close()
	br, err := bam.NewReader(fh, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "bam %s", filename)
	}
	defer br.Close()

	stats := &BamStats{}
	for {
		rec, err := br.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "bam %s", filename)
		}
		stats.Total++
		f := rec.Flags
		if f&sam.Secondary != 0 {
			stats.Secondary++
		}
		if f&sam.Supplementary != 0 {
			stats.Supplementary++
		}
		if f&sam.Unmapped == 0 {
			stats.Mapped++
			if rec.MapQ >= 30 {
				stats.MapQ30++
			}
		}
		if f&sam.Duplicate != 0 {
			stats.Duplicates++
		}
		if f&sam.Paired != 0 {
			stats.Paired++
			if f&sam.ProperPair != 0 {
				stats.ProperPairs++
			}
		}
	}
	return stats, nil
}

// MappedRate prints the mapped fraction in human readable form
func (s *BamStats) MappedRate() string {
	return Percentage64(s.Mapped, s.Total)
}

// DuplicateRate prints the duplicate fraction in human readable form
func (s *BamStats) DuplicateRate() string {
	return Percentage64(s.Duplicates, s.Total)
}
