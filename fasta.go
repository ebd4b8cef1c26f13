/*
 *  fasta.go
 *  genoflow
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package genoflow

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fai"
	"github.com/shenwei356/bio/seqio/fastx"
)

// Contig is one reference sequence with its length
type Contig struct {
	Name   string
	Length int
}

// ContigSizes lists the contigs of a FASTA file in file order, building
// or refreshing the .fai index as needed. Workflows that scatter over
// chromosomes call this while laying out their rules, so the reference
// must already be in place.
func ContigSizes(fastafile string) ([]Contig, error) {
	if !FileExists(fastafile) {
		return nil, fmt.Errorf("genome %s not found, cannot enumerate contigs", fastafile)
	}
	faifile := fastafile + ".fai"
	// Check if the .fai file is outdated
	if !IsNewerFile(faifile, fastafile) {
		os.Remove(faifile)
	}

	faidx, err := fai.New(fastafile)
	if err != nil {
		return nil, errors.Wrapf(err, "index %s", fastafile)
	}
	defer faidx.Close()

	type rec struct {
		name   string
		length int
		start  int64
	}
	recs := make([]rec, 0, len(faidx.Index))
	for name, r := range faidx.Index {
		recs = append(recs, rec{name, r.Length, r.Start})
	}
	// The byte offset recovers the order of the FASTA file
	sort.Slice(recs, func(i, j int) bool { return recs[i].start < recs[j].start })

	contigs := make([]Contig, 0, len(recs))
	for _, r := range recs {
		contigs = append(contigs, Contig{Name: r.name, Length: r.length})
	}
	if len(contigs) == 0 {
		return nil, fmt.Errorf("genome %s contains no sequences", fastafile)
	}
	return contigs, nil
}

// FastqStats tallies one FASTQ file
type FastqStats struct {
	Records int64
	Bases   int64
}

// CountFastq counts records and bases, reading through gzip
// transparently
func CountFastq(filename string) (*FastqStats, error) {
	reader, err := fastx.NewDefaultReader(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "fastq %s", filename)
	}
	seq.ValidateSeq = false // This flag makes parsing much faster

	stats := &FastqStats{}
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "fastq %s", filename)
		}
		stats.Records++
		stats.Bases += int64(rec.Seq.Length())
	}
	return stats, nil
}
