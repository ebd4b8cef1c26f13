/*
 *  fasta_test.go
 *  genoflow
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package genoflow_test

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/genoflow/genoflow"
)

const toyGenome = ">chr1\nACGTACGTAC\n>chr2\nACGT\n>chr3\nACGTACGTACGTACGT\n"

func TestContigSizes(t *testing.T) {
	dir := t.TempDir()
	genome := filepath.Join(dir, "genome.fa")
	writeFile(t, genome, toyGenome)

	contigs, err := genoflow.ContigSizes(genome)
	if err != nil {
		t.Fatal(err)
	}
	want := []genoflow.Contig{{"chr1", 10}, {"chr2", 4}, {"chr3", 16}}
	if !reflect.DeepEqual(contigs, want) {
		t.Errorf("contigs = %v, want %v", contigs, want)
	}
	if !genoflow.FileExists(genome + ".fai") {
		t.Error("the .fai index should be left behind for the aligners")
	}
}

func TestContigSizesStaleIndex(t *testing.T) {
	dir := t.TempDir()
	genome := filepath.Join(dir, "genome.fa")
	writeFile(t, genome, toyGenome)
	if _, err := genoflow.ContigSizes(genome); err != nil {
		t.Fatal(err)
	}

	// Grow the genome and age the index, the stale index must not win
	writeFile(t, genome, toyGenome+">chr4\nACGTAC\n")
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(genome+".fai", old, old); err != nil {
		t.Fatal(err)
	}
	contigs, err := genoflow.ContigSizes(genome)
	if err != nil {
		t.Fatal(err)
	}
	if len(contigs) != 4 || contigs[3].Name != "chr4" || contigs[3].Length != 6 {
		t.Errorf("contigs = %v, want the rebuilt index to see chr4", contigs)
	}
}

func TestContigSizesMissingGenome(t *testing.T) {
	if _, err := genoflow.ContigSizes(filepath.Join(t.TempDir(), "nope.fa")); err == nil {
		t.Fatal("a missing genome must not index")
	}
}

func TestCountFastq(t *testing.T) {
	dir := t.TempDir()
	fq := filepath.Join(dir, "reads.fastq")
	writeFile(t, fq, "@r1\nACGTACGTAC\n+\nFFFFFFFFFF\n"+
		"@r2\nACGT\n+\nFFFF\n"+
		"@r3\nACGTAC\n+\nFFFFFF\n")

	stats, err := genoflow.CountFastq(fq)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Records != 3 || stats.Bases != 20 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestCountFastqGzip(t *testing.T) {
	dir := t.TempDir()
	fq := filepath.Join(dir, "reads.fq.gz")
	f, err := os.Create(fq)
	if err != nil {
		t.Fatal(err)
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write([]byte("@r1\nACGTACGTAC\n+\nFFFFFFFFFF\n@r2\nACGTACGT\n+\nFFFFFFFF\n")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	stats, err := genoflow.CountFastq(fq)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Records != 2 || stats.Bases != 18 {
		t.Errorf("stats = %+v", stats)
	}
}
