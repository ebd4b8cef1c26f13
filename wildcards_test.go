/*
 *  wildcards_test.go
 *  genoflow
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package genoflow_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/genoflow/genoflow"
)

func TestPatternMatch(t *testing.T) {
	p, err := genoflow.MakePattern("results/align/{sample}.sorted.bam")
	if err != nil {
		t.Fatal(err)
	}
	wc, ok := p.Match("results/align/S1.sorted.bam")
	if !ok {
		t.Fatal("expected a match")
	}
	if wc["sample"] != "S1" {
		t.Errorf("sample = %q, want S1", wc["sample"])
	}
	if _, ok := p.Match("results/align/a/b.sorted.bam"); ok {
		t.Error("wildcard must not cross a slash")
	}
	if _, ok := p.Match("results/align/S1.bam"); ok {
		t.Error("suffix must match literally")
	}
}

func TestPatternMatchConstraint(t *testing.T) {
	p, err := genoflow.MakePattern("calls/{contig,chr1|chr2}.bcf")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.Match("calls/chr2.bcf"); !ok {
		t.Error("chr2 should satisfy the constraint")
	}
	if _, ok := p.Match("calls/chr3.bcf"); ok {
		t.Error("chr3 should not satisfy the constraint")
	}
}

func TestPatternRepeatedWildcard(t *testing.T) {
	p, err := genoflow.MakePattern("pairs/{sample}/{sample}.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.Match("pairs/S1/S1.txt"); !ok {
		t.Error("agreeing repeats should match")
	}
	if _, ok := p.Match("pairs/S1/S2.txt"); ok {
		t.Error("disagreeing repeats must not match")
	}
	if n := len(p.Names()); n != 1 {
		t.Errorf("distinct names = %d, want 1", n)
	}
}

func TestPatternEscapedBraces(t *testing.T) {
	p, err := genoflow.MakePattern("awk/{{literal}}/{x}.txt")
	if err != nil {
		t.Fatal(err)
	}
	wc, ok := p.Match("awk/{literal}/v.txt")
	if !ok || wc["x"] != "v" {
		t.Fatalf("match = %v %v, want x=v", wc, ok)
	}
	if p.HasWildcards() != true {
		t.Error("pattern has a wildcard")
	}
}

func TestPatternErrors(t *testing.T) {
	for _, text := range []string{
		"a/{sample.txt",
		"a/}x.txt",
		"a/{9bad}.txt",
		"a/{x,(}.txt",
	} {
		if _, err := genoflow.MakePattern(text); err == nil {
			t.Errorf("MakePattern(%q) should fail", text)
		}
	}
}

func TestPatternFill(t *testing.T) {
	p, err := genoflow.MakePattern("trim/{sample}_R{read}.fastq.gz")
	if err != nil {
		t.Fatal(err)
	}
	got, err := p.Fill(genoflow.Wildcards{"sample": "S1", "read": "2"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "trim/S1_R2.fastq.gz" {
		t.Errorf("fill = %q", got)
	}
	if _, err := p.Fill(genoflow.Wildcards{"sample": "S1"}); err == nil {
		t.Error("missing wildcard value should fail the fill")
	}
}

func TestExpand(t *testing.T) {
	paths, err := genoflow.Expand("align/{sample}.{ext}", map[string][]string{
		"sample": {"S1", "S2"},
		"ext":    {"bam", "bai"},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"align/S1.bam", "align/S1.bai", "align/S2.bam", "align/S2.bai"}
	if len(paths) != len(want) {
		t.Fatalf("expanded %d paths, want %d", len(paths), len(want))
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestGlobWildcards(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "trim")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"S2_R1.fastq.gz", "S1_R1.fastq.gz", "S1_R2.fastq.gz", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(sub, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	found, err := genoflow.GlobWildcards(dir + "/trim/{sample}_R{read}.fastq.gz")
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 3 {
		t.Fatalf("found %d matches, want 3", len(found))
	}
	if found[0]["sample"] != "S1" || found[0]["read"] != "1" {
		t.Errorf("first match = %v, want S1 R1", found[0])
	}
	if found[2]["sample"] != "S2" {
		t.Errorf("last match = %v, want S2", found[2])
	}

	none, err := genoflow.GlobWildcards(dir + "/missing/{x}.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("missing directory should glob to nothing, got %v", none)
	}
}

func TestWildcardsString(t *testing.T) {
	wc := genoflow.Wildcards{"sample": "S1", "contig": "chr2"}
	if got := wc.String(); got != "contig=chr2, sample=S1" {
		t.Errorf("String() = %q", got)
	}
}
