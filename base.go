/*
 *  base.go
 *  genoflow
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package genoflow

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	logging "github.com/op/go-logging"
)

const (
	// Version is the current version of genoflow
	Version = "0.6.1"
	// StateDirName is the per-project state directory created next to the results
	StateDirName = ".genoflow"
	// ConfigFileName is the default project configuration file
	ConfigFileName = "genoflow.yaml"
	// SampleSheetName is the default per-sample file manifest
	SampleSheetName = "samples.tsv"
	// DefaultCores is the core budget used when none is configured
	DefaultCores = 4
	// DefaultJobMemMB is the memory hint assumed for rules that declare none
	DefaultJobMemMB = 1024
	// BenchHeader is the first line of every benchmark sidecar file
	BenchHeader = "s\th:m:s\tmax_rss_mb\tcpu_s\texit"
)

var log = logging.MustGetLogger("genoflow")
var format = logging.MustStringFormatter(
	`%{color}%{time:15:04:05} %{shortfunc} | %{level:.6s} %{color:reset} %{message}`,
)

// Backend is the default stderr output
var Backend = logging.NewLogBackend(os.Stderr, "", 0)

// BackendFormatter contains the fancy debug formatter
var BackendFormatter = logging.NewBackendFormatter(Backend, format)

// RemoveExt returns the substring minus the extension
func RemoveExt(filename string) string {
	return strings.TrimSuffix(filename, path.Ext(filename))
}

// IsNewerFile checks if file a is newer than file b
func IsNewerFile(a, b string) bool {
	af, aerr := os.Stat(a)
	bf, berr := os.Stat(b)
	if os.IsNotExist(aerr) || os.IsNotExist(berr) {
		return false
	}
	am := af.ModTime()
	bm := bf.ModTime()
	return am.Sub(bm) > 0
}

// FileExists checks that a path exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// Percentage prints a human readable message of the percentage
func Percentage(a, b int) string {
	if b == 0 {
		return fmt.Sprintf("%d of %d", a, b)
	}
	return fmt.Sprintf("%d of %d (%.1f %%)", a, b, float64(a)*100./float64(b))
}

// Percentage64 is Percentage for int64 tallies, e.g. read counts
func Percentage64(a, b int64) string {
	if b == 0 {
		return fmt.Sprintf("%d of %d", a, b)
	}
	return fmt.Sprintf("%d of %d (%.1f %%)", a, b, float64(a)*100./float64(b))
}

// min gets the minimum for two ints
func min(x, y int) int {
	if x < y {
		return x
	}
	return y
}

// ReadTSVRecords parses a tab-separated file into rows of tokens, skipping
// the header line and lines starting with '#'
func ReadTSVRecords(filename string) ([][]string, error) {
	fh, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	var data [][]string
	r := csv.NewReader(bufio.NewReader(fh))
	r.Comma = '\t'
	r.Comment = '#'
	r.FieldsPerRecord = -1
	for i := 0; ; i++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %v", filename, err)
		}
		if i == 0 {
			continue // Skip header
		}
		data = append(data, rec)
	}
	return data, nil
}
