package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Summary carries the loader's advisory counters. They feed the per-model
// log line and nothing else.
type Summary struct {
	Scanned     int
	Retained    int
	FilteredOld int
	MissingDate int
	InvalidDate int
	Suspicious  int
	ParseErrors int
	FieldUsage  map[string]int
}

func (s *Summary) fieldUsed(field string) {
	if s.FieldUsage == nil {
		s.FieldUsage = make(map[string]int)
	}
	s.FieldUsage[field]++
}

// Fields renders the summary for structured logging.
func (s *Summary) Fields() logrus.Fields {
	return logrus.Fields{
		"scanned":     s.Scanned,
		"retained":    s.Retained,
		"filteredOld": s.FilteredOld,
		"missingDate": s.MissingDate,
		"invalidDate": s.InvalidDate,
		"suspicious":  s.Suspicious,
		"parseErrors": s.ParseErrors,
		"fieldUsage":  s.FieldUsage,
	}
}

// Options configures a load.
type Options struct {
	// WrapKey is the nesting key for JSONL exports ("_source" style).
	WrapKey string
	// Filter, when non-nil, applies the since-date window.
	Filter *SinceFilter
}

// LoadFile reads one export file, dispatching on extension: .jsonl and
// .ndjson are line-delimited, everything else is treated as a top-level
// JSON array.
func LoadFile(path string, opts Options) ([]Record, *Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening export %s: %w", path, err)
	}
	defer f.Close()

	summary := &Summary{}
	var records []Record
	emit := func(rec Record) {
		if opts.Filter != nil && !opts.Filter.Keep(rec, summary) {
			return
		}
		summary.Retained++
		records = append(records, rec)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		err = ReadJSONL(f, opts.WrapKey, summary, emit)
	default:
		err = ReadArray(f, summary, emit)
	}
	if err != nil {
		return nil, summary, err
	}
	return records, summary, nil
}
