// Package source loads the two supported legacy export formats and applies
// the incremental since-date window filter.
package source

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Record is one semi-structured record from a legacy export.
type Record = map[string]any

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadJSONL parses a line-delimited export. Each line is a JSON object that
// wraps the real record under wrapKey (the search-index export style); an
// empty wrapKey takes the line object itself. The first line may carry a
// UTF-8 byte-order mark and the final line may lack a terminating newline;
// both are handled. Malformed lines are counted on the summary and skipped.
func ReadJSONL(r io.Reader, wrapKey string, summary *Summary, emit func(Record)) error {
	br := bufio.NewReader(r)
	first := true

	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			if first {
				line = bytes.TrimPrefix(line, utf8BOM)
				first = false
			}
			parseJSONLine(line, wrapKey, summary, emit)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading export: %w", err)
		}
	}
}

func parseJSONLine(line []byte, wrapKey string, summary *Summary, emit func(Record)) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}

	var wrapper Record
	if err := json.Unmarshal(line, &wrapper); err != nil {
		summary.ParseErrors++
		return
	}

	rec := wrapper
	if wrapKey != "" {
		inner, ok := wrapper[wrapKey].(map[string]any)
		if !ok {
			summary.ParseErrors++
			return
		}
		rec = inner
	}

	summary.Scanned++
	emit(rec)
}
