package source

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// ReadArray parses a top-level JSON array with a streaming element decoder,
// so memory is bounded by one record at a time. Elements that are not
// objects are counted as parse errors and skipped; syntax corruption of the
// array itself aborts.
func ReadArray(r io.Reader, summary *Summary, emit func(Record)) error {
	br := bufio.NewReader(r)
	stripBOM(br)

	dec := json.NewDecoder(br)

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("reading array export: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return fmt.Errorf("array export: expected top-level array, got %v", tok)
	}

	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("array export: %w", err)
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			summary.ParseErrors++
			continue
		}
		summary.Scanned++
		emit(rec)
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("array export: unterminated array: %w", err)
	}
	return nil
}

func stripBOM(br *bufio.Reader) {
	head, err := br.Peek(len(utf8BOM))
	if err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
}
