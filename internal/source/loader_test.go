package source

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFileDispatchesByExtension(t *testing.T) {
	jsonl := writeFile(t, "export.jsonl", `{"_source":{"id":"a"}}`+"\n")
	array := writeFile(t, "export.json", `[{"id":"b"}]`)

	recs, summary, err := LoadFile(jsonl, Options{WrapKey: "_source"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a", recs[0]["id"])
	assert.Equal(t, 1, summary.Retained)

	recs, _, err = LoadFile(array, Options{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "b", recs[0]["id"])
}

func TestLoadFileAppliesFilter(t *testing.T) {
	cutoff, err := time.Parse(time.RFC3339, "2025-01-01T00:00:00Z")
	require.NoError(t, err)

	path := writeFile(t, "export.json",
		`[{"id":"old","updatedAt":"2024-12-31T23:59:59Z"},{"id":"new","updatedAt":"2025-01-01T00:00:00Z"}]`)

	recs, summary, err := LoadFile(path, Options{Filter: &SinceFilter{Cutoff: cutoff}})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "new", recs[0]["id"])
	assert.Equal(t, 2, summary.Scanned)
	assert.Equal(t, 1, summary.Retained)
	assert.Equal(t, 1, summary.FilteredOld)
}

func TestLoadFileMissing(t *testing.T) {
	_, _, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"), Options{})
	require.Error(t, err)
}
