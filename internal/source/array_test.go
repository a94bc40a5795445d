package source

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadArray(t *testing.T) {
	input := `[{"id":1,"name":"one"},{"id":2,"name":"two"}]`
	var recs []Record
	summary := &Summary{}
	err := ReadArray(strings.NewReader(input), summary, func(r Record) {
		recs = append(recs, r)
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "two", recs[1]["name"])
	assert.Equal(t, 2, summary.Scanned)
}

func TestReadArraySkipsNonObjectElements(t *testing.T) {
	input := `[{"id":1},"rogue",{"id":2},42]`
	var recs []Record
	summary := &Summary{}
	err := ReadArray(strings.NewReader(input), summary, func(r Record) {
		recs = append(recs, r)
	})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, 2, summary.ParseErrors)
}

func TestReadArrayWithBOM(t *testing.T) {
	input := "\xEF\xBB\xBF[{\"id\":1}]"
	var recs []Record
	summary := &Summary{}
	err := ReadArray(strings.NewReader(input), summary, func(r Record) {
		recs = append(recs, r)
	})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestReadArrayRejectsNonArray(t *testing.T) {
	summary := &Summary{}
	err := ReadArray(strings.NewReader(`{"id":1}`), summary, func(Record) {})
	require.Error(t, err)
}

func TestReadArrayEmpty(t *testing.T) {
	summary := &Summary{}
	err := ReadArray(strings.NewReader(`[]`), summary, func(Record) {
		t.Fatal("no records expected")
	})
	require.NoError(t, err)
}
