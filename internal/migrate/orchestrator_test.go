package migrate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/LDM/internal/source"
	"github.com/BartekS5/LDM/internal/store"
)

func TestRunOrdersModelsByPriority(t *testing.T) {
	mem := store.NewMemoryStore()
	e, _ := newTestEngine(testConfig(), mem)

	var mu sync.Mutex
	var order []string
	track := func(model string) func(context.Context, *Migrator) ([]Record, *source.Summary, error) {
		return func(ctx context.Context, m *Migrator) ([]Record, *source.Summary, error) {
			mu.Lock()
			order = append(order, model)
			mu.Unlock()
			return nil, nil, nil
		}
	}

	// Registered out of priority order on purpose.
	e.Register(Descriptor{Model: "Third", Priority: 30, IDField: "id"}, Hooks{LoadData: track("Third")})
	e.Register(Descriptor{Model: "First", Priority: 10, IDField: "id"}, Hooks{LoadData: track("First")})
	e.Register(Descriptor{Model: "Second", Priority: 20, IDField: "id"}, Hooks{LoadData: track("Second")})

	_, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"First", "Second", "Third"}, order)
}

func TestNestedDataStaging(t *testing.T) {
	mem := store.NewMemoryStore()
	e, _ := newTestEngine(testConfig(), mem)

	parent := widgetDesc()
	child := Descriptor{
		Model:    "Part",
		Priority: 5,
		IDField:  "id",
		Required: []string{"widgetId", "label"},
		Dependencies: []Dependency{
			{Model: "Widget", ForeignKey: "widgetId"},
		},
	}

	e.Register(parent, Hooks{
		LoadData: loadRecords(Record{
			"id":   "w1",
			"name": "alpha",
			"parts": []any{
				map[string]any{"id": "p1", "label": "gear"},
				map[string]any{"id": "p2", "label": "spring"},
			},
		}),
		AfterUpsert: func(m *Migrator, written store.Record, rec Record) {
			parts, _ := rec["parts"].([]any)
			for _, raw := range parts {
				part, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				part["widgetId"] = written["id"]
				m.State().Stage("Part", part)
			}
		},
	})
	e.Register(child, Hooks{})

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	processed, skipped := report.Totals()
	assert.Equal(t, 3, processed)
	assert.Zero(t, skipped)

	parts := mem.Rows("Part")
	require.Len(t, parts, 2)
	for _, p := range parts {
		assert.Equal(t, "w1", p["widgetId"])
	}
}

func TestRunIsIdempotent(t *testing.T) {
	mem := store.NewMemoryStore()
	records := []Record{
		{"id": "w1", "name": "alpha"},
		{"id": "w2", "name": "beta"},
	}

	run := func() *RunReport {
		e, _ := newTestEngine(testConfig(), mem)
		e.Register(widgetDesc(), Hooks{
			BeforeMigration: preloadExistingIDs,
			LoadData:        loadRecords(records...),
		})
		report, err := e.Run(context.Background())
		require.NoError(t, err)
		return report
	}

	first := run()
	second := run()

	assert.Len(t, mem.Rows("Widget"), 2, "second run does not duplicate rows")
	assert.Equal(t, 2, first.Models[0].Created)
	assert.Zero(t, second.Models[0].Created)
	assert.Equal(t, 2, second.Models[0].Updated, "second run's processed count reflects updates")
}

func TestRunFatalErrorReturnsPartialStats(t *testing.T) {
	mem := store.NewMemoryStore()
	e, _ := newTestEngine(testConfig(), mem)

	e.Register(widgetDesc(), Hooks{
		LoadData: loadRecords(Record{"id": "w1", "name": "alpha"}),
	})
	e.Register(Descriptor{Model: "Broken", Priority: 9, IDField: "id"}, Hooks{
		LoadData: func(ctx context.Context, m *Migrator) ([]Record, *source.Summary, error) {
			return nil, nil, errors.New("export file corrupted")
		},
	})

	report, err := e.Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "Broken")
	require.Len(t, report.Models, 1, "stats for completed models survive the abort")
	assert.Equal(t, "Widget", report.Models[0].Model)
	assert.Equal(t, 1, report.Models[0].Processed)
}

func TestMigratorsOnlyFilter(t *testing.T) {
	cfg := testConfig()
	cfg.MigratorsOnly = []string{"Gadget"}

	mem := store.NewMemoryStore()
	mem.Seed("Widget", Record{"id": "w1", "name": "preexisting"})

	e, _ := newTestEngine(cfg, mem)
	e.Register(widgetDesc(), Hooks{
		LoadData: loadRecords(Record{"id": "w9", "name": "should-not-load"}),
	})
	e.Register(gadgetDesc(), Hooks{
		BeforeMigration: func(ctx context.Context, m *Migrator, recs []Record) ([]Record, error) {
			// Seed parent ids from the store since the Widget migrator
			// was filtered out of this run.
			rows, err := m.Store().FindMany(ctx, "Widget", nil)
			if err != nil {
				return nil, err
			}
			for _, row := range rows {
				m.State().RegisterID("Widget", row["id"])
			}
			return recs, nil
		},
		LoadData: loadRecords(Record{"id": "g1", "widgetId": "w1"}),
	})

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Models, 1)
	assert.Equal(t, "Gadget", report.Models[0].Model)
	assert.Len(t, mem.Rows("Widget"), 1, "filtered migrator never ran")
	assert.Len(t, mem.Rows("Gadget"), 1)
}

func TestDefaultFileLoaderWithIncrementalWindow(t *testing.T) {
	dir := t.TempDir()
	content := `{"_source":{"id":"old","name":"old","updatedAt":"2024-12-31T23:59:59Z"}}
{"_source":{"id":"new","name":"new","updatedAt":"2025-01-01T00:00:00Z"}}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "widgets.jsonl"), []byte(content), 0o644))

	cfg := testConfig()
	cfg.DataDirectory = dir
	cfg.IncrementalSince = "2025-01-01T00:00:00Z"
	cfg.IncrementalFields = []string{"name"}

	desc := widgetDesc()
	desc.Filename = "widgets.jsonl"

	mem := store.NewMemoryStore()
	e, _ := newTestEngine(cfg, mem)
	e.Register(desc, Hooks{})

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	processed, _ := report.Totals()
	assert.Equal(t, 1, processed)

	require.Len(t, report.Models, 1)
	summary := report.Models[0].Source
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.Scanned)
	assert.Equal(t, 1, summary.FilteredOld)

	rows := mem.Rows("Widget")
	require.Len(t, rows, 1)
	assert.Equal(t, "new", rows[0]["id"])
}

func TestMissingDataDirectoryIsFatal(t *testing.T) {
	desc := widgetDesc()
	desc.Filename = "widgets.jsonl"

	e, _ := newTestEngine(testConfig(), store.NewMemoryStore())
	e.Register(desc, Hooks{})

	_, err := e.Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "DATA_DIRECTORY")
}

func TestFilenameOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "override.json"),
		[]byte(`[{"id":"w1","name":"alpha"}]`), 0o644))

	cfg := testConfig()
	cfg.DataDirectory = dir
	cfg.FileOverrides = map[string]string{"Widget": "override.json"}

	desc := widgetDesc()
	desc.Filename = "widgets.jsonl"

	mem := store.NewMemoryStore()
	e, _ := newTestEngine(cfg, mem)
	e.Register(desc, Hooks{})

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	processed, _ := report.Totals()
	assert.Equal(t, 1, processed)
}
