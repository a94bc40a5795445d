package migrate

import (
	"context"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/BartekS5/LDM/internal/config"
	"github.com/BartekS5/LDM/internal/source"
	"github.com/BartekS5/LDM/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		BatchSize:        100,
		ConcurrencyLimit: 1,
		UseTransactions:  true,
		CreatedBy:        "migration",
		UpdatedBy:        "migration",
		MissingDate:      "include",
		InvalidDate:      "warn-skip",
	}
}

func newTestEngine(cfg *config.Config, st store.Store) (*Engine, *test.Hook) {
	log, hook := test.NewNullLogger()
	return NewEngine(cfg, st, log), hook
}

// loadRecords builds a LoadData hook serving fresh copies of the given
// records, since the pipeline mutates them in place.
func loadRecords(recs ...Record) func(context.Context, *Migrator) ([]Record, *source.Summary, error) {
	return func(ctx context.Context, m *Migrator) ([]Record, *source.Summary, error) {
		out := make([]Record, len(recs))
		for i, r := range recs {
			c := make(Record, len(r))
			for k, v := range r {
				c[k] = v
			}
			out[i] = c
		}
		return out, nil, nil
	}
}

func widgetDesc() Descriptor {
	return Descriptor{
		Model:    "Widget",
		Priority: 1,
		IDField:  "id",
		Required: []string{"name"},
		Optional: []string{"size", "color", "count", "legacyId"},
		Defaults: map[string]any{"size": 10},
		Uniques: []UniqueConstraint{
			{Name: "widget_name", Fields: []string{"name"}},
		},
	}
}

func gadgetDesc() Descriptor {
	return Descriptor{
		Model:    "Gadget",
		Priority: 2,
		IDField:  "id",
		Required: []string{"widgetId"},
		Optional: []string{"label"},
		Dependencies: []Dependency{
			{Model: "Widget", ForeignKey: "widgetId"},
		},
	}
}
