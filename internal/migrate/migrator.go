package migrate

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/BartekS5/LDM/internal/config"
	"github.com/BartekS5/LDM/internal/source"
	"github.com/BartekS5/LDM/internal/store"
)

// Record is a semi-structured source record. It is the same shape the
// source and store packages exchange.
type Record = map[string]any

// Hooks is the per-model table of pure functions driven by the generic
// pipeline. Every entry is optional; nil means the default no-op.
type Hooks struct {
	// LoadData replaces the default file loader entirely.
	LoadData func(ctx context.Context, m *Migrator) ([]Record, *source.Summary, error)
	// BeforeMigration runs once after loading, e.g. to preload existing
	// ids into the dependency registry.
	BeforeMigration func(ctx context.Context, m *Migrator, recs []Record) ([]Record, error)
	// BeforeValidation normalizes a raw record, e.g. deriving a missing
	// key from an alias field.
	BeforeValidation func(m *Migrator, rec Record)
	// Validate may reject a record; return a skip error via Skip().
	Validate func(m *Migrator, rec Record, fields Fields) error
	// CustomizeRecord mutates the resolved fields, e.g. generating an id
	// or mapping a legacy enum string.
	CustomizeRecord func(m *Migrator, rec Record, fields Fields)
	// CustomizeUpsert adjusts the final payload.
	CustomizeUpsert func(m *Migrator, p *store.UpsertPayload, rec Record)
	// AfterUpsert sees the written row, e.g. to stage nested children now
	// that the parent's id is known.
	AfterUpsert func(m *Migrator, written store.Record, rec Record)
	// AfterMigration runs once with the model's final stats.
	AfterMigration func(m *Migrator, stats *ModelStats)
}

// Migrator runs one model's load/validate/transform/write cycle.
type Migrator struct {
	Desc  Descriptor
	Hooks Hooks

	cfg   *config.Config
	st    store.Store
	log   *logrus.Entry
	state *RunState

	fallbackWarned sync.Once
}

// State exposes the run-scoped registry to hooks.
func (m *Migrator) State() *RunState { return m.state }

// Config exposes the run configuration to hooks.
func (m *Migrator) Config() *config.Config { return m.cfg }

// Log exposes the model-scoped logger to hooks.
func (m *Migrator) Log() *logrus.Entry { return m.log }

// Store exposes the persistence layer to hooks.
func (m *Migrator) Store() store.Store { return m.st }

// skipError marks a record as skipped: counted and logged, never fatal.
type skipError struct {
	reason string
	id     any
}

func (e *skipError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("record %v skipped: %s", e.id, e.reason)
	}
	return "record skipped: " + e.reason
}

// Skip builds a record-skip error carrying the record's id for
// traceability when available.
func Skip(reason string, id any) error { return &skipError{reason: reason, id: id} }

// resolveField implements the missing-value resolution ladder: a present
// non-nil value wins; otherwise the field is omitted when the store
// supplies a schema default, filled from the static default table, omitted
// when optional, and flagged (omitted, record skipped downstream) when
// required with nothing to fall back on.
func (m *Migrator) resolveField(rec Record, field string, required bool) FieldValue {
	if v, ok := rec[field]; ok && v != nil {
		return Explicit(v)
	}
	return m.handleMissing(rec, field, required)
}

func (m *Migrator) handleMissing(rec Record, field string, required bool) FieldValue {
	if m.cfg.SkipMissingRequired && required {
		return Absent()
	}
	if m.Desc.hasSchemaDefault(field) {
		return Absent()
	}
	if def, ok := m.Desc.Defaults[field]; ok {
		return Explicit(def)
	}
	if !required {
		return Absent()
	}
	m.log.WithFields(logrus.Fields{
		"recordID": rec[m.Desc.IDField],
		"field":    field,
	}).Error("required field missing with no resolvable default")
	return Absent()
}

// uniqueTracker scopes composite-key dedup to one batch. Uniqueness beyond
// the batch comes from the live store lookup, not from memory.
type uniqueTracker struct {
	seen map[string]map[string]struct{}
}

func newUniqueTracker() *uniqueTracker {
	return &uniqueTracker{seen: make(map[string]map[string]struct{})}
}

// add records the key and reports whether it was new to this batch.
func (t *uniqueTracker) add(constraint, key string) bool {
	set, ok := t.seen[constraint]
	if !ok {
		set = make(map[string]struct{})
		t.seen[constraint] = set
	}
	if _, dup := set[key]; dup {
		return false
	}
	set[key] = struct{}{}
	return true
}

func compositeKey(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "\x1f")
}
