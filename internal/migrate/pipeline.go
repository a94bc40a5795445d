package migrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/BartekS5/LDM/internal/store"
)

// processRecord pushes one record through the hook chain. A nil return
// means the record was upserted; a skip error means it was rejected at
// some step; any other error is a store-level failure that aborts the
// containing batch.
func (m *Migrator) processRecord(ctx context.Context, st store.Store, rec Record, tracker *uniqueTracker, res *BatchResult) error {
	d := &m.Desc

	if m.Hooks.BeforeValidation != nil {
		m.Hooks.BeforeValidation(m, rec)
	}

	fields := make(Fields, len(d.Required)+len(d.Optional)+1)

	if v, ok := rec[d.IDField]; ok && v != nil {
		fields[d.IDField] = Explicit(v)
	} else {
		fields[d.IDField] = Absent()
	}
	recID := fields.Value(d.IDField)

	// Required fields.
	for _, f := range d.Required {
		raw, present := rec[f]
		if (!present || raw == nil) && m.cfg.SkipMissingRequired {
			return Skip("missing required field "+f, recID)
		}
		fv := m.resolveField(rec, f, true)
		fields[f] = fv
		if fv.IsAbsent() && !d.hasSchemaDefault(f) {
			return Skip("required field "+f+" has no value and no default", recID)
		}
	}

	// Optional fields.
	for _, f := range d.Optional {
		fields[f] = m.resolveField(rec, f, false)
	}

	// Unique constraints: batch tracker first, then a live lookup that
	// excludes the current id.
	for _, uc := range d.Uniques {
		if err := m.checkUnique(ctx, st, uc, fields, recID, tracker); err != nil {
			return err
		}
	}

	// Dependency gating against the run registry.
	for _, dep := range d.Dependencies {
		fk := fields.Value(dep.ForeignKey)
		if fk == nil {
			fk = rec[dep.ForeignKey]
		}
		if !m.state.HasID(dep.Model, fk) {
			return Skip(fmt.Sprintf("dependency %s=%v not satisfied", dep.ForeignKey, fk), recID)
		}
	}

	if m.Hooks.Validate != nil {
		if err := m.Hooks.Validate(m, rec, fields); err != nil {
			return err
		}
	}

	if m.Hooks.CustomizeRecord != nil {
		m.Hooks.CustomizeRecord(m, rec, fields)
	}

	payload, err := m.buildPayload(fields, res)
	if err != nil {
		return err
	}
	if m.Hooks.CustomizeUpsert != nil {
		m.Hooks.CustomizeUpsert(m, payload, rec)
	}

	result, err := m.executeUpsert(ctx, st, payload)
	if err != nil {
		return err
	}

	if result.Created {
		res.Created++
	} else {
		res.Updated++
	}
	if m.cfg.CollectUpsertStats {
		for f := range payload.Update {
			res.FieldUpdates[f]++
		}
	}

	m.state.RegisterID(d.Model, result.Record[d.IDField])
	if m.Hooks.AfterUpsert != nil {
		m.Hooks.AfterUpsert(m, result.Record, rec)
	}
	return nil
}

func (m *Migrator) checkUnique(ctx context.Context, st store.Store, uc UniqueConstraint, fields Fields, recID any, tracker *uniqueTracker) error {
	values := make([]any, 0, len(uc.Fields))
	where := make(map[string]any, len(uc.Fields))
	for _, f := range uc.Fields {
		fv := fields[f]
		if fv.IsAbsent() {
			return Skip("unique constraint "+uc.Name+" not determinable: "+f+" unresolved", recID)
		}
		v, _ := fv.Get()
		values = append(values, v)
		where[f] = v
	}

	key := compositeKey(values)
	if !tracker.add(uc.Name, key) {
		return Skip("duplicate in batch for unique constraint "+uc.Name, recID)
	}

	rows, err := st.FindMany(ctx, m.Desc.Model, where)
	if err != nil {
		return fmt.Errorf("unique lookup %s: %w", uc.Name, err)
	}
	for _, row := range rows {
		if recID == nil || fmt.Sprint(row[m.Desc.IDField]) != fmt.Sprint(recID) {
			return Skip("unique constraint "+uc.Name+" violated by existing row", recID)
		}
	}
	return nil
}

// IsSkip reports whether err marks a skipped record and returns its
// reason.
func IsSkip(err error) (*skipError, bool) {
	var sk *skipError
	if errors.As(err, &sk) {
		return sk, true
	}
	return nil, false
}
