package migrate

import (
	"time"

	"github.com/BartekS5/LDM/internal/store"
)

// buildPayload shapes the resolved fields into an upsert payload. In full
// mode the update carries every resolved field except the id; in
// incremental mode only the configured field subset is updated, while the
// create side is always written in full so brand-new rows are complete.
func (m *Migrator) buildPayload(fields Fields, res *BatchResult) (*store.UpsertPayload, error) {
	d := &m.Desc

	id, ok := fields[d.IDField].Get()
	if !ok || id == nil {
		return nil, Skip("no id value to upsert by", nil)
	}

	p := &store.UpsertPayload{
		Where:  map[string]any{d.IDField: id},
		Update: make(map[string]any),
		Create: make(map[string]any),
	}

	incremental := m.cfg.Incremental()
	if incremental && len(m.cfg.IncrementalFields) == 0 {
		m.fallbackWarned.Do(func() {
			m.log.Warn("incremental mode with no incremental fields configured, falling back to full updates")
		})
		incremental = false
	}

	now := time.Now().UTC()

	if incremental {
		for _, f := range m.cfg.IncrementalFields {
			if f == d.IDField {
				continue
			}
			v, ok := fields[f].Get()
			if !ok {
				// Absent: leave the stored value untouched.
				res.IncrementalMissing[f]++
				continue
			}
			res.IncrementalCovered[f]++
			p.Update[f] = v
		}
	} else {
		for _, f := range d.allFields() {
			if f == d.IDField {
				continue
			}
			if v, ok := fields[f].Get(); ok {
				p.Update[f] = v
			}
		}
	}

	if _, ok := p.Update["updatedAt"]; !ok {
		p.Update["updatedAt"] = now
	}
	p.Update["updatedBy"] = m.cfg.UpdatedBy

	p.Create[d.IDField] = id
	for _, f := range d.allFields() {
		if f == d.IDField {
			continue
		}
		if v, ok := fields[f].Get(); ok {
			p.Create[f] = v
		}
	}
	if _, ok := p.Create["createdAt"]; !ok {
		p.Create["createdAt"] = now
	}
	p.Create["createdBy"] = m.cfg.CreatedBy

	return p, nil
}
