package migrate

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/BartekS5/LDM/internal/store"
)

// executeUpsert performs the write with one sanitize-and-retry attempt for
// the two recoverable failure classes. A failed retry degrades to a skip;
// unknown write errors propagate and abort the containing batch.
func (m *Migrator) executeUpsert(ctx context.Context, st store.Store, p *store.UpsertPayload) (store.UpsertResult, error) {
	res, err := st.Upsert(ctx, m.Desc.Model, *p)
	if err == nil {
		return res, nil
	}

	we, ok := store.AsWriteError(err)
	if !ok || we.Kind == store.WriteUnknown {
		return res, err
	}

	recID := p.Where[m.Desc.IDField]
	switch we.Kind {
	case store.WriteOverflow:
		if err := m.sanitizeOverflow(p, recID); err != nil {
			return res, err
		}
	case store.WriteTypeMismatch:
		// Best-effort: without field metadata nothing converts and the
		// record is skipped, matching the original give-up behavior.
		if !convertNumericStrings(p, we.FieldTypes) {
			return res, Skip("type mismatch with no convertible string fields", recID)
		}
	}

	m.log.WithFields(logrus.Fields{
		"recordID": recID,
		"kind":     we.Kind.String(),
	}).Warn("retrying upsert with sanitized payload")

	res, err = st.Upsert(ctx, m.Desc.Model, *p)
	if err != nil {
		return res, Skip(fmt.Sprintf("retry after %s recovery failed: %v", we.Kind, err), recID)
	}
	return res, nil
}

// sanitizeOverflow drops every field whose numeric value cannot fit a
// signed 32-bit column. An overflowing required field cannot be dropped, so
// the record is skipped instead. If nothing changes there is no point
// retrying.
func (m *Migrator) sanitizeOverflow(p *store.UpsertPayload, recID any) error {
	dropped := 0
	for _, section := range []map[string]any{p.Update, p.Create} {
		for field, v := range section {
			if !exceedsInt32(v) {
				continue
			}
			if m.Desc.isRequired(field) {
				return Skip("required field "+field+" overflows int32", recID)
			}
			delete(section, field)
			dropped++
		}
	}
	if dropped == 0 {
		return Skip("overflow with no droppable field", recID)
	}
	return nil
}

func exceedsInt32(v any) bool {
	switch n := v.(type) {
	case int:
		return n > math.MaxInt32 || n < math.MinInt32
	case int64:
		return n > math.MaxInt32 || n < math.MinInt32
	case uint64:
		return n > math.MaxInt32
	case float64:
		return n > math.MaxInt32 || n < math.MinInt32
	case float32:
		return float64(n) > math.MaxInt32 || float64(n) < math.MinInt32
	default:
		return false
	}
}

// convertNumericStrings walks the payload converting string values to the
// numeric representation the store expects, but only when the string is
// lexically a valid number of that type. Returns whether anything changed.
func convertNumericStrings(p *store.UpsertPayload, types map[string]store.FieldType) bool {
	if len(types) == 0 {
		return false
	}
	changed := false
	for _, section := range []map[string]any{p.Where, p.Update, p.Create} {
		if convertMap(section, types) {
			changed = true
		}
	}
	return changed
}

func convertMap(section map[string]any, types map[string]store.FieldType) bool {
	changed := false
	for field, v := range section {
		switch val := v.(type) {
		case string:
			ft, ok := types[field]
			if !ok {
				continue
			}
			if converted, ok := convertString(val, ft); ok {
				section[field] = converted
				changed = true
			}
		case map[string]any:
			if convertMap(val, types) {
				changed = true
			}
		case []any:
			for _, elem := range val {
				if nested, ok := elem.(map[string]any); ok {
					if convertMap(nested, types) {
						changed = true
					}
				}
			}
		}
	}
	return changed
}

func convertString(s string, ft store.FieldType) (any, bool) {
	switch ft {
	case store.FieldInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, false
		}
		return n, true
	case store.FieldFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		return f, true
	case store.FieldDecimal:
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, false
		}
		return d, true
	default:
		return nil, false
	}
}
