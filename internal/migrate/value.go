// Package migrate implements the dependency-ordered migration engine:
// descriptor registry, record pipeline, payload builder, write recovery,
// batch execution and the orchestrator.
package migrate

// fieldKind discriminates the three states a resolved field can be in.
// Absent means "omit from the write so the store default applies", which is
// a different thing from an explicit null.
type fieldKind int

const (
	kindAbsent fieldKind = iota
	kindNull
	kindExplicit
)

// FieldValue is a resolved field: Absent, Null, or Explicit(value).
type FieldValue struct {
	kind fieldKind
	val  any
}

func Absent() FieldValue        { return FieldValue{kind: kindAbsent} }
func Null() FieldValue          { return FieldValue{kind: kindNull} }
func Explicit(v any) FieldValue { return FieldValue{kind: kindExplicit, val: v} }

// FromAny maps a raw record value: nil becomes Null, anything else
// Explicit.
func FromAny(v any) FieldValue {
	if v == nil {
		return Null()
	}
	return Explicit(v)
}

func (f FieldValue) IsAbsent() bool   { return f.kind == kindAbsent }
func (f FieldValue) IsNull() bool     { return f.kind == kindNull }
func (f FieldValue) IsExplicit() bool { return f.kind == kindExplicit }

// Get returns the concrete value and whether one should be written at all.
// Null yields (nil, true): it is written, as a null.
func (f FieldValue) Get() (any, bool) {
	switch f.kind {
	case kindExplicit:
		return f.val, true
	case kindNull:
		return nil, true
	default:
		return nil, false
	}
}

// Fields is the per-record resolved field set flowing through the pipeline.
type Fields map[string]FieldValue

// Set overrides a field with an explicit value.
func (fs Fields) Set(field string, v any) { fs[field] = FromAny(v) }

// Value returns the concrete value for field, or nil when absent/null.
func (fs Fields) Value(field string) any {
	v, _ := fs[field].Get()
	return v
}
