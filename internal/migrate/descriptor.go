package migrate

import (
	"fmt"
	"sort"
)

// Dependency declares that a model's foreign key must reference a primary
// key already confirmed valid for the parent model.
type Dependency struct {
	Model      string
	ForeignKey string
}

// UniqueConstraint names an ordered field group that must be unique within
// a batch plus a live store lookup.
type UniqueConstraint struct {
	Name   string
	Fields []string
}

// Descriptor is the static per-model configuration. Immutable per run.
type Descriptor struct {
	Model    string
	Filename string
	// Priority orders model execution, lower first. It is hand-ordered to
	// be consistent with Dependencies; the engine does not cross-check the
	// two (known gap).
	Priority int
	IDField  string
	Required []string
	Optional []string
	// SchemaDefaults lists fields the store fills in when omitted from the
	// write.
	SchemaDefaults []string
	Uniques        []UniqueConstraint
	Dependencies   []Dependency
	Defaults       map[string]any
}

func (d *Descriptor) hasSchemaDefault(field string) bool {
	for _, f := range d.SchemaDefaults {
		if f == field {
			return true
		}
	}
	return false
}

func (d *Descriptor) isRequired(field string) bool {
	for _, f := range d.Required {
		if f == field {
			return true
		}
	}
	return false
}

func (d *Descriptor) isOptional(field string) bool {
	for _, f := range d.Optional {
		if f == field {
			return true
		}
	}
	return false
}

func (d *Descriptor) allFields() []string {
	out := make([]string, 0, len(d.Required)+len(d.Optional))
	out = append(out, d.Required...)
	out = append(out, d.Optional...)
	return out
}

// ValidateDescriptors checks the static table once at startup: every
// dependency parent must be a declared model and every constraint field a
// declared field of its model. Violations are run-fatal.
func ValidateDescriptors(descs []Descriptor) error {
	known := make(map[string]*Descriptor, len(descs))
	for i := range descs {
		d := &descs[i]
		if d.Model == "" {
			return fmt.Errorf("descriptor %d: missing model name", i)
		}
		if d.IDField == "" {
			return fmt.Errorf("descriptor %s: missing id field", d.Model)
		}
		if _, dup := known[d.Model]; dup {
			return fmt.Errorf("descriptor %s: declared twice", d.Model)
		}
		known[d.Model] = d
	}

	for _, d := range descs {
		declared := make(map[string]bool, len(d.Required)+len(d.Optional)+1)
		declared[d.IDField] = true
		for _, f := range d.allFields() {
			declared[f] = true
		}

		for _, dep := range d.Dependencies {
			if _, ok := known[dep.Model]; !ok {
				return fmt.Errorf("descriptor %s: dependency on unknown model %s", d.Model, dep.Model)
			}
			if !declared[dep.ForeignKey] {
				return fmt.Errorf("descriptor %s: dependency fkey %s is not a declared field", d.Model, dep.ForeignKey)
			}
		}
		for _, uc := range d.Uniques {
			for _, f := range uc.Fields {
				if !declared[f] {
					return fmt.Errorf("descriptor %s: unique constraint %s references undeclared field %s", d.Model, uc.Name, f)
				}
			}
		}
	}
	return nil
}

// byPriority returns migrators sorted ascending by priority, stable so
// registration order breaks ties.
func byPriority(ms []*Migrator) []*Migrator {
	out := make([]*Migrator, len(ms))
	copy(out, ms)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Desc.Priority < out[j].Desc.Priority
	})
	return out
}
