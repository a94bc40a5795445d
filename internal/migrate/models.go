package migrate

import (
	"context"

	"github.com/google/uuid"
)

// Model names, in load-order priority. Priorities are hand-ordered to
// respect the dependency edges declared below.
const (
	ModelChallengeType             = "ChallengeType"
	ModelTimelineTemplate          = "TimelineTemplate"
	ModelChallengeTimelineTemplate = "ChallengeTimelineTemplate"
	ModelChallenge                 = "Challenge"
	ModelPhase                     = "Phase"
)

// legacyStatusMap translates the legacy export's status strings to the
// target enum. Unmapped values resolve to Absent so the store default
// applies.
var legacyStatusMap = map[string]string{
	"Active":                    "ACTIVE",
	"Draft":                     "DRAFT",
	"New":                       "NEW",
	"Completed":                 "COMPLETED",
	"Deleted":                   "DELETED",
	"Cancelled - Failed Review": "CANCELLED_FAILED_REVIEW",
	"Cancelled - Client Request": "CANCELLED_CLIENT_REQUEST",
	"Cancelled":                 "CANCELLED",
}

// RegisterAll wires the static descriptor table into the engine.
func RegisterAll(e *Engine) {
	e.Register(Descriptor{
		Model:    ModelChallengeType,
		Filename: "challenge-types.json",
		Priority: 1,
		IDField:  "id",
		Required: []string{"name", "abbreviation"},
		Optional: []string{"description", "isActive", "legacyId"},
		SchemaDefaults: []string{"isActive"},
		Uniques: []UniqueConstraint{
			{Name: "challenge_type_name_abbr", Fields: []string{"name", "abbreviation"}},
		},
	}, Hooks{
		BeforeMigration: preloadExistingIDs,
		CustomizeRecord: ensureID,
	})

	e.Register(Descriptor{
		Model:    ModelTimelineTemplate,
		Filename: "timeline-templates.json",
		Priority: 2,
		IDField:  "id",
		Required: []string{"name"},
		Optional: []string{"description", "isActive"},
		Defaults: map[string]any{"isActive": true},
		Uniques: []UniqueConstraint{
			{Name: "timeline_template_name", Fields: []string{"name"}},
		},
	}, Hooks{
		BeforeMigration: preloadExistingIDs,
		CustomizeRecord: ensureID,
	})

	e.Register(Descriptor{
		Model:    ModelChallengeTimelineTemplate,
		Filename: "challenge-timeline-templates.json",
		Priority: 3,
		IDField:  "id",
		Required: []string{"typeId", "templateId"},
		Optional: []string{"isDefault"},
		Defaults: map[string]any{"isDefault": false},
		Uniques: []UniqueConstraint{
			{Name: "type_template_pair", Fields: []string{"typeId", "templateId"}},
		},
		Dependencies: []Dependency{
			{Model: ModelChallengeType, ForeignKey: "typeId"},
			{Model: ModelTimelineTemplate, ForeignKey: "templateId"},
		},
	}, Hooks{
		CustomizeRecord: ensureID,
	})

	e.Register(Descriptor{
		Model:    ModelChallenge,
		Filename: "challenges.jsonl",
		Priority: 4,
		IDField:  "id",
		Required: []string{"name", "typeId", "status"},
		Optional: []string{"description", "legacyId", "projectId", "numOfSubmissions", "numOfRegistrants"},
		SchemaDefaults: []string{"description"},
		Uniques: []UniqueConstraint{
			{Name: "challenge_legacy_id", Fields: []string{"legacyId"}},
		},
		Dependencies: []Dependency{
			{Model: ModelChallengeType, ForeignKey: "typeId"},
		},
	}, Hooks{
		BeforeMigration:  preloadExistingIDs,
		BeforeValidation: deriveChallengeName,
		CustomizeRecord:  customizeChallenge,
		AfterUpsert:      stagePhases,
	})

	e.Register(Descriptor{
		Model:    ModelPhase,
		Priority: 5,
		IDField:  "id",
		Required: []string{"challengeId", "name"},
		Optional: []string{"duration", "isOpen", "predecessor"},
		Defaults: map[string]any{"isOpen": false},
		Dependencies: []Dependency{
			{Model: ModelChallenge, ForeignKey: "challengeId"},
		},
	}, Hooks{
		CustomizeRecord: ensureID,
	})
}

// preloadExistingIDs seeds the dependency registry with primary keys
// already in the store, so children of rows migrated in an earlier run
// pass the dependency check.
func preloadExistingIDs(ctx context.Context, m *Migrator, recs []Record) ([]Record, error) {
	rows, err := m.Store().FindMany(ctx, m.Desc.Model, nil)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		m.State().RegisterID(m.Desc.Model, row[m.Desc.IDField])
	}
	if len(rows) > 0 {
		m.Log().WithField("existing", len(rows)).Info("preloaded existing ids")
	}
	return recs, nil
}

// ensureID generates a fresh uuid when the id resolved to Absent.
func ensureID(m *Migrator, rec Record, fields Fields) {
	if fields[m.Desc.IDField].IsAbsent() {
		fields.Set(m.Desc.IDField, uuid.NewString())
	}
}

// deriveChallengeName fills the name from the legacy alias used by older
// exports.
func deriveChallengeName(m *Migrator, rec Record) {
	if _, ok := rec["name"]; ok {
		return
	}
	if alias, ok := rec["challengeName"]; ok {
		rec["name"] = alias
	}
}

func customizeChallenge(m *Migrator, rec Record, fields Fields) {
	ensureID(m, rec, fields)

	if raw, ok := fields["status"].Get(); ok {
		if s, ok := raw.(string); ok {
			if mapped, known := legacyStatusMap[s]; known {
				fields.Set("status", mapped)
			} else {
				fields["status"] = Absent()
			}
		}
	}
}

// stagePhases hands the challenge's nested phase records to the Phase
// migrator, stamping each with the parent id learned from the write.
func stagePhases(m *Migrator, written Record, rec Record) {
	phases, ok := rec["phases"].([]any)
	if !ok {
		return
	}
	for _, p := range phases {
		phase, ok := p.(map[string]any)
		if !ok {
			continue
		}
		child := make(Record, len(phase)+1)
		for k, v := range phase {
			child[k] = v
		}
		child["challengeId"] = written[m.Desc.IDField]
		m.State().Stage(ModelPhase, child)
	}
}
