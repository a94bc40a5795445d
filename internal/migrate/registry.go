package migrate

import (
	"fmt"
	"sync"
)

// RunState is the run-scoped shared state: the dependency registry of
// confirmed-valid primary keys per model, and the nested-data staging area
// parent migrators feed for later-running children. Models run strictly
// sequentially, but batches within one model run concurrently and register
// ids and stage children from their afterUpsert hooks, so access is locked.
type RunState struct {
	mu       sync.Mutex
	validIDs map[string]map[string]struct{}
	staged   map[string][]Record
}

func NewRunState() *RunState {
	return &RunState{
		validIDs: make(map[string]map[string]struct{}),
		staged:   make(map[string][]Record),
	}
}

// RegisterID records a confirmed-valid primary key for model. Keys are
// normalized through their string form, matching the loose typing of the
// legacy exports.
func (s *RunState) RegisterID(model string, id any) {
	if id == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.validIDs[model]
	if !ok {
		set = make(map[string]struct{})
		s.validIDs[model] = set
	}
	set[fmt.Sprint(id)] = struct{}{}
}

// HasID reports whether id was registered for model.
func (s *RunState) HasID(model string, id any) bool {
	if id == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.validIDs[model][fmt.Sprint(id)]
	return ok
}

// CountIDs returns how many ids are registered for model.
func (s *RunState) CountIDs(model string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.validIDs[model])
}

// Stage appends a child record for a later-running migrator. The child
// model's priority must be numerically greater than the stager's, or the
// records are never consumed.
func (s *RunState) Stage(model string, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged[model] = append(s.staged[model], rec)
}

// TakeStaged drains the staged records for model.
func (s *RunState) TakeStaged(model string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.staged[model]
	delete(s.staged, model)
	return recs
}
