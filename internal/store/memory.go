package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store used for dry runs and tests. Transact
// holds the store lock for the whole function, so concurrent batch
// transactions serialize here; rollback discards the transaction's copy of
// the tables.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string][]Record

	// FailWith, when set, is consulted before every upsert. Returning a
	// non-nil error simulates a store-side write failure.
	FailWith func(model string, p UpsertPayload) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string][]Record)}
}

func (s *MemoryStore) FindFirst(ctx context.Context, model string, where map[string]any) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return findFirst(s.tables, model, where)
}

func (s *MemoryStore) FindMany(ctx context.Context, model string, where map[string]any) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return findMany(s.tables, model, where), nil
}

func (s *MemoryStore) Upsert(ctx context.Context, model string, p UpsertPayload) (UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		if err := s.FailWith(model, p); err != nil {
			return UpsertResult{}, err
		}
	}
	return upsert(s.tables, model, p)
}

func (s *MemoryStore) Transact(ctx context.Context, fn func(tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memoryTx{parent: s, tables: cloneTables(s.tables)}
	if err := fn(tx); err != nil {
		return err
	}
	s.tables = tx.tables
	return nil
}

// Rows returns a copy of a model's rows, for assertions.
func (s *MemoryStore) Rows(model string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRows(s.tables[model])
}

// Seed inserts rows directly, bypassing upsert semantics.
func (s *MemoryStore) Seed(model string, rows ...Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.tables[model] = append(s.tables[model], cloneRecord(r))
	}
}

// memoryTx operates on its own copy of the tables. The parent lock is held
// by Transact for the transaction's lifetime, so no locking here.
type memoryTx struct {
	parent *MemoryStore
	tables map[string][]Record
}

func (t *memoryTx) FindFirst(ctx context.Context, model string, where map[string]any) (Record, error) {
	return findFirst(t.tables, model, where)
}

func (t *memoryTx) FindMany(ctx context.Context, model string, where map[string]any) ([]Record, error) {
	return findMany(t.tables, model, where), nil
}

func (t *memoryTx) Upsert(ctx context.Context, model string, p UpsertPayload) (UpsertResult, error) {
	if t.parent.FailWith != nil {
		if err := t.parent.FailWith(model, p); err != nil {
			return UpsertResult{}, err
		}
	}
	return upsert(t.tables, model, p)
}

func (t *memoryTx) Transact(ctx context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func findFirst(tables map[string][]Record, model string, where map[string]any) (Record, error) {
	for _, row := range tables[model] {
		if matches(row, where) {
			return cloneRecord(row), nil
		}
	}
	return nil, ErrNotFound
}

func findMany(tables map[string][]Record, model string, where map[string]any) []Record {
	var out []Record
	for _, row := range tables[model] {
		if matches(row, where) {
			out = append(out, cloneRecord(row))
		}
	}
	return out
}

func upsert(tables map[string][]Record, model string, p UpsertPayload) (UpsertResult, error) {
	rows := tables[model]
	for i, row := range rows {
		if matches(row, p.Where) {
			updated := cloneRecord(row)
			for k, v := range p.Update {
				updated[k] = v
			}
			rows[i] = updated
			return UpsertResult{Record: cloneRecord(updated)}, nil
		}
	}
	created := cloneRecord(p.Create)
	for k, v := range p.Where {
		if _, ok := created[k]; !ok {
			created[k] = v
		}
	}
	tables[model] = append(rows, created)
	return UpsertResult{Record: cloneRecord(created), Created: true}, nil
}

// matches compares by string form so int64(5) and float64(5) from different
// JSON decodes select the same row, mirroring loose key comparison in the
// legacy exports.
func matches(row Record, where map[string]any) bool {
	for k, v := range where {
		rv, ok := row[k]
		if !ok {
			return false
		}
		if fmt.Sprint(rv) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

func cloneTables(tables map[string][]Record) map[string][]Record {
	out := make(map[string][]Record, len(tables))
	for model, rows := range tables {
		out[model] = cloneRows(rows)
	}
	return out
}

func cloneRows(rows []Record) []Record {
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = cloneRecord(r)
	}
	return out
}

func cloneRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
