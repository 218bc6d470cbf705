package orm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/petstore-api/internal/domain"
)

// MemoryClient keeps records in process memory. It backs the service when no
// database is configured.
type MemoryClient struct {
	mu      sync.RWMutex
	records map[domain.Model][]domain.Record
	now     func() time.Time
}

// NewMemoryClient returns an empty store.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		records: make(map[domain.Model][]domain.Record),
		now:     time.Now,
	}
}

func (m *MemoryClient) FindMany(_ context.Context, model domain.Model, where Where) ([]domain.Record, error) {
	def, err := lookup(model)
	if err != nil {
		return nil, err
	}
	if err := checkFilter(def, where); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Record, 0)
	for _, rec := range m.records[def.Name] {
		if matches(rec, where) {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (m *MemoryClient) FindFirst(ctx context.Context, model domain.Model, where Where) (domain.Record, error) {
	recs, err := m.FindMany(ctx, model, where)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

func (m *MemoryClient) Create(_ context.Context, model domain.Model, data domain.Record) (domain.Record, error) {
	def, err := lookup(model)
	if err != nil {
		return nil, err
	}
	if err := checkFields(def, data); err != nil {
		return nil, err
	}
	if err := checkValues(def, data); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec := make(domain.Record, len(def.Fields))
	for _, f := range def.Fields {
		rec[f.Name] = nil
	}
	for k, v := range data {
		rec[k] = v
	}
	if rec.String(domain.FieldID) == "" {
		rec[domain.FieldID] = uuid.NewString()
	}
	now := m.now().UTC()
	rec[domain.FieldCreatedAt] = now
	rec[domain.FieldUpdatedAt] = now

	if m.violatesUnique(def, rec, "") {
		return nil, ErrConflict
	}
	if err := m.checkRefs(def, rec); err != nil {
		return nil, err
	}
	m.records[def.Name] = append(m.records[def.Name], rec)
	return rec.Clone(), nil
}

func (m *MemoryClient) Update(ctx context.Context, model domain.Model, id string, data domain.Record) (domain.Record, error) {
	return m.UpdateIf(ctx, model, id, nil, data)
}

func (m *MemoryClient) UpdateIf(_ context.Context, model domain.Model, id string, guard Where, data domain.Record) (domain.Record, error) {
	def, err := lookup(model)
	if err != nil {
		return nil, err
	}
	if err := checkFilter(def, guard); err != nil {
		return nil, err
	}
	if err := checkFields(def, data); err != nil {
		return nil, err
	}
	if err := checkValues(def, data); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, rec := range m.records[def.Name] {
		if rec.String(domain.FieldID) != id {
			continue
		}
		if !matches(rec, guard) {
			return nil, ErrNotFound
		}
		updated := rec.Clone()
		for k, v := range data {
			if k == domain.FieldID || k == domain.FieldCreatedAt {
				continue
			}
			updated[k] = v
		}
		updated[domain.FieldUpdatedAt] = m.now().UTC()
		if m.violatesUnique(def, updated, id) {
			return nil, ErrConflict
		}
		if err := m.checkRefs(def, updated); err != nil {
			return nil, err
		}
		m.records[def.Name][i] = updated
		return updated.Clone(), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryClient) Delete(_ context.Context, model domain.Model, id string) error {
	def, err := lookup(model)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.remove(def.Name, id) {
		return ErrNotFound
	}
	return nil
}

// remove deletes a row and applies the delete action of every field that
// references it, matching the foreign keys of the migrations.
func (m *MemoryClient) remove(model domain.Model, id string) bool {
	recs := m.records[model]
	idx := -1
	for i, rec := range recs {
		if rec.String(domain.FieldID) == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	m.records[model] = append(recs[:idx:idx], recs[idx+1:]...)

	for _, ref := range domain.Referencing(model) {
		name := ref.Model.Name
		switch ref.Field.OnDelete {
		case domain.OnDeleteCascade:
			var dependents []string
			for _, rec := range m.records[name] {
				if rec.String(ref.Field.Name) == id {
					dependents = append(dependents, rec.String(domain.FieldID))
				}
			}
			for _, dep := range dependents {
				m.remove(name, dep)
			}
		case domain.OnDeleteSetNull:
			for i, rec := range m.records[name] {
				if rec.String(ref.Field.Name) != id {
					continue
				}
				updated := rec.Clone()
				updated[ref.Field.Name] = nil
				updated[domain.FieldUpdatedAt] = m.now().UTC()
				m.records[name][i] = updated
			}
		}
	}
	return true
}

// checkRefs rejects reference fields that point at missing rows.
func (m *MemoryClient) checkRefs(def domain.ModelDef, rec domain.Record) error {
	for _, f := range def.Fields {
		if f.Ref == "" || rec.IsNull(f.Name) {
			continue
		}
		target := rec.String(f.Name)
		found := false
		for _, other := range m.records[f.Ref] {
			if other.String(domain.FieldID) == target {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s.%s references missing %s %q", ErrInvalidField, def.Name, f.Name, f.Ref, target)
		}
	}
	return nil
}

// violatesUnique mirrors the unique indexes created by the migrations.
func (m *MemoryClient) violatesUnique(def domain.ModelDef, rec domain.Record, selfID string) bool {
	for _, other := range m.records[def.Name] {
		otherID := other.String(domain.FieldID)
		if otherID == selfID {
			continue
		}
		if otherID == rec.String(domain.FieldID) {
			return true
		}
		if def.Name == domain.ModelUser && other.String("email") == rec.String("email") {
			return true
		}
	}
	return false
}

func matches(rec domain.Record, where Where) bool {
	for k, want := range where {
		got := rec[k]
		if want == nil {
			if got != nil {
				return false
			}
			continue
		}
		if got != want {
			return false
		}
	}
	return true
}
