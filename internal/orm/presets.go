package orm

import (
	"context"
	"errors"
	"fmt"

	"github.com/spec-kit/petstore-api/internal/auth"
	"github.com/spec-kit/petstore-api/internal/domain"
)

// policy holds the access rules of one model. A nil rule denies.
type policy struct {
	read   func(ctx context.Context, s *scopedClient, rec domain.Record) (bool, error)
	create func(ctx context.Context, s *scopedClient, data domain.Record) (bool, error)
	update func(ctx context.Context, s *scopedClient, existing, data domain.Record) (bool, error)
	remove func(ctx context.Context, s *scopedClient, existing domain.Record) (bool, error)
	// updateGuard must still hold on the row when the update is written.
	updateGuard Where
}

func allow(context.Context, *scopedClient, domain.Record) (bool, error) { return true, nil }

var policies = map[domain.Model]policy{
	domain.ModelUser: {
		read:   allow,
		create: allow,
		update: func(_ context.Context, s *scopedClient, existing, _ domain.Record) (bool, error) {
			return s.isCaller(existing.String(domain.FieldID)), nil
		},
		remove: func(_ context.Context, s *scopedClient, existing domain.Record) (bool, error) {
			return s.isCaller(existing.String(domain.FieldID)), nil
		},
	},
	domain.ModelPet: {
		read: func(ctx context.Context, s *scopedClient, rec domain.Record) (bool, error) {
			if rec.IsNull("orderId") {
				return true, nil
			}
			return s.ownsOrder(ctx, rec.String("orderId"))
		},
		// A pet can only be bought: an unsold pet is attached to one of the
		// caller's orders and nothing else about it changes.
		update: func(ctx context.Context, s *scopedClient, existing, data domain.Record) (bool, error) {
			if s.caller.IsAnonymous() || !existing.IsNull("orderId") || len(data) != 1 {
				return false, nil
			}
			orderID, ok := data["orderId"].(string)
			if !ok || orderID == "" {
				return false, nil
			}
			return s.ownsOrder(ctx, orderID)
		},
		updateGuard: Where{"orderId": nil},
	},
	domain.ModelOrder: {
		read: func(_ context.Context, s *scopedClient, rec domain.Record) (bool, error) {
			return s.isCaller(rec.String("userId")), nil
		},
		create: func(_ context.Context, s *scopedClient, data domain.Record) (bool, error) {
			return s.isCaller(data.String("userId")), nil
		},
	},
}

// PresetOption tunes WithPresets.
type PresetOption func(*scopedClient)

// WithBcryptCost sets the cost used when hashing password fields.
func WithBcryptCost(cost int) PresetOption {
	return func(s *scopedClient) { s.bcryptCost = cost }
}

// WithPresets wraps base so that every operation runs as caller under the
// schema's access policy. Reads filter silently, single reads of hidden rows
// return ErrNotFound, disallowed writes return ErrDenied and password fields
// are hashed on write and stripped from results.
func WithPresets(base Client, caller auth.Caller, opts ...PresetOption) Client {
	s := &scopedClient{base: base, caller: caller}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type scopedClient struct {
	base       Client
	caller     auth.Caller
	bcryptCost int
}

func (s *scopedClient) isCaller(id string) bool {
	return !s.caller.IsAnonymous() && id == s.caller.ID
}

// ownsOrder checks ownership through the base client so the check itself is not filtered.
func (s *scopedClient) ownsOrder(ctx context.Context, orderID string) (bool, error) {
	if s.caller.IsAnonymous() || orderID == "" {
		return false, nil
	}
	order, err := s.base.FindFirst(ctx, domain.ModelOrder, Where{domain.FieldID: orderID})
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.isCaller(order.String("userId")), nil
}

func (s *scopedClient) FindMany(ctx context.Context, model domain.Model, where Where) ([]domain.Record, error) {
	def, err := lookup(model)
	if err != nil {
		return nil, err
	}
	if err := checkScopedFilter(def, where); err != nil {
		return nil, err
	}

	recs, err := s.base.FindMany(ctx, def.Name, where)
	if err != nil {
		return nil, err
	}

	rule := policies[def.Name].read
	out := make([]domain.Record, 0, len(recs))
	for _, rec := range recs {
		ok, err := check(ctx, s, rule, rec)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, strip(def, rec))
		}
	}
	return out, nil
}

func (s *scopedClient) FindFirst(ctx context.Context, model domain.Model, where Where) (domain.Record, error) {
	recs, err := s.FindMany(ctx, model, where)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

func (s *scopedClient) Create(ctx context.Context, model domain.Model, data domain.Record) (domain.Record, error) {
	def, err := lookup(model)
	if err != nil {
		return nil, err
	}
	if err := checkWritable(def, data); err != nil {
		return nil, err
	}

	rule := policies[def.Name].create
	if rule == nil {
		return nil, ErrDenied
	}
	ok, err := rule(ctx, s, data)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDenied
	}

	hashed, err := s.hashPasswords(def, data)
	if err != nil {
		return nil, err
	}
	rec, err := s.base.Create(ctx, def.Name, hashed)
	if err != nil {
		return nil, err
	}
	return strip(def, rec), nil
}

func (s *scopedClient) Update(ctx context.Context, model domain.Model, id string, data domain.Record) (domain.Record, error) {
	return s.UpdateIf(ctx, model, id, nil, data)
}

// UpdateIf checks the update policy against the current row, then writes
// under the caller's guard combined with the model's update guard.
func (s *scopedClient) UpdateIf(ctx context.Context, model domain.Model, id string, guard Where, data domain.Record) (domain.Record, error) {
	def, err := lookup(model)
	if err != nil {
		return nil, err
	}
	if err := checkScopedFilter(def, guard); err != nil {
		return nil, err
	}
	if err := checkWritable(def, data); err != nil {
		return nil, err
	}

	existing, err := s.readable(ctx, def, id)
	if err != nil {
		return nil, err
	}

	if !matches(existing, guard) {
		return nil, ErrNotFound
	}

	pol := policies[def.Name]
	rule := pol.update
	if rule == nil {
		return nil, ErrDenied
	}
	ok, err := rule(ctx, s, existing, data)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDenied
	}

	hashed, err := s.hashPasswords(def, data)
	if err != nil {
		return nil, err
	}
	rec, err := s.base.UpdateIf(ctx, def.Name, id, mergeWhere(guard, pol.updateGuard), hashed)
	if err != nil {
		return nil, err
	}
	return strip(def, rec), nil
}

func (s *scopedClient) Delete(ctx context.Context, model domain.Model, id string) error {
	def, err := lookup(model)
	if err != nil {
		return err
	}

	existing, err := s.readable(ctx, def, id)
	if err != nil {
		return err
	}

	rule := policies[def.Name].remove
	if rule == nil {
		return ErrDenied
	}
	ok, err := rule(ctx, s, existing)
	if err != nil {
		return err
	}
	if !ok {
		return ErrDenied
	}
	return s.base.Delete(ctx, def.Name, id)
}

// readable loads a row by id, reporting ErrNotFound for rows the caller cannot see.
func (s *scopedClient) readable(ctx context.Context, def domain.ModelDef, id string) (domain.Record, error) {
	rec, err := s.base.FindFirst(ctx, def.Name, Where{domain.FieldID: id})
	if err != nil {
		return nil, err
	}
	ok, err := check(ctx, s, policies[def.Name].read, rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *scopedClient) hashPasswords(def domain.ModelDef, data domain.Record) (domain.Record, error) {
	out := data.Clone()
	for _, f := range def.Fields {
		if !f.Password {
			continue
		}
		plain, ok := out[f.Name].(string)
		if !ok {
			continue
		}
		hash, err := auth.HashPassword(plain, s.bcryptCost)
		if err != nil {
			return nil, err
		}
		out[f.Name] = hash
	}
	return out, nil
}

func mergeWhere(a, b Where) Where {
	if len(a) == 0 {
		return b
	}
	out := make(Where, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

func check(ctx context.Context, s *scopedClient, rule func(context.Context, *scopedClient, domain.Record) (bool, error), rec domain.Record) (bool, error) {
	if rule == nil {
		return false, nil
	}
	return rule(ctx, s, rec)
}

// checkScopedFilter is checkFilter without password fields.
func checkScopedFilter(def domain.ModelDef, where Where) error {
	if err := checkFilter(def, where); err != nil {
		return err
	}
	for name := range where {
		if f, _ := def.Field(name); f.Password {
			return fmt.Errorf("%w: %s.%s is not filterable", ErrInvalidField, def.Name, name)
		}
	}
	return nil
}

func checkWritable(def domain.ModelDef, data domain.Record) error {
	for name := range data {
		f, ok := def.Field(name)
		if !ok || !f.Writable {
			return fmt.Errorf("%w: %s.%s", ErrInvalidField, def.Name, name)
		}
	}
	return nil
}

func strip(def domain.ModelDef, rec domain.Record) domain.Record {
	out := rec.Clone()
	for _, f := range def.Fields {
		if f.Password {
			delete(out, f.Name)
		}
	}
	return out
}
