// Package orm is the data boundary behind the CRUD API. Client is the
// contract the HTTP layer talks to; WithPresets wraps a raw client with the
// access policy of the calling identity.
package orm

import (
	"context"
	"errors"
	"fmt"

	"github.com/spec-kit/petstore-api/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrDenied       = errors.New("denied by access policy")
	ErrConflict     = errors.New("unique constraint violated")
	ErrInvalidField = errors.New("invalid field")
	ErrUnknownModel = errors.New("unknown model")
)

// Where filters records by field equality. A nil value matches NULL.
type Where map[string]any

// Client performs data access for schema models.
type Client interface {
	FindMany(ctx context.Context, model domain.Model, where Where) ([]domain.Record, error)
	// FindFirst returns the first match in creation order, or ErrNotFound.
	FindFirst(ctx context.Context, model domain.Model, where Where) (domain.Record, error)
	Create(ctx context.Context, model domain.Model, data domain.Record) (domain.Record, error)
	Update(ctx context.Context, model domain.Model, id string, data domain.Record) (domain.Record, error)
	// UpdateIf is Update applied atomically only while the row also matches
	// guard. A row that no longer matches is reported as ErrNotFound.
	UpdateIf(ctx context.Context, model domain.Model, id string, guard Where, data domain.Record) (domain.Record, error)
	Delete(ctx context.Context, model domain.Model, id string) error
}

func lookup(model domain.Model) (domain.ModelDef, error) {
	def, ok := domain.Lookup(string(model))
	if !ok {
		return domain.ModelDef{}, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	return def, nil
}

// checkFields rejects names the model does not declare.
func checkFields(def domain.ModelDef, data domain.Record) error {
	for name := range data {
		if _, ok := def.Field(name); !ok {
			return fmt.Errorf("%w: %s.%s", ErrInvalidField, def.Name, name)
		}
	}
	return nil
}

// checkFilter validates a Where against the model. Only text fields can be
// filtered, by a string or nil.
func checkFilter(def domain.ModelDef, where Where) error {
	for name, v := range where {
		f, ok := def.Field(name)
		if !ok {
			return fmt.Errorf("%w: %s.%s", ErrInvalidField, def.Name, name)
		}
		if f.Kind != domain.KindText {
			return fmt.Errorf("%w: %s.%s is not filterable", ErrInvalidField, def.Name, name)
		}
		switch v.(type) {
		case nil, string:
		default:
			return fmt.Errorf("%w: %s.%s filter must be a string", ErrInvalidField, def.Name, name)
		}
	}
	return nil
}

// checkValues accepts only text or null for writable columns.
func checkValues(def domain.ModelDef, data domain.Record) error {
	for name, v := range data {
		f, _ := def.Field(name)
		if !f.Writable && name != domain.FieldID {
			continue
		}
		switch v.(type) {
		case nil, string:
		default:
			return fmt.Errorf("%w: %s.%s must be a string", ErrInvalidField, def.Name, name)
		}
	}
	return nil
}
