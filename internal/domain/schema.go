package domain

import (
	"sort"
	"strings"
)

// Model names a schema entity as it appears in URLs and client calls.
type Model string

const (
	ModelUser  Model = "user"
	ModelPet   Model = "pet"
	ModelOrder Model = "order"
)

// Common field names.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// FieldKind is the storage type of a field.
type FieldKind int

const (
	KindText FieldKind = iota
	KindTime
)

// DeleteAction is applied to referencing rows when the referenced row is deleted.
type DeleteAction int

const (
	OnDeleteCascade DeleteAction = iota + 1
	OnDeleteSetNull
)

// Field describes one column of a model.
type Field struct {
	Name     string
	Column   string
	Kind     FieldKind
	Writable bool
	// Password fields are hashed on write and never returned by scoped reads.
	Password bool
	// Ref names the model whose id this field holds.
	Ref      Model
	OnDelete DeleteAction
}

// FieldRef points at a field of a model.
type FieldRef struct {
	Model ModelDef
	Field Field
}

// ModelDef maps a model onto its table.
type ModelDef struct {
	Name   Model
	Table  string
	Fields []Field
}

// Field looks up a field by name.
func (m ModelDef) Field(name string) (Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Columns returns the column list in declaration order.
func (m ModelDef) Columns() []string {
	cols := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		cols[i] = f.Column
	}
	return cols
}

// FieldByColumn maps a column name back to its field.
func (m ModelDef) FieldByColumn(column string) (Field, bool) {
	for _, f := range m.Fields {
		if f.Column == column {
			return f, true
		}
	}
	return Field{}, false
}

func timestamps() []Field {
	return []Field{
		{Name: FieldCreatedAt, Column: "created_at", Kind: KindTime},
		{Name: FieldUpdatedAt, Column: "updated_at", Kind: KindTime},
	}
}

var schema = map[Model]ModelDef{
	ModelUser: {
		Name:  ModelUser,
		Table: "users",
		Fields: append([]Field{
			{Name: FieldID, Column: "id"},
			{Name: "email", Column: "email", Writable: true},
			{Name: "password", Column: "password", Writable: true, Password: true},
		}, timestamps()...),
	},
	ModelPet: {
		Name:  ModelPet,
		Table: "pets",
		Fields: append([]Field{
			{Name: FieldID, Column: "id"},
			{Name: "name", Column: "name", Writable: true},
			{Name: "category", Column: "category", Writable: true},
			{Name: "orderId", Column: "order_id", Writable: true, Ref: ModelOrder, OnDelete: OnDeleteSetNull},
		}, timestamps()...),
	},
	ModelOrder: {
		Name:  ModelOrder,
		Table: "orders",
		Fields: append([]Field{
			{Name: FieldID, Column: "id"},
			{Name: "userId", Column: "user_id", Writable: true, Ref: ModelUser, OnDelete: OnDeleteCascade},
		}, timestamps()...),
	},
}

// Lookup resolves a model by name, case-insensitively.
func Lookup(name string) (ModelDef, bool) {
	def, ok := schema[Model(strings.ToLower(name))]
	return def, ok
}

// Referencing lists the fields that hold ids of target, ordered by model name.
func Referencing(target Model) []FieldRef {
	if target == "" {
		return nil
	}
	var refs []FieldRef
	for _, def := range schema {
		for _, f := range def.Fields {
			if f.Ref == target {
				refs = append(refs, FieldRef{Model: def, Field: f})
			}
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Model.Name != refs[j].Model.Name {
			return refs[i].Model.Name < refs[j].Model.Name
		}
		return refs[i].Field.Name < refs[j].Field.Name
	})
	return refs
}
