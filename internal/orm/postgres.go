package orm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/petstore-api/internal/domain"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInvalidText         = "22P02"
	pgInvalidDatetime     = "22007"
)

// PostgresClient is a Client backed by a pgx pool. SQL identifiers come
// only from the schema registry; field names from callers are validated first.
type PostgresClient struct {
	pool *pgxpool.Pool
}

// NewPostgresClient returns a Postgres-backed implementation.
func NewPostgresClient(pool *pgxpool.Pool) *PostgresClient {
	return &PostgresClient{pool: pool}
}

func (p *PostgresClient) FindMany(ctx context.Context, model domain.Model, where Where) ([]domain.Record, error) {
	def, err := lookup(model)
	if err != nil {
		return nil, err
	}
	query, args, err := buildSelect(def, where, 0)
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	recs, err := collect(def, rows)
	if err != nil {
		return nil, mapPgError(err)
	}
	return recs, nil
}

func (p *PostgresClient) FindFirst(ctx context.Context, model domain.Model, where Where) (domain.Record, error) {
	def, err := lookup(model)
	if err != nil {
		return nil, err
	}
	query, args, err := buildSelect(def, where, 1)
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	recs, err := collect(def, rows)
	if err != nil {
		return nil, mapPgError(err)
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

func (p *PostgresClient) Create(ctx context.Context, model domain.Model, data domain.Record) (domain.Record, error) {
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

	values := data.Clone()
	delete(values, domain.FieldCreatedAt)
	delete(values, domain.FieldUpdatedAt)
	if values.String(domain.FieldID) == "" {
		values[domain.FieldID] = uuid.NewString()
	}

	names := sortedKeys(values)
	cols := make([]string, len(names))
	placeholders := make([]string, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		f, _ := def.Field(name)
		cols[i] = f.Column
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = values[name]
	}

	query := fmt.Sprintf(`
        INSERT INTO %s (%s)
        VALUES (%s)
        RETURNING %s`,
		def.Table,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(def.Columns(), ", "),
	)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	recs, err := collect(def, rows)
	if err != nil {
		return nil, mapPgError(err)
	}
	return recs[0], nil
}

func (p *PostgresClient) Update(ctx context.Context, model domain.Model, id string, data domain.Record) (domain.Record, error) {
	return p.UpdateIf(ctx, model, id, nil, data)
}

// UpdateIf folds guard into the UPDATE's WHERE clause so the check and the
// write happen in one statement.
func (p *PostgresClient) UpdateIf(ctx context.Context, model domain.Model, id string, guard Where, data domain.Record) (domain.Record, error) {
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
	query, args, err := buildUpdate(def, id, guard, data)
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	recs, err := collect(def, rows)
	if err != nil {
		return nil, mapPgError(err)
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

func (p *PostgresClient) Delete(ctx context.Context, model domain.Model, id string) error {
	def, err := lookup(model)
	if err != nil {
		return err
	}

	cmd, err := p.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id=$1`, def.Table), id)
	if err != nil {
		return mapPgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func buildSelect(def domain.ModelDef, where Where, limit int) (string, []any, error) {
	if err := checkFilter(def, where); err != nil {
		return "", nil, err
	}
	conds, args := whereClause(def, where, nil)

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(def.Columns(), ", "), def.Table)
	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY created_at, id")
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	return b.String(), args, nil
}

func buildUpdate(def domain.ModelDef, id string, guard Where, data domain.Record) (string, []any, error) {
	if err := checkFilter(def, guard); err != nil {
		return "", nil, err
	}

	values := data.Clone()
	delete(values, domain.FieldID)
	delete(values, domain.FieldCreatedAt)
	delete(values, domain.FieldUpdatedAt)

	names := sortedKeys(values)
	sets := make([]string, 0, len(names)+1)
	args := make([]any, 0, len(names)+len(guard)+1)
	for _, name := range names {
		f, _ := def.Field(name)
		args = append(args, values[name])
		sets = append(sets, fmt.Sprintf("%s=$%d", f.Column, len(args)))
	}
	sets = append(sets, "updated_at=NOW()")

	args = append(args, id)
	conds := []string{fmt.Sprintf("id=$%d", len(args))}
	conds, args = whereClause(def, guard, args, conds...)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s RETURNING %s",
		def.Table,
		strings.Join(sets, ", "),
		strings.Join(conds, " AND "),
		strings.Join(def.Columns(), ", "),
	)
	return query, args, nil
}

// whereClause appends one condition per filter field in sorted order,
// numbering placeholders after the args already bound.
func whereClause(def domain.ModelDef, where Where, args []any, conds ...string) ([]string, []any) {
	for _, name := range sortedKeys(where) {
		f, _ := def.Field(name)
		if where[name] == nil {
			conds = append(conds, f.Column+" IS NULL")
			continue
		}
		args = append(args, where[name])
		conds = append(conds, fmt.Sprintf("%s=$%d", f.Column, len(args)))
	}
	return conds, args
}

func collect(def domain.ModelDef, rows pgx.Rows) ([]domain.Record, error) {
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Record, 0, len(maps))
	for _, m := range maps {
		rec := make(domain.Record, len(m))
		for col, v := range m {
			if f, ok := def.FieldByColumn(col); ok {
				rec[f.Name] = v
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrInvalidField, pgErr.ConstraintName)
		case pgInvalidText, pgInvalidDatetime:
			return fmt.Errorf("%w: %s", ErrInvalidField, pgErr.Message)
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
