package databases

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidateIdentifier enforces the allow-list regex required before any
// caller composes a dynamic SQL identifier (e.g. a member-id column name in
// a transposed wide table) into a query string. Reject immediately on
// mismatch; never attempt to sanitize or escape instead.
func ValidateIdentifier(id string) error {
	if !identifierPattern.MatchString(id) {
		return fmt.Errorf("invalid identifier %q: must match %s", id, identifierPattern.String())
	}
	return nil
}

// RelationalAdapter is the narrow interface over the relational store used
// by MemberHandler, DeductibleHandler, and AccumulatorHandler. Parameters
// are always bound positionally; any dynamic identifier must be validated
// with ValidateIdentifier before being composed into sql.
type RelationalAdapter interface {
	Execute(ctx context.Context, sql string, params ...any) ([]map[string]any, error)
	Close()
}

type pgRelational struct {
	pool *pgxpool.Pool
}

// NewRelationalAdapter opens a pooled Postgres connection and wraps it as a
// RelationalAdapter.
func NewRelationalAdapter(ctx context.Context, dsn string, maxConns, minConns int32) (RelationalAdapter, error) {
	pool, err := newPgPool(ctx, dsn, maxConns, minConns)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	return &pgRelational{pool: pool}, nil
}

// Execute runs a parameterized query and returns each row as a column-name
// to value mapping.
func (p *pgRelational) Execute(ctx context.Context, sql string, params ...any) ([]map[string]any, error) {
	rows, err := p.pool.Query(ctx, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []map[string]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[string(f.Name)] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func (p *pgRelational) Close() {
	p.pool.Close()
}
