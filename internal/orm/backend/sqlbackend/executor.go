package sqlbackend

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/conduit-lang/searchy/internal/orm/query"
	"github.com/conduit-lang/searchy/internal/orm/schema"
)

// Querier is the subset of *sql.DB and *sql.Tx the executor needs
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Executor creates builders and runs compiled searches against a database
type Executor struct {
	db       Querier
	registry *schema.Registry
	opts     []Option
	logger   *zap.Logger
}

// NewExecutor creates an executor. Builder options apply to every builder
// it creates.
func NewExecutor(db Querier, registry *schema.Registry, logger *zap.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		db:       db,
		registry: registry,
		opts:     append([]Option{WithLogger(logger)}, opts...),
		logger:   logger,
	}
}

// NewBuilder creates a fresh builder rooted at an entity type
func (e *Executor) NewBuilder(root reflect.Type) (query.PredicateBuilder, error) {
	return NewBuilder(e.registry, root, e.opts...)
}

// Execute renders pred with the joins collected by b and returns the
// matching root rows
func (e *Executor) Execute(ctx context.Context, b query.PredicateBuilder, pred query.Predicate) ([]map[string]any, error) {
	builder, ok := b.(*Builder)
	if !ok {
		return nil, fmt.Errorf("%w: builder %T", ErrNotSQL, b)
	}

	stmt, args, err := builder.ToSQL(pred)
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL: %w", err)
	}
	e.logger.Debug("executing search", zap.String("sql", stmt), zap.Int("args", len(args)))

	rows, err := e.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// scanRows scans SQL rows into maps
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		record := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
				continue
			}
			record[col] = values[i]
		}
		results = append(results, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
