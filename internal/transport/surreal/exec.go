package surreal

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
)

// query executes a raw SurrealQL query with parameters and returns multiple
// results unmarshalled into T.
func query[T any](ctx context.Context, db *surrealdb.DB, q string, params map[string]any) ([]T, error) {
	queryResults, err := surrealdb.Query[[]T](ctx, db, q, params)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	if len(*queryResults) == 0 {
		return nil, nil
	}
	return (*queryResults)[0].Result, nil
}

// execute runs a query whose rows we do not care about (CREATE, KILL, ...).
func execute(ctx context.Context, db *surrealdb.DB, q string, params map[string]any) error {
	if _, err := surrealdb.Query[any](ctx, db, q, params); err != nil {
		return fmt.Errorf("query execution failed: %w", err)
	}
	return nil
}
