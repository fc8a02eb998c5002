package postgres

import (
	"context"
	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

// ApplySchema creates missing tables and indexes. It is idempotent and only
// meant for local setups and integration tests; production schemas are
// managed outside this service.
func (s *Store) ApplySchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	return err
}
