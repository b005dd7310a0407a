package statsstore

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// schemaSQL is the one bootstrap migration a stats store needs: a table
// keyed by rule name holding the latest dispatch counters for that rule.
// Kept as a single embedded script rather than a directory of .sql files —
// there is only ever one schema version so far.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS rule_stats (
    rule_name    TEXT PRIMARY KEY,
    priority_num INTEGER NOT NULL,
    match_count  BIGINT NOT NULL,
    tags         TEXT NOT NULL DEFAULT '',
    updated_at   TIMESTAMPTZ NOT NULL
);
`

// RunMigrations executes every statement in schemaSQL in order. Statements
// are split on ';' and blank chunks are skipped, the same naive-but-robust
// approach as running a directory of numbered .sql files in lexicographic
// order, reduced here to a single embedded script.
func (s *Store) RunMigrations(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statsstore: migration statement failed: %w", err)
		}
	}
	return nil
}
