// Package statsstore persists dispatch counters to Postgres, a CLI-only
// convenience layered above the core (pkg/dispatch itself never touches a
// database) so a long-running rulecorectl process can durably export the
// stats a PrintStats call would otherwise only hold in memory.
package statsstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "github.com/lib/pq"

	"github.com/rulecore/compiler/pkg/catalog"
	"github.com/rulecore/compiler/pkg/dispatch"
)

// Store wraps a *sql.DB opened against the "postgres" driver.
type Store struct {
	db *sql.DB
}

// Open opens a Postgres connection pool at dsn. Callers own the returned
// Store's lifetime and must call Close when done.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("statsstore: open: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an already-opened *sql.DB, letting tests inject a sqlmock
// connection instead of dialing a real database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertRuleStats writes the current counters for every rule cat knows
// about, one row per rule, keyed by rule name. Rules counters has never
// seen (zero matches) are written too, so a stats export always reflects
// the full loaded ruleset, not just the rules that have fired so far.
func (s *Store) UpsertRuleStats(ctx context.Context, cat *catalog.Catalog, counters *dispatch.Counters) error {
	for _, name := range cat.OrderedRuleNames {
		rec, ok := cat.RulesByName[name]
		if !ok {
			continue
		}
		tags := make([]string, 0, len(rec.Tags))
		for t := range rec.Tags {
			tags = append(tags, t)
		}
		sort.Strings(tags)

		_, err := s.db.ExecContext(ctx, `
			INSERT INTO rule_stats (rule_name, priority_num, match_count, tags, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (rule_name) DO UPDATE SET
				priority_num = EXCLUDED.priority_num,
				match_count  = EXCLUDED.match_count,
				tags         = EXCLUDED.tags,
				updated_at   = EXCLUDED.updated_at`,
			rec.Name, int(rec.PriorityN), counters.ByName[rec.Name], strings.Join(tags, ","),
		)
		if err != nil {
			return fmt.Errorf("statsstore: upsert rule %q: %w", rec.Name, err)
		}
	}
	return nil
}
