package statsstore

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/rulecore/compiler/pkg/catalog"
	"github.com/rulecore/compiler/pkg/dispatch"
	"github.com/rulecore/compiler/pkg/priority"
)

var errBoom = errors.New("boom")

func TestRunMigrationsExecutesSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	store := NewStore(db)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS rule_stats").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.RunMigrations(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func testCatalog() *catalog.Catalog {
	cat := catalog.New()
	cat.OrderedRuleNames = []string{"R1", "R2"}
	cat.RulesByName["R1"] = &catalog.RuleRecord{
		Name: "R1", PriorityN: priority.Warning, Tags: map[string]struct{}{"b": {}, "a": {}},
	}
	cat.RulesByName["R2"] = &catalog.RuleRecord{
		Name: "R2", PriorityN: priority.Informational,
	}
	return cat
}

func TestUpsertRuleStatsWritesOneRowPerRule(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	store := NewStore(db)

	counters := dispatch.NewCounters()
	counters.ByName["R1"] = 3

	mock.ExpectExec("INSERT INTO rule_stats").
		WithArgs("R1", int(priority.Warning), 3, "a,b").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO rule_stats").
		WithArgs("R2", int(priority.Informational), 0, "").
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.UpsertRuleStats(context.Background(), testCatalog(), counters); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpsertRuleStatsPropagatesExecError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	store := NewStore(db)

	mock.ExpectExec("INSERT INTO rule_stats").WillReturnError(errBoom)

	cat := catalog.New()
	cat.OrderedRuleNames = []string{"R1"}
	cat.RulesByName["R1"] = &catalog.RuleRecord{Name: "R1"}

	if err := store.UpsertRuleStats(context.Background(), cat, dispatch.NewCounters()); err == nil {
		t.Fatal("expected error to propagate")
	}
}
