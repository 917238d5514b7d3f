package migrations

import (
	"database/sql"
	"fmt"
)

// Migration is one named, idempotent schema or data change.
type Migration struct {
	Name string
	Func func(*sql.DB) error
}

// All is the ordered list of migrations run against every database file.
// Entries are never reordered or removed once released; a later entry
// may supersede an earlier one, but the earlier one stays so a database
// created by an older binary still replays cleanly.
var All = []Migration{
	{"baseline_schema", MigrateBaselineSchema},
	{"risk_pattern_seed", MigrateRiskPatternSeed},
	{"injection_points_session_index", MigrateInjectionPointsSessionIndex},
}

// Info describes one registered migration, as returned by List.
type Info struct {
	Name        string
	Description string
}

var descriptions = map[string]string{
	"baseline_schema":                 "Creates every table the State Store owns",
	"risk_pattern_seed":               "Seeds the built-in Risk Pattern rows (spec.md §4.4)",
	"injection_points_session_index":  "Adds an index on injection_points.session_id for Channel polling",
}

// List returns every registered migration with its description. All
// migrations are idempotent, so this lists the full history, not a
// pending subset.
func List() []Info {
	out := make([]Info, len(All))
	for i, m := range All {
		desc, ok := descriptions[m.Name]
		if !ok {
			desc = "no description recorded"
		}
		out[i] = Info{Name: m.Name, Description: desc}
	}
	return out
}

// Run executes every migration in order inside an EXCLUSIVE transaction,
// the same discipline the teacher uses to serialize migrations across
// processes that open the database file at the same time. Foreign keys
// are toggled off for the duration since SQLite refuses to evaluate that
// pragma inside a transaction.
func Run(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("disable foreign keys for migrations: %w", err)
	}
	defer func() { _, _ = db.Exec("PRAGMA foreign_keys = ON") }()

	if _, err := db.Exec("BEGIN EXCLUSIVE"); err != nil {
		return fmt.Errorf("acquire exclusive lock for migrations: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_, _ = db.Exec("ROLLBACK")
		}
	}()

	for _, m := range All {
		if err := m.Func(db); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.Name, err)
		}
	}

	if _, err := db.Exec("COMMIT"); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	committed = true
	return nil
}

// MigrateBaselineSchema creates every table and index the store needs.
// CREATE TABLE/INDEX IF NOT EXISTS makes this safe to re-run.
func MigrateBaselineSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// MigrateInjectionPointsSessionIndex adds the index Channel.poll's
// ListPendingInjectionPoints scan benefits from once a project has
// accumulated more than a handful of sessions.
func MigrateInjectionPointsSessionIndex(db *sql.DB) error {
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_injection_points_session ON injection_points(session_id)`)
	return err
}
