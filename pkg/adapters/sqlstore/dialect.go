package sqlstore

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"
	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

// Dialect captures the differences between supported SQL engines.
type Dialect struct {
	Name string

	// Driver is the database/sql driver name.
	Driver string

	// numbered placeholders ($1, $2...) instead of '?'.
	numbered bool

	auditSeq string
}

var (
	// SQLite uses modernc.org/sqlite (pure Go, no cgo).
	SQLite = Dialect{Name: "sqlite", Driver: "sqlite", auditSeq: "INTEGER PRIMARY KEY AUTOINCREMENT"}

	// Postgres uses github.com/jackc/pgx/v5/stdlib.
	Postgres = Dialect{Name: "postgres", Driver: "pgx", numbered: true, auditSeq: "BIGSERIAL PRIMARY KEY"}
)

// Rebind rewrites '?' placeholders for dialects that number them.
func (d Dialect) Rebind(query string) string {
	if !d.numbered {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (d Dialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			org_id TEXT NOT NULL DEFAULT '',
			parent_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			payload TEXT NOT NULL,
			version BIGINT NOT NULL,
			transitioned_by TEXT NOT NULL DEFAULT '',
			transitioned_at BIGINT,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_parent ON entities(parent_id, kind)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS audit_records (
			seq %s,
			id TEXT NOT NULL UNIQUE,
			entity_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			occurred_at BIGINT NOT NULL,
			metadata TEXT NOT NULL
		)`, d.auditSeq),
		`CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_records(entity_id, seq)`,
		`CREATE TABLE IF NOT EXISTS inbox_items (
			id TEXT PRIMARY KEY,
			recipient_id TEXT NOT NULL,
			dedupe_key TEXT NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			priority TEXT NOT NULL,
			source TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			UNIQUE (recipient_id, dedupe_key)
		)`,
	}
}

// Migrate creates the tables used by the store, audit log and inbox.
func Migrate(db *sql.DB, d Dialect) error {
	for _, stmt := range d.schema() {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", d.Name, err)
		}
	}
	return nil
}

// Open opens a database for the dialect and applies the schema.
func Open(d Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Name, err)
	}
	if d.Name == SQLite.Name {
		// SQLite serializes writers; a single connection avoids SQLITE_BUSY
		// and keeps ":memory:" databases shared.
		db.SetMaxOpenConns(1)
	}
	if err := Migrate(db, d); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
