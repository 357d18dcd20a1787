package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// dialect abstracts the differences between the two supported drivers:
// DDL spelling, placeholder style and id retrieval.
type dialect interface {
	name() string
	ddl() []string
	// rebind rewrites ?-placeholders into the driver's native style.
	rebind(query string) string
	// insertID runs an INSERT and returns the generated id.
	insertID(ctx context.Context, tx *sql.Tx, query string, args ...interface{}) (int64, error)
}

type sqliteDialect struct{}

func (sqliteDialect) name() string { return "sqlite" }

func (sqliteDialect) rebind(query string) string { return query }

func (sqliteDialect) insertID(ctx context.Context, tx *sql.Tx, query string, args ...interface{}) (int64, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (sqliteDialect) ddl() []string {
	return ddlStatements("INTEGER PRIMARY KEY AUTOINCREMENT", "INTEGER", "REAL", "TIMESTAMP")
}

type postgresDialect struct{}

func (postgresDialect) name() string { return "postgres" }

func (postgresDialect) rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d postgresDialect) insertID(ctx context.Context, tx *sql.Tx, query string, args ...interface{}) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, d.rebind(query+" RETURNING id"), args...).Scan(&id)
	return id, err
}

func (postgresDialect) ddl() []string {
	return ddlStatements("BIGSERIAL PRIMARY KEY", "BOOLEAN", "DOUBLE PRECISION", "TIMESTAMPTZ")
}

// ddlStatements renders the shared schema with the dialect's type spellings.
func ddlStatements(pk, boolean, real, timestamp string) []string {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS documents (
			id              %s,
			source_path     TEXT NOT NULL UNIQUE,
			content_hash    TEXT NOT NULL,
			title           TEXT NOT NULL,
			version         TEXT NOT NULL,
			openapi_version TEXT NOT NULL,
			record          TEXT NOT NULL,
			created_at      %s NOT NULL
		)`, pk, timestamp),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS endpoints (
			id           %s,
			document_id  BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			path         TEXT NOT NULL,
			method       TEXT NOT NULL,
			operation_id TEXT NOT NULL DEFAULT '',
			summary      TEXT NOT NULL DEFAULT '',
			deprecated   %s NOT NULL,
			record       TEXT NOT NULL,
			UNIQUE (document_id, path, method)
		)`, pk, boolean),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS schemas (
			id          %s,
			document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			name        TEXT NOT NULL,
			record      TEXT NOT NULL,
			UNIQUE (document_id, name)
		)`, pk),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS security_schemes (
			id          %s,
			document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			name        TEXT NOT NULL,
			kind        TEXT NOT NULL,
			record      TEXT NOT NULL,
			UNIQUE (document_id, name)
		)`, pk),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS reference_edges (
			document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			source      TEXT NOT NULL,
			target      TEXT NOT NULL,
			slot        TEXT NOT NULL,
			resolved    %s NOT NULL
		)`, boolean),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS cross_references (
			document_id  BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			endpoint_id  BIGINT NOT NULL REFERENCES endpoints(id) ON DELETE CASCADE,
			schema_name  TEXT NOT NULL,
			context      TEXT NOT NULL,
			content_type TEXT NOT NULL DEFAULT '',
			required     %s NOT NULL,
			score        %s NOT NULL
		)`, boolean, real),
		`CREATE INDEX IF NOT EXISTS idx_endpoints_document ON endpoints (document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_schemas_document ON schemas (document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_document ON reference_edges (document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_xrefs_schema ON cross_references (document_id, schema_name)`,
		`CREATE INDEX IF NOT EXISTS idx_xrefs_endpoint ON cross_references (endpoint_id)`,
	}
	return stmts
}
