package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	// database drivers selected by StoreConfig.Driver
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"openapi-mcp/internal/config"
	"openapi-mcp/internal/logging"
	"openapi-mcp/pkg/types"
)

// SQLStore is the database/sql implementation of Store.
type SQLStore struct {
	db     *sql.DB
	d      dialect
	logger logging.Logger
	path   string // sqlite file path, empty for postgres
}

// Open connects to the configured database, applies the DDL and enforces
// the layout version gate.
func Open(cfg config.StoreConfig, logger logging.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}

	var (
		db   *sql.DB
		d    dialect
		path string
		err  error
	)
	switch cfg.Driver {
	case "", "sqlite":
		busyTimeout := cfg.BusyTimeoutMS
		if busyTimeout <= 0 {
			busyTimeout = 5000
		}
		dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on", cfg.Path, busyTimeout)
		db, err = sql.Open("sqlite3", dsn)
		d = sqliteDialect{}
		path = cfg.Path
	case "postgres":
		db, err = sql.Open("postgres", cfg.DSN)
		d = postgresDialect{}
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	s := &SQLStore{db: db, d: d, logger: logger.WithComponent("store"), path: path}
	if err := s.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.logger.Info("store opened", "driver", d.name())
	return s, nil
}

func (s *SQLStore) init(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}
	for _, stmt := range s.d.ddl() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply store schema: %w", err)
		}
	}
	return s.checkVersion(ctx)
}

// checkVersion refuses to open a store written by a newer layout version.
func (s *SQLStore) checkVersion(ctx context.Context) error {
	var value string
	err := s.db.QueryRowContext(ctx, s.d.rebind(`SELECT value FROM meta WHERE key = ?`), "store_version").Scan(&value)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.ExecContext(ctx, s.d.rebind(`INSERT INTO meta (key, value) VALUES (?, ?)`),
			"store_version", strconv.Itoa(Version))
		return err
	case err != nil:
		return fmt.Errorf("read store version: %w", err)
	}

	onDisk, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("malformed store version %q", value)
	}
	if onDisk > Version {
		return fmt.Errorf("%w: on-disk %d, supported %d", ErrVersionMismatch, onDisk, Version)
	}
	return nil
}

// SaveDocument commits the batch atomically. See Store for semantics.
func (s *SQLStore) SaveDocument(ctx context.Context, batch *Batch) (int64, error) {
	doc := batch.Document
	if doc == nil {
		return 0, fmt.Errorf("batch has no document")
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin save transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existingID int64
	var existingHash string
	err = tx.QueryRowContext(ctx,
		s.d.rebind(`SELECT id, content_hash FROM documents WHERE source_path = ?`),
		doc.SourcePath,
	).Scan(&existingID, &existingHash)
	switch {
	case err == nil:
		if existingHash == doc.ContentHash {
			s.logger.Info("document unchanged, skipping save",
				"source_path", doc.SourcePath, "document_id", existingID)
			return existingID, nil
		}
		if _, err := tx.ExecContext(ctx, s.d.rebind(`DELETE FROM documents WHERE id = ?`), existingID); err != nil {
			return 0, fmt.Errorf("replace previous document: %w", err)
		}
	case err != sql.ErrNoRows:
		return 0, fmt.Errorf("look up previous document: %w", err)
	}

	docRecord, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("encode document record: %w", err)
	}
	docID, err := s.d.insertID(ctx, tx, s.d.rebind(
		`INSERT INTO documents (source_path, content_hash, title, version, openapi_version, record, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		doc.SourcePath, doc.ContentHash, doc.Title, doc.Version, doc.OpenAPIVersion, string(docRecord), doc.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}
	doc.ID = docID

	endpointIDs := make([]int64, len(batch.Endpoints))
	for i, ep := range batch.Endpoints {
		ep.DocumentID = docID
		record, err := json.Marshal(ep)
		if err != nil {
			return 0, fmt.Errorf("encode endpoint %s %s: %w", ep.Method, ep.Path, err)
		}
		id, err := s.d.insertID(ctx, tx, s.d.rebind(
			`INSERT INTO endpoints (document_id, path, method, operation_id, summary, deprecated, record)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`),
			docID, ep.Path, ep.Method, ep.OperationID, ep.Summary, ep.Deprecated, string(record))
		if err != nil {
			return 0, fmt.Errorf("insert endpoint %s %s: %w", ep.Method, ep.Path, err)
		}
		ep.ID = id
		endpointIDs[i] = id
	}

	for _, sc := range batch.Schemas {
		sc.DocumentID = docID
		record, err := json.Marshal(sc)
		if err != nil {
			return 0, fmt.Errorf("encode schema %s: %w", sc.Name, err)
		}
		id, err := s.d.insertID(ctx, tx, s.d.rebind(
			`INSERT INTO schemas (document_id, name, record) VALUES (?, ?, ?)`),
			docID, sc.Name, string(record))
		if err != nil {
			return 0, fmt.Errorf("insert schema %s: %w", sc.Name, err)
		}
		sc.ID = id
	}

	for _, scheme := range batch.SecuritySchemes {
		scheme.DocumentID = docID
		record, err := json.Marshal(scheme)
		if err != nil {
			return 0, fmt.Errorf("encode security scheme %s: %w", scheme.Name, err)
		}
		id, err := s.d.insertID(ctx, tx, s.d.rebind(
			`INSERT INTO security_schemes (document_id, name, kind, record) VALUES (?, ?, ?, ?)`),
			docID, scheme.Name, string(scheme.Kind), string(record))
		if err != nil {
			return 0, fmt.Errorf("insert security scheme %s: %w", scheme.Name, err)
		}
		scheme.ID = id
	}

	for _, edge := range batch.Edges {
		if _, err := tx.ExecContext(ctx, s.d.rebind(
			`INSERT INTO reference_edges (document_id, source, target, slot, resolved) VALUES (?, ?, ?, ?, ?)`),
			docID, edge.Source, edge.Target, string(edge.Slot), edge.Resolved); err != nil {
			return 0, fmt.Errorf("insert reference edge %s -> %s: %w", edge.Source, edge.Target, err)
		}
	}

	for _, x := range batch.CrossReferences {
		if x.EndpointIndex < 0 || x.EndpointIndex >= len(endpointIDs) {
			return 0, fmt.Errorf("cross reference for %s has endpoint index %d out of range", x.SchemaName, x.EndpointIndex)
		}
		if _, err := tx.ExecContext(ctx, s.d.rebind(
			`INSERT INTO cross_references (document_id, endpoint_id, schema_name, context, content_type, required, score)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`),
			docID, endpointIDs[x.EndpointIndex], x.SchemaName, string(x.Context), x.ContentType, x.Required, x.Score); err != nil {
			return 0, fmt.Errorf("insert cross reference %s: %w", x.SchemaName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit save transaction: %w", err)
	}

	s.logger.Info("document saved",
		"document_id", docID,
		"source_path", doc.SourcePath,
		"endpoints", len(batch.Endpoints),
		"schemas", len(batch.Schemas),
	)
	return docID, nil
}

// GetDocument returns one document by id.
func (s *SQLStore) GetDocument(ctx context.Context, id int64) (*types.APIDocument, error) {
	return s.scanDocument(s.db.QueryRowContext(ctx,
		s.d.rebind(`SELECT id, record FROM documents WHERE id = ?`), id),
		fmt.Sprintf("document %d", id))
}

// GetDocumentBySourcePath returns the document ingested from sourcePath.
func (s *SQLStore) GetDocumentBySourcePath(ctx context.Context, sourcePath string) (*types.APIDocument, error) {
	return s.scanDocument(s.db.QueryRowContext(ctx,
		s.d.rebind(`SELECT id, record FROM documents WHERE source_path = ?`), sourcePath),
		fmt.Sprintf("document %q", sourcePath))
}

func (s *SQLStore) scanDocument(row *sql.Row, what string) (*types.APIDocument, error) {
	var id int64
	var record string
	if err := row.Scan(&id, &record); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, what)
		}
		return nil, err
	}
	var doc types.APIDocument
	if err := json.Unmarshal([]byte(record), &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", what, err)
	}
	doc.ID = id
	return &doc, nil
}

// ListDocuments returns every document, oldest first.
func (s *SQLStore) ListDocuments(ctx context.Context) ([]*types.APIDocument, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, record FROM documents ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*types.APIDocument
	for rows.Next() {
		var id int64
		var record string
		if err := rows.Scan(&id, &record); err != nil {
			return nil, err
		}
		var doc types.APIDocument
		if err := json.Unmarshal([]byte(record), &doc); err != nil {
			return nil, fmt.Errorf("decode document %d: %w", id, err)
		}
		doc.ID = id
		out = append(out, &doc)
	}
	return out, rows.Err()
}

// GetEndpoint returns one endpoint by id.
func (s *SQLStore) GetEndpoint(ctx context.Context, id int64) (*types.Endpoint, error) {
	var docID int64
	var record string
	err := s.db.QueryRowContext(ctx,
		s.d.rebind(`SELECT document_id, record FROM endpoints WHERE id = ?`), id,
	).Scan(&docID, &record)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: endpoint %d", ErrNotFound, id)
		}
		return nil, err
	}
	return decodeEndpoint(id, docID, record)
}

// GetEndpointByPathMethod returns the endpoint for (path, method) within a
// document. Method matching is exact (canonical uppercase).
func (s *SQLStore) GetEndpointByPathMethod(ctx context.Context, documentID int64, path, method string) (*types.Endpoint, error) {
	var id int64
	var record string
	err := s.db.QueryRowContext(ctx,
		s.d.rebind(`SELECT id, record FROM endpoints WHERE document_id = ? AND path = ? AND method = ?`),
		documentID, path, method,
	).Scan(&id, &record)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: endpoint %s %s", ErrNotFound, method, path)
		}
		return nil, err
	}
	return decodeEndpoint(id, documentID, record)
}

// ListEndpoints pages through a document's endpoints in insertion order.
// A non-positive limit means no limit.
func (s *SQLStore) ListEndpoints(ctx context.Context, documentID int64, offset, limit int) ([]*types.Endpoint, error) {
	if limit <= 0 {
		limit = int(^uint32(0) >> 1)
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx,
		s.d.rebind(`SELECT id, record FROM endpoints WHERE document_id = ? ORDER BY id LIMIT ? OFFSET ?`),
		documentID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Endpoint
	for rows.Next() {
		var id int64
		var record string
		if err := rows.Scan(&id, &record); err != nil {
			return nil, err
		}
		ep, err := decodeEndpoint(id, documentID, record)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

func decodeEndpoint(id, documentID int64, record string) (*types.Endpoint, error) {
	var ep types.Endpoint
	if err := json.Unmarshal([]byte(record), &ep); err != nil {
		return nil, fmt.Errorf("decode endpoint %d: %w", id, err)
	}
	ep.ID = id
	ep.DocumentID = documentID
	return &ep, nil
}

// GetSchema returns one named schema of a document.
func (s *SQLStore) GetSchema(ctx context.Context, documentID int64, name string) (*types.Schema, error) {
	var id int64
	var record string
	err := s.db.QueryRowContext(ctx,
		s.d.rebind(`SELECT id, record FROM schemas WHERE document_id = ? AND name = ?`),
		documentID, name,
	).Scan(&id, &record)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: schema %q", ErrNotFound, name)
		}
		return nil, err
	}
	return decodeSchema(id, documentID, record)
}

// ListSchemas returns a document's named schemas in declaration order.
func (s *SQLStore) ListSchemas(ctx context.Context, documentID int64) ([]*types.Schema, error) {
	rows, err := s.db.QueryContext(ctx,
		s.d.rebind(`SELECT id, record FROM schemas WHERE document_id = ? ORDER BY id`), documentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Schema
	for rows.Next() {
		var id int64
		var record string
		if err := rows.Scan(&id, &record); err != nil {
			return nil, err
		}
		sc, err := decodeSchema(id, documentID, record)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func decodeSchema(id, documentID int64, record string) (*types.Schema, error) {
	var sc types.Schema
	if err := json.Unmarshal([]byte(record), &sc); err != nil {
		return nil, fmt.Errorf("decode schema %d: %w", id, err)
	}
	sc.ID = id
	sc.DocumentID = documentID
	return &sc, nil
}

// GetSecurityScheme returns one named security scheme of a document.
func (s *SQLStore) GetSecurityScheme(ctx context.Context, documentID int64, name string) (*types.SecurityScheme, error) {
	var id int64
	var record string
	err := s.db.QueryRowContext(ctx,
		s.d.rebind(`SELECT id, record FROM security_schemes WHERE document_id = ? AND name = ?`),
		documentID, name,
	).Scan(&id, &record)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: security scheme %q", ErrNotFound, name)
		}
		return nil, err
	}
	return decodeSecurityScheme(id, documentID, record)
}

// ListSecuritySchemes returns a document's security schemes in declaration
// order.
func (s *SQLStore) ListSecuritySchemes(ctx context.Context, documentID int64) ([]*types.SecurityScheme, error) {
	rows, err := s.db.QueryContext(ctx,
		s.d.rebind(`SELECT id, record FROM security_schemes WHERE document_id = ? ORDER BY id`), documentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*types.SecurityScheme
	for rows.Next() {
		var id int64
		var record string
		if err := rows.Scan(&id, &record); err != nil {
			return nil, err
		}
		scheme, err := decodeSecurityScheme(id, documentID, record)
		if err != nil {
			return nil, err
		}
		out = append(out, scheme)
	}
	return out, rows.Err()
}

func decodeSecurityScheme(id, documentID int64, record string) (*types.SecurityScheme, error) {
	var scheme types.SecurityScheme
	if err := json.Unmarshal([]byte(record), &scheme); err != nil {
		return nil, fmt.Errorf("decode security scheme %d: %w", id, err)
	}
	scheme.ID = id
	scheme.DocumentID = documentID
	return &scheme, nil
}

// ListReferenceEdges returns a document's reference graph edges.
func (s *SQLStore) ListReferenceEdges(ctx context.Context, documentID int64) ([]types.ReferenceEdge, error) {
	rows, err := s.db.QueryContext(ctx,
		s.d.rebind(`SELECT source, target, slot, resolved FROM reference_edges WHERE document_id = ?`), documentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []types.ReferenceEdge
	for rows.Next() {
		edge := types.ReferenceEdge{DocumentID: documentID}
		var slot string
		if err := rows.Scan(&edge.Source, &edge.Target, &slot, &edge.Resolved); err != nil {
			return nil, err
		}
		edge.Slot = types.ReferenceSlot(slot)
		out = append(out, edge)
	}
	return out, rows.Err()
}

// ListCrossReferences returns a document's schema-endpoint usage rows.
func (s *SQLStore) ListCrossReferences(ctx context.Context, documentID int64) ([]types.CrossReference, error) {
	rows, err := s.db.QueryContext(ctx,
		s.d.rebind(`SELECT endpoint_id, schema_name, context, content_type, required, score
		 FROM cross_references WHERE document_id = ?`), documentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []types.CrossReference
	for rows.Next() {
		x := types.CrossReference{DocumentID: documentID}
		var contextName string
		if err := rows.Scan(&x.EndpointID, &x.SchemaName, &contextName, &x.ContentType, &x.Required, &x.Score); err != nil {
			return nil, err
		}
		x.Context = types.UsageContext(contextName)
		out = append(out, x)
	}
	return out, rows.Err()
}

// DeleteDocument removes a document and all dependent records.
func (s *SQLStore) DeleteDocument(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.d.rebind(`DELETE FROM documents WHERE id = ?`), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: document %d", ErrNotFound, id)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Stats returns record counts and, for SQLite, the database file size.
func (s *SQLStore) Stats(ctx context.Context) (*types.StoreStats, error) {
	stats := &types.StoreStats{}
	counts := []struct {
		table string
		dest  *int
	}{
		{"documents", &stats.Documents},
		{"endpoints", &stats.Endpoints},
		{"schemas", &stats.Schemas},
		{"security_schemes", &stats.SecuritySchemes},
		{"reference_edges", &stats.ReferenceEdges},
		{"cross_references", &stats.CrossReferences},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("count %s: %w", c.table, err)
		}
	}
	if s.path != "" {
		if fi, err := os.Stat(s.path); err == nil {
			stats.SizeBytes = fi.Size()
		}
	}
	return stats, nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
