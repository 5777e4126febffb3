package document

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tekton-fabric/core/errs"
)

// PostgresStore is the document family's native backend: one table per
// collection with an "id text primary key" plus a "data jsonb" column,
// grounded on the pgxpool dial/Ping/Exec pattern used elsewhere in the
// pack's Postgres-backed services.
type PostgresStore struct {
	namespace string
	pool      *pgxpool.Pool
	tableName func(collection string) string
}

// PostgresConfig dials a Postgres server for a PostgresStore.
type PostgresConfig struct {
	DSN            string
	ConnectTimeout time.Duration
}

// NewPostgresStore connects to cfg.DSN and verifies connectivity before
// returning. A failed dial or ping returns errs.Unavailable so the
// Factory falls through to the SQLite fallback.
func NewPostgresStore(cfg PostgresConfig, namespace string) (Store, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errs.New(component, "dial", errs.InvalidArgument, "parse postgres dsn").WithCause(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errs.New(component, "dial", errs.Unavailable, "connect to postgres").WithCause(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.New(component, "dial", errs.Unavailable, "ping postgres").WithCause(err)
	}

	namespacePrefix := sanitizeIdent(namespace)
	return &PostgresStore{
		namespace: namespace,
		pool:      pool,
		tableName: func(collection string) string {
			return fmt.Sprintf("doc_%s_%s", namespacePrefix, sanitizeIdent(collection))
		},
	}, nil
}

func (s *PostgresStore) Namespace() string { return s.namespace }
func (s *PostgresStore) Backend() string   { return "postgres" }
func (s *PostgresStore) Close() error      { s.pool.Close(); return nil }

func (s *PostgresStore) ensureCollection(ctx context.Context, collection string) error {
	stmt := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, data JSONB NOT NULL)`,
		s.tableName(collection),
	)
	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return errs.New(component, "ensure_collection", errs.Internal, "create table").WithCause(err)
	}
	return nil
}

func (s *PostgresStore) Insert(collection string, doc Doc) (string, error) {
	ctx := context.Background()
	if err := s.ensureCollection(ctx, collection); err != nil {
		return "", err
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	raw, err := json.Marshal(doc.Data)
	if err != nil {
		return "", errs.New(component, "insert", errs.Internal, "encode document").WithCause(err)
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (id, data) VALUES ($1, $2)`, s.tableName(collection))
	if _, err := s.pool.Exec(ctx, stmt, doc.ID, raw); err != nil {
		return "", errs.New(component, "insert", errs.Internal, "insert row").WithCause(err)
	}
	return doc.ID, nil
}

func (s *PostgresStore) scanAll(collection string, cond map[string]any) ([]Doc, error) {
	pred, err := compileFilter(cond)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := s.ensureCollection(ctx, collection); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT id, data FROM %s`, s.tableName(collection)))
	if err != nil {
		return nil, errs.New(component, "find", errs.Internal, "query rows").WithCause(err)
	}
	defer rows.Close()

	var docs []Doc
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, errs.New(component, "find", errs.Internal, "scan row").WithCause(err)
		}
		var data map[string]any
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, errs.New(component, "find", errs.Internal, "decode document").WithCause(err)
		}
		matched, err := pred.Match(data)
		if err != nil {
			return nil, err
		}
		if matched {
			docs = append(docs, Doc{ID: id, Data: data})
		}
	}
	return docs, rows.Err()
}

func (s *PostgresStore) Find(collection string, cond map[string]any, projection []string) ([]Doc, error) {
	docs, err := s.scanAll(collection, cond)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].Data = applyProjection(docs[i].Data, projection)
	}
	return docs, nil
}

func (s *PostgresStore) FindOne(collection string, cond map[string]any, projection []string) (Doc, bool, error) {
	docs, err := s.Find(collection, cond, projection)
	if err != nil {
		return Doc{}, false, err
	}
	if len(docs) == 0 {
		return Doc{}, false, nil
	}
	return docs[0], true, nil
}

func (s *PostgresStore) Update(collection string, cond map[string]any, patch map[string]any, opts UpdateOptions) (int, error) {
	docs, err := s.scanAll(collection, cond)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		if !opts.Upsert {
			return 0, nil
		}
		if _, err := s.Insert(collection, Doc{Data: patch}); err != nil {
			return 0, err
		}
		return 1, nil
	}

	ctx := context.Background()
	stmt := fmt.Sprintf(`UPDATE %s SET data = $1 WHERE id = $2`, s.tableName(collection))
	var updated int
	for _, doc := range docs {
		merged := mergePatch(doc.Data, patch)
		raw, err := json.Marshal(merged)
		if err != nil {
			return updated, errs.New(component, "update", errs.Internal, "encode document").WithCause(err)
		}
		if _, err := s.pool.Exec(ctx, stmt, raw, doc.ID); err != nil {
			return updated, errs.New(component, "update", errs.Internal, "update row").WithCause(err)
		}
		updated++
	}
	return updated, nil
}

func (s *PostgresStore) Delete(collection string, cond map[string]any) (int, error) {
	docs, err := s.scanAll(collection, cond)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	ctx := context.Background()
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.tableName(collection))
	var removed int
	for _, doc := range docs {
		if _, err := s.pool.Exec(ctx, stmt, doc.ID); err != nil {
			return removed, errs.New(component, "delete", errs.Internal, "delete row").WithCause(err)
		}
		removed++
	}
	return removed, nil
}

func (s *PostgresStore) Count(collection string, cond map[string]any) (int, error) {
	docs, err := s.scanAll(collection, cond)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// sanitizeIdent restricts collection/namespace names to characters safe
// for unquoted interpolation into a table name.
func sanitizeIdent(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return "default"
	}
	return string(out)
}
