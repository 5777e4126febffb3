package document

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go driver, no CGO required

	"github.com/tekton-fabric/core/errs"
)

// SQLiteStore is the document family's embedded fallback: one table per
// collection, each row a JSON blob in a "data" column plus a generated id.
// WAL mode and a single-writer pool mirror the grounding file's settings,
// since document writes here are rare compared to the Postgres primary.
type SQLiteStore struct {
	namespace string

	mu         sync.Mutex
	db         *sql.DB
	collection map[string]bool
}

// NewSQLiteStore opens (creating if absent) a SQLite file at dir/<namespace>.db.
func NewSQLiteStore(dir, namespace string) (Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errs.New(component, "open", errs.Internal, "create data dir").WithCause(err)
	}
	dsn := filepath.Join(dir, namespace+".db") + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errs.New(component, "open", errs.Internal, "open sqlite").WithCause(err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errs.New(component, "open", errs.Internal, "ping sqlite").WithCause(err)
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStore{namespace: namespace, db: db, collection: make(map[string]bool)}, nil
}

func (s *SQLiteStore) Namespace() string { return s.namespace }
func (s *SQLiteStore) Backend() string   { return "sqlite" }
func (s *SQLiteStore) Close() error      { return s.db.Close() }

func tableName(collection string) string { return "coll_" + sanitizeIdent(collection) }

func (s *SQLiteStore) ensureCollectionLocked(collection string) error {
	if s.collection[collection] {
		return nil
	}
	stmt := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, data TEXT NOT NULL)`,
		tableName(collection),
	)
	if _, err := s.db.Exec(stmt); err != nil {
		return errs.New(component, "ensure_collection", errs.Internal, "create table").WithCause(err)
	}
	s.collection[collection] = true
	return nil
}

func (s *SQLiteStore) Insert(collection string, doc Doc) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureCollectionLocked(collection); err != nil {
		return "", err
	}
	if doc.ID == "" {
		doc.ID = newDocID()
	}
	raw, err := json.Marshal(doc.Data)
	if err != nil {
		return "", errs.New(component, "insert", errs.Internal, "encode document").WithCause(err)
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (id, data) VALUES (?, ?)`, tableName(collection))
	if _, err := s.db.Exec(stmt, doc.ID, string(raw)); err != nil {
		return "", errs.New(component, "insert", errs.Internal, "insert row").WithCause(err)
	}
	return doc.ID, nil
}

func (s *SQLiteStore) scanAll(collection string, cond map[string]any) ([]Doc, error) {
	pred, err := compileFilter(cond)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureCollectionLocked(collection); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(fmt.Sprintf(`SELECT id, data FROM %s`, tableName(collection)))
	if err != nil {
		return nil, errs.New(component, "find", errs.Internal, "query rows").WithCause(err)
	}
	defer rows.Close()

	var docs []Doc
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, errs.New(component, "find", errs.Internal, "scan row").WithCause(err)
		}
		var data map[string]any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
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

func (s *SQLiteStore) Find(collection string, cond map[string]any, projection []string) ([]Doc, error) {
	docs, err := s.scanAll(collection, cond)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].Data = applyProjection(docs[i].Data, projection)
	}
	return docs, nil
}

func (s *SQLiteStore) FindOne(collection string, cond map[string]any, projection []string) (Doc, bool, error) {
	docs, err := s.Find(collection, cond, projection)
	if err != nil {
		return Doc{}, false, err
	}
	if len(docs) == 0 {
		return Doc{}, false, nil
	}
	return docs[0], true, nil
}

func (s *SQLiteStore) Update(collection string, cond map[string]any, patch map[string]any, opts UpdateOptions) (int, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	stmt := fmt.Sprintf(`UPDATE %s SET data = ? WHERE id = ?`, tableName(collection))
	var updated int
	for _, doc := range docs {
		merged := mergePatch(doc.Data, patch)
		raw, err := json.Marshal(merged)
		if err != nil {
			return updated, errs.New(component, "update", errs.Internal, "encode document").WithCause(err)
		}
		if _, err := s.db.Exec(stmt, string(raw), doc.ID); err != nil {
			return updated, errs.New(component, "update", errs.Internal, "update row").WithCause(err)
		}
		updated++
	}
	return updated, nil
}

func (s *SQLiteStore) Delete(collection string, cond map[string]any) (int, error) {
	docs, err := s.scanAll(collection, cond)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, tableName(collection))
	var removed int
	for _, doc := range docs {
		if _, err := s.db.Exec(stmt, doc.ID); err != nil {
			return removed, errs.New(component, "delete", errs.Internal, "delete row").WithCause(err)
		}
		removed++
	}
	return removed, nil
}

func (s *SQLiteStore) Count(collection string, cond map[string]any) (int, error) {
	docs, err := s.scanAll(collection, cond)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

func newDocID() string { return uuid.NewString() }
