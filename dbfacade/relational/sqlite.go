package relational

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure-Go driver, no CGO required

	"github.com/tekton-fabric/core/errs"
)

// SQLiteStore is the relational family's embedded fallback, grounded on
// the same database/sql + modernc.org/sqlite pairing the document
// family's fallback uses, here exposed as raw SQL rather than a
// document-shaped API.
type SQLiteStore struct {
	namespace string
	db        *sql.DB
}

// NewSQLiteStore opens (creating if absent) a SQLite file at dir/<namespace>.db.
func NewSQLiteStore(dir, namespace string) (Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errs.New(component, "open", errs.Internal, "create data dir").WithCause(err)
	}
	dsn := filepath.Join(dir, namespace+".db") + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errs.New(component, "open", errs.Internal, "open sqlite").WithCause(err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errs.New(component, "open", errs.Internal, "ping sqlite").WithCause(err)
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStore{namespace: namespace, db: db}, nil
}

func (s *SQLiteStore) Namespace() string { return s.namespace }
func (s *SQLiteStore) Backend() string   { return "sqlite" }
func (s *SQLiteStore) Close() error      { return s.db.Close() }

func (s *SQLiteStore) Execute(ctx context.Context, stmt string, args ...any) (Result, error) {
	result, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return Result{}, errs.New(component, "execute", errs.Internal, "sqlite exec failed").WithCause(err)
	}
	affected, _ := result.RowsAffected()
	return Result{RowsAffected: affected}, nil
}

func (s *SQLiteStore) ExecuteBatch(ctx context.Context, stmts []string, args [][]any) ([]Result, error) {
	results := make([]Result, 0, len(stmts))
	for i, stmt := range stmts {
		var a []any
		if i < len(args) {
			a = args[i]
		}
		result, err := s.Execute(ctx, stmt, a...)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *SQLiteStore) Query(ctx context.Context, stmt string, args ...any) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errs.New(component, "query", errs.Internal, "sqlite query failed").WithCause(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errs.New(component, "query", errs.Internal, "read columns").WithCause(err)
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errs.New(component, "query", errs.Internal, "scan row").WithCause(err)
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errs.New(component, "begin", errs.Internal, "sqlite begin failed").WithCause(err)
	}
	return &sqliteTx{tx: tx}, nil
}

func (s *SQLiteStore) CreateTable(ctx context.Context, name, columns string) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s)`, name, columns)
	_, err := s.Execute(ctx, stmt)
	return err
}

func (s *SQLiteStore) DropTable(ctx context.Context, name string) error {
	stmt := fmt.Sprintf(`DROP TABLE IF EXISTS %s`, name)
	_, err := s.Execute(ctx, stmt)
	return err
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Execute(ctx context.Context, stmt string, args ...any) (Result, error) {
	result, err := t.tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return Result{}, errs.New(component, "execute", errs.Internal, "sqlite tx exec failed").WithCause(err)
	}
	affected, _ := result.RowsAffected()
	return Result{RowsAffected: affected}, nil
}

func (t *sqliteTx) Query(ctx context.Context, stmt string, args ...any) ([]Row, error) {
	rows, err := t.tx.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errs.New(component, "query", errs.Internal, "sqlite tx query failed").WithCause(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errs.New(component, "query", errs.Internal, "read columns").WithCause(err)
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errs.New(component, "query", errs.Internal, "scan row").WithCause(err)
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (t *sqliteTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return errs.New(component, "commit", errs.Internal, "sqlite commit failed").WithCause(err)
	}
	return nil
}

func (t *sqliteTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(); err != nil {
		return errs.New(component, "rollback", errs.Internal, "sqlite rollback failed").WithCause(err)
	}
	return nil
}
