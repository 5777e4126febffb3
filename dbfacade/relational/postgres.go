package relational

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tekton-fabric/core/errs"
)

// PostgresStore is the relational family's native backend, grounded on the
// same pgxpool dial/Ping/Exec pattern as the document family's Postgres
// adapter.
type PostgresStore struct {
	namespace string
	pool      *pgxpool.Pool
}

// PostgresConfig dials a Postgres server for a PostgresStore.
type PostgresConfig struct {
	DSN            string
	ConnectTimeout time.Duration
}

// NewPostgresStore connects to cfg.DSN and verifies connectivity. A failed
// dial or ping returns errs.Unavailable so the Factory falls through to
// the SQLite fallback.
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
	return &PostgresStore{namespace: namespace, pool: pool}, nil
}

func (s *PostgresStore) Namespace() string { return s.namespace }
func (s *PostgresStore) Backend() string   { return "postgres" }
func (s *PostgresStore) Close() error      { s.pool.Close(); return nil }

func (s *PostgresStore) Execute(ctx context.Context, stmt string, args ...any) (Result, error) {
	tag, err := s.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return Result{}, errs.New(component, "execute", errs.Internal, "postgres exec failed").WithCause(err)
	}
	return Result{RowsAffected: tag.RowsAffected()}, nil
}

func (s *PostgresStore) ExecuteBatch(ctx context.Context, stmts []string, args [][]any) ([]Result, error) {
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

func (s *PostgresStore) Query(ctx context.Context, stmt string, args ...any) ([]Row, error) {
	rows, err := s.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, errs.New(component, "query", errs.Internal, "postgres query failed").WithCause(err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func scanRows(rows pgx.Rows) ([]Row, error) {
	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}

	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, errs.New(component, "query", errs.Internal, "scan row").WithCause(err)
		}
		row := make(Row, len(names))
		for i, name := range names {
			if i < len(values) {
				row[name] = values[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, errs.New(component, "begin", errs.Internal, "postgres begin failed").WithCause(err)
	}
	return &postgresTx{tx: tx}, nil
}

func (s *PostgresStore) CreateTable(ctx context.Context, name, columns string) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s)`, name, columns)
	_, err := s.Execute(ctx, stmt)
	return err
}

func (s *PostgresStore) DropTable(ctx context.Context, name string) error {
	stmt := fmt.Sprintf(`DROP TABLE IF EXISTS %s`, name)
	_, err := s.Execute(ctx, stmt)
	return err
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) Execute(ctx context.Context, stmt string, args ...any) (Result, error) {
	tag, err := t.tx.Exec(ctx, stmt, args...)
	if err != nil {
		return Result{}, errs.New(component, "execute", errs.Internal, "postgres tx exec failed").WithCause(err)
	}
	return Result{RowsAffected: tag.RowsAffected()}, nil
}

func (t *postgresTx) Query(ctx context.Context, stmt string, args ...any) ([]Row, error) {
	rows, err := t.tx.Query(ctx, stmt, args...)
	if err != nil {
		return nil, errs.New(component, "query", errs.Internal, "postgres tx query failed").WithCause(err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func (t *postgresTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return errs.New(component, "commit", errs.Internal, "postgres commit failed").WithCause(err)
	}
	return nil
}

func (t *postgresTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil {
		return errs.New(component, "rollback", errs.Internal, "postgres rollback failed").WithCause(err)
	}
	return nil
}
