//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	logx "alarmd/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "storage: mkdir")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "storage: open sqlite")
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("sqlite outcome journal opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return errors.Wrap(err, "storage: migrate")
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendOutcome(ctx context.Context, o Outcome) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if o.At.IsZero() {
		o.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outcomes(job_id, recipient, state, due_at, created_at, fired_at, at, lag_ms, took_ms, err)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		o.JobID, o.Recipient, o.State,
		o.DueAt.Format(time.RFC3339Nano), o.CreatedAt.Format(time.RFC3339Nano), nullTime(o.FiredAt),
		o.At.UnixMilli(), o.LagMS, o.TookMS, nullStr(o.Error),
	)
	return errors.Wrap(err, "storage: append outcome")
}

func (s *sqliteStore) RecentOutcomes(ctx context.Context, limit int) ([]Outcome, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = tailSize
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, recipient, state, due_at, created_at, fired_at, at, lag_ms, took_ms, err
		 FROM outcomes ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "storage: query outcomes")
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var (
			o              Outcome
			due, created   string
			fired, errText sql.NullString
			atMS           int64
		)
		if err := rows.Scan(&o.JobID, &o.Recipient, &o.State, &due, &created, &fired, &atMS, &o.LagMS, &o.TookMS, &errText); err != nil {
			return nil, errors.Wrap(err, "storage: scan outcome")
		}
		o.DueAt, _ = time.Parse(time.RFC3339Nano, due)
		o.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		if fired.Valid {
			o.FiredAt, _ = time.Parse(time.RFC3339Nano, fired.String)
		}
		o.At = time.UnixMilli(atMS)
		o.Error = errText.String
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM outcomes WHERE at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, errors.Wrap(err, "storage: prune")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}
