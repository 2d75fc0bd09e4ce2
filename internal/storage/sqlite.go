package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"mangabot/internal/schedule"
	logx "mangabot/pkg/logx"
)

//go:embed migrations/sqlite.sql
var sqliteSchema string

// sqliteTime is fixed-width UTC so stored values compare correctly as text.
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

const itemColumns = `id, title, link, creator, image_url, release_day, release_interval,
	next_release_date, release_time, last_notified_at, status, created_at, updated_at`

type sqliteStore struct {
	db    *sql.DB
	log   logx.Logger
	clock schedule.Clock
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, clock: clockOf(cfg)}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) FindDueCandidates(ctx context.Context) ([]schedule.Item, error) {
	return s.List(ctx, ListFilter{})
}

func (s *sqliteStore) List(ctx context.Context, f ListFilter) ([]schedule.Item, error) {
	q := `SELECT ` + itemColumns + ` FROM items`
	var args []any
	if !f.IncludeDone {
		q += ` WHERE status <> ?`
		args = append(args, string(schedule.StatusDone))
	}
	q += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var out []schedule.Item
	for rows.Next() {
		it, err := scanSQLiteItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Get(ctx context.Context, id int64) (schedule.Item, error) {
	return getSQLite(ctx, s.db, id)
}

func (s *sqliteStore) Update(ctx context.Context, id int64, p schedule.Patch) error {
	last := fmtTime(p.LastNotifiedAt)
	var next any
	if p.NextDue != nil {
		next = fmtTime(*p.NextDue)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE items SET
			last_notified_at = CASE
				WHEN last_notified_at IS NULL OR last_notified_at < ? THEN ?
				ELSE last_notified_at END,
			next_release_date = CASE
				WHEN release_interval > 0 AND ? IS NOT NULL THEN ?
				ELSE next_release_date END,
			updated_at = ?
		WHERE id = ?`,
		last, last, next, next, fmtTime(s.clock.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("update item %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) Create(ctx context.Context, n NewItem) (schedule.Item, error) {
	it, err := prepareNew(n, s.clock.Now())
	if err != nil {
		return schedule.Item{}, err
	}
	day, interval, next := cadenceColumns(it.Cadence)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO items(title, link, creator, image_url, release_day, release_interval,
			next_release_date, release_time, status, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		it.Title, nullStr(it.Link), nullStr(it.Creator), nullStr(it.ImageURL),
		day, interval, fmtTimePtr(next), releaseColumn(it.ReleaseTime),
		string(it.Status), fmtTime(it.CreatedAt), fmtTime(it.UpdatedAt),
	)
	if err != nil {
		return schedule.Item{}, fmt.Errorf("insert item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return schedule.Item{}, err
	}
	return s.Get(ctx, id)
}

func (s *sqliteStore) SetStatus(ctx context.Context, id int64, st schedule.Status) (schedule.Item, error) {
	return s.rewrite(ctx, id, func(it schedule.Item) (schedule.Item, error) {
		return applyStatus(it, st, s.clock.Now())
	})
}

func (s *sqliteStore) SetCadence(ctx context.Context, id int64, c schedule.Cadence, release *schedule.TimeOfDay) (schedule.Item, error) {
	return s.rewrite(ctx, id, func(it schedule.Item) (schedule.Item, error) {
		return applyCadence(it, c, release, s.clock.Now())
	})
}

func (s *sqliteStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete item %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// rewrite runs a read-modify-write of the externally owned columns in one
// transaction. Scheduler-owned columns are left alone.
func (s *sqliteStore) rewrite(ctx context.Context, id int64, fn func(schedule.Item) (schedule.Item, error)) (schedule.Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return schedule.Item{}, err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := getSQLite(ctx, tx, id)
	if err != nil {
		return schedule.Item{}, err
	}
	next, err := fn(cur)
	if err != nil {
		return schedule.Item{}, err
	}
	day, interval, due := cadenceColumns(next.Cadence)
	if _, err := tx.ExecContext(ctx, `
		UPDATE items SET release_day = ?, release_interval = ?, next_release_date = ?,
			release_time = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		day, interval, fmtTimePtr(due), releaseColumn(next.ReleaseTime),
		string(next.Status), fmtTime(next.UpdatedAt), id,
	); err != nil {
		return schedule.Item{}, fmt.Errorf("rewrite item %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return schedule.Item{}, err
	}
	return next, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func getSQLite(ctx context.Context, q querier, id int64) (schedule.Item, error) {
	row := q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	it, err := scanSQLiteItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.Item{}, ErrNotFound
	}
	return it, err
}

func scanSQLiteItem(sc scanner) (schedule.Item, error) {
	var (
		r                              record
		link, creator, image, day, rel sql.NullString
		interval                       sql.NullInt64
		next, last                     sql.NullString
		created, updated               string
	)
	if err := sc.Scan(&r.ID, &r.Title, &link, &creator, &image, &day, &interval,
		&next, &rel, &last, &r.Status, &created, &updated); err != nil {
		return schedule.Item{}, err
	}
	r.Link, r.Creator, r.ImageURL = link.String, creator.String, image.String
	r.ReleaseDay, r.ReleaseTime = day.String, rel.String
	r.ReleaseInterval = int(interval.Int64)
	r.NextReleaseDate = parseTimePtr(next)
	r.LastNotifiedAt = parseTimePtr(last)
	r.CreatedAt, _ = time.Parse(sqliteTime, created)
	r.UpdatedAt, _ = time.Parse(sqliteTime, updated)
	return r.item(), nil
}

// cadenceColumns returns (release_day, release_interval, next_release_date);
// the inactive kind's columns are NULL.
func cadenceColumns(c schedule.Cadence) (day any, interval any, next *time.Time) {
	if c.Kind == schedule.CadenceInterval {
		return nil, c.EveryDays, c.NextDue
	}
	return c.Day.String(), nil, nil
}

func releaseColumn(t *schedule.TimeOfDay) any {
	if t == nil {
		return nil
	}
	return t.String()
}

func fmtTime(t time.Time) string { return t.UTC().Format(sqliteTime) }

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTimePtr(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.Parse(sqliteTime, v.String)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, v.String)
		if err != nil {
			return nil
		}
	}
	return &t
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
