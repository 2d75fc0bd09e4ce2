package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mangabot/internal/schedule"
	logx "mangabot/pkg/logx"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

type pgStore struct {
	pool  *pgxpool.Pool
	log   logx.Logger
	clock schedule.Clock
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	if err := migratePostgres(dsn); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	log.Debug("postgres store opened", logx.Int("max_conns", int(poolCfg.MaxConns)))
	return &pgStore{pool: pool, log: log, clock: clockOf(cfg)}, nil
}

// migratePostgres applies the embedded up-migrations. Already-applied
// migrations are skipped.
func migratePostgres(dsn string) error {
	// golang-migrate's pgx/v5 driver expects the scheme "pgx5://".
	var rest string
	switch {
	case strings.HasPrefix(dsn, "postgresql://"):
		rest = dsn[len("postgresql://"):]
	case strings.HasPrefix(dsn, "postgres://"):
		rest = dsn[len("postgres://"):]
	default:
		rest = dsn
	}

	src, err := iofs.New(postgresMigrations, "migrations/postgres")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, "pgx5://"+rest)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *pgStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *pgStore) FindDueCandidates(ctx context.Context) ([]schedule.Item, error) {
	return s.List(ctx, ListFilter{})
}

func (s *pgStore) List(ctx context.Context, f ListFilter) ([]schedule.Item, error) {
	q := `SELECT ` + itemColumns + ` FROM items`
	var args []any
	if !f.IncludeDone {
		q += ` WHERE status <> $1`
		args = append(args, string(schedule.StatusDone))
	}
	q += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var out []schedule.Item
	for rows.Next() {
		it, err := scanPgItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *pgStore) Get(ctx context.Context, id int64) (schedule.Item, error) {
	return getPg(ctx, s.pool, id)
}

func (s *pgStore) Update(ctx context.Context, id int64, p schedule.Patch) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE items SET
			last_notified_at = GREATEST(COALESCE(last_notified_at, $1), $1),
			next_release_date = CASE
				WHEN release_interval > 0 AND $2::timestamptz IS NOT NULL THEN $2
				ELSE next_release_date END,
			updated_at = $3
		WHERE id = $4`,
		p.LastNotifiedAt, p.NextDue, s.clock.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("update item %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgStore) Create(ctx context.Context, n NewItem) (schedule.Item, error) {
	it, err := prepareNew(n, s.clock.Now())
	if err != nil {
		return schedule.Item{}, err
	}
	day, interval, next := cadenceColumns(it.Cadence)
	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO items (title, link, creator, image_url, release_day, release_interval,
			next_release_date, release_time, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id`,
		it.Title, nullStr(it.Link), nullStr(it.Creator), nullStr(it.ImageURL),
		day, interval, next, releaseColumn(it.ReleaseTime),
		string(it.Status), it.CreatedAt, it.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return schedule.Item{}, fmt.Errorf("insert item: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *pgStore) SetStatus(ctx context.Context, id int64, st schedule.Status) (schedule.Item, error) {
	return s.rewrite(ctx, id, func(it schedule.Item) (schedule.Item, error) {
		return applyStatus(it, st, s.clock.Now())
	})
}

func (s *pgStore) SetCadence(ctx context.Context, id int64, c schedule.Cadence, release *schedule.TimeOfDay) (schedule.Item, error) {
	return s.rewrite(ctx, id, func(it schedule.Item) (schedule.Item, error) {
		return applyCadence(it, c, release, s.clock.Now())
	})
}

func (s *pgStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete item %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgStore) rewrite(ctx context.Context, id int64, fn func(schedule.Item) (schedule.Item, error)) (schedule.Item, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return schedule.Item{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1 FOR UPDATE`, id)
	cur, err := scanPgItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return schedule.Item{}, ErrNotFound
	}
	if err != nil {
		return schedule.Item{}, err
	}
	next, err := fn(cur)
	if err != nil {
		return schedule.Item{}, err
	}
	day, interval, due := cadenceColumns(next.Cadence)
	if _, err := tx.Exec(ctx, `
		UPDATE items SET release_day = $1, release_interval = $2, next_release_date = $3,
			release_time = $4, status = $5, updated_at = $6
		WHERE id = $7`,
		day, interval, due, releaseColumn(next.ReleaseTime),
		string(next.Status), next.UpdatedAt, id,
	); err != nil {
		return schedule.Item{}, fmt.Errorf("rewrite item %d: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return schedule.Item{}, err
	}
	return next, nil
}

func getPg(ctx context.Context, pool *pgxpool.Pool, id int64) (schedule.Item, error) {
	row := pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
	it, err := scanPgItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return schedule.Item{}, ErrNotFound
	}
	return it, err
}

func scanPgItem(row pgx.Row) (schedule.Item, error) {
	var (
		r                              record
		link, creator, image, day, rel *string
		interval                       *int32
	)
	if err := row.Scan(&r.ID, &r.Title, &link, &creator, &image, &day, &interval,
		&r.NextReleaseDate, &rel, &r.LastNotifiedAt, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return schedule.Item{}, err
	}
	r.Link, r.Creator, r.ImageURL = deref(link), deref(creator), deref(image)
	r.ReleaseDay, r.ReleaseTime = deref(day), deref(rel)
	if interval != nil {
		r.ReleaseInterval = int(*interval)
	}
	return r.item(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
