package storage

import (
	"context"
	"errors"
	"strings"

	"mangabot/internal/schedule"
	logx "mangabot/pkg/logx"
)

// Store persists tracked items.
//
// FindDueCandidates and Update are the scheduler's view: candidates exclude
// Done items, and Update writes only the scheduler-owned fields. The rest is
// the external update path used by the CLI, HTTP API and bot commands.
type Store interface {
	FindDueCandidates(ctx context.Context) ([]schedule.Item, error)
	Update(ctx context.Context, id int64, p schedule.Patch) error

	Create(ctx context.Context, n NewItem) (schedule.Item, error)
	Get(ctx context.Context, id int64) (schedule.Item, error)
	List(ctx context.Context, f ListFilter) ([]schedule.Item, error)
	SetStatus(ctx context.Context, id int64, st schedule.Status) (schedule.Item, error)
	SetCadence(ctx context.Context, id int64, c schedule.Cadence, release *schedule.TimeOfDay) (schedule.Item, error)
	Delete(ctx context.Context, id int64) error

	Close() error
}

// Open initializes the configured store.
// It returns ErrDisabled if Driver is "none".
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "memory", "mem":
		return openMemory(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(ctx, cfg, log)
	case "postgres", "postgresql", "pg":
		return openPostgres(ctx, cfg, log)
	case "none":
		return nil, ErrDisabled
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
