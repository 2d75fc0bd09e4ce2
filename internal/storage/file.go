package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"mangabot/internal/schedule"
	logx "mangabot/pkg/logx"
)

// fileStore keeps all items in memory and persists them as:
//   - <prefix>.items.json          (snapshot)
//   - <prefix>.items.journal.jsonl (append-only journal of changes since the snapshot)
//
// The journal is compacted into the snapshot every compactEvery writes and on Close.
type fileStore struct {
	log   logx.Logger
	fs    afero.Fs
	clock schedule.Clock

	mu sync.Mutex

	snapshotPath string
	journal      afero.File

	items  map[int64]record
	nextID int64

	writes       int
	compactEvery int
}

type snapshot struct {
	NextID int64    `json:"next_id"`
	Items  []record `json:"items"`
}

type journalEntry struct {
	Op     string  `json:"op"` // "put" | "del"
	Item   *record `json:"item,omitempty"`
	ID     int64   `json:"id,omitempty"`
	NextID int64   `json:"next_id,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	return openFileFS(afero.NewOsFs(), path, cfg, log)
}

func openMemory(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = "/mangabot"
	}
	return openFileFS(afero.NewMemMapFs(), path, cfg, log)
}

func openFileFS(fs afero.Fs, path string, cfg Config, log logx.Logger) (*fileStore, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:          log,
		fs:           fs,
		clock:        clockOf(cfg),
		snapshotPath: prefix + ".items.json",
		items:        map[int64]record{},
		nextID:       1,
		compactEvery: 200,
	}
	journalPath := prefix + ".items.journal.jsonl"

	if err := s.loadSnapshot(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	replayed, err := s.replayJournal(journalPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	jf, err := fs.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s.journal = jf
	s.writes = replayed

	log.Debug("file store opened", logx.String("snapshot", s.snapshotPath), logx.Int("items", len(s.items)), logx.Int("journal", replayed))
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.compactLocked()
	if cerr := s.journal.Close(); err == nil {
		err = cerr
	}
	s.journal = nil
	return err
}

func (s *fileStore) FindDueCandidates(ctx context.Context) ([]schedule.Item, error) {
	return s.List(ctx, ListFilter{})
}

func (s *fileStore) List(ctx context.Context, f ListFilter) ([]schedule.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schedule.Item, 0, len(s.items))
	for _, r := range s.items {
		if !f.IncludeDone && r.Status == string(schedule.StatusDone) {
			continue
		}
		out = append(out, r.item())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fileStore) Get(ctx context.Context, id int64) (schedule.Item, error) {
	if err := ctx.Err(); err != nil {
		return schedule.Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.items[id]
	if !ok {
		return schedule.Item{}, ErrNotFound
	}
	return r.item(), nil
}

func (s *fileStore) Update(ctx context.Context, id int64, p schedule.Patch) error {
	_, err := s.mutate(ctx, id, func(it schedule.Item) (schedule.Item, error) {
		it = p.Apply(it)
		it.UpdatedAt = s.clock.Now()
		return it, nil
	})
	return err
}

func (s *fileStore) Create(ctx context.Context, n NewItem) (schedule.Item, error) {
	if err := ctx.Err(); err != nil {
		return schedule.Item{}, err
	}
	it, err := prepareNew(n, s.clock.Now())
	if err != nil {
		return schedule.Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return schedule.Item{}, errors.New("file store closed")
	}
	it.ID = s.nextID
	r := toRecord(it)
	if err := s.appendLocked(journalEntry{Op: "put", Item: &r, NextID: it.ID + 1}); err != nil {
		return schedule.Item{}, err
	}
	s.items[it.ID] = r
	s.nextID = it.ID + 1
	s.maybeCompactLocked()
	return r.item(), nil
}

func (s *fileStore) SetStatus(ctx context.Context, id int64, st schedule.Status) (schedule.Item, error) {
	return s.mutate(ctx, id, func(it schedule.Item) (schedule.Item, error) {
		return applyStatus(it, st, s.clock.Now())
	})
}

func (s *fileStore) SetCadence(ctx context.Context, id int64, c schedule.Cadence, release *schedule.TimeOfDay) (schedule.Item, error) {
	return s.mutate(ctx, id, func(it schedule.Item) (schedule.Item, error) {
		return applyCadence(it, c, release, s.clock.Now())
	})
}

func (s *fileStore) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	if s.journal == nil {
		return errors.New("file store closed")
	}
	if err := s.appendLocked(journalEntry{Op: "del", ID: id}); err != nil {
		return err
	}
	delete(s.items, id)
	s.maybeCompactLocked()
	return nil
}

func (s *fileStore) mutate(ctx context.Context, id int64, fn func(schedule.Item) (schedule.Item, error)) (schedule.Item, error) {
	if err := ctx.Err(); err != nil {
		return schedule.Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[id]
	if !ok {
		return schedule.Item{}, ErrNotFound
	}
	if s.journal == nil {
		return schedule.Item{}, errors.New("file store closed")
	}
	next, err := fn(cur.item())
	if err != nil {
		return schedule.Item{}, err
	}
	r := toRecord(next)
	if err := s.appendLocked(journalEntry{Op: "put", Item: &r}); err != nil {
		return schedule.Item{}, err
	}
	s.items[id] = r
	s.maybeCompactLocked()
	return r.item(), nil
}

// appendLocked only journals e; callers apply the change in memory and then
// call maybeCompactLocked so a snapshot never misses the entry it replaces.
func (s *fileStore) appendLocked(e journalEntry) error {
	if err := json.NewEncoder(s.journal).Encode(e); err != nil {
		return err
	}
	s.writes++
	return nil
}

func (s *fileStore) maybeCompactLocked() {
	if s.compactEvery <= 0 || s.writes%s.compactEvery != 0 {
		return
	}
	if err := s.compactLocked(); err != nil {
		// The journal still holds the change; compaction retries later.
		s.log.Warn("items compact failed", logx.Err(err))
	}
}

func (s *fileStore) compactLocked() error {
	snap := snapshot{NextID: s.nextID, Items: make([]record, 0, len(s.items))}
	for _, r := range s.items {
		snap.Items = append(snap.Items, r)
	}
	sort.Slice(snap.Items, func(i, j int) bool { return snap.Items[i].ID < snap.Items[j].ID })

	tmp := s.snapshotPath + ".tmp"
	f, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := s.fs.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func (s *fileStore) loadSnapshot() error {
	f, err := s.fs.Open(s.snapshotPath)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	for _, r := range snap.Items {
		s.items[r.ID] = r
		if r.ID >= s.nextID {
			s.nextID = r.ID + 1
		}
	}
	if snap.NextID > s.nextID {
		s.nextID = snap.NextID
	}
	return nil
}

func (s *fileStore) replayJournal(path string) (int, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var e journalEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			// A torn final line after a crash; everything before it is intact.
			s.log.Warn("skipping bad journal line", logx.Err(err))
			continue
		}
		switch e.Op {
		case "put":
			if e.Item == nil {
				continue
			}
			s.items[e.Item.ID] = *e.Item
			if e.Item.ID >= s.nextID {
				s.nextID = e.Item.ID + 1
			}
		case "del":
			delete(s.items, e.ID)
		}
		if e.NextID > s.nextID {
			s.nextID = e.NextID
		}
		n++
	}
	return n, sc.Err()
}
