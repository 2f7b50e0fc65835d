package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"progresspal-web/internal/models"
)

const memoryCacheSize = 4096

// MemorySnapshotRepo is the single-process SnapshotRepo used when no Redis
// URL is configured.
type MemorySnapshotRepo struct {
	cache *expirable.LRU[uuid.UUID, models.Snapshot]
}

func NewMemorySnapshotRepo(ttl time.Duration) *MemorySnapshotRepo {
	return &MemorySnapshotRepo{cache: expirable.NewLRU[uuid.UUID, models.Snapshot](memoryCacheSize, nil, ttl)}
}

func (r *MemorySnapshotRepo) Get(_ context.Context, userID uuid.UUID) (*models.Snapshot, error) {
	snap, ok := r.cache.Get(userID)
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (r *MemorySnapshotRepo) Save(_ context.Context, userID uuid.UUID, snap *models.Snapshot) error {
	r.cache.Add(userID, *snap)
	return nil
}

func (r *MemorySnapshotRepo) Delete(_ context.Context, userID uuid.UUID) error {
	r.cache.Remove(userID)
	return nil
}

type undoRecord struct {
	entry     models.UndoEntry
	expiresAt time.Time
}

type MemoryUndoRepo struct {
	cache  *expirable.LRU[uuid.UUID, undoRecord]
	window time.Duration
	now    func() time.Time
}

func NewMemoryUndoRepo(window time.Duration) *MemoryUndoRepo {
	return &MemoryUndoRepo{
		cache:  expirable.NewLRU[uuid.UUID, undoRecord](memoryCacheSize, nil, window),
		window: window,
		now:    time.Now,
	}
}

// Put stores entry for ttl. The cache evicts after the full window, so the
// record carries its own deadline for shorter TTLs.
func (r *MemoryUndoRepo) Put(_ context.Context, userID uuid.UUID, entry *models.UndoEntry, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	r.cache.Add(userID, undoRecord{entry: *entry, expiresAt: r.now().Add(ttl)})
	return nil
}

func (r *MemoryUndoRepo) Take(_ context.Context, userID uuid.UUID) (*models.UndoEntry, error) {
	rec, ok := r.cache.Get(userID)
	if !ok {
		return nil, nil
	}
	r.cache.Remove(userID)
	if !r.now().Before(rec.expiresAt) {
		return nil, nil
	}
	return &rec.entry, nil
}

func (r *MemoryUndoRepo) Clear(_ context.Context, userID uuid.UUID) error {
	r.cache.Remove(userID)
	return nil
}

func (r *MemoryUndoRepo) Window() time.Duration {
	return r.window
}
