package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"progresspal-web/internal/database"
	"progresspal-web/internal/models"
)

type SnapshotRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Snapshot, error)
	Save(ctx context.Context, userID uuid.UUID, snap *models.Snapshot) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

type UndoRepository interface {
	Put(ctx context.Context, userID uuid.UUID, entry *models.UndoEntry, ttl time.Duration) error
	Take(ctx context.Context, userID uuid.UUID) (*models.UndoEntry, error)
	Clear(ctx context.Context, userID uuid.UUID) error
	Window() time.Duration
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Stores bundles the snapshot and undo repositories behind one backend.
type Stores struct {
	Snapshots SnapshotRepository
	Undo      UndoRepository
	Backend   string

	redis *redis.Client
}

// OpenStores uses Redis when redisURL is set and in-process memory otherwise.
func OpenStores(ctx context.Context, redisURL string, snapshotTTL, undoWindow time.Duration) (*Stores, error) {
	if redisURL == "" {
		return &Stores{
			Snapshots: NewMemorySnapshotRepo(snapshotTTL),
			Undo:      NewMemoryUndoRepo(undoWindow),
			Backend:   BackendMemory,
		}, nil
	}

	client, err := database.NewRedisClient(ctx, redisURL)
	if err != nil {
		return nil, err
	}

	return &Stores{
		Snapshots: NewSnapshotRepo(client, snapshotTTL),
		Undo:      NewUndoRepo(client, undoWindow),
		Backend:   BackendRedis,
		redis:     client,
	}, nil
}

func (s *Stores) Close() error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Close()
}
