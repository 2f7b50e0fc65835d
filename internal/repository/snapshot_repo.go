package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"progresspal-web/internal/models"
)

const (
	snapshotKeyPrefix = "live_snapshot:"
	undoKeyPrefix     = "live_undo:"
)

// SnapshotRepo keeps the last-known-good live session per user in Redis.
type SnapshotRepo struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewSnapshotRepo(client *redis.Client, ttl time.Duration) *SnapshotRepo {
	return &SnapshotRepo{redis: client, ttl: ttl}
}

// Get returns nil, nil when nothing is cached for the user.
func (r *SnapshotRepo) Get(ctx context.Context, userID uuid.UUID) (*models.Snapshot, error) {
	data, err := r.redis.Get(ctx, snapshotKeyPrefix+userID.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

func (r *SnapshotRepo) Save(ctx context.Context, userID uuid.UUID, snap *models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := r.redis.Set(ctx, snapshotKeyPrefix+userID.String(), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

func (r *SnapshotRepo) Delete(ctx context.Context, userID uuid.UUID) error {
	return r.redis.Del(ctx, snapshotKeyPrefix+userID.String()).Err()
}

// UndoRepo holds the undo entry for the most recent progress update. Entries
// expire with the TTL given on Put, at most the undo window.
type UndoRepo struct {
	redis  *redis.Client
	window time.Duration
}

func NewUndoRepo(client *redis.Client, window time.Duration) *UndoRepo {
	return &UndoRepo{redis: client, window: window}
}

// Put stores entry for ttl. A ttl that has already run out stores nothing.
func (r *UndoRepo) Put(ctx context.Context, userID uuid.UUID, entry *models.UndoEntry, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode undo entry: %w", err)
	}
	if err := r.redis.Set(ctx, undoKeyPrefix+userID.String(), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write undo entry: %w", err)
	}
	return nil
}

// Take removes and returns the pending undo entry, nil when none is left.
func (r *UndoRepo) Take(ctx context.Context, userID uuid.UUID) (*models.UndoEntry, error) {
	data, err := r.redis.GetDel(ctx, undoKeyPrefix+userID.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read undo entry: %w", err)
	}

	var entry models.UndoEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode undo entry: %w", err)
	}
	return &entry, nil
}

func (r *UndoRepo) Clear(ctx context.Context, userID uuid.UUID) error {
	return r.redis.Del(ctx, undoKeyPrefix+userID.String()).Err()
}

func (r *UndoRepo) Window() time.Duration {
	return r.window
}
