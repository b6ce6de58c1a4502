package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"roomrelay/internal/core/domain"
	"roomrelay/internal/core/ports"
	"roomrelay/pkg/circuitbreaker"

	"github.com/redis/go-redis/v9"
)

// MetadataStore persists room history in Redis. Sessions and
// recordings are append-only lists per room; the room creation
// timestamp is written once and never overwritten. A circuit breaker
// sheds load during a Redis outage so callers fail fast instead of
// piling up on connection timeouts.
type MetadataStore struct {
	client  *redis.Client
	prefix  string
	breaker *circuitbreaker.CircuitBreaker
}

func NewMetadataStore(client *redis.Client) *MetadataStore {
	return &MetadataStore{
		client:  client,
		prefix:  "roomrelay:",
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
	}
}

func (s *MetadataStore) roomKey(roomID domain.RoomID) string {
	return fmt.Sprintf("%sroom:%s:created", s.prefix, roomID)
}

func (s *MetadataStore) sessionsKey(roomID domain.RoomID) string {
	return fmt.Sprintf("%sroom:%s:sessions", s.prefix, roomID)
}

func (s *MetadataStore) recordingsKey(roomID domain.RoomID) string {
	return fmt.Sprintf("%sroom:%s:recordings", s.prefix, roomID)
}

func (s *MetadataStore) SaveRoomCreated(ctx context.Context, roomID domain.RoomID, at time.Time) error {
	return s.breaker.Execute(ctx, func() error {
		// SetNX keeps the first creation timestamp across room respawns.
		if err := s.client.SetNX(ctx, s.roomKey(roomID), at.Format(time.RFC3339), 0).Err(); err != nil {
			return fmt.Errorf("failed to save room creation: %w", err)
		}
		return nil
	})
}

func (s *MetadataStore) SaveSession(ctx context.Context, rec domain.SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}
	return s.breaker.Execute(ctx, func() error {
		if err := s.client.RPush(ctx, s.sessionsKey(rec.RoomID), data).Err(); err != nil {
			return fmt.Errorf("failed to push session record: %w", err)
		}
		return nil
	})
}

func (s *MetadataStore) SaveRecording(ctx context.Context, meta domain.RecordingMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal recording metadata: %w", err)
	}
	return s.breaker.Execute(ctx, func() error {
		if err := s.client.RPush(ctx, s.recordingsKey(meta.RoomID), data).Err(); err != nil {
			return fmt.Errorf("failed to push recording metadata: %w", err)
		}
		return nil
	})
}

func (s *MetadataStore) ListRecordings(ctx context.Context, roomID domain.RoomID) ([]domain.RecordingMetadata, error) {
	var items []string
	err := s.breaker.Execute(ctx, func() error {
		var lerr error
		items, lerr = s.client.LRange(ctx, s.recordingsKey(roomID), 0, -1).Result()
		return lerr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}

	out := make([]domain.RecordingMetadata, 0, len(items))
	for _, item := range items {
		var meta domain.RecordingMetadata
		if err := json.Unmarshal([]byte(item), &meta); err != nil {
			// Skip entries written by incompatible versions.
			continue
		}
		out = append(out, meta)
	}
	return out, nil
}

var _ ports.MetadataStore = (*MetadataStore)(nil)
