package memory

import (
	"context"
	"sync"
	"time"

	"roomrelay/internal/core/domain"
	"roomrelay/internal/core/ports"
)

// MetadataStore keeps room history in process memory. It is the
// default for single-node deployments and for tests; history is lost
// on restart.
type MetadataStore struct {
	mu         sync.RWMutex
	rooms      map[domain.RoomID]time.Time
	sessions   map[domain.RoomID][]domain.SessionRecord
	recordings map[domain.RoomID][]domain.RecordingMetadata
}

func NewMetadataStore() *MetadataStore {
	return &MetadataStore{
		rooms:      make(map[domain.RoomID]time.Time),
		sessions:   make(map[domain.RoomID][]domain.SessionRecord),
		recordings: make(map[domain.RoomID][]domain.RecordingMetadata),
	}
}

func (s *MetadataStore) SaveRoomCreated(ctx context.Context, roomID domain.RoomID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[roomID]; !exists {
		s.rooms[roomID] = at
	}
	return nil
}

func (s *MetadataStore) SaveSession(ctx context.Context, rec domain.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[rec.RoomID] = append(s.sessions[rec.RoomID], rec)
	return nil
}

func (s *MetadataStore) SaveRecording(ctx context.Context, meta domain.RecordingMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordings[meta.RoomID] = append(s.recordings[meta.RoomID], meta)
	return nil
}

func (s *MetadataStore) ListRecordings(ctx context.Context, roomID domain.RoomID) ([]domain.RecordingMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RecordingMetadata, len(s.recordings[roomID]))
	copy(out, s.recordings[roomID])
	return out, nil
}

// Sessions returns the recorded sessions of a room, newest last.
func (s *MetadataStore) Sessions(roomID domain.RoomID) []domain.SessionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SessionRecord, len(s.sessions[roomID]))
	copy(out, s.sessions[roomID])
	return out
}

var _ ports.MetadataStore = (*MetadataStore)(nil)
