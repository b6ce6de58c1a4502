package services

import (
	"context"
	"time"

	"roomrelay/internal/core/domain"
	"roomrelay/internal/core/ports"
	"roomrelay/pkg/retry"
	"roomrelay/pkg/utils"

	"go.uber.org/zap"
)

// SessionTracker marks the occupancy periods of rooms. A session opens
// when a room goes from empty to occupied and is flushed to the
// metadata store when the room empties again.
type SessionTracker struct {
	store    ports.MetadataStore
	events   ports.EventPublisher
	retryCfg retry.Config
	logger   *zap.SugaredLogger
}

func NewSessionTracker(store ports.MetadataStore, events ports.EventPublisher, logger *zap.SugaredLogger) *SessionTracker {
	return &SessionTracker{
		store:    store,
		events:   events,
		retryCfg: retry.DefaultConfig(),
		logger:   logger,
	}
}

// Open starts a new session for the room.
func (t *SessionTracker) Open(roomID domain.RoomID) *domain.Session {
	s := &domain.Session{
		ID:        domain.SessionID(utils.GenerateSessionID()),
		RoomID:    roomID,
		StartedAt: time.Now(),
	}
	t.logger.Infow("session started", "room_id", roomID, "session_id", s.ID)
	return s
}

// Close flushes the session record. History persistence is best-effort
// with retries; a store outage never blocks room teardown.
func (t *SessionTracker) Close(ctx context.Context, s *domain.Session) {
	rec := s.Snapshot(time.Now())
	err := retry.Retry(ctx, t.retryCfg, func() error {
		return t.store.SaveSession(ctx, rec)
	})
	if err != nil {
		t.logger.Errorw("failed to flush session record",
			"room_id", rec.RoomID, "session_id", rec.ID, "error", err)
	}
	if err := t.events.PublishRoomEvent(ctx, ports.RoomEvent{
		Type:      ports.EventSessionClosed,
		RoomID:    rec.RoomID,
		SessionID: rec.ID,
		At:        rec.EndedAt,
	}); err != nil {
		t.logger.Warnw("failed to publish session close event",
			"room_id", rec.RoomID, "session_id", rec.ID, "error", err)
	}
	t.logger.Infow("session closed",
		"room_id", rec.RoomID,
		"session_id", rec.ID,
		"duration", rec.EndedAt.Sub(rec.StartedAt),
		"participants", rec.Participants,
		"messages", rec.Messages,
	)
}
