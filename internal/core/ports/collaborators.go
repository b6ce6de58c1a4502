package ports

import (
	"context"
	"io"
	"time"

	"roomrelay/internal/core/domain"
)

// Notifier delivers room-scoped broadcasts over the signaling channel.
// Delivery is best-effort: a client that is already gone is skipped,
// never retried.
type Notifier interface {
	Broadcast(roomID domain.RoomID, event string, payload interface{})
	BroadcastExcept(roomID domain.RoomID, except domain.PeerID, event string, payload interface{})
}

// MetadataStore is the durable key/value collaborator for room history.
type MetadataStore interface {
	SaveRoomCreated(ctx context.Context, roomID domain.RoomID, at time.Time) error
	SaveSession(ctx context.Context, rec domain.SessionRecord) error
	SaveRecording(ctx context.Context, meta domain.RecordingMetadata) error
	ListRecordings(ctx context.Context, roomID domain.RoomID) ([]domain.RecordingMetadata, error)
}

// ObjectStore receives finished recording artifacts.
type ObjectStore interface {
	Save(ctx context.Context, name string, data io.Reader) error
	// SaveFile uploads an on-disk artifact without buffering it whole.
	SaveFile(ctx context.Context, name, path string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// RoomEventType enumerates the coordination events published on the bus.
type RoomEventType string

const (
	EventRoomCreated        RoomEventType = "room.created"
	EventRoomClosed         RoomEventType = "room.closed"
	EventSessionClosed      RoomEventType = "session.closed"
	EventRecordingFinalized RoomEventType = "recording.finalized"
)

// RoomEvent is one coordination event.
type RoomEvent struct {
	Type        RoomEventType      `json:"type"`
	RoomID      domain.RoomID      `json:"roomId"`
	SessionID   domain.SessionID   `json:"sessionId,omitempty"`
	RecordingID domain.RecordingID `json:"recordingId,omitempty"`
	At          time.Time          `json:"at"`
}

// EventPublisher fans room events out to external observers.
type EventPublisher interface {
	PublishRoomEvent(ctx context.Context, event RoomEvent) error
}
