package ports

import (
	"context"
	"time"

	"roomrelay/internal/core/domain"
)

// JoinResult is everything a freshly joined peer needs to resync: the
// negotiated capability set, its host status, and the current topology.
type JoinResult struct {
	SessionID    domain.SessionID         `json:"sessionId"`
	Capabilities domain.RTPCapabilities   `json:"capabilities"`
	IsHost       bool                     `json:"isHost"`
	Peers        []domain.PeerSummary     `json:"peers"`
	Producers    []domain.ProducerSummary `json:"producers"`
}

// RoomSummary is the admin-facing projection of an active room.
type RoomSummary struct {
	ID        domain.RoomID    `json:"roomId"`
	SessionID domain.SessionID `json:"sessionId"`
	PeerCount int              `json:"peerCount"`
	HostID    domain.PeerID    `json:"hostId,omitempty"`
	Recording bool             `json:"recording"`
}

// RoomService owns the room directory, peer membership and host
// migration.
type RoomService interface {
	JoinRoom(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID, password string, info domain.PeerInfo) (*JoinResult, error)
	LeavePeer(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID) error
	ListRooms(ctx context.Context) []RoomSummary
	CountMessage(roomID domain.RoomID)
	CountPoll(roomID domain.RoomID)
	Shutdown(ctx context.Context) error
}

// ConsumeResult describes a freshly created, still paused consumer.
// TransportSDP carries the transport's renegotiated offer when adding
// the consumer changed it.
type ConsumeResult struct {
	ConsumerID   string               `json:"consumerId"`
	ProducerID   string               `json:"producerId"`
	Kind         domain.MediaKind     `json:"kind"`
	Parameters   domain.RTPParameters `json:"parameters"`
	TransportSDP string               `json:"transportSdp,omitempty"`
}

// MediaService exposes the transport/producer/consumer handshake.
type MediaService interface {
	CreateTransport(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID, direction domain.TransportDirection) (*TransportInfo, error)
	ConnectTransport(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID, transportID string, dtls domain.DTLSParameters) error
	Produce(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID, transportID string, kind domain.MediaKind, params domain.RTPParameters) (string, error)
	Consume(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID, transportID, producerID string, caps domain.RTPCapabilities) (*ConsumeResult, error)
	ResumeConsumer(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID, consumerID string) error
}

// StartRecordingResult acknowledges a started recording.
type StartRecordingResult struct {
	RecordingID domain.RecordingID `json:"recordingId"`
	StartedAt   time.Time          `json:"startedAt"`
}

// StopRecordingResult lists the finalized artifacts.
type StopRecordingResult struct {
	RecordingID domain.RecordingID     `json:"recordingId"`
	Files       []domain.RecordingFile `json:"files"`
}

// RecordingService orchestrates the server-side capture pipeline.
type RecordingService interface {
	StartRecording(ctx context.Context, roomID domain.RoomID, initiator domain.PeerID, mode domain.RecordingMode) (*StartRecordingResult, error)
	StopRecording(ctx context.Context, roomID domain.RoomID) (*StopRecordingResult, error)
	AppendTranscript(roomID domain.RoomID, entry domain.TranscriptEntry)
	IsRecording(roomID domain.RoomID) bool
	StopAll(ctx context.Context)
}
