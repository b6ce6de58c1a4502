package domain

import "time"

// RecordingState is the lifecycle of one room's recording session.
type RecordingState int32

const (
	RecordingIdle RecordingState = iota
	RecordingStarting
	RecordingActive
	RecordingStopping
	RecordingFinalized
)

func (s RecordingState) String() string {
	switch s {
	case RecordingIdle:
		return "idle"
	case RecordingStarting:
		return "starting"
	case RecordingActive:
		return "active"
	case RecordingStopping:
		return "stopping"
	case RecordingFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// RecordingMode selects the output strategy.
type RecordingMode string

const (
	// RecordingModePerPeer runs one muxing subprocess per captured peer
	// and yields one file per peer.
	RecordingModePerPeer RecordingMode = "per-peer"
	// RecordingModeCombined runs a single subprocess mixing all audio
	// and tiling all video into one shared file.
	RecordingModeCombined RecordingMode = "combined"
)

// RecordingFile describes one finished output file.
type RecordingFile struct {
	PeerID   PeerID `json:"peerId"`
	Username string `json:"username"`
	File     string `json:"file"`
	Size     int64  `json:"size"`
}

// TranscriptEntry is one line of speech-to-text attributed to a peer.
type TranscriptEntry struct {
	PeerID PeerID    `json:"peerId"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

// RecordingMetadata is the durable sidecar document written next to the
// finished media files and handed to the metadata store.
type RecordingMetadata struct {
	RecordingID RecordingID       `json:"recordingId"`
	RoomID      RoomID            `json:"roomId"`
	StartedAt   time.Time         `json:"startedAt"`
	EndedAt     time.Time         `json:"endedAt"`
	StartedBy   PeerID            `json:"startedBy"`
	Mode        RecordingMode     `json:"mode"`
	Files       []RecordingFile   `json:"files"`
	Transcripts []TranscriptEntry `json:"transcripts,omitempty"`
}
