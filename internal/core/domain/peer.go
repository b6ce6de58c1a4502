package domain

import "time"

// PeerInfo is what a client declares about itself when joining.
type PeerInfo struct {
	Username string `json:"username"`
	// Recorder marks a system-internal capture client. Recorder peers
	// are never eligible to host and are excluded from recordings.
	Recorder bool `json:"recorder,omitempty"`
}

// PeerSummary is the projection of a peer shared with other clients.
type PeerSummary struct {
	ID       PeerID    `json:"peerId"`
	Username string    `json:"username"`
	IsHost   bool      `json:"isHost"`
	JoinedAt time.Time `json:"joinedAt"`
}

// ProducerSummary announces one active producer to the room.
type ProducerSummary struct {
	PeerID     PeerID    `json:"peerId"`
	ProducerID string    `json:"producerId"`
	Kind       MediaKind `json:"kind"`
}
