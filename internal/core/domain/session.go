package domain

import (
	"sync/atomic"
	"time"
)

// Session marks one continuous occupancy period of a room. It exists
// only to segment persisted history; counters are advisory and updated
// lock-free by whoever observes the activity.
type Session struct {
	ID        SessionID `json:"sessionId"`
	RoomID    RoomID    `json:"roomId"`
	StartedAt time.Time `json:"startedAt"`

	messages     atomic.Int64
	polls        atomic.Int64
	participants atomic.Int64
}

func (s *Session) CountMessage()     { s.messages.Add(1) }
func (s *Session) CountPoll()        { s.polls.Add(1) }
func (s *Session) CountParticipant() { s.participants.Add(1) }

// SessionRecord is the flushed, immutable form of a closed Session.
type SessionRecord struct {
	ID           SessionID `json:"sessionId"`
	RoomID       RoomID    `json:"roomId"`
	StartedAt    time.Time `json:"startedAt"`
	EndedAt      time.Time `json:"endedAt"`
	Messages     int64     `json:"messages"`
	Polls        int64     `json:"polls"`
	Participants int64     `json:"participants"`
}

// Snapshot freezes the session counters into a record ending now.
func (s *Session) Snapshot(endedAt time.Time) SessionRecord {
	return SessionRecord{
		ID:           s.ID,
		RoomID:       s.RoomID,
		StartedAt:    s.StartedAt,
		EndedAt:      endedAt,
		Messages:     s.messages.Load(),
		Polls:        s.polls.Load(),
		Participants: s.participants.Load(),
	}
}
