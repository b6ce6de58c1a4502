package memory

import (
	"context"
	"testing"
	"time"

	"roomrelay/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataStore_Recordings(t *testing.T) {
	s := NewMetadataStore()
	ctx := context.Background()

	list, err := s.ListRecordings(ctx, "room1")
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, s.SaveRecording(ctx, domain.RecordingMetadata{
		RecordingID: "rec_1",
		RoomID:      "room1",
		Mode:        domain.RecordingModePerPeer,
	}))
	require.NoError(t, s.SaveRecording(ctx, domain.RecordingMetadata{
		RecordingID: "rec_2",
		RoomID:      "room1",
		Mode:        domain.RecordingModeCombined,
	}))
	require.NoError(t, s.SaveRecording(ctx, domain.RecordingMetadata{
		RecordingID: "rec_3",
		RoomID:      "room2",
	}))

	list, err = s.ListRecordings(ctx, "room1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.RecordingID("rec_1"), list[0].RecordingID)
	assert.Equal(t, domain.RecordingID("rec_2"), list[1].RecordingID)
}

func TestMetadataStore_Sessions(t *testing.T) {
	s := NewMetadataStore()

	require.NoError(t, s.SaveSession(context.Background(), domain.SessionRecord{
		ID:       "session_1",
		RoomID:   "room1",
		Messages: 4,
	}))

	sessions := s.Sessions("room1")
	require.Len(t, sessions, 1)
	assert.Equal(t, int64(4), sessions[0].Messages)
	assert.Empty(t, s.Sessions("room2"))
}

func TestMetadataStore_RoomCreatedKeepsFirstTimestamp(t *testing.T) {
	s := NewMetadataStore()
	ctx := context.Background()

	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveRoomCreated(ctx, "room1", first))
	require.NoError(t, s.SaveRoomCreated(ctx, "room1", first.Add(time.Hour)))

	s.mu.RLock()
	defer s.mu.RUnlock()
	assert.Equal(t, first, s.rooms["room1"])
}
