package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinToken_RoundTrip(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)
	require.True(t, svc.Enabled())

	token, err := svc.GenerateJoinToken("standup", "alice", false)
	require.NoError(t, err)

	claims, err := svc.ValidateJoinToken(token, "standup")
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.False(t, claims.Recorder)
}

func TestJoinToken_RoomScope(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	token, err := svc.GenerateJoinToken("standup", "alice", false)
	require.NoError(t, err)

	_, err = svc.ValidateJoinToken(token, "other-room")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// A token without a room claim grants access anywhere.
	anyRoom, err := svc.GenerateJoinToken("", "alice", false)
	require.NoError(t, err)
	_, err = svc.ValidateJoinToken(anyRoom, "other-room")
	assert.NoError(t, err)
}

func TestJoinToken_Expired(t *testing.T) {
	svc := NewTokenService("test-secret", time.Millisecond)

	token, err := svc.GenerateJoinToken("standup", "alice", false)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	_, err = svc.ValidateJoinToken(token, "standup")
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJoinToken_WrongSecret(t *testing.T) {
	issuer := NewTokenService("secret-a", time.Hour)
	verifier := NewTokenService("secret-b", time.Hour)

	token, err := issuer.GenerateJoinToken("standup", "alice", false)
	require.NoError(t, err)

	_, err = verifier.ValidateJoinToken(token, "standup")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = verifier.ValidateJoinToken("not-a-token", "standup")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJoinToken_DisabledAcceptsEverything(t *testing.T) {
	svc := NewTokenService("", 0)
	require.False(t, svc.Enabled())

	claims, err := svc.ValidateJoinToken("anything", "standup")
	require.NoError(t, err)
	assert.EqualValues(t, "standup", claims.Room)
}

func TestJoinToken_RecorderClaim(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	token, err := svc.GenerateJoinToken("standup", "capture", true)
	require.NoError(t, err)

	claims, err := svc.ValidateJoinToken(token, "standup")
	require.NoError(t, err)
	assert.True(t, claims.Recorder)
}
