package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(time.Hour, time.Hour, "test-issuer")
	require.NoError(t, err)
	return m
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := newTestManager(t)

	tok, err := m.IssueAccess("alice", true)
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	claims, err := m.Validate(tok, TypeAccess)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Identity)
	require.True(t, claims.Admin)
	require.Equal(t, TypeAccess, claims.Type)
	require.Equal(t, "test-issuer", claims.Issuer)
}

func TestRoomTokenGrants(t *testing.T) {
	m := newTestManager(t)

	tests := []struct {
		name           string
		admin          bool
		wantCanPublish bool
	}{
		{name: "admin gets publish grant", admin: true, wantCanPublish: true},
		{name: "viewer joins subscribe only", admin: false, wantCanPublish: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := m.IssueRoomToken("user", "studio-main", tt.admin)
			require.NoError(t, err)

			claims, err := m.Validate(tok, TypeRoom)
			require.NoError(t, err)
			require.Equal(t, "studio-main", claims.Room)
			require.Equal(t, tt.wantCanPublish, claims.CanPublish)
			require.True(t, claims.CanSubscribe)
		})
	}
}

func TestValidateRejectsWrongType(t *testing.T) {
	m := newTestManager(t)

	accessToken, err := m.IssueAccess("alice", false)
	require.NoError(t, err)

	_, err = m.Validate(accessToken, TypeRoom)
	require.ErrorIs(t, err, ErrWrongType)
}

func TestValidateRejectsExpired(t *testing.T) {
	m, err := NewManager(-time.Minute, -time.Minute, "test-issuer")
	require.NoError(t, err)

	tok, err := m.IssueAccess("alice", false)
	require.NoError(t, err)

	_, err = m.Validate(tok, TypeAccess)
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateRejectsForeignToken(t *testing.T) {
	issuerA := newTestManager(t)
	issuerB := newTestManager(t)

	tok, err := issuerA.IssueAccess("alice", false)
	require.NoError(t, err)

	// Different keypair, signature cannot verify.
	_, err = issuerB.Validate(tok, TypeAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsGarbage(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Validate("not-a-token", TypeAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRoomToken(t *testing.T) {
	m := newTestManager(t)

	tok, err := m.IssueRoomToken("admin", "studio-main", true)
	require.NoError(t, err)

	identity, canPublish, err := m.VerifyRoomToken(tok)
	require.NoError(t, err)
	require.Equal(t, "admin", identity)
	require.True(t, canPublish)

	accessToken, err := m.IssueAccess("admin", true)
	require.NoError(t, err)

	_, _, err = m.VerifyRoomToken(accessToken)
	require.ErrorIs(t, err, ErrWrongType)
}
