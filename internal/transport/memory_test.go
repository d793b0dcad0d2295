package transport

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// testVerifier accepts tokens of the form "identity" or "identity:pub".
func testVerifier(token string) (string, bool, error) {
	if token == "" {
		return "", false, errors.New("empty token")
	}
	identity, grant, found := strings.Cut(token, ":")
	return identity, found && grant == "pub", nil
}

func nextEvent(t *testing.T, room Room) Event {
	t.Helper()
	select {
	case ev, ok := <-room.Events():
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func drainUntil(t *testing.T, room Room, evType EventType) Event {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case ev, ok := <-room.Events():
			require.True(t, ok, "event channel closed")
			if ev.Type == evType {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event type %d", evType)
		}
	}
}

func TestConnectRejectsBadToken(t *testing.T) {
	hub := NewHub(testVerifier, zerolog.Nop())

	_, err := hub.Connect(context.Background(), "room", "")
	require.Error(t, err)
}

func TestSecondPublisherDenied(t *testing.T) {
	hub := NewHub(testVerifier, zerolog.Nop())
	ctx := context.Background()

	_, err := hub.Connect(ctx, "room", "admin:pub")
	require.NoError(t, err)

	_, err = hub.Connect(ctx, "room", "rival:pub")
	require.ErrorIs(t, err, ErrPublishDenied)

	// Subscribe-only members still join freely.
	_, err = hub.Connect(ctx, "room", "viewer")
	require.NoError(t, err)
}

func TestPublisherSlotFreedOnDisconnect(t *testing.T) {
	hub := NewHub(testVerifier, zerolog.Nop())
	ctx := context.Background()

	first, err := hub.Connect(ctx, "room", "admin:pub")
	require.NoError(t, err)
	require.NoError(t, first.Disconnect(ctx))

	_, err = hub.Connect(ctx, "room", "rival:pub")
	require.NoError(t, err)
}

func TestReconnectSupersedesStaleHandle(t *testing.T) {
	hub := NewHub(testVerifier, zerolog.Nop())
	ctx := context.Background()

	stale, err := hub.Connect(ctx, "room", "admin:pub")
	require.NoError(t, err)

	fresh, err := hub.Connect(ctx, "room", "admin:pub")
	require.NoError(t, err)

	// The stale handle observes a forced disconnect and its channel closes.
	ev := drainUntil(t, stale, EventConnectionStateChanged)
	require.Equal(t, ConnectionConnected, ev.State)
	ev = drainUntil(t, stale, EventConnectionStateChanged)
	require.Equal(t, ConnectionDisconnected, ev.State)

	// Operations on the stale handle fail, the fresh one works.
	require.ErrorIs(t, stale.SetEnabled(ctx, SourceMicrophone, true), ErrNotConnected)
	require.NoError(t, fresh.SetEnabled(ctx, SourceMicrophone, true))
}

func TestPublishConfirmationsReachSelfAndOthers(t *testing.T) {
	hub := NewHub(testVerifier, zerolog.Nop())
	ctx := context.Background()

	admin, err := hub.Connect(ctx, "room", "admin:pub")
	require.NoError(t, err)
	viewer, err := hub.Connect(ctx, "room", "viewer")
	require.NoError(t, err)

	require.NoError(t, admin.Publish(ctx, SourceCamera, Track{ID: "cam", Source: SourceCamera}))

	ev := drainUntil(t, admin, EventTrackPublished)
	require.Equal(t, "admin", ev.Participant.Identity)
	require.Equal(t, SourceCamera, ev.Source)

	ev = drainUntil(t, viewer, EventTrackPublished)
	require.Equal(t, "admin", ev.Participant.Identity)
	require.Equal(t, []Source{SourceCamera}, ev.Participant.Published)

	require.NoError(t, admin.Unpublish(ctx, SourceCamera))
	ev = drainUntil(t, admin, EventTrackUnpublished)
	require.Empty(t, ev.Participant.Published)
}

func TestPublishDeniedForSubscriber(t *testing.T) {
	hub := NewHub(testVerifier, zerolog.Nop())
	ctx := context.Background()

	viewer, err := hub.Connect(ctx, "room", "viewer")
	require.NoError(t, err)

	err = viewer.Publish(ctx, SourceCamera, Track{ID: "cam", Source: SourceCamera})
	require.ErrorIs(t, err, ErrPublishDenied)
}

func TestSendDataExcludesSender(t *testing.T) {
	hub := NewHub(testVerifier, zerolog.Nop())
	ctx := context.Background()

	admin, err := hub.Connect(ctx, "room", "admin:pub")
	require.NoError(t, err)
	viewerA, err := hub.Connect(ctx, "room", "viewer-a")
	require.NoError(t, err)
	viewerB, err := hub.Connect(ctx, "room", "viewer-b")
	require.NoError(t, err)

	require.NoError(t, admin.SendData(ctx, []byte(`{"kind":"layout"}`), false))

	for _, viewer := range []Room{viewerA, viewerB} {
		ev := drainUntil(t, viewer, EventDataReceived)
		require.Equal(t, "admin", ev.Sender)
		require.JSONEq(t, `{"kind":"layout"}`, string(ev.Payload))
	}

	// The sender sees no echo of its own payload.
	select {
	case ev := <-admin.Events():
		require.NotEqual(t, EventDataReceived, ev.Type)
	default:
	}
}

func TestParticipantsSnapshot(t *testing.T) {
	hub := NewHub(testVerifier, zerolog.Nop())
	ctx := context.Background()

	admin, err := hub.Connect(ctx, "room", "admin:pub")
	require.NoError(t, err)
	viewer, err := hub.Connect(ctx, "room", "viewer")
	require.NoError(t, err)

	require.NoError(t, admin.Publish(ctx, SourceCamera, Track{ID: "cam", Source: SourceCamera}))

	remotes := viewer.Participants()
	require.Len(t, remotes, 1)
	require.Equal(t, "admin", remotes[0].Identity)
	require.True(t, remotes[0].CanPublish)
	require.True(t, remotes[0].HasVideo())

	local := viewer.LocalParticipant()
	require.Equal(t, "viewer", local.Identity)
	require.False(t, local.CanPublish)
}

func TestParticipantsAfterDisconnect(t *testing.T) {
	hub := NewHub(testVerifier, zerolog.Nop())
	ctx := context.Background()

	room, err := hub.Connect(ctx, "room", "admin:pub")
	require.NoError(t, err)
	require.NoError(t, room.Disconnect(ctx))

	require.Empty(t, room.Participants())
}

func TestDisconnectIsIdempotent(t *testing.T) {
	hub := NewHub(testVerifier, zerolog.Nop())
	ctx := context.Background()

	room, err := hub.Connect(ctx, "room", "admin:pub")
	require.NoError(t, err)

	require.NoError(t, room.Disconnect(ctx))
	require.NoError(t, room.Disconnect(ctx))

	require.ErrorIs(t, room.SendData(ctx, []byte("x"), true), ErrNotConnected)
}

func TestRoomsAreIsolated(t *testing.T) {
	hub := NewHub(testVerifier, zerolog.Nop())
	ctx := context.Background()

	_, err := hub.Connect(ctx, "room-a", "admin:pub")
	require.NoError(t, err)

	// A publisher in another room does not hold the grant here.
	_, err = hub.Connect(ctx, "room-b", "admin-b:pub")
	require.NoError(t, err)
}
