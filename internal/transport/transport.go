package transport

import (
	"context"
	"errors"
)

var (
	// ErrPublishDenied is returned when a connect or publish attempt loses
	// the single-broadcaster race in the media room.
	ErrPublishDenied = errors.New("publish permission denied")

	// ErrNotConnected is returned when an operation is issued against a
	// room handle whose connection has already been severed.
	ErrNotConnected = errors.New("not connected to room")

	// ErrRoomFull is returned when the room rejects a new member.
	ErrRoomFull = errors.New("room is full")
)

// Source identifies a media source a participant can publish.
type Source int

const (
	SourceCamera Source = iota
	SourceMicrophone
	SourceScreenShare
)

// String returns the string representation of a Source.
func (s Source) String() string {
	switch s {
	case SourceCamera:
		return "camera"
	case SourceMicrophone:
		return "microphone"
	case SourceScreenShare:
		return "screen_share"
	default:
		return "unknown"
	}
}

// ConnectionState represents the transport-level connection state.
type ConnectionState int

const (
	ConnectionDisconnected ConnectionState = iota
	ConnectionConnecting
	ConnectionConnected
)

// String returns the string representation of a ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case ConnectionConnecting:
		return "connecting"
	case ConnectionConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Track is an opaque handle to a locally acquired media capture.
type Track struct {
	ID     string
	Source Source
}

// Participant is a point-in-time snapshot of a room member.
type Participant struct {
	Identity   string
	CanPublish bool
	Published  []Source
}

// HasVideo reports whether the participant publishes a video source.
func (p Participant) HasVideo() bool {
	for _, s := range p.Published {
		if s == SourceCamera || s == SourceScreenShare {
			return true
		}
	}
	return false
}

// EventType identifies a transport event.
type EventType int

const (
	EventParticipantJoined EventType = iota
	EventParticipantLeft
	EventTrackPublished
	EventTrackUnpublished
	EventConnectionStateChanged
	EventDataReceived
)

// Event is delivered on a room handle's event channel. Which fields are
// populated depends on Type: Participant for membership and track events,
// Source for track events, State for connection changes, Sender and
// Payload for data messages.
type Event struct {
	Type        EventType
	Participant Participant
	Source      Source
	State       ConnectionState
	Sender      string
	Payload     []byte
}

// Room is a live connection to a media room. All methods are safe for
// concurrent use. After Disconnect, every method returns ErrNotConnected
// and the event channel is closed.
type Room interface {
	// Disconnect leaves the room and releases the handle.
	Disconnect(ctx context.Context) error

	// Publish announces a new track for the given source.
	Publish(ctx context.Context, source Source, track Track) error

	// Unpublish withdraws the track for the given source.
	Unpublish(ctx context.Context, source Source) error

	// SetEnabled enables or disables an already-negotiated source.
	// The acknowledgement arrives as a TrackPublished/TrackUnpublished event.
	SetEnabled(ctx context.Context, source Source, enabled bool) error

	// SendData transmits an application payload to all other members over
	// the side channel. With reliable false, delivery is best-effort.
	SendData(ctx context.Context, payload []byte, reliable bool) error

	// LocalParticipant returns a snapshot of the local member.
	LocalParticipant() Participant

	// Participants returns snapshots of all remote members.
	Participants() []Participant

	// Events returns the handle's event stream. The channel is closed when
	// the connection ends.
	Events() <-chan Event
}

// Transport establishes room connections. The token carries the join and
// publish grants issued by the token manager.
type Transport interface {
	Connect(ctx context.Context, roomID, token string) (Room, error)
}
