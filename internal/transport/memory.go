package transport

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	pkglog "github.com/alefe53/mis-esencias-live/pkg/log"
)

// TokenVerifier resolves a join token into an identity and its publish grant.
type TokenVerifier func(token string) (identity string, canPublish bool, err error)

// Hub is an in-process Transport implementation. It enforces the
// at-most-one-publisher grant per room, fans data messages out to the other
// members, and delivers the event stream each Room handle observes.
// Suitable for single-instance deployments and tests; a remote media
// service replaces it behind the same interface in production.
type Hub struct {
	verify TokenVerifier
	rooms  map[string]*hubRoom
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewHub creates a new in-process transport hub.
func NewHub(verify TokenVerifier, logger zerolog.Logger) *Hub {
	return &Hub{
		verify: verify,
		rooms:  make(map[string]*hubRoom),
		logger: logger,
	}
}

// Connect joins a room with the grants carried by the token. A second
// publish-granted member loses the race and receives ErrPublishDenied.
func (h *Hub) Connect(ctx context.Context, roomID, token string) (Room, error) {
	identity, canPublish, err := h.verify(token)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	room, ok := h.rooms[roomID]
	if !ok {
		room = &hubRoom{
			id:      roomID,
			members: make(map[string]*member),
			logger:  h.logger.With().Str(pkglog.FieldRoomID, roomID).Logger(),
		}
		h.rooms[roomID] = room
	}
	h.mu.Unlock()

	return room.join(identity, canPublish)
}

type hubRoom struct {
	id      string
	members map[string]*member
	logger  zerolog.Logger
	mu      sync.Mutex
}

func (r *hubRoom) join(identity string, canPublish bool) (*member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if canPublish {
		for _, m := range r.members {
			// The caller's own stale handle does not hold the slot against it.
			if m.canPublish && m.identity != identity {
				return nil, ErrPublishDenied
			}
		}
	}

	// A reconnect with the same identity supersedes the stale handle.
	if old, ok := r.members[identity]; ok {
		r.evictLocked(old)
	}

	m := &member{
		room:       r,
		identity:   identity,
		canPublish: canPublish,
		published:  make(map[Source]Track),
		events:     make(chan Event, 64),
	}
	r.members[identity] = m

	m.deliver(Event{Type: EventConnectionStateChanged, State: ConnectionConnected})
	r.broadcastLocked(m, Event{Type: EventParticipantJoined, Participant: m.snapshotLocked()})

	r.logger.Debug().Str(pkglog.FieldIdentity, identity).Bool("can_publish", canPublish).Msg("member joined room")
	return m, nil
}

// broadcastLocked delivers an event to every member except origin.
func (r *hubRoom) broadcastLocked(origin *member, ev Event) {
	for _, m := range r.members {
		if m != origin {
			m.deliver(ev)
		}
	}
}

// evictLocked removes a member without a ParticipantLeft broadcast to itself.
func (r *hubRoom) evictLocked(m *member) {
	if m.closed {
		return
	}
	delete(r.members, m.identity)
	m.deliver(Event{Type: EventConnectionStateChanged, State: ConnectionDisconnected})
	m.closed = true
	close(m.events)
	r.broadcastLocked(m, Event{Type: EventParticipantLeft, Participant: m.snapshotLocked()})
}

type member struct {
	room       *hubRoom
	identity   string
	canPublish bool
	published  map[Source]Track
	events     chan Event
	closed     bool
}

// deliver pushes an event without blocking; a saturated consumer drops it,
// matching the side channel's best-effort contract.
func (m *member) deliver(ev Event) {
	if m.closed {
		return
	}
	select {
	case m.events <- ev:
	default:
		m.room.logger.Warn().Str(pkglog.FieldIdentity, m.identity).Msg("event buffer full, dropping event")
	}
}

func (m *member) snapshotLocked() Participant {
	sources := make([]Source, 0, len(m.published))
	for s := range m.published {
		sources = append(sources, s)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
	return Participant{
		Identity:   m.identity,
		CanPublish: m.canPublish,
		Published:  sources,
	}
}

func (m *member) Disconnect(ctx context.Context) error {
	m.room.mu.Lock()
	defer m.room.mu.Unlock()
	m.room.evictLocked(m)
	return nil
}

func (m *member) Publish(ctx context.Context, source Source, track Track) error {
	return m.setPublished(source, true, track)
}

func (m *member) Unpublish(ctx context.Context, source Source) error {
	return m.setPublished(source, false, Track{})
}

func (m *member) SetEnabled(ctx context.Context, source Source, enabled bool) error {
	return m.setPublished(source, enabled, Track{ID: m.identity + ":" + source.String(), Source: source})
}

func (m *member) setPublished(source Source, on bool, track Track) error {
	m.room.mu.Lock()
	defer m.room.mu.Unlock()

	if m.closed {
		return ErrNotConnected
	}
	if !m.canPublish {
		return ErrPublishDenied
	}

	if on {
		m.published[source] = track
	} else {
		delete(m.published, source)
	}

	evType := EventTrackPublished
	if !on {
		evType = EventTrackUnpublished
	}
	ev := Event{Type: evType, Participant: m.snapshotLocked(), Source: source}

	// The publisher receives its own confirmation event as well; confirmed
	// device state is driven by these, never by the call return.
	m.deliver(ev)
	m.room.broadcastLocked(m, ev)
	return nil
}

func (m *member) SendData(ctx context.Context, payload []byte, reliable bool) error {
	m.room.mu.Lock()
	defer m.room.mu.Unlock()

	if m.closed {
		return ErrNotConnected
	}

	m.room.broadcastLocked(m, Event{Type: EventDataReceived, Sender: m.identity, Payload: payload})
	return nil
}

func (m *member) LocalParticipant() Participant {
	m.room.mu.Lock()
	defer m.room.mu.Unlock()
	return m.snapshotLocked()
}

func (m *member) Participants() []Participant {
	m.room.mu.Lock()
	defer m.room.mu.Unlock()

	if m.closed {
		return nil
	}

	out := make([]Participant, 0, len(m.room.members)-1)
	for _, other := range m.room.members {
		if other != m {
			out = append(out, other.snapshotLocked())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

func (m *member) Events() <-chan Event {
	return m.events
}

var (
	_ Transport = (*Hub)(nil)
	_ Room      = (*member)(nil)
)
