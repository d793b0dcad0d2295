package studio

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/alefe53/mis-esencias-live/internal/transport"
	pkglog "github.com/alefe53/mis-esencias-live/pkg/log"
)

// ViewerConfig carries the collaborators a viewer session needs.
type ViewerConfig struct {
	RoomID    string
	Identity  string
	Transport transport.Transport
	Tokens    TokenSource
	Logger    zerolog.Logger

	// OnLayout, when set, is invoked with every applied layout replacement.
	OnLayout func(Layout)
}

// Viewer is the viewer-side session: it mirrors remote membership, decides
// which participant is the broadcaster, and keeps a mirrored layout fed by
// the broadcaster's side-channel transmissions.
type Viewer struct {
	id       string
	roomID   string
	identity string

	transport transport.Transport
	tokens    TokenSource
	onLayout  func(Layout)
	logger    zerolog.Logger

	mu          sync.Mutex
	generation  uint64
	room        transport.Room
	remotes     map[string]transport.Participant
	broadcaster string
	hasCaster   bool
	layout      *Layout
}

// NewViewer creates a disconnected viewer session.
func NewViewer(cfg ViewerConfig) *Viewer {
	id := uuid.New().String()
	return &Viewer{
		id:        id,
		roomID:    cfg.RoomID,
		identity:  cfg.Identity,
		transport: cfg.Transport,
		tokens:    cfg.Tokens,
		onLayout:  cfg.OnLayout,
		remotes:   make(map[string]transport.Participant),
		logger: cfg.Logger.With().
			Str(pkglog.FieldSessionID, id).
			Str(pkglog.FieldRoomID, cfg.RoomID).
			Str(pkglog.FieldIdentity, cfg.Identity).
			Logger(),
	}
}

// ID returns the viewer session id.
func (v *Viewer) ID() string { return v.id }

// Connect joins the room with a subscribe-only token, snapshots current
// membership, and asks the broadcaster for the current layout so late
// joiners do not wait for the next change.
func (v *Viewer) Connect(ctx context.Context) error {
	v.mu.Lock()
	if v.room != nil {
		v.mu.Unlock()
		return nil
	}
	gen := v.generation
	v.mu.Unlock()

	tok, err := v.tokens.IssueRoomToken(v.identity, v.roomID, false)
	if err != nil {
		return err
	}
	room, err := v.transport.Connect(ctx, v.roomID, tok)
	if err != nil {
		return err
	}

	v.mu.Lock()
	if v.generation != gen {
		v.mu.Unlock()
		_ = room.Disconnect(context.Background())
		return nil
	}
	v.room = room
	for _, p := range room.Participants() {
		v.remotes[p.Identity] = p
	}
	v.reconcileLocked(room)
	v.mu.Unlock()

	go v.pumpEvents(room, gen)

	// Explicit resync request: current layout arrives without waiting for
	// the broadcaster's next change.
	if err := room.SendData(ctx, ResyncRequestPayload(), true); err != nil {
		v.logger.Warn().Err(err).Msg("resync request failed")
	}
	return nil
}

// Disconnect leaves the room and resets local state.
func (v *Viewer) Disconnect(ctx context.Context) {
	v.mu.Lock()
	room := v.room
	v.generation++
	v.room = nil
	v.remotes = make(map[string]transport.Participant)
	v.broadcaster = ""
	v.hasCaster = false
	v.layout = nil
	v.mu.Unlock()

	if room != nil {
		_ = room.Disconnect(ctx)
	}
}

// Broadcaster returns the currently reconciled broadcaster identity, and
// whether one is identified at all.
func (v *Viewer) Broadcaster() (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.broadcaster, v.hasCaster
}

// Layout returns the mirrored layout, or false while none was received.
func (v *Viewer) Layout() (Layout, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.layout == nil {
		return Layout{}, false
	}
	return *v.layout, true
}

// Participants returns the current remote participant snapshots.
func (v *Viewer) Participants() []transport.Participant {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]transport.Participant, 0, len(v.remotes))
	for _, p := range v.remotes {
		out = append(out, p)
	}
	return out
}

func (v *Viewer) pumpEvents(room transport.Room, gen uint64) {
	for ev := range room.Events() {
		switch ev.Type {
		case transport.EventParticipantJoined, transport.EventTrackPublished, transport.EventTrackUnpublished:
			v.updateRemote(room, gen, ev.Participant, false)

		case transport.EventParticipantLeft:
			v.updateRemote(room, gen, ev.Participant, true)

		case transport.EventDataReceived:
			v.applyData(gen, ev.Sender, ev.Payload)

		case transport.EventConnectionStateChanged:
			if ev.State == transport.ConnectionDisconnected {
				v.mu.Lock()
				if v.generation == gen {
					v.mu.Unlock()
					v.logger.Warn().Msg("viewer transport connection lost")
					v.Disconnect(context.Background())
				} else {
					v.mu.Unlock()
				}
				return
			}
		}
	}
}

func (v *Viewer) updateRemote(room transport.Room, gen uint64, p transport.Participant, left bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.generation != gen {
		return
	}
	if left {
		delete(v.remotes, p.Identity)
	} else {
		v.remotes[p.Identity] = p
	}
	v.reconcileLocked(room)
}

// reconcileLocked re-runs broadcaster selection and updates the visible
// reference only when the identity actually changed.
func (v *Viewer) reconcileLocked(room transport.Room) {
	remotes := make([]transport.Participant, 0, len(v.remotes))
	for _, p := range v.remotes {
		remotes = append(remotes, p)
	}

	identity, ok := PickBroadcaster(room.LocalParticipant(), remotes, v.logger)
	if ok == v.hasCaster && identity == v.broadcaster {
		return
	}
	v.broadcaster = identity
	v.hasCaster = ok
	if ok {
		v.logger.Info().Str("broadcaster", identity).Msg("broadcaster identified")
	} else {
		v.logger.Info().Msg("no broadcaster identifiable, waiting")
	}
}

// applyData applies a layout payload by full replacement. Payloads from
// anyone but the reconciled broadcaster are discarded so a former
// broadcaster's leftover transmission cannot corrupt the current view.
func (v *Viewer) applyData(gen uint64, sender string, payload []byte) {
	var msg sideMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		v.logger.Warn().Err(err).Msg("undecodable side-channel payload")
		return
	}
	if msg.Kind != msgKindLayout || msg.Layout == nil {
		return
	}

	v.mu.Lock()
	if v.generation != gen {
		v.mu.Unlock()
		return
	}
	if !v.hasCaster || sender != v.broadcaster {
		v.mu.Unlock()
		v.logger.Warn().Str("sender", sender).Msg("discarding layout from non-broadcaster")
		return
	}
	layout := *msg.Layout
	v.layout = &layout
	cb := v.onLayout
	v.mu.Unlock()

	if cb != nil {
		cb(layout)
	}
}
