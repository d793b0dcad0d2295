package studio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/alefe53/mis-esencias-live/internal/transport"
	pkglog "github.com/alefe53/mis-esencias-live/pkg/log"
)

var (
	ErrPreviewNotReady = errors.New("camera preview not ready")
	ErrNoPreviewTrack  = errors.New("no preview track acquired")
	ErrNotConnected    = errors.New("session is not connected")
	ErrNotPublishing   = errors.New("session is not publishing media")
)

// State is the broadcaster session lifecycle state.
type State int

const (
	StateIdle State = iota
	StatePreviewRequested
	StatePreviewReady
	StateConnecting
	StateConnected
	StatePublishPending
	StatePublished
	StateStarting
	StateLive
	StateEnding
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreviewRequested:
		return "preview_requested"
	case StatePreviewReady:
		return "preview_ready"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StatePublishPending:
		return "publish_pending"
	case StatePublished:
		return "published"
	case StateStarting:
		return "starting"
	case StateLive:
		return "live"
	case StateEnding:
		return "ending"
	default:
		return "unknown"
	}
}

// TokenSource issues room join tokens.
type TokenSource interface {
	IssueRoomToken(identity, room string, admin bool) (string, error)
}

// LiveStatusSetter persists the global live flag and fans the change out.
type LiveStatusSetter interface {
	SetLive(ctx context.Context, live bool, updatedBy string) error
}

// CameraCapture acquires and releases the exclusive local camera handle
// used for self-preview before a session commits to publishing.
type CameraCapture interface {
	Acquire(ctx context.Context) (transport.Track, error)
	Release(track transport.Track)
}

// SessionConfig carries the collaborators a broadcaster session needs.
type SessionConfig struct {
	RoomID    string
	Identity  string
	Transport transport.Transport
	Tokens    TokenSource
	Status    LiveStatusSetter
	Capture   CameraCapture
	Logger    zerolog.Logger
}

// Session is the admin-side controller owning the lifecycle of one
// broadcast attempt. All collaborators are constructor-injected; sessions
// are registered in a Manager, never package-level state.
//
// Async continuations revalidate the session generation before touching
// state, so an operation resolving after the session was torn down is a
// no-op rather than a stale-state write.
type Session struct {
	id       string
	roomID   string
	identity string

	transport transport.Transport
	tokens    TokenSource
	status    LiveStatusSetter
	capture   CameraCapture
	logger    zerolog.Logger

	mu                sync.Mutex
	state             State
	generation        uint64
	room              transport.Room
	preview           *transport.Track
	devices           DeviceState
	prefs             Preferences
	sync              *Synchronizer
	lastErr           string
	toggleInFlight    bool
	startStopInFlight bool
}

// NewSession creates an idle broadcaster session.
func NewSession(cfg SessionConfig) *Session {
	id := uuid.New().String()
	return &Session{
		id:        id,
		roomID:    cfg.RoomID,
		identity:  cfg.Identity,
		transport: cfg.Transport,
		tokens:    cfg.Tokens,
		status:    cfg.Status,
		capture:   cfg.Capture,
		prefs:     DefaultPreferences(),
		logger: cfg.Logger.With().
			Str(pkglog.FieldSessionID, id).
			Str(pkglog.FieldRoomID, cfg.RoomID).
			Str(pkglog.FieldIdentity, cfg.Identity).
			Logger(),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Identity returns the broadcaster identity.
func (s *Session) Identity() string { return s.identity }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the user-facing message of the last failed action, or
// empty. Recoverable failures are absorbed here instead of propagating.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Devices returns the optimistic device view for immediate UI feedback.
func (s *Session) Devices() Devices {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devices.Pending()
}

// ConfirmedDevices returns the transport-acknowledged device view.
func (s *Session) ConfirmedDevices() Devices {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devices.Confirmed()
}

// Layout returns the layout currently derived from confirmed state.
func (s *Session) Layout() Layout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return DeriveLayout(s.devices.Confirmed(), s.prefs)
}

// RequestPreview acquires the local camera for self-preview. A permission
// denial is recorded in LastError and leaves the session in
// PreviewRequested; it is not returned as an error.
func (s *Session) RequestPreview(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateIdle && s.state != StatePreviewRequested {
		s.mu.Unlock()
		return
	}
	s.state = StatePreviewRequested
	gen := s.generation
	s.mu.Unlock()

	track, err := s.capture.Acquire(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		if err == nil {
			s.capture.Release(track)
		}
		return
	}
	if err != nil {
		s.lastErr = fmt.Sprintf("camera unavailable: %v", err)
		s.logger.Warn().Err(err).Msg("camera preview acquisition failed")
		return
	}
	s.preview = &track
	s.state = StatePreviewReady
}

// EnterStudio requests a room token, opens the transport connection, and
// transitions to Connected once the transport confirms. Idempotent: a call
// while already connecting or connected is a no-op.
func (s *Session) EnterStudio(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateConnecting, StateConnected, StatePublishPending, StatePublished, StateStarting, StateLive, StateEnding:
		s.mu.Unlock()
		return nil
	case StatePreviewReady:
	default:
		s.mu.Unlock()
		return ErrPreviewNotReady
	}
	s.state = StateConnecting
	gen := s.generation
	s.mu.Unlock()

	tok, err := s.tokens.IssueRoomToken(s.identity, s.roomID, true)
	var room transport.Room
	if err == nil {
		room, err = s.transport.Connect(ctx, s.roomID, tok)
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		if room != nil {
			_ = room.Disconnect(context.Background())
		}
		return nil
	}
	if err != nil {
		// Defensive disconnect: a half-open connection must not be orphaned.
		if room != nil {
			_ = room.Disconnect(context.Background())
		}
		preview := s.preview
		s.preview = nil
		s.state = StateIdle
		s.lastErr = "could not enter the studio, please try again"
		s.mu.Unlock()
		if preview != nil {
			s.capture.Release(*preview)
		}
		s.logger.Error().Err(err).Msg("studio connect failed")
		return fmt.Errorf("enter studio: %w", err)
	}

	s.state = StateConnected
	s.room = room
	s.sync = NewSynchronizer(func(ctx context.Context, payload []byte) error {
		return room.SendData(ctx, payload, false)
	}, s.logger)
	s.mu.Unlock()

	go s.pumpEvents(room, gen)
	s.logger.Info().Msg("studio connected")
	return nil
}

// PublishMedia publishes the preview camera track, then enables the
// microphone. Exactly-once: concurrent calls while pending are no-ops. On
// partial failure every already-published track is rolled back; a camera
// without a working microphone is never left standing.
func (s *Session) PublishMedia(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StatePublishPending, StatePublished, StateStarting, StateLive:
		s.mu.Unlock()
		return nil
	case StateConnected:
	default:
		s.mu.Unlock()
		return ErrNotConnected
	}
	if s.preview == nil {
		s.mu.Unlock()
		return ErrNoPreviewTrack
	}
	s.state = StatePublishPending
	s.devices.SetPending(transport.SourceCamera, true)
	s.devices.SetPending(transport.SourceMicrophone, true)
	room := s.room
	track := *s.preview
	gen := s.generation
	s.mu.Unlock()

	err := room.Publish(ctx, transport.SourceCamera, track)
	if err == nil {
		if micErr := room.SetEnabled(ctx, transport.SourceMicrophone, true); micErr != nil {
			// Roll back the camera so a partial publish never stands.
			_ = room.Unpublish(ctx, transport.SourceCamera)
			_ = room.SetEnabled(ctx, transport.SourceMicrophone, false)
			err = micErr
		}
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		s.devices.Revert(transport.SourceCamera)
		s.devices.Revert(transport.SourceMicrophone)
		s.state = StateConnected
		s.lastErr = "could not publish camera and microphone"
		s.mu.Unlock()
		s.logger.Error().Err(err).Msg("publish media failed, rolled back")
		return fmt.Errorf("publish media: %w", err)
	}
	s.state = StatePublished
	s.mu.Unlock()
	s.logger.Info().Msg("media published")
	return nil
}

// StartBroadcast flips the persisted live flag to true and, once durable,
// moves the session to Live. Idempotent while Live; a persistence failure
// leaves the session at Starting so the admin can retry, never in an
// ambiguous "maybe live" state.
func (s *Session) StartBroadcast(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.state == StateLive:
		s.mu.Unlock()
		return nil
	case s.startStopInFlight:
		s.mu.Unlock()
		return nil
	case s.state != StatePublished && s.state != StateStarting:
		s.mu.Unlock()
		return ErrNotPublishing
	}
	s.state = StateStarting
	s.startStopInFlight = true
	gen := s.generation
	s.mu.Unlock()

	err := s.status.SetLive(ctx, true, s.identity)

	s.mu.Lock()
	s.startStopInFlight = false
	if s.generation != gen {
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		s.lastErr = "could not start the broadcast"
		s.mu.Unlock()
		s.logger.Error().Err(err).Msg("start broadcast failed, session stays at starting")
		return fmt.Errorf("start broadcast: %w", err)
	}
	s.state = StateLive
	s.mu.Unlock()
	s.logger.Info().Msg("broadcast live")

	s.broadcastLayout(ctx)
	return nil
}

// StopBroadcast flips the persisted live flag to false. Idempotent when not
// live; a persistence failure leaves the session at Ending for retry.
func (s *Session) StopBroadcast(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.state != StateLive && s.state != StateEnding:
		s.mu.Unlock()
		return nil
	case s.startStopInFlight:
		s.mu.Unlock()
		return nil
	}
	s.state = StateEnding
	s.startStopInFlight = true
	gen := s.generation
	s.mu.Unlock()

	err := s.status.SetLive(ctx, false, s.identity)

	s.mu.Lock()
	s.startStopInFlight = false
	if s.generation != gen {
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		s.lastErr = "could not stop the broadcast"
		s.mu.Unlock()
		s.logger.Error().Err(err).Msg("stop broadcast failed, session stays at ending")
		return fmt.Errorf("stop broadcast: %w", err)
	}
	s.state = StatePublished
	s.mu.Unlock()
	s.logger.Info().Msg("broadcast stopped")
	return nil
}

// ToggleCamera toggles the camera. No-op while another toggle is in flight.
func (s *Session) ToggleCamera(ctx context.Context) error {
	return s.toggle(ctx, transport.SourceCamera)
}

// ToggleMicrophone toggles the microphone. No-op while another toggle is in flight.
func (s *Session) ToggleMicrophone(ctx context.Context) error {
	return s.toggle(ctx, transport.SourceMicrophone)
}

// ToggleScreenShare starts or stops screen sharing. No-op while another
// toggle is in flight.
func (s *Session) ToggleScreenShare(ctx context.Context) error {
	return s.toggle(ctx, transport.SourceScreenShare)
}

// toggle serialises device toggles behind a single in-flight guard: only
// one toggle runs at a time regardless of device, later calls are no-ops.
// Confirmed state is advanced by the transport's acknowledgement events,
// not by the command's return.
func (s *Session) toggle(ctx context.Context, source transport.Source) error {
	s.mu.Lock()
	if s.room == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	if s.toggleInFlight {
		s.mu.Unlock()
		return nil
	}
	s.toggleInFlight = true
	target := !s.devices.Pending().get(source)
	s.devices.SetPending(source, target)
	room := s.room
	gen := s.generation
	s.mu.Unlock()

	var err error
	if source == transport.SourceScreenShare {
		if target {
			err = room.Publish(ctx, source, transport.Track{ID: s.identity + ":screen", Source: source})
		} else {
			err = room.Unpublish(ctx, source)
		}
	} else {
		err = room.SetEnabled(ctx, source, target)
	}

	s.mu.Lock()
	s.toggleInFlight = false
	if s.generation != gen {
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		s.devices.Revert(source)
		s.lastErr = fmt.Sprintf("could not toggle %s", source)
	}
	s.mu.Unlock()

	// The broadcast always reflects confirmed state; after a rollback that
	// is the pre-toggle value, not the optimistic one.
	s.broadcastLayout(ctx)

	if err != nil {
		s.logger.Warn().Err(err).Str("source", source.String()).Msg("device toggle failed, reverted")
		return fmt.Errorf("toggle %s: %w", source, err)
	}
	return nil
}

// SetPreferences updates layout preferences and re-broadcasts the layout.
func (s *Session) SetPreferences(ctx context.Context, prefs Preferences) {
	s.mu.Lock()
	s.prefs = prefs
	s.mu.Unlock()
	s.broadcastLayout(ctx)
}

// LeaveStudio tears the session down. If live, the broadcast is stopped
// first. With intentional true the transport connection is closed; when
// reacting to an already-severed transport the local reset happens without
// a second disconnect attempt.
func (s *Session) LeaveStudio(ctx context.Context, intentional bool) {
	if s.State() == StateLive {
		if err := s.StopBroadcast(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("stop broadcast during leave failed")
		}
	}

	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	room := s.room
	preview := s.preview
	s.generation++ // in-flight continuations become no-ops
	s.state = StateIdle
	s.room = nil
	s.preview = nil
	s.sync = nil
	s.devices.Reset()
	s.toggleInFlight = false
	s.startStopInFlight = false
	s.mu.Unlock()

	if preview != nil {
		s.capture.Release(*preview)
	}
	if room != nil && intentional {
		if err := room.Disconnect(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("transport disconnect failed")
		}
	}
	s.logger.Info().Bool("intentional", intentional).Msg("left studio")
}

// pumpEvents consumes the room's event stream for one connection
// generation. It confirms own publish acknowledgements, answers viewer
// resync requests, and reacts to a transport-forced disconnect.
func (s *Session) pumpEvents(room transport.Room, gen uint64) {
	ctx := context.Background()
	for ev := range room.Events() {
		switch ev.Type {
		case transport.EventTrackPublished, transport.EventTrackUnpublished:
			if ev.Participant.Identity != s.identity {
				continue
			}
			s.confirmOwn(ctx, gen, ev.Source, ev.Type == transport.EventTrackPublished)

		case transport.EventDataReceived:
			if decodeKind(ev.Payload) == msgKindResyncRequest {
				s.answerResync(ctx, gen)
			}

		case transport.EventConnectionStateChanged:
			if ev.State == transport.ConnectionDisconnected {
				if s.currentGeneration() == gen {
					s.logger.Warn().Msg("transport connection lost")
					s.LeaveStudio(ctx, false)
				}
				return
			}
		}
	}
}

func (s *Session) confirmOwn(ctx context.Context, gen uint64, source transport.Source, on bool) {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return
	}
	s.devices.Confirm(source, on)
	s.mu.Unlock()
	s.broadcastLayout(ctx)
}

func (s *Session) answerResync(ctx context.Context, gen uint64) {
	s.mu.Lock()
	if s.generation != gen || s.sync == nil {
		s.mu.Unlock()
		return
	}
	layout := DeriveLayout(s.devices.Confirmed(), s.prefs)
	syn := s.sync
	s.mu.Unlock()
	syn.Answer(ctx, layout)
}

// broadcastLayout derives the layout from confirmed state and dispatches it
// if it changed. Invoked synchronously at the end of mutating operations.
func (s *Session) broadcastLayout(ctx context.Context) {
	s.mu.Lock()
	if s.sync == nil {
		s.mu.Unlock()
		return
	}
	layout := DeriveLayout(s.devices.Confirmed(), s.prefs)
	syn := s.sync
	s.mu.Unlock()
	syn.Dispatch(ctx, layout)
}

func (s *Session) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func decodeKind(payload []byte) string {
	var msg sideMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return ""
	}
	return msg.Kind
}
