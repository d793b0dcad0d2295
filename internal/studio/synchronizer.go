package studio

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Side-channel message kinds.
const (
	msgKindLayout        = "layout"
	msgKindResyncRequest = "resync_request"
)

// sideMessage is the envelope carried over the transport's data channel.
// Sender identity is attributed by the transport, not by the payload.
type sideMessage struct {
	Kind   string  `json:"kind"`
	Layout *Layout `json:"layout,omitempty"`
}

// DataSender transmits a payload over a session's side channel.
type DataSender func(ctx context.Context, payload []byte) error

// Synchronizer re-transmits the derived layout to viewers, at most once per
// distinct value. Transmission is fire-and-forget: a failed send is not
// retried, the next state change re-transmits the then-current value.
type Synchronizer struct {
	send     DataSender
	lastSent *Layout
	logger   zerolog.Logger
	mu       sync.Mutex
}

// NewSynchronizer creates a synchronizer that transmits via send.
func NewSynchronizer(send DataSender, logger zerolog.Logger) *Synchronizer {
	return &Synchronizer{send: send, logger: logger}
}

// Dispatch transmits the layout if it differs from the last transmitted
// value. Called synchronously at the end of every mutating operation.
func (s *Synchronizer) Dispatch(ctx context.Context, layout Layout) {
	s.mu.Lock()
	if s.lastSent != nil && *s.lastSent == layout {
		s.mu.Unlock()
		return
	}
	snapshot := layout
	s.lastSent = &snapshot
	s.mu.Unlock()

	s.transmit(ctx, layout)
}

// Answer transmits the given layout unconditionally and records it as the
// last sent value. Used to answer a late joiner's resync request, which
// must be served even when nothing has changed since the last dispatch.
func (s *Synchronizer) Answer(ctx context.Context, layout Layout) {
	s.mu.Lock()
	snapshot := layout
	s.lastSent = &snapshot
	s.mu.Unlock()

	s.transmit(ctx, layout)
}

func (s *Synchronizer) transmit(ctx context.Context, layout Layout) {
	payload, err := json.Marshal(sideMessage{Kind: msgKindLayout, Layout: &layout})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal layout payload")
		return
	}

	if err := s.send(ctx, payload); err != nil {
		// Self-healing: the next change re-transmits current state.
		s.logger.Warn().Err(err).Msg("layout broadcast failed")
	}
}

// ResyncRequestPayload builds the payload a viewer sends on connect to ask
// the broadcaster for the current layout.
func ResyncRequestPayload() []byte {
	payload, _ := json.Marshal(sideMessage{Kind: msgKindResyncRequest})
	return payload
}
