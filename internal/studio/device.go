package studio

import (
	"github.com/alefe53/mis-esencias-live/internal/transport"
)

// Devices is the flat on/off view of the broadcaster's media sources.
type Devices struct {
	Camera      bool `json:"camera"`
	Microphone  bool `json:"microphone"`
	ScreenShare bool `json:"screen_share"`
}

func (d Devices) get(source transport.Source) bool {
	switch source {
	case transport.SourceCamera:
		return d.Camera
	case transport.SourceMicrophone:
		return d.Microphone
	case transport.SourceScreenShare:
		return d.ScreenShare
	}
	return false
}

func (d *Devices) set(source transport.Source, on bool) {
	switch source {
	case transport.SourceCamera:
		d.Camera = on
	case transport.SourceMicrophone:
		d.Microphone = on
	case transport.SourceScreenShare:
		d.ScreenShare = on
	}
}

// DeviceState keeps a two-phase view per source: pending reflects the
// latest locally requested value and answers the UI immediately; confirmed
// is advanced only by the transport's publish/unpublish acknowledgement
// events. Everything broadcast to viewers or derived into layout reads
// confirmed, so a rolled-back toggle never leaks a stale value.
type DeviceState struct {
	pending   Devices
	confirmed Devices
}

// Pending returns the optimistic device view.
func (s *DeviceState) Pending() Devices { return s.pending }

// Confirmed returns the transport-acknowledged device view.
func (s *DeviceState) Confirmed() Devices { return s.confirmed }

// SetPending records an optimistic toggle before the transport answers.
func (s *DeviceState) SetPending(source transport.Source, on bool) {
	s.pending.set(source, on)
}

// Confirm records a transport acknowledgement and aligns pending with it.
func (s *DeviceState) Confirm(source transport.Source, on bool) {
	s.confirmed.set(source, on)
	s.pending.set(source, on)
}

// Revert rolls a failed optimistic toggle back to the confirmed value.
func (s *DeviceState) Revert(source transport.Source) {
	s.pending.set(source, s.confirmed.get(source))
}

// Reset clears both views, used when a session is torn down.
func (s *DeviceState) Reset() {
	s.pending = Devices{}
	s.confirmed = Devices{}
}
