package studio

// OverlayPosition places the overlay stream in one of the four corners.
type OverlayPosition string

const (
	OverlayTopLeft     OverlayPosition = "top-left"
	OverlayTopRight    OverlayPosition = "top-right"
	OverlayBottomLeft  OverlayPosition = "bottom-left"
	OverlayBottomRight OverlayPosition = "bottom-right"
)

// OverlaySize controls how much of the frame the overlay occupies.
type OverlaySize string

const (
	OverlaySizeXS   OverlaySize = "xs"
	OverlaySizeSM   OverlaySize = "sm"
	OverlaySizeMD   OverlaySize = "md"
	OverlaySizeFull OverlaySize = "full"
)

// StreamRole names which source fills a layout slot.
type StreamRole string

const (
	StreamCamera StreamRole = "camera"
	StreamScreen StreamRole = "screen"
	StreamNone   StreamRole = "none"
)

// Preferences are the broadcaster's layout choices, independent of which
// devices are currently up.
type Preferences struct {
	CameraFocus     bool            `json:"camera_focus"`
	OverlayPosition OverlayPosition `json:"overlay_position"`
	OverlaySize     OverlaySize     `json:"overlay_size"`
}

// DefaultPreferences returns the preferences a fresh session starts with.
func DefaultPreferences() Preferences {
	return Preferences{
		OverlayPosition: OverlayBottomRight,
		OverlaySize:     OverlaySizeSM,
	}
}

// Layout is the derived visual-composition instruction sent to viewers.
// It has no independent identity: it is recomputed from confirmed device
// state and preferences on every relevant mutation, never patched.
type Layout struct {
	IsScreenSharing bool            `json:"is_screen_sharing"`
	IsCameraFocus   bool            `json:"is_camera_focus"`
	IsCameraEnabled bool            `json:"is_camera_enabled"`
	OverlayPosition OverlayPosition `json:"overlay_position"`
	OverlaySize     OverlaySize     `json:"overlay_size"`
	MainStream      StreamRole      `json:"main_stream"`
	OverlayStream   StreamRole      `json:"overlay_stream"`
	OverlayVisible  bool            `json:"overlay_visible"`
}

// DeriveLayout maps confirmed devices plus preferences to a Layout.
//
// While screen sharing, the screen is the main stream and the camera rides
// in the overlay; camera focus swaps the two. With no screen share the
// camera fills the frame and the overlay is idle. An overlay whose source
// is a disabled camera is hidden rather than rendered black.
func DeriveLayout(d Devices, p Preferences) Layout {
	l := Layout{
		IsScreenSharing: d.ScreenShare,
		IsCameraFocus:   p.CameraFocus,
		IsCameraEnabled: d.Camera,
		OverlayPosition: p.OverlayPosition,
		OverlaySize:     p.OverlaySize,
	}

	switch {
	case d.ScreenShare && p.CameraFocus:
		l.MainStream = StreamCamera
		l.OverlayStream = StreamScreen
		l.OverlayVisible = true
	case d.ScreenShare:
		l.MainStream = StreamScreen
		l.OverlayStream = StreamCamera
		l.OverlayVisible = d.Camera
	default:
		l.MainStream = StreamCamera
		l.OverlayStream = StreamNone
		l.OverlayVisible = false
	}

	return l
}
