package studio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveLayout(t *testing.T) {
	tests := []struct {
		name    string
		devices Devices
		prefs   Preferences
		want    Layout
	}{
		{
			name:    "camera only",
			devices: Devices{Camera: true, Microphone: true},
			prefs:   DefaultPreferences(),
			want: Layout{
				IsCameraEnabled: true,
				OverlayPosition: OverlayBottomRight,
				OverlaySize:     OverlaySizeSM,
				MainStream:      StreamCamera,
				OverlayStream:   StreamNone,
				OverlayVisible:  false,
			},
		},
		{
			name:    "screen share with camera",
			devices: Devices{Camera: true, ScreenShare: true},
			prefs:   DefaultPreferences(),
			want: Layout{
				IsScreenSharing: true,
				IsCameraEnabled: true,
				OverlayPosition: OverlayBottomRight,
				OverlaySize:     OverlaySizeSM,
				MainStream:      StreamScreen,
				OverlayStream:   StreamCamera,
				OverlayVisible:  true,
			},
		},
		{
			name:    "screen share with camera off hides overlay",
			devices: Devices{ScreenShare: true},
			prefs:   DefaultPreferences(),
			want: Layout{
				IsScreenSharing: true,
				OverlayPosition: OverlayBottomRight,
				OverlaySize:     OverlaySizeSM,
				MainStream:      StreamScreen,
				OverlayStream:   StreamCamera,
				OverlayVisible:  false,
			},
		},
		{
			name:    "camera focus swaps main and overlay",
			devices: Devices{Camera: true, ScreenShare: true},
			prefs:   Preferences{CameraFocus: true, OverlayPosition: OverlayTopLeft, OverlaySize: OverlaySizeMD},
			want: Layout{
				IsScreenSharing: true,
				IsCameraFocus:   true,
				IsCameraEnabled: true,
				OverlayPosition: OverlayTopLeft,
				OverlaySize:     OverlaySizeMD,
				MainStream:      StreamCamera,
				OverlayStream:   StreamScreen,
				OverlayVisible:  true,
			},
		},
		{
			name:    "camera focus without screen share is plain camera",
			devices: Devices{Camera: true},
			prefs:   Preferences{CameraFocus: true, OverlayPosition: OverlayBottomRight, OverlaySize: OverlaySizeSM},
			want: Layout{
				IsCameraFocus:   true,
				IsCameraEnabled: true,
				OverlayPosition: OverlayBottomRight,
				OverlaySize:     OverlaySizeSM,
				MainStream:      StreamCamera,
				OverlayStream:   StreamNone,
				OverlayVisible:  false,
			},
		},
		{
			name:    "everything off still has camera slot",
			devices: Devices{},
			prefs:   DefaultPreferences(),
			want: Layout{
				OverlayPosition: OverlayBottomRight,
				OverlaySize:     OverlaySizeSM,
				MainStream:      StreamCamera,
				OverlayStream:   StreamNone,
				OverlayVisible:  false,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, DeriveLayout(tt.devices, tt.prefs))
		})
	}
}

func TestDeriveLayoutIsPure(t *testing.T) {
	devices := Devices{Camera: true, ScreenShare: true}
	prefs := DefaultPreferences()

	first := DeriveLayout(devices, prefs)
	second := DeriveLayout(devices, prefs)
	require.Equal(t, first, second)
}
