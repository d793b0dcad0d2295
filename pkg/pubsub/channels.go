package pubsub

import "fmt"

// Channel naming conventions for the studio broadcast system.
const (
	// ChannelStudioStatus carries live-status change notifications. There is
	// a single studio room system-wide, so the channel is not parameterised.
	ChannelStudioStatus = "studio:live_status"

	// ChannelStudioRoom carries per-room side traffic (recording lifecycle).
	ChannelStudioRoom = "studio:room:%s"
)

// Event types published on ChannelStudioStatus.
const (
	EventStatusChanged = "status_changed"
)

// Event types published on StudioRoomChannel.
const (
	EventRecordingStarted   = "recording_started"
	EventRecordingFinalized = "recording_finalized"
)

// StudioRoomChannel returns the channel name for a room's side traffic.
func StudioRoomChannel(roomID string) string {
	return fmt.Sprintf(ChannelStudioRoom, roomID)
}

// StatusChangedPayload is published after the persisted live flag has been
// durably updated. Subscribers reacting to it may re-query current status
// and will never observe a value older than the notification.
type StatusChangedPayload struct {
	IsLive    bool   `json:"is_live"`
	UpdatedBy string `json:"updated_by,omitempty"`
}

// RecordingStartedPayload announces an accepted egress job.
type RecordingStartedPayload struct {
	RoomID string `json:"room_id"`
	JobID  string `json:"job_id"`
	Title  string `json:"title"`
}

// RecordingFinalizedPayload announces a finalized recording row.
type RecordingFinalizedPayload struct {
	RoomID          string `json:"room_id"`
	JobID           string `json:"job_id"`
	StoragePath     string `json:"storage_path"`
	DurationSeconds int    `json:"duration_seconds"`
}
