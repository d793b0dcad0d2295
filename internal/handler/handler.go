package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/alefe53/mis-esencias-live/internal/middleware"
	"github.com/alefe53/mis-esencias-live/internal/recording"
	"github.com/alefe53/mis-esencias-live/internal/status"
	"github.com/alefe53/mis-esencias-live/internal/studio"
	"github.com/alefe53/mis-esencias-live/internal/token"
	"github.com/alefe53/mis-esencias-live/internal/transport"
	"github.com/alefe53/mis-esencias-live/pkg/log"
	"github.com/alefe53/mis-esencias-live/pkg/response"
)

// Handler handles HTTP requests for the studio service.
type Handler struct {
	sessions       *studio.Manager
	statusService  *status.Service
	recordings     *recording.Service
	tokens         *token.Manager
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler.
func NewHandler(sessions *studio.Manager, statusService *status.Service, recordings *recording.Service, tokens *token.Manager, authMiddleware *middleware.AuthMiddleware) *Handler {
	return &Handler{
		sessions:       sessions,
		statusService:  statusService,
		recordings:     recordings,
		tokens:         tokens,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	streaming := r.Group("/streaming")
	{
		// Public routes
		streaming.GET("/status", h.GetStatus)
		streaming.GET("/recordings", h.ListRecordings)

		// Authenticated routes
		streaming.GET("/token", h.authMiddleware.RequireAuth(), h.GetRoomToken)

		// Admin routes
		admin := streaming.Group("", h.authMiddleware.RequireAuth(), h.authMiddleware.RequireAdmin())
		{
			admin.GET("/session", h.GetSession)
			admin.POST("/start", h.StartBroadcast)
			admin.POST("/stop", h.StopBroadcast)
			admin.POST("/devices/toggle", h.ToggleDevice)
			admin.PUT("/preferences", h.SetPreferences)
			admin.POST("/record/start", h.StartRecording)
			admin.POST("/record/stop", h.StopRecording)
		}
	}
}

// GetRoomToken issues a room-scoped transport token for the caller. Admin
// callers receive the publish grant, everyone else joins subscribe-only.
func (h *Handler) GetRoomToken(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	identity := middleware.GetIdentity(c)
	if identity == "" {
		response.Unauthorized(c, "unauthorized")
		return
	}

	roomToken, err := h.tokens.IssueRoomToken(identity, h.sessions.RoomID(), middleware.IsAdmin(c))
	if err != nil {
		l.Error().Err(err).Msg("failed to issue room token")
		response.InternalError(c, "failed to issue room token")
		return
	}

	response.Success(c, gin.H{
		"token":       roomToken,
		"room_id":     h.sessions.RoomID(),
		"can_publish": middleware.IsAdmin(c),
	})
}

// GetStatus returns the persisted live-status flag.
func (h *Handler) GetStatus(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	current, err := h.statusService.Get(ctx)
	if err != nil {
		l.Error().Err(err).Msg("failed to query live status")
		response.InternalError(c, "failed to query live status")
		return
	}

	response.Success(c, current)
}

// GetSession returns the caller's broadcaster session state.
func (h *Handler) GetSession(c *gin.Context) {
	session := h.sessions.SessionFor(middleware.GetIdentity(c))
	response.Success(c, sessionView(session))
}

// StartBroadcast walks the caller's session through preview, studio entry,
// publication and go-live. Each step is idempotent, so retrying after a
// partial failure resumes from where the session stopped.
func (h *Handler) StartBroadcast(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	session := h.sessions.SessionFor(middleware.GetIdentity(c))

	if session.State() == studio.StateIdle || session.State() == studio.StatePreviewRequested {
		session.RequestPreview(ctx)
	}

	if err := session.EnterStudio(ctx); err != nil {
		if errors.Is(err, studio.ErrPreviewNotReady) {
			response.Conflict(c, session.LastError())
			return
		}
		if errors.Is(err, transport.ErrPublishDenied) {
			response.Conflict(c, "another broadcaster already holds the studio")
			return
		}
		l.Error().Err(err).Msg("failed to enter studio")
		response.InternalError(c, "failed to enter studio")
		return
	}

	if err := session.PublishMedia(ctx); err != nil {
		l.Error().Err(err).Msg("failed to publish media")
		response.Error(c, 502, "PUBLISH_FAILED", session.LastError())
		return
	}

	if err := session.StartBroadcast(ctx); err != nil {
		l.Error().Err(err).Msg("failed to start broadcast")
		response.InternalError(c, "broadcast start could not be persisted, retry")
		return
	}

	response.Success(c, sessionView(session))
}

// StopBroadcast ends the live broadcast and tears the session down.
func (h *Handler) StopBroadcast(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	session := h.sessions.SessionFor(middleware.GetIdentity(c))

	if err := session.StopBroadcast(ctx); err != nil {
		l.Error().Err(err).Msg("failed to stop broadcast")
		response.InternalError(c, "broadcast stop could not be persisted, retry")
		return
	}

	session.LeaveStudio(ctx, true)

	response.Success(c, sessionView(session))
}

type toggleDeviceRequest struct {
	Source string `json:"source" binding:"required,oneof=camera microphone screen_share"`
}

// ToggleDevice flips one device on the caller's session.
func (h *Handler) ToggleDevice(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req toggleDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind toggle device request")
		response.BadRequest(c, err.Error())
		return
	}

	session := h.sessions.SessionFor(middleware.GetIdentity(c))

	var err error
	switch req.Source {
	case "camera":
		err = session.ToggleCamera(ctx)
	case "microphone":
		err = session.ToggleMicrophone(ctx)
	case "screen_share":
		err = session.ToggleScreenShare(ctx)
	}
	if err != nil {
		if errors.Is(err, studio.ErrNotConnected) {
			response.Conflict(c, "not connected to the studio")
			return
		}
		l.Error().Err(err).Str("source", req.Source).Msg("failed to toggle device")
		response.Error(c, 502, "TOGGLE_FAILED", session.LastError())
		return
	}

	response.Success(c, sessionView(session))
}

type preferencesRequest struct {
	CameraFocus     bool   `json:"camera_focus"`
	OverlayPosition string `json:"overlay_position" binding:"omitempty,oneof=top-left top-right bottom-left bottom-right"`
	OverlaySize     string `json:"overlay_size" binding:"omitempty,oneof=xs sm md full"`
}

// SetPreferences updates layout preferences on the caller's session.
func (h *Handler) SetPreferences(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind preferences request")
		response.BadRequest(c, err.Error())
		return
	}

	prefs := studio.DefaultPreferences()
	prefs.CameraFocus = req.CameraFocus
	if req.OverlayPosition != "" {
		prefs.OverlayPosition = studio.OverlayPosition(req.OverlayPosition)
	}
	if req.OverlaySize != "" {
		prefs.OverlaySize = studio.OverlaySize(req.OverlaySize)
	}

	session := h.sessions.SessionFor(middleware.GetIdentity(c))
	session.SetPreferences(ctx, prefs)

	response.Success(c, sessionView(session))
}

type startRecordingRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

// StartRecording requests a new egress job for the studio room.
func (h *Handler) StartRecording(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req startRecordingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind start recording request")
		response.BadRequest(c, err.Error())
		return
	}

	session, err := h.recordings.Start(ctx, h.sessions.RoomID(), req.Title, req.Description)
	if err != nil {
		l.Error().Err(err).Msg("failed to start recording")
		response.Error(c, 502, "EGRESS_FAILED", "failed to start recording")
		return
	}

	response.Created(c, session)
}

type stopRecordingRequest struct {
	JobID string `json:"job_id" binding:"required"`
}

// StopRecording stops an egress job and finalizes the session row when the
// job completed with a file.
func (h *Handler) StopRecording(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req stopRecordingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind stop recording request")
		response.BadRequest(c, err.Error())
		return
	}

	session, finalized, err := h.recordings.Stop(ctx, req.JobID)
	if err != nil {
		if errors.Is(err, recording.ErrSessionNotFound) {
			response.NotFound(c, "recording session not found")
			return
		}
		l.Error().Err(err).Str("job_id", req.JobID).Msg("failed to stop recording")
		response.Error(c, 502, "EGRESS_FAILED", "failed to stop recording")
		return
	}

	response.Success(c, gin.H{
		"session":   session,
		"finalized": finalized,
	})
}

// ListRecordings lists finalized recordings with signed playback URLs.
func (h *Handler) ListRecordings(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var query struct {
		Limit int `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if query.Limit < 1 || query.Limit > 100 {
		query.Limit = 50
	}

	items, err := h.recordings.List(ctx, query.Limit)
	if err != nil {
		l.Error().Err(err).Msg("failed to list recordings")
		response.InternalError(c, "failed to list recordings")
		return
	}

	response.Success(c, gin.H{"recordings": items})
}

func sessionView(s *studio.Session) gin.H {
	view := gin.H{
		"id":       s.ID(),
		"state":    s.State().String(),
		"devices":  s.Devices(),
		"layout":   s.Layout(),
		"identity": s.Identity(),
	}
	if lastErr := s.LastError(); lastErr != "" {
		view["last_error"] = lastErr
	}
	return view
}
