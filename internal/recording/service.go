package recording

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	pkglog "github.com/alefe53/mis-esencias-live/pkg/log"
	"github.com/alefe53/mis-esencias-live/pkg/pubsub"
	"github.com/alefe53/mis-esencias-live/pkg/storage"
)

// PlaybackItem is a finalized recording with a signed playback URL.
type PlaybackItem struct {
	Session
	PlaybackURL string `json:"playback_url,omitempty"`
}

// ServiceConfig holds recording service configuration.
type ServiceConfig struct {
	OutputSpec     OutputSpec
	AbandonedAfter time.Duration
	SweepInterval  time.Duration
	URLExpiry      time.Duration
}

// Service correlates egress jobs with persisted recording sessions. A stop
// report that is not a completion leaves the row open; the sweeper closes
// rows nobody came back for.
type Service struct {
	egress  Egress
	repo    Repository
	store   storage.Storage
	bus     pubsub.Publisher
	cfg     ServiceConfig
	logger  zerolog.Logger
	stopped chan struct{}
}

// NewService creates a new recording service.
func NewService(egress Egress, repo Repository, store storage.Storage, bus pubsub.Publisher, cfg ServiceConfig, logger zerolog.Logger) *Service {
	if cfg.AbandonedAfter <= 0 {
		cfg.AbandonedAfter = 12 * time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Hour
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = time.Hour
	}
	return &Service{
		egress:  egress,
		repo:    repo,
		store:   store,
		bus:     bus,
		cfg:     cfg,
		logger:  logger,
		stopped: make(chan struct{}),
	}
}

// Start requests an egress job and, once the job is accepted, persists the
// session row keyed by the job id. A rejected job leaves no row behind.
func (s *Service) Start(ctx context.Context, roomID, title, description string) (*Session, error) {
	jobID, err := s.egress.StartJob(ctx, roomID, s.cfg.OutputSpec)
	if err != nil {
		return nil, fmt.Errorf("start egress job: %w", err)
	}

	session := &Session{
		EgressID:    jobID,
		RoomID:      roomID,
		Title:       title,
		Description: description,
		StartedAt:   time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("persist recording session: %w", err)
	}

	s.publish(ctx, pubsub.EventRecordingStarted, roomID, &pubsub.RecordingStartedPayload{
		RoomID: roomID,
		JobID:  jobID,
		Title:  title,
	})

	s.logger.Info().Str(pkglog.FieldJobID, jobID).Str(pkglog.FieldRoomID, roomID).Msg("recording started")
	return session, nil
}

// Stop terminates the egress job. The row is finalized only when the stop
// report is a completion with a resulting file; any other terminal state
// leaves the row open for operational follow-up and is not treated as an
// error. The bool reports whether the row was finalized.
func (s *Service) Stop(ctx context.Context, jobID string) (*Session, bool, error) {
	result, err := s.egress.StopJob(ctx, jobID)
	if err != nil {
		return nil, false, fmt.Errorf("stop egress job: %w", err)
	}

	if result.Status != JobStatusComplete || result.FilePath == "" {
		s.logger.Warn().
			Str(pkglog.FieldJobID, jobID).
			Str("status", string(result.Status)).
			Msg("egress stop reported non-complete status, row left open")
		session, err := s.repo.GetByJob(ctx, jobID)
		if err != nil {
			return nil, false, err
		}
		return session, false, nil
	}

	endedAt := result.EndedAt
	if endedAt.IsZero() {
		endedAt = time.Now().UTC()
	}
	duration := int(endedAt.Sub(result.StartedAt).Seconds())
	if result.StartedAt.IsZero() || duration < 0 {
		duration = 0
	}

	if err := s.repo.Finalize(ctx, jobID, result.FilePath, endedAt, duration); err != nil {
		return nil, false, fmt.Errorf("finalize recording session: %w", err)
	}

	session, err := s.repo.GetByJob(ctx, jobID)
	if err != nil {
		return nil, false, err
	}

	s.publish(ctx, pubsub.EventRecordingFinalized, session.RoomID, &pubsub.RecordingFinalizedPayload{
		RoomID:          session.RoomID,
		JobID:           jobID,
		StoragePath:     result.FilePath,
		DurationSeconds: duration,
	})

	s.logger.Info().Str(pkglog.FieldJobID, jobID).Msg("recording finalized")
	return session, true, nil
}

// List returns the most recent finalized recordings with signed playback
// URLs attached. A URL failure downgrades to a row without URL rather than
// failing the listing.
func (s *Service) List(ctx context.Context, limit int) ([]PlaybackItem, error) {
	sessions, err := s.repo.ListComplete(ctx, limit)
	if err != nil {
		return nil, err
	}

	items := make([]PlaybackItem, len(sessions))
	for i, session := range sessions {
		items[i] = PlaybackItem{Session: session}
		if s.store == nil || session.StoragePath == "" {
			continue
		}
		url, err := s.store.GetURL(ctx, session.StoragePath, s.cfg.URLExpiry)
		if err != nil {
			s.logger.Warn().Err(err).Str(pkglog.FieldJobID, session.EgressID).Msg("failed to sign playback url")
			continue
		}
		items[i].PlaybackURL = url
	}
	return items, nil
}

// RunSweeper periodically marks open rows older than AbandonedAfter as
// abandoned. Blocks until the context is cancelled.
func (s *Service) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(s.stopped)
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.cfg.AbandonedAfter)
	open, err := s.repo.ListOpenOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("recording sweep query failed")
		return
	}

	for _, session := range open {
		if err := s.repo.MarkAbandoned(ctx, session.EgressID, time.Now().UTC()); err != nil {
			s.logger.Error().Err(err).Str(pkglog.FieldJobID, session.EgressID).Msg("failed to mark recording abandoned")
			continue
		}
		s.logger.Warn().
			Str(pkglog.FieldJobID, session.EgressID).
			Time("started_at", session.StartedAt).
			Msg("abandoned open recording session")
	}
}

func (s *Service) publish(ctx context.Context, eventType, roomID string, payload interface{}) {
	if s.bus == nil {
		return
	}
	event, err := pubsub.NewEvent(eventType, roomID, payload)
	if err == nil {
		err = s.bus.Publish(ctx, pubsub.StudioRoomChannel(roomID), event)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("recording event fan-out failed")
	}
}
