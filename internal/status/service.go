package status

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/alefe53/mis-esencias-live/pkg/pubsub"
)

// Service owns the global live flag. The mutation protocol is strict:
// persist first, notify second, so a notification always corresponds to
// already-durable state and a subscriber reacting to it can never read a
// stale value. A failed fan-out is logged and swallowed; the
// query-on-subscribe fallback covers the missed push.
type Service struct {
	repo   Repository
	bus    pubsub.PubSub
	logger zerolog.Logger
}

// NewService creates a new live-status service.
func NewService(repo Repository, bus pubsub.PubSub, logger zerolog.Logger) *Service {
	return &Service{repo: repo, bus: bus, logger: logger}
}

// Get returns the current persisted status.
func (s *Service) Get(ctx context.Context) (Status, error) {
	return s.repo.Get(ctx)
}

// SetLive persists the flag, then fans the change out. If persistence
// fails the caller gets the error and no notification is sent.
func (s *Service) SetLive(ctx context.Context, live bool, updatedBy string) error {
	if _, err := s.repo.Set(ctx, live); err != nil {
		return err
	}

	event, err := pubsub.NewEvent(pubsub.EventStatusChanged, "", &pubsub.StatusChangedPayload{
		IsLive:    live,
		UpdatedBy: updatedBy,
	})
	if err == nil {
		err = s.bus.Publish(ctx, pubsub.ChannelStudioStatus, event)
	}
	if err != nil {
		// Non-fatal: durable state is correct, subscribers recover via
		// their subscribe-time query.
		s.logger.Error().Err(err).Bool("is_live", live).Msg("live status fan-out failed")
	}
	return nil
}

// Subscribe delivers the current status first, then every subsequent
// change. Querying after subscribing closes the race between "missed the
// notification" and "subscribed too late".
func (s *Service) Subscribe(ctx context.Context) (<-chan Status, error) {
	events, err := s.bus.Subscribe(ctx, pubsub.ChannelStudioStatus)
	if err != nil {
		return nil, err
	}

	current, err := s.repo.Get(ctx)
	if err != nil {
		_ = s.bus.Unsubscribe(ctx, pubsub.ChannelStudioStatus)
		return nil, err
	}

	out := make(chan Status, 8)
	go func() {
		defer close(out)

		out <- current

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				var payload pubsub.StatusChangedPayload
				if err := ev.UnmarshalPayload(&payload); err != nil {
					s.logger.Warn().Err(err).Msg("undecodable status event")
					continue
				}
				select {
				case out <- Status{IsLive: payload.IsLive, UpdatedAt: ev.Timestamp}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
