package studio

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/alefe53/mis-esencias-live/internal/transport"
)

// PickBroadcaster decides which participant is the broadcaster from
// ambiguous signals. Priority order:
//
//  1. the local participant, when it holds the publish grant;
//  2. the unique remote with an active video-source publication;
//  3. the unique remote holding the publish grant;
//  4. nobody; callers render a waiting state.
//
// Identity tags are not trusted; active video is the primary signal. The
// function is pure and idempotent, re-run on every membership or
// publication change.
func PickBroadcaster(self transport.Participant, remotes []transport.Participant, logger zerolog.Logger) (string, bool) {
	if self.CanPublish {
		return self.Identity, true
	}

	sorted := make([]transport.Participant, len(remotes))
	copy(sorted, remotes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Identity < sorted[j].Identity })

	var withVideo []string
	for _, p := range sorted {
		if p.HasVideo() {
			withVideo = append(withVideo, p.Identity)
		}
	}
	if len(withVideo) > 0 {
		if len(withVideo) > 1 {
			// Should not happen under the one-broadcaster invariant.
			logger.Warn().Strs("identities", withVideo).Msg("multiple remote participants publishing video")
		}
		return withVideo[0], true
	}

	// Video not yet negotiated: fall back to the publish capability flag,
	// but only when it is unambiguous.
	var withGrant []string
	for _, p := range sorted {
		if p.CanPublish {
			withGrant = append(withGrant, p.Identity)
		}
	}
	if len(withGrant) == 1 {
		return withGrant[0], true
	}

	return "", false
}
