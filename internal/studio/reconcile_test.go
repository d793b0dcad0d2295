package studio

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/alefe53/mis-esencias-live/internal/transport"
)

func TestPickBroadcaster(t *testing.T) {
	logger := zerolog.Nop()

	tests := []struct {
		name     string
		self     transport.Participant
		remotes  []transport.Participant
		want     string
		wantSome bool
	}{
		{
			name:     "self with publish grant wins",
			self:     transport.Participant{Identity: "admin", CanPublish: true},
			remotes:  []transport.Participant{{Identity: "other", Published: []transport.Source{transport.SourceCamera}}},
			want:     "admin",
			wantSome: true,
		},
		{
			name: "unique remote with video",
			self: transport.Participant{Identity: "viewer"},
			remotes: []transport.Participant{
				{Identity: "listener"},
				{Identity: "admin", Published: []transport.Source{transport.SourceCamera}},
			},
			want:     "admin",
			wantSome: true,
		},
		{
			name: "screen share counts as video",
			self: transport.Participant{Identity: "viewer"},
			remotes: []transport.Participant{
				{Identity: "admin", Published: []transport.Source{transport.SourceScreenShare}},
			},
			want:     "admin",
			wantSome: true,
		},
		{
			name: "audio only does not count as video",
			self: transport.Participant{Identity: "viewer"},
			remotes: []transport.Participant{
				{Identity: "speaker", Published: []transport.Source{transport.SourceMicrophone}},
			},
			want:     "",
			wantSome: false,
		},
		{
			name: "multiple with video picks first in identity order",
			self: transport.Participant{Identity: "viewer"},
			remotes: []transport.Participant{
				{Identity: "zeta", Published: []transport.Source{transport.SourceCamera}},
				{Identity: "alpha", Published: []transport.Source{transport.SourceCamera}},
			},
			want:     "alpha",
			wantSome: true,
		},
		{
			name: "unique publish grant without video",
			self: transport.Participant{Identity: "viewer"},
			remotes: []transport.Participant{
				{Identity: "listener"},
				{Identity: "admin", CanPublish: true},
			},
			want:     "admin",
			wantSome: true,
		},
		{
			name: "ambiguous publish grants pick nobody",
			self: transport.Participant{Identity: "viewer"},
			remotes: []transport.Participant{
				{Identity: "a", CanPublish: true},
				{Identity: "b", CanPublish: true},
			},
			want:     "",
			wantSome: false,
		},
		{
			name:     "empty room picks nobody",
			self:     transport.Participant{Identity: "viewer"},
			remotes:  nil,
			want:     "",
			wantSome: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, some := PickBroadcaster(tt.self, tt.remotes, logger)
			require.Equal(t, tt.wantSome, some)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestPickBroadcasterOrderIndependent(t *testing.T) {
	logger := zerolog.Nop()
	self := transport.Participant{Identity: "viewer"}

	a := []transport.Participant{
		{Identity: "admin", Published: []transport.Source{transport.SourceCamera}},
		{Identity: "listener"},
	}
	b := []transport.Participant{a[1], a[0]}

	gotA, _ := PickBroadcaster(self, a, logger)
	gotB, _ := PickBroadcaster(self, b, logger)
	require.Equal(t, gotA, gotB)
}
