package client

import (
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/dkeye/Broadcast/internal/media"
)

type funcTargets struct {
	main  media.RenderTarget
	lobby func(domain.ParticipantID) media.RenderTarget
}

// NewTargets renders the broadcast into main and each lobby preview into
// whatever lobby returns for the remote.
func NewTargets(main media.RenderTarget, lobby func(domain.ParticipantID) media.RenderTarget) Targets {
	return funcTargets{main: main, lobby: lobby}
}

func (t funcTargets) Main() media.RenderTarget { return t.main }

func (t funcTargets) Lobby(remote domain.ParticipantID) media.RenderTarget {
	return t.lobby(remote)
}

// DrainTargets discards all remote media.
func DrainTargets() Targets {
	return NewTargets(&media.DrainTarget{}, func(domain.ParticipantID) media.RenderTarget {
		return &media.DrainTarget{}
	})
}
