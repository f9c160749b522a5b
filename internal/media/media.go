// Package media holds the local stream and render target collaborators of
// the peer links. Capture and display are outside this module; a stream is
// whatever tracks the caller hands in and a target is where remote tracks go.
package media

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// Stream is the local media offered to remote peers.
type Stream interface {
	Tracks() []webrtc.TrackLocal
}

// RenderTarget receives the remote media of one link.
type RenderTarget interface {
	Attach(track *webrtc.TrackRemote)
	Detach()
}

type StaticStream struct {
	tracks []webrtc.TrackLocal
}

func NewStaticStream(tracks ...webrtc.TrackLocal) *StaticStream {
	return &StaticStream{tracks: tracks}
}

func (s *StaticStream) Tracks() []webrtc.TrackLocal {
	out := make([]webrtc.TrackLocal, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// DrainTarget reads remote tracks and discards the packets, counting them.
type DrainTarget struct {
	mu       sync.Mutex
	packets  int64
	attached int
	detached bool
}

func (d *DrainTarget) Attach(track *webrtc.TrackRemote) {
	d.mu.Lock()
	d.attached++
	d.detached = false
	d.mu.Unlock()
	go func() {
		for {
			if _, _, err := track.ReadRTP(); err != nil {
				return
			}
			d.mu.Lock()
			stop := d.detached
			d.packets++
			d.mu.Unlock()
			if stop {
				return
			}
		}
	}()
}

func (d *DrainTarget) Detach() {
	d.mu.Lock()
	d.detached = true
	d.mu.Unlock()
}

func (d *DrainTarget) Packets() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.packets
}

func (d *DrainTarget) Attached() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attached
}
