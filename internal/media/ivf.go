package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/rs/zerolog/log"
)

var ErrUnsupportedCodec = errors.New("unsupported codec")

// IVFStream plays a VP8 IVF file into a sample track, looping at the end.
type IVFStream struct {
	path  string
	track *webrtc.TrackLocalStaticSample
	frame time.Duration
}

// OpenIVF checks the file header and prepares the track. Nothing is sent
// until Run is called.
func OpenIVF(path, streamID string) (*IVFStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ivf: %w", err)
	}
	defer f.Close()

	_, header, err := ivfreader.NewWith(f)
	if err != nil {
		return nil, fmt.Errorf("read ivf header: %w", err)
	}
	if header.FourCC != "VP80" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, header.FourCC)
	}
	if header.TimebaseDenominator == 0 {
		return nil, fmt.Errorf("read ivf header: zero timebase")
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID)
	if err != nil {
		return nil, err
	}
	frame := time.Duration(float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator) * float64(time.Second))
	return &IVFStream{path: path, track: track, frame: frame}, nil
}

func (s *IVFStream) Tracks() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{s.track}
}

// Run writes frames paced by the file timebase until ctx ends.
func (s *IVFStream) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.frame)
	defer ticker.Stop()
	for {
		if err := s.playOnce(ctx, ticker); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

func (s *IVFStream) playOnce(ctx context.Context, ticker *time.Ticker) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open ivf: %w", err)
	}
	defer f.Close()

	reader, _, err := ivfreader.NewWith(f)
	if err != nil {
		return fmt.Errorf("read ivf header: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		frame, _, err := reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read ivf frame: %w", err)
		}
		if err := s.track.WriteSample(pionmedia.Sample{Data: frame, Duration: s.frame}); err != nil {
			log.Debug().Err(err).Str("module", "media").Msg("write sample")
		}
	}
}

// IVFTarget records every attached VP8 track to its own IVF file in dir.
type IVFTarget struct {
	dir    string
	prefix string

	mu      sync.Mutex
	writers []*ivfwriter.IVFWriter
	n       int
}

func NewIVFTarget(dir, prefix string) *IVFTarget {
	return &IVFTarget{dir: dir, prefix: prefix}
}

func (t *IVFTarget) Attach(track *webrtc.TrackRemote) {
	if !strings.EqualFold(track.Codec().MimeType, webrtc.MimeTypeVP8) {
		log.Info().Str("module", "media").Str("codec", track.Codec().MimeType).Msg("not recording non VP8 track")
		(&DrainTarget{}).Attach(track)
		return
	}

	t.mu.Lock()
	t.n++
	path := fmt.Sprintf("%s/%s-%d.ivf", t.dir, t.prefix, t.n)
	w, err := ivfwriter.New(path)
	if err != nil {
		t.mu.Unlock()
		log.Error().Err(err).Str("module", "media").Str("path", path).Msg("create ivf writer")
		return
	}
	t.writers = append(t.writers, w)
	t.mu.Unlock()
	log.Info().Str("module", "media").Str("path", path).Msg("recording track")

	go func() {
		for {
			pkt, _, err := track.ReadRTP()
			if err != nil {
				return
			}
			if err := w.WriteRTP(pkt); err != nil {
				return
			}
		}
	}()
}

// Detach closes every open file. Pending reads end with an error.
func (t *IVFTarget) Detach() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, w := range t.writers {
		if err := w.Close(); err != nil {
			log.Debug().Err(err).Str("module", "media").Msg("close ivf writer")
		}
	}
	t.writers = nil
}
