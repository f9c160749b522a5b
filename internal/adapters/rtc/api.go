package rtc

import (
	"fmt"

	"github.com/dkeye/Broadcast/internal/peer"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

func DefaultWebRTCConfig() webrtc.Configuration {
	return ConfigWithSTUN([]string{"stun:stun.l.google.com:19302"})
}

func ConfigWithSTUN(urls []string) webrtc.Configuration {
	if len(urls) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: urls}},
	}
}

// NewAPI builds a webrtc.API with the default codecs and interceptors and
// pion's logging routed through zerolog. opts tune the setting engine.
func NewAPI(opts ...func(*webrtc.SettingEngine)) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	s := webrtc.SettingEngine{LoggerFactory: LoggerFactory{}}
	for _, opt := range opts {
		opt(&s)
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
		webrtc.WithSettingEngine(s),
	), nil
}

// Factory creates pion peer connections for peer.Manager.
type Factory struct {
	api *webrtc.API
	cfg webrtc.Configuration
}

func NewFactory(api *webrtc.API, cfg webrtc.Configuration) *Factory {
	return &Factory{api: api, cfg: cfg}
}

func (f *Factory) New() (peer.PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("module", "webrtc").Int("ice_servers", len(f.cfg.ICEServers)).Msg("peer connection created")
	return pc, nil
}
