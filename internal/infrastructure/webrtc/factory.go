package webrtc

import (
	"fmt"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
	"roomlink/pkg/config"
	"roomlink/pkg/validation"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// WebRTCConfig WebRTC configuration
type WebRTCConfig struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
	// Trickle sends each local candidate as its own signal instead of one
	// complete description after gathering.
	Trickle bool
}

// ConfigFromApp builds the negotiator configuration from the application config.
func ConfigFromApp(cfg *config.Config) (WebRTCConfig, error) {
	var wc WebRTCConfig
	for _, s := range cfg.WebRTC.ICEServers {
		for _, u := range s.URLs {
			if err := validation.ValidateICEServerURL(u); err != nil {
				return wc, err
			}
		}
		wc.ICEServers = append(wc.ICEServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	wc.PortRange.Min = cfg.WebRTC.PortRange.Min
	wc.PortRange.Max = cfg.WebRTC.PortRange.Max
	wc.Trickle = cfg.Session.Trickle
	return wc, nil
}

// NegotiatorFactory creates one pion PeerConnection per remote peer. All
// connections share one API so codecs and interceptors are registered once.
type NegotiatorFactory struct {
	config WebRTCConfig
	api    *webrtc.API
	logger *zap.SugaredLogger
}

func NewNegotiatorFactory(cfg WebRTCConfig, logger *zap.SugaredLogger) (*NegotiatorFactory, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	settingEngine := webrtc.SettingEngine{LoggerFactory: newPionLoggerFactory(logger)}
	if cfg.PortRange.Min > 0 && cfg.PortRange.Max > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(cfg.PortRange.Min, cfg.PortRange.Max); err != nil {
			return nil, fmt.Errorf("invalid port range: %w", err)
		}
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(settingEngine),
	)

	return &NegotiatorFactory{config: cfg, api: api, logger: logger}, nil
}

// NewNegotiator implements ports.NegotiatorFactory. An initiator starts
// producing its offer before this returns.
func (f *NegotiatorFactory) NewNegotiator(
	peerID domain.PeerID,
	role domain.Role,
	stream ports.LocalStream,
	handlers ports.NegotiatorHandlers,
) (ports.Negotiator, error) {
	if stream == nil || len(stream.Tracks()) == 0 {
		return nil, domain.ErrMediaUnavailable
	}

	pc, err := f.api.NewPeerConnection(webrtc.Configuration{
		ICEServers:   f.config.ICEServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	n, err := newNegotiator(pc, peerID, role, f.config.Trickle, stream, handlers, f.logger)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	n.start()
	return n, nil
}
