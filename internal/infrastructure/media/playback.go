package media

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"roomlink/internal/core/domain"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v3/pkg/media/oggwriter"
	"go.uber.org/zap"
)

// rtpSource is the part of *webrtc.TrackRemote the sinks need.
type rtpSource interface {
	ID() string
	Kind() webrtc.RTPCodecType
	Codec() webrtc.RTPCodecParameters
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// TrackStats counts what one remote track delivered.
type TrackStats struct {
	TrackID   string
	Kind      string
	Packets   uint64
	Bytes     uint64
	StartedAt time.Time
}

type sink struct {
	trackID   string
	kind      string
	packets   atomic.Uint64
	bytes     atomic.Uint64
	stopped   atomic.Bool
	startedAt time.Time
}

func (s *sink) stats() TrackStats {
	return TrackStats{
		TrackID:   s.trackID,
		Kind:      s.kind,
		Packets:   s.packets.Load(),
		Bytes:     s.bytes.Load(),
		StartedAt: s.startedAt,
	}
}

// Playback consumes remote tracks. Without a display it drains and counts the
// packets, and optionally records VP8 and Opus tracks to disk.
type Playback struct {
	recordDir string
	logger    *zap.SugaredLogger

	mu    sync.Mutex
	sinks map[domain.PeerID][]*sink
}

func NewPlayback(recordDir string, logger *zap.SugaredLogger) *Playback {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Playback{
		recordDir: recordDir,
		logger:    logger,
		sinks:     make(map[domain.PeerID][]*sink),
	}
}

// Attach implements ports.Playback.
func (p *Playback) Attach(peerID domain.PeerID, track *webrtc.TrackRemote) {
	if track == nil {
		return
	}
	p.attach(peerID, track)
}

func (p *Playback) attach(peerID domain.PeerID, src rtpSource) *sink {
	s := &sink{
		trackID:   src.ID(),
		kind:      src.Kind().String(),
		startedAt: time.Now(),
	}

	p.mu.Lock()
	p.sinks[peerID] = append(p.sinks[peerID], s)
	p.mu.Unlock()

	writer := p.recorder(peerID, src)
	p.logger.Infow("remote track attached",
		"peer_id", peerID,
		"track_id", s.trackID,
		"kind", s.kind,
		"recording", writer != nil,
	)

	go p.drain(peerID, src, s, writer)
	return s
}

// Detach stops the peer's sinks. Readers exit on their next packet or when
// the connection closes the track.
func (p *Playback) Detach(peerID domain.PeerID) {
	p.mu.Lock()
	sinks := p.sinks[peerID]
	delete(p.sinks, peerID)
	p.mu.Unlock()

	for _, s := range sinks {
		s.stopped.Store(true)
		p.logger.Infow("remote track detached",
			"peer_id", peerID,
			"track_id", s.trackID,
			"packets", s.packets.Load(),
			"bytes", s.bytes.Load(),
		)
	}
}

// Stats returns per-peer counters for every attached track.
func (p *Playback) Stats() map[domain.PeerID][]TrackStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[domain.PeerID][]TrackStats, len(p.sinks))
	for id, sinks := range p.sinks {
		for _, s := range sinks {
			out[id] = append(out[id], s.stats())
		}
	}
	return out
}

func (p *Playback) drain(peerID domain.PeerID, src rtpSource, s *sink, writer media.Writer) {
	defer func() {
		if writer != nil {
			if err := writer.Close(); err != nil {
				p.logger.Warnw("failed to close recording", "peer_id", peerID, "error", err)
			}
		}
	}()

	for {
		packet, _, err := src.ReadRTP()
		if err != nil || s.stopped.Load() {
			return
		}

		s.packets.Add(1)
		s.bytes.Add(uint64(len(packet.Payload)))

		if writer != nil {
			if err := writer.WriteRTP(packet); err != nil {
				p.logger.Warnw("recording stopped", "peer_id", peerID, "error", err)
				_ = writer.Close()
				writer = nil
			}
		}
	}
}

// recorder opens a file writer for codecs pion can containerize.
func (p *Playback) recorder(peerID domain.PeerID, src rtpSource) media.Writer {
	if p.recordDir == "" {
		return nil
	}

	base := filepath.Join(p.recordDir, fmt.Sprintf("%s-%s", peerID, src.Kind()))
	mimeType := src.Codec().MimeType

	var (
		writer media.Writer
		err    error
	)
	switch {
	case strings.EqualFold(mimeType, webrtc.MimeTypeVP8):
		writer, err = ivfwriter.New(base + ".ivf")
	case strings.EqualFold(mimeType, webrtc.MimeTypeOpus):
		writer, err = oggwriter.New(base+".ogg", opusSampleRate, 2)
	default:
		p.logger.Debugw("codec not recordable", "peer_id", peerID, "mime_type", mimeType)
		return nil
	}
	if err != nil {
		p.logger.Warnw("failed to open recording", "peer_id", peerID, "error", err)
		return nil
	}
	return writer
}
