package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/pkg/config"
	"roomlink/pkg/utils"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/ivfreader"
	"github.com/pion/webrtc/v3/pkg/media/oggreader"
	"go.uber.org/zap"
)

const (
	oggPageDuration      = 20 * time.Millisecond
	defaultFrameDuration = 33 * time.Millisecond
	opusSampleRate       = 48000
)

// Config selects the media sources of the local stream.
type Config struct {
	AudioFile    string
	VideoFile    string
	AudioEnabled bool
	VideoEnabled bool
	Loop         bool
}

func ConfigFromApp(cfg *config.Config) Config {
	return Config{
		AudioFile:    cfg.Media.AudioFile,
		VideoFile:    cfg.Media.VideoFile,
		AudioEnabled: cfg.Media.AudioEnabled,
		VideoEnabled: cfg.Media.VideoEnabled,
		Loop:         cfg.Media.Loop,
	}
}

// Stream is the local camera/microphone stand-in: one audio and/or one video
// track fed from files and shared by every peer connection.
type Stream struct {
	id     string
	config Config

	audio *webrtc.TrackLocalStaticSample
	video *webrtc.TrackLocalStaticSample

	audioEnabled atomic.Bool
	videoEnabled atomic.Bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	closed  bool

	logger *zap.SugaredLogger
}

// Acquire opens the configured sources and builds the tracks. Any source that
// cannot be opened fails the whole acquisition with ErrMediaUnavailable.
func Acquire(cfg Config, logger *zap.SugaredLogger) (*Stream, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.AudioFile == "" && cfg.VideoFile == "" {
		return nil, fmt.Errorf("%w: no audio or video source configured", domain.ErrMediaUnavailable)
	}

	s := &Stream{
		id:     utils.GenerateID("stream"),
		config: cfg,
	}
	s.logger = logger.With("stream_id", s.id)
	s.audioEnabled.Store(cfg.AudioEnabled)
	s.videoEnabled.Store(cfg.VideoEnabled)

	if cfg.VideoFile != "" {
		track, err := newVideoTrack(cfg.VideoFile, s.id)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMediaUnavailable, err)
		}
		s.video = track
	}

	if cfg.AudioFile != "" {
		track, err := newAudioTrack(cfg.AudioFile, s.id)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMediaUnavailable, err)
		}
		s.audio = track
	}

	s.logger.Infow("local media acquired",
		"audio", s.audio != nil,
		"video", s.video != nil,
	)
	return s, nil
}

func newVideoTrack(path, streamID string) (*webrtc.TrackLocalStaticSample, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	_, header, err := ivfreader.NewWith(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read IVF header: %w", err)
	}

	var mimeType string
	switch header.FourCC {
	case "VP80":
		mimeType = webrtc.MimeTypeVP8
	case "VP90":
		mimeType = webrtc.MimeTypeVP9
	default:
		return nil, fmt.Errorf("unsupported video codec %q", header.FourCC)
	}

	return webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mimeType}, "video", streamID)
}

func newAudioTrack(path, streamID string) (*webrtc.TrackLocalStaticSample, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if _, _, err := oggreader.NewWith(file); err != nil {
		return nil, fmt.Errorf("failed to read OGG header: %w", err)
	}

	return webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
}

func (s *Stream) ID() string {
	return s.id
}

// Tracks returns the tracks in a stable order: audio first.
func (s *Stream) Tracks() []webrtc.TrackLocal {
	var tracks []webrtc.TrackLocal
	if s.audio != nil {
		tracks = append(tracks, s.audio)
	}
	if s.video != nil {
		tracks = append(tracks, s.video)
	}
	return tracks
}

func (s *Stream) AudioEnabled() bool {
	return s.audio != nil && s.audioEnabled.Load()
}

func (s *Stream) VideoEnabled() bool {
	return s.video != nil && s.videoEnabled.Load()
}

// SetAudioEnabled mutes or unmutes audio on every connection at once. A muted
// track keeps its pacing but writes no samples.
func (s *Stream) SetAudioEnabled(enabled bool) {
	s.audioEnabled.Store(enabled)
	s.logger.Infow("audio toggled", "enabled", enabled)
}

func (s *Stream) SetVideoEnabled(enabled bool) {
	s.videoEnabled.Store(enabled)
	s.logger.Infow("video toggled", "enabled", enabled)
}

// Start launches one pump goroutine per track. It returns immediately.
func (s *Stream) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrSessionClosed
	}
	if s.started {
		return nil
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)

	if s.video != nil {
		s.wg.Add(1)
		go s.run(ctx, "video", s.pumpVideo)
	}
	if s.audio != nil {
		s.wg.Add(1)
		go s.run(ctx, "audio", s.pumpAudio)
	}
	return nil
}

// Close stops the pumps and waits for them.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.logger.Infow("local media released")
	return nil
}

func (s *Stream) run(ctx context.Context, kind string, pump func(context.Context) error) {
	defer s.wg.Done()

	for {
		err := pump(ctx)
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, io.EOF) && s.config.Loop:
			continue
		case errors.Is(err, io.EOF):
			s.logger.Infow("media source finished", "kind", kind)
			return
		default:
			s.logger.Errorw("media source failed", "kind", kind, "error", err)
			return
		}
	}
}

// pumpVideo plays the IVF file once at its native frame rate.
func (s *Stream) pumpVideo(ctx context.Context) error {
	file, err := os.Open(s.config.VideoFile)
	if err != nil {
		return err
	}
	defer file.Close()

	reader, header, err := ivfreader.NewWith(file)
	if err != nil {
		return err
	}

	frameDuration := defaultFrameDuration
	if header.TimebaseDenominator > 0 && header.TimebaseNumerator > 0 {
		frameDuration = time.Duration(float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator) * float64(time.Second))
	}

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		frame, _, err := reader.ParseNextFrame()
		if err != nil {
			return err
		}
		if !s.videoEnabled.Load() {
			continue
		}
		if err := s.video.WriteSample(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
			return err
		}
	}
}

// pumpAudio plays the OGG file once, one page per tick.
func (s *Stream) pumpAudio(ctx context.Context) error {
	file, err := os.Open(s.config.AudioFile)
	if err != nil {
		return err
	}
	defer file.Close()

	reader, _, err := oggreader.NewWith(file)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		page, pageHeader, err := reader.ParseNextPage()
		if err != nil {
			return err
		}

		sampleCount := float64(pageHeader.GranulePosition - lastGranule)
		lastGranule = pageHeader.GranulePosition
		duration := time.Duration(sampleCount/opusSampleRate*1000) * time.Millisecond

		if !s.audioEnabled.Load() {
			continue
		}
		if err := s.audio.WriteSample(media.Sample{Data: page, Duration: duration}); err != nil {
			return err
		}
	}
}
