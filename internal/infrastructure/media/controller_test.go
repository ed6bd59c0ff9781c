package media

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"roomlink/internal/core/domain"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media/oggwriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// writeIVF writes a minimal IVF file with the given codec and frame count.
func writeIVF(t *testing.T, dir, fourcc string, frames int) string {
	t.Helper()

	header := make([]byte, 32)
	copy(header[0:4], "DKIF")
	binary.LittleEndian.PutUint16(header[4:], 0)
	binary.LittleEndian.PutUint16(header[6:], 32)
	copy(header[8:12], fourcc)
	binary.LittleEndian.PutUint16(header[12:], 64)
	binary.LittleEndian.PutUint16(header[14:], 48)
	binary.LittleEndian.PutUint32(header[16:], 30)
	binary.LittleEndian.PutUint32(header[20:], 1)
	binary.LittleEndian.PutUint32(header[24:], uint32(frames))

	data := header
	for i := 0; i < frames; i++ {
		frame := []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a}
		frameHeader := make([]byte, 12)
		binary.LittleEndian.PutUint32(frameHeader[0:], uint32(len(frame)))
		binary.LittleEndian.PutUint64(frameHeader[4:], uint64(i))
		data = append(data, frameHeader...)
		data = append(data, frame...)
	}

	path := filepath.Join(dir, "video.ivf")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func writeOGG(t *testing.T, dir string, pages int) string {
	t.Helper()

	path := filepath.Join(dir, "audio.ogg")
	w, err := oggwriter.New(path, 48000, 2)
	require.NoError(t, err)
	for i := 0; i < pages; i++ {
		require.NoError(t, w.WriteRTP(&rtp.Packet{
			Header:  rtp.Header{SequenceNumber: uint16(i), Timestamp: uint32(i * 960)},
			Payload: []byte{0xfc, 0xff, 0xfe},
		}))
	}
	require.NoError(t, w.Close())
	return path
}

func TestAcquire_NoSources(t *testing.T) {
	_, err := Acquire(Config{}, nil)
	assert.ErrorIs(t, err, domain.ErrMediaUnavailable)
}

func TestAcquire_MissingFile(t *testing.T) {
	_, err := Acquire(Config{VideoFile: filepath.Join(t.TempDir(), "missing.ivf")}, nil)
	assert.ErrorIs(t, err, domain.ErrMediaUnavailable)

	// One bad source fails the whole acquisition.
	dir := t.TempDir()
	_, err = Acquire(Config{
		VideoFile: writeIVF(t, dir, "VP80", 1),
		AudioFile: filepath.Join(dir, "missing.ogg"),
	}, nil)
	assert.ErrorIs(t, err, domain.ErrMediaUnavailable)
}

func TestAcquire_UnsupportedCodec(t *testing.T) {
	_, err := Acquire(Config{VideoFile: writeIVF(t, t.TempDir(), "AV01", 1)}, nil)
	assert.ErrorIs(t, err, domain.ErrMediaUnavailable)
}

func TestAcquire_Tracks(t *testing.T) {
	dir := t.TempDir()

	t.Run("video only", func(t *testing.T) {
		s, err := Acquire(Config{VideoFile: writeIVF(t, dir, "VP80", 2), VideoEnabled: true}, zaptest.NewLogger(t).Sugar())
		require.NoError(t, err)
		defer s.Close()

		tracks := s.Tracks()
		require.Len(t, tracks, 1)
		assert.Equal(t, webrtc.RTPCodecTypeVideo, tracks[0].Kind())
		assert.True(t, s.VideoEnabled())
		assert.False(t, s.AudioEnabled())
		assert.NotEmpty(t, s.ID())
	})

	t.Run("audio and video", func(t *testing.T) {
		s, err := Acquire(Config{
			VideoFile:    writeIVF(t, dir, "VP80", 2),
			AudioFile:    writeOGG(t, dir, 2),
			AudioEnabled: true,
			VideoEnabled: true,
		}, zaptest.NewLogger(t).Sugar())
		require.NoError(t, err)
		defer s.Close()

		tracks := s.Tracks()
		require.Len(t, tracks, 2)
		assert.Equal(t, webrtc.RTPCodecTypeAudio, tracks[0].Kind())
		assert.Equal(t, webrtc.RTPCodecTypeVideo, tracks[1].Kind())
	})
}

func TestStream_Toggles(t *testing.T) {
	dir := t.TempDir()
	s, err := Acquire(Config{
		VideoFile:    writeIVF(t, dir, "VP80", 1),
		AudioFile:    writeOGG(t, dir, 1),
		AudioEnabled: true,
		VideoEnabled: true,
	}, nil)
	require.NoError(t, err)
	defer s.Close()

	s.SetAudioEnabled(false)
	assert.False(t, s.AudioEnabled())
	assert.True(t, s.VideoEnabled())

	s.SetVideoEnabled(false)
	assert.False(t, s.VideoEnabled())

	s.SetAudioEnabled(true)
	assert.True(t, s.AudioEnabled())
}

func TestStream_StartAndClose(t *testing.T) {
	dir := t.TempDir()
	s, err := Acquire(Config{
		VideoFile:    writeIVF(t, dir, "VP80", 3),
		AudioFile:    writeOGG(t, dir, 3),
		AudioEnabled: true,
		VideoEnabled: true,
		Loop:         true,
	}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))

	time.Sleep(100 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		_ = s.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not stop the pumps")
	}

	assert.NoError(t, s.Close())
	assert.ErrorIs(t, s.Start(context.Background()), domain.ErrSessionClosed)
}

func TestStream_FinishesWithoutLoop(t *testing.T) {
	s, err := Acquire(Config{VideoFile: writeIVF(t, t.TempDir(), "VP80", 1), VideoEnabled: true}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not stop at end of file")
	}
	assert.NoError(t, s.Close())
}
