package ingest

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/your-org/coachwatch/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func jpeg(body ...byte) []byte {
	out := []byte{0xFF, 0xD8}
	out = append(out, body...)
	return append(out, 0xFF, 0xD9)
}

func TestReadJPEGFrames(t *testing.T) {
	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0x01}) // junk before the first frame
	stream.Write(jpeg(1, 2, 3))
	stream.Write(jpeg(0xFF, 0x00, 4))

	var frames [][]byte
	err := readJPEGFrames(context.Background(), &stream, func(b []byte) {
		frames = append(frames, b)
	})
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, jpeg(1, 2, 3), frames[0])
	assert.Equal(t, jpeg(0xFF, 0x00, 4), frames[1])
}

func TestReadJPEGFramesEmptyStream(t *testing.T) {
	err := readJPEGFrames(context.Background(), bytes.NewReader(nil), func([]byte) {})
	assert.ErrorIs(t, err, errNoFrames)
}

func TestReadJPEGFramesTruncatedTail(t *testing.T) {
	data := append(jpeg(7), 0xFF, 0xD8, 1, 2)
	n := 0
	err := readJPEGFrames(context.Background(), bytes.NewReader(data), func([]byte) { n++ })
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFFmpegArgs(t *testing.T) {
	args := ffmpegArgs("rtsp://cam.local/stream", 2, 640)
	assert.Contains(t, args, "-rtsp_transport")
	assert.Contains(t, args, "fps=2,scale=640:-1")
	assert.Equal(t, "pipe:1", args[len(args)-1])

	http := ffmpegArgs("http://cam.local/mjpeg", 1, 320)
	assert.Contains(t, http, "-reconnect")
	assert.NotContains(t, http, "-rtsp_transport")

	dev := ffmpegArgs("/dev/video0", 1, 320)
	assert.Contains(t, dev, "v4l2")
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, backoff(1))
	assert.Equal(t, 8*time.Second, backoff(3))
	assert.Equal(t, 30*time.Second, backoff(10))
}

func newTestSource(maxAge time.Duration) *CameraSource {
	return NewCameraSource(config.CameraConfig{ID: "cam-a1", URL: "rtsp://x", FPS: 2, Width: 640}, maxAge)
}

func TestNextFrameReturnsFreshFrame(t *testing.T) {
	src := newTestSource(time.Second)
	src.publish([]byte{1})

	f, err := src.NextFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.Seq)
	assert.Equal(t, "cam-a1", f.CameraID)
}

func TestNextFrameStaleWaitsThenFails(t *testing.T) {
	src := newTestSource(20 * time.Millisecond)
	base := time.Now()
	src.now = func() time.Time { return base }
	src.publish([]byte{1})

	src.now = func() time.Time { return base.Add(time.Minute) }
	_, err := src.NextFrame(context.Background())
	assert.ErrorIs(t, err, ErrFrameUnavailable)

	f, ok := src.Latest()
	assert.True(t, ok)
	assert.Equal(t, uint64(1), f.Seq)
}

func TestNextFrameWaitsForNewFrame(t *testing.T) {
	src := newTestSource(time.Second)

	go func() {
		time.Sleep(10 * time.Millisecond)
		src.publish([]byte{9})
	}()

	f, err := src.NextFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, f.Data)
}

func TestNextFrameHonorsContext(t *testing.T) {
	src := newTestSource(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.NextFrame(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunPublishesCapturedFrames(t *testing.T) {
	src := newTestSource(time.Second)
	var calls atomic.Int32
	src.capture = func(ctx context.Context, url string, fps, width int, cb FrameCallback) error {
		calls.Add(1)
		cb([]byte{1})
		<-ctx.Done()
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		src.Run(ctx)
	}()

	f, err := src.NextFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.Seq)

	cancel()
	<-done
	assert.Equal(t, int32(1), calls.Load())
}

func TestRunStopsDuringBackoff(t *testing.T) {
	src := newTestSource(time.Second)
	failed := make(chan struct{}, 1)
	src.capture = func(context.Context, string, int, int, FrameCallback) error {
		select {
		case failed <- struct{}{}:
		default:
		}
		return errors.New("connection refused")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		src.Run(ctx)
	}()

	<-failed
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestManagerRejectsIncompleteCamera(t *testing.T) {
	m := NewManager(time.Second)
	_, err := m.Start(context.Background(), config.CameraConfig{ID: "cam"})
	assert.Error(t, err)
	_, ok := m.Get("cam")
	assert.False(t, ok)
	assert.Zero(t, m.ActiveCount())
	m.StopAll()
}
