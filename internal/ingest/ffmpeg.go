package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const maxFrameBytes = 10 * 1024 * 1024

// FrameCallback is called for each extracted JPEG frame.
type FrameCallback func(frameData []byte)

// FFmpegExtractor extracts JPEG frames from a video stream using FFmpeg.
type FFmpegExtractor struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	cmd    *exec.Cmd
}

// ffmpegArgs builds the command line that turns streamURL into a stream of
// concatenated JPEGs on stdout at the given rate and width.
func ffmpegArgs(streamURL string, fps, width int) []string {
	args := []string{"-hide_banner", "-loglevel", "warning"}

	switch {
	case strings.HasPrefix(streamURL, "rtsp://"), strings.HasPrefix(streamURL, "rtsps://"):
		args = append(args,
			"-rtsp_transport", "tcp",
			"-timeout", "5000000", // microseconds
		)
	case strings.HasPrefix(streamURL, "http://"), strings.HasPrefix(streamURL, "https://"):
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
			"-timeout", "10000000",
		)
	case strings.HasPrefix(streamURL, "/dev/video"):
		args = append(args, "-f", "v4l2")
	}

	return append(args,
		"-i", streamURL,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:-1", fps, width),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	)
}

// Run starts FFmpeg and calls callback for each frame. It blocks until the
// context is cancelled or the stream ends.
func (f *FFmpegExtractor) Run(ctx context.Context, streamURL string, fps, width int, callback FrameCallback) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg", ffmpegArgs(streamURL, fps, width)...)
	f.mu.Lock()
	f.cancel = cancel
	f.cmd = cmd
	f.mu.Unlock()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			slog.Debug("ffmpeg stderr", "url", streamURL, "output", scanner.Text())
		}
	}()

	readErr := readJPEGFrames(ctx, stdout, callback)
	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if readErr != nil {
		return fmt.Errorf("read frames: %w", readErr)
	}
	return waitErr
}

// Stop terminates the FFmpeg process.
func (f *FFmpegExtractor) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancel != nil {
		f.cancel()
	}
	if f.cmd != nil && f.cmd.Process != nil {
		_ = f.cmd.Process.Kill()
	}
}

// errNoFrames is returned when the stream closed before producing a frame.
var errNoFrames = errors.New("no frames received from ffmpeg")

// readJPEGFrames splits a stream of concatenated JPEG images on their SOI/EOI
// markers. A stream that ends after at least one frame is a normal end.
func readJPEGFrames(ctx context.Context, r io.Reader, callback FrameCallback) error {
	reader := bufio.NewReaderSize(r, 512*1024)
	frames := 0

	for ctx.Err() == nil {
		if err := skipToMarker(reader, 0xD8); err != nil {
			if errors.Is(err, io.EOF) {
				if frames > 0 {
					return nil
				}
				return errNoFrames
			}
			return err
		}

		frame, err := readFrameBody(reader)
		if err != nil {
			if errors.Is(err, io.EOF) && frames > 0 {
				return nil // ended mid-frame
			}
			return err
		}

		frames++
		callback(frame)
	}
	return ctx.Err()
}

// skipToMarker discards bytes up to and including 0xFF <marker>.
func skipToMarker(r *bufio.Reader, marker byte) error {
	prev := byte(0)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if prev == 0xFF && b == marker {
			return nil
		}
		prev = b
	}
}

// readFrameBody reads after an SOI marker until the matching EOI and returns
// the whole image including both markers.
func readFrameBody(r *bufio.Reader) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xD8})

	prev := byte(0)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		buf.WriteByte(b)
		if prev == 0xFF && b == 0xD9 {
			return buf.Bytes(), nil
		}
		prev = b

		if buf.Len() > maxFrameBytes {
			return nil, fmt.Errorf("jpeg frame exceeds %d bytes", maxFrameBytes)
		}
	}
}

// backoff returns the delay before restart attempt n (1-based): 2s, 4s, 8s,
// capped at 30s.
func backoff(n int) time.Duration {
	if n > 4 {
		return 30 * time.Second
	}
	return time.Duration(1<<uint(n)) * time.Second
}
