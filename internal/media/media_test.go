package media

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/huginmedia/skald/internal/config"
	"github.com/huginmedia/skald/internal/playlist"
	"github.com/huginmedia/skald/internal/sink"
	"github.com/huginmedia/skald/internal/telemetry"
)

// fakeSink collects relayed bytes in memory.
type fakeSink struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	running bool
	failErr error

	wroteOnce sync.Once
	wrote     chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{running: true, wrote: make(chan struct{})}
}

func (f *fakeSink) Write(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.buf.Write(p)
	f.wroteOnce.Do(func() { close(f.wrote) })
	return nil
}

func (f *fakeSink) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeSink) bytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.buf.Bytes()...)
}

// stubTransform writes a shell script standing in for the ffmpeg transform.
func stubTransform(t *testing.T, body string) string {
	t.Helper()
	script := filepath.Join(t.TempDir(), "transform.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write stub transform: %v", err)
	}
	return script
}

func mediaConfig(t *testing.T, bin string) *config.Config {
	t.Helper()
	return &config.Config{
		FFmpegBin:          bin,
		Resolution:         "1280x720",
		VideoBitrate:       "2300k",
		FrameRate:          30,
		AudioRate:          44100,
		KeyframeGap:        60,
		ChunkSize:          4,
		StopGrace:          2 * time.Second,
		TransitionDuration: 3 * time.Second,
		PreEncodedMarker:   "_processed.mp4",
	}
}

func TestPlayer_Completed(t *testing.T) {
	bin := stubTransform(t, `printf 'CLIPDATA'`)
	player := NewPlayer(mediaConfig(t, bin), telemetry.New(), zerolog.Nop())
	out := newFakeSink()

	outcome, err := player.Play(context.Background(), playlist.Entry{ID: 1, Path: "clip.mp4"}, out, nil)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if outcome != OutcomeCompleted {
		t.Fatalf("expected completed, got %s", outcome)
	}
	if got := string(out.bytes()); got != "CLIPDATA" {
		t.Fatalf("unexpected relayed bytes: %q", got)
	}
}

func TestPlayer_PartialOutputStillCompleted(t *testing.T) {
	bin := stubTransform(t, `printf 'PART'; exit 3`)
	player := NewPlayer(mediaConfig(t, bin), telemetry.New(), zerolog.Nop())
	out := newFakeSink()

	outcome, err := player.Play(context.Background(), playlist.Entry{ID: 1, Path: "broken.mp4"}, out, nil)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if outcome != OutcomeCompleted {
		t.Fatalf("expected completed for partial output, got %s", outcome)
	}
	if got := string(out.bytes()); got != "PART" {
		t.Fatalf("unexpected relayed bytes: %q", got)
	}
}

func TestPlayer_NoOutputFails(t *testing.T) {
	bin := stubTransform(t, `exit 1`)
	player := NewPlayer(mediaConfig(t, bin), telemetry.New(), zerolog.Nop())
	out := newFakeSink()

	outcome, err := player.Play(context.Background(), playlist.Entry{ID: 1, Path: "missing.mp4"}, out, nil)
	if outcome != OutcomeFailed {
		t.Fatalf("expected failed for empty output, got %s (err=%v)", outcome, err)
	}
	if err == nil {
		t.Fatalf("expected an error for a transform that produced nothing")
	}
}

func TestPlayer_Cancelled(t *testing.T) {
	bin := stubTransform(t, `while true; do printf 'xxxx'; sleep 0.05; done`)
	player := NewPlayer(mediaConfig(t, bin), telemetry.New(), zerolog.Nop())
	out := newFakeSink()

	cancel := make(chan struct{})
	result := make(chan Outcome, 1)
	go func() {
		outcome, _ := player.Play(context.Background(), playlist.Entry{ID: 1, Path: "long.mp4"}, out, cancel)
		result <- outcome
	}()

	// Fire the skip once at least one chunk has been relayed, so the sink
	// holds a non-empty strict prefix of the clip.
	select {
	case <-out.wrote:
	case <-time.After(5 * time.Second):
		t.Fatalf("no bytes relayed before cancel")
	}
	close(cancel)

	select {
	case outcome := <-result:
		if outcome != OutcomeCancelled {
			t.Fatalf("expected cancelled, got %s", outcome)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("play did not return after cancel")
	}

	if len(out.bytes()) == 0 {
		t.Fatalf("expected a non-empty prefix before cancellation")
	}
}

func TestPlayer_SinkClosed(t *testing.T) {
	bin := stubTransform(t, `printf 'DATA'; sleep 1`)
	player := NewPlayer(mediaConfig(t, bin), telemetry.New(), zerolog.Nop())
	out := newFakeSink()
	out.failErr = sink.ErrClosed

	outcome, err := player.Play(context.Background(), playlist.Entry{ID: 1, Path: "clip.mp4"}, out, nil)
	if outcome != OutcomeSinkClosed {
		t.Fatalf("expected sink_closed, got %s (err=%v)", outcome, err)
	}
	if !errors.Is(err, sink.ErrClosed) {
		t.Fatalf("expected ErrClosed in the chain, got %v", err)
	}
}

func TestPlayer_ContextCancelled(t *testing.T) {
	bin := stubTransform(t, `while true; do printf 'x'; sleep 0.05; done`)
	player := NewPlayer(mediaConfig(t, bin), telemetry.New(), zerolog.Nop())
	out := newFakeSink()

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan Outcome, 1)
	go func() {
		outcome, _ := player.Play(ctx, playlist.Entry{ID: 1, Path: "long.mp4"}, out, nil)
		result <- outcome
	}()

	select {
	case <-out.wrote:
	case <-time.After(5 * time.Second):
		t.Fatalf("no bytes relayed before shutdown")
	}
	cancel()

	select {
	case outcome := <-result:
		if outcome != OutcomeCancelled {
			t.Fatalf("expected cancelled on shutdown, got %s", outcome)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("play did not return after context cancel")
	}
}

func TestTransition_Play(t *testing.T) {
	bin := stubTransform(t, `printf 'FILLER'`)
	tr := NewTransition(mediaConfig(t, bin), telemetry.New(), zerolog.Nop())
	out := newFakeSink()

	if err := tr.Play(context.Background(), out); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if got := string(out.bytes()); got != "FILLER" {
		t.Fatalf("unexpected filler bytes: %q", got)
	}
}

func TestTransition_NoSinkSession(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "ran")
	bin := stubTransform(t, `touch `+marker+`; printf 'FILLER'`)
	tr := NewTransition(mediaConfig(t, bin), telemetry.New(), zerolog.Nop())
	out := newFakeSink()
	out.running = false

	if err := tr.Play(context.Background(), out); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if len(out.bytes()) != 0 {
		t.Fatalf("transition must not write when the sink is down")
	}
	if _, err := os.Stat(marker); err == nil {
		t.Fatalf("transition must not spawn a transform when the sink is down")
	}
}
