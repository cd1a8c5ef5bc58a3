package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/huginmedia/skald/internal/config"
)

// stubEncoder writes a shell script that ignores its arguments and appends
// stdin to outPath, standing in for the ffmpeg encoder.
func stubEncoder(t *testing.T, outPath string) string {
	t.Helper()
	script := filepath.Join(t.TempDir(), "encoder.sh")
	body := fmt.Sprintf("#!/bin/sh\nexec cat >> %q\n", outPath)
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write stub encoder: %v", err)
	}
	return script
}

func testConfig(t *testing.T, outPath string) *config.Config {
	t.Helper()
	return &config.Config{
		FFmpegBin:    stubEncoder(t, outPath),
		StreamURL:    "rtmp://ingest.example.test/app",
		StreamKey:    "test-key",
		VideoBitrate: "2300k",
		AudioRate:    44100,
		KeyframeGap:  60,
		StopGrace:    2 * time.Second,
	}
}

func TestController_EnsureRunningIdempotent(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.bin")
	c := NewController(testConfig(t, out), zerolog.Nop())
	defer c.Shutdown(context.Background())

	ctx := context.Background()
	if err := c.EnsureRunning(ctx); err != nil {
		t.Fatalf("ensure running: %v", err)
	}
	first := c.Age()

	if err := c.EnsureRunning(ctx); err != nil {
		t.Fatalf("second ensure running: %v", err)
	}
	if !c.Running() {
		t.Fatalf("expected controller to be running")
	}
	if c.Age() < first {
		t.Fatalf("session age went backwards, a second session was started")
	}
}

func TestController_WriteAndShutdown(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.bin")
	c := NewController(testConfig(t, out), zerolog.Nop())

	ctx := context.Background()
	if err := c.EnsureRunning(ctx); err != nil {
		t.Fatalf("ensure running: %v", err)
	}
	if err := c.Write([]byte("hello ")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := c.Write([]byte("sink")); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if c.Running() {
		t.Fatalf("expected controller stopped after shutdown")
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "hello sink" {
		t.Fatalf("unexpected relayed bytes: %q", data)
	}
}

func TestController_WriteWithoutSession(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.bin")
	c := NewController(testConfig(t, out), zerolog.Nop())

	if err := c.Write([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestController_WriteAfterShutdown(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.bin")
	c := NewController(testConfig(t, out), zerolog.Nop())

	ctx := context.Background()
	if err := c.EnsureRunning(ctx); err != nil {
		t.Fatalf("ensure running: %v", err)
	}
	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if err := c.Write([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after shutdown, got %v", err)
	}
}

func TestController_ForceRestart(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.bin")
	c := NewController(testConfig(t, out), zerolog.Nop())
	defer c.Shutdown(context.Background())

	ctx := context.Background()
	if err := c.EnsureRunning(ctx); err != nil {
		t.Fatalf("ensure running: %v", err)
	}
	if err := c.Write([]byte("before|")); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := c.ForceRestart(ctx); err != nil {
		t.Fatalf("force restart: %v", err)
	}
	if !c.Running() {
		t.Fatalf("expected a fresh session after restart")
	}
	if err := c.Write([]byte("after")); err != nil {
		t.Fatalf("write after restart: %v", err)
	}

	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "before|after" {
		t.Fatalf("unexpected relayed bytes across restart: %q", data)
	}
}

func TestController_AgeWithoutSession(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.bin")
	c := NewController(testConfig(t, out), zerolog.Nop())
	if c.Age() != 0 {
		t.Fatalf("expected zero age without a session")
	}
}
