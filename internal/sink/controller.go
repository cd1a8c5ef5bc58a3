/*
Copyright (C) 2026 Hugin Media

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package sink owns the single long-lived broadcast encoder process.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/huginmedia/skald/internal/config"
)

// ErrClosed reports that the encoder's input pipe is gone. Callers treat it
// as "the sink needs a restart", never as a per-clip failure.
var ErrClosed = errors.New("sink closed")

// Controller manages the broadcast encoder child process. Exactly one
// session is alive at a time; all calls come from the playout goroutine.
type Controller struct {
	cfg    *config.Config
	logger zerolog.Logger

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	done      chan struct{} // closed when the process has exited
	startedAt time.Time
	sessionID string
}

// NewController creates a sink controller. No process is started until the
// first EnsureRunning call.
func NewController(cfg *config.Config, logger zerolog.Logger) *Controller {
	return &Controller{
		cfg:    cfg,
		logger: logger.With().Str("component", "sink").Logger(),
	}
}

// EnsureRunning starts the encoder if no live session exists. Idempotent.
func (c *Controller) EnsureRunning(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isRunning() {
		return nil
	}
	return c.start()
}

// start launches the encoder. Caller holds the lock.
func (c *Controller) start() error {
	cmd := exec.Command(c.cfg.FFmpegBin, c.encoderArgs()...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create encoder stdin: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start encoder: %w", err)
	}

	c.cmd = cmd
	c.stdin = stdin
	c.done = make(chan struct{})
	c.startedAt = time.Now()
	c.sessionID = uuid.NewString()

	c.logger.Info().
		Str("session_id", c.sessionID).
		Int("pid", cmd.Process.Pid).
		Msg("encoder session started")

	go func(done chan struct{}, cmd *exec.Cmd, sessionID string) {
		err := cmd.Wait()
		close(done)
		if err != nil {
			c.logger.Warn().Err(err).Str("session_id", sessionID).Msg("encoder session exited")
		} else {
			c.logger.Info().Str("session_id", sessionID).Msg("encoder session stopped")
		}
	}(c.done, cmd, c.sessionID)

	return nil
}

// encoderArgs builds the fixed encoder invocation: read mpegts from stdin,
// encode H.264/AAC, push FLV to the ingest URL.
func (c *Controller) encoderArgs() []string {
	return []string{
		"-loglevel", "error",
		"-re",
		"-i", "pipe:0",
		"-c:v", "libx264",
		"-c:a", "aac",
		"-ar", strconv.Itoa(c.cfg.AudioRate),
		"-b:v", c.cfg.VideoBitrate,
		"-maxrate", c.cfg.VideoBitrate,
		"-g", strconv.Itoa(c.cfg.KeyframeGap),
		"-flvflags", "no_duration_filesize",
		"-f", "flv",
		c.cfg.SinkURL(),
	}
}

// Write relays bytes into the encoder's stdin. A broken or missing pipe is
// reported as ErrClosed so the caller can restart at a clip boundary.
func (c *Controller) Write(p []byte) error {
	c.mu.Lock()
	if !c.isRunning() {
		c.mu.Unlock()
		return ErrClosed
	}
	stdin := c.stdin
	c.mu.Unlock()

	if _, err := stdin.Write(p); err != nil {
		c.logger.Warn().Err(err).Msg("encoder stdin write failed")
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

// Running reports whether a live encoder session exists.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isRunning()
}

// isRunning checks session liveness. Caller holds the lock.
func (c *Controller) isRunning() bool {
	if c.cmd == nil || c.done == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Age returns how long the current session has been running, or zero when
// no session is alive.
func (c *Controller) Age() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isRunning() {
		return 0
	}
	return time.Since(c.startedAt)
}

// ForceRestart performs an orderly stop followed by a fresh start. Only ever
// called at a clip boundary; bytes buffered in the old session are lost.
func (c *Controller) ForceRestart(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stop()
	if err := ctx.Err(); err != nil {
		return err
	}

	c.logger.Info().Msg("restarting encoder session")
	return c.start()
}

// Shutdown stops the encoder session without restarting it.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stop()
	return nil
}

// stop performs an orderly teardown: close stdin so the encoder can flush,
// interrupt, wait a bounded grace period, then kill. Caller holds the lock.
func (c *Controller) stop() {
	if c.cmd == nil || c.done == nil {
		return
	}

	select {
	case <-c.done:
		c.cmd = nil
		c.stdin = nil
		return
	default:
	}

	if c.stdin != nil {
		if err := c.stdin.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("close encoder stdin failed")
		}
	}

	if c.cmd.Process != nil {
		_ = c.cmd.Process.Signal(os.Interrupt)
	}

	select {
	case <-c.done:
	case <-time.After(c.stopGrace()):
		c.logger.Warn().Str("session_id", c.sessionID).Msg("encoder did not stop in time, killing")
		if c.cmd.Process != nil {
			_ = c.cmd.Process.Kill()
		}
		<-c.done
	}

	c.cmd = nil
	c.stdin = nil
}

func (c *Controller) stopGrace() time.Duration {
	if c.cfg.StopGrace > 0 {
		return c.cfg.StopGrace
	}
	return 5 * time.Second
}
