/*
Copyright (C) 2026 Hugin Media

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/huginmedia/skald/internal/config"
	"github.com/huginmedia/skald/internal/telemetry"
)

// Transition plays the short black-and-silence filler between clips. It is
// not cancellable by skip votes; votes accumulated during a transition apply
// to the next clip.
type Transition struct {
	cfg     *config.Config
	metrics *telemetry.Metrics
	logger  zerolog.Logger
}

// NewTransition creates a transition generator.
func NewTransition(cfg *config.Config, metrics *telemetry.Metrics, logger zerolog.Logger) *Transition {
	return &Transition{
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With().Str("component", "transition").Logger(),
	}
}

// Play generates and relays the filler segment. A no-op when the sink has no
// live session: a transition must never create one.
func (t *Transition) Play(ctx context.Context, out StreamSink) error {
	if !out.Running() {
		t.logger.Debug().Msg("sink not running, transition skipped")
		return nil
	}

	outcome, err := relay(ctx, t.cfg, t.logger, t.metrics, t.fillerArgs(), out, nil)
	if outcome != OutcomeCompleted {
		return fmt.Errorf("transition %s: %w", outcome, err)
	}
	return nil
}

// fillerArgs builds the lavfi invocation producing a blank picture with
// silent stereo audio in the sink's mpegts contract.
func (t *Transition) fillerArgs() []string {
	seconds := int(t.cfg.TransitionDuration.Seconds())
	if seconds <= 0 {
		seconds = 3
	}
	return []string{
		"-loglevel", "error",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=black:s=%s:r=%d:d=%d", t.cfg.Resolution, t.cfg.FrameRate, seconds),
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=%d:cl=stereo", t.cfg.AudioRate),
		"-c:v", "libx264",
		"-c:a", "aac",
		"-ar", strconv.Itoa(t.cfg.AudioRate),
		"-t", strconv.Itoa(seconds),
		"-f", "mpegts",
		"-",
	}
}
