/*
Copyright (C) 2026 Hugin Media

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/huginmedia/skald/internal/config"
	"github.com/huginmedia/skald/internal/playlist"
	"github.com/huginmedia/skald/internal/telemetry"
)

// Player streams one clip at a time through a per-clip transform process.
type Player struct {
	cfg     *config.Config
	metrics *telemetry.Metrics
	logger  zerolog.Logger
}

// NewPlayer creates a clip player.
func NewPlayer(cfg *config.Config, metrics *telemetry.Metrics, logger zerolog.Logger) *Player {
	return &Player{
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With().Str("component", "clip").Logger(),
	}
}

// Play relays entry's media into the sink until end of stream, cancellation,
// or a sink failure. The child transform is never left orphaned.
func (p *Player) Play(ctx context.Context, entry playlist.Entry, out StreamSink, cancel <-chan struct{}) (Outcome, error) {
	preEncoded := entry.PreEncoded(p.cfg.PreEncodedMarker)
	logger := p.logger.With().Int64("clip_id", entry.ID).Logger()

	logger.Debug().
		Str("path", entry.Path).
		Bool("pre_encoded", preEncoded).
		Msg("starting clip transform")

	outcome, err := relay(ctx, p.cfg, logger, p.metrics, p.clipArgs(entry, preEncoded), out, cancel)

	logger.Debug().Str("outcome", outcome.String()).Msg("clip transform finished")
	return outcome, err
}

// clipArgs builds the transform invocation. Pre-encoded clips are
// re-containerized without re-encoding; everything else is normalized to the
// uniform resolution/rate/codec contract the sink expects.
func (p *Player) clipArgs(entry playlist.Entry, preEncoded bool) []string {
	if preEncoded {
		return []string{
			"-loglevel", "error",
			"-re",
			"-i", entry.Path,
			"-c", "copy",
			"-f", "mpegts",
			"-",
		}
	}
	return []string{
		"-loglevel", "error",
		"-re",
		"-i", entry.Path,
		"-s", p.cfg.Resolution,
		"-c:v", "libx264",
		"-b:v", p.cfg.VideoBitrate,
		"-g", strconv.Itoa(p.cfg.KeyframeGap),
		"-r", strconv.Itoa(p.cfg.FrameRate),
		"-c:a", "aac",
		"-ar", strconv.Itoa(p.cfg.AudioRate),
		"-f", "mpegts",
		"-",
	}
}
