/*
Copyright (C) 2026 Hugin Media

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playout drives the main playback loop.
package playout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/huginmedia/skald/internal/chat"
	"github.com/huginmedia/skald/internal/config"
	"github.com/huginmedia/skald/internal/events"
	"github.com/huginmedia/skald/internal/media"
	"github.com/huginmedia/skald/internal/playlist"
	"github.com/huginmedia/skald/internal/telemetry"
)

// ErrEmptyPlaylist is fatal: there is nothing to broadcast.
var ErrEmptyPlaylist = errors.New("playlist is empty")

// Source supplies the ordered clip sequence; re-read once per pass.
type Source interface {
	Entries() ([]playlist.Entry, error)
}

// ProgressStore persists the playback cursor.
type ProgressStore interface {
	Load(ctx context.Context) (int64, bool, error)
	Save(ctx context.Context, lastCompletedID int64) error
}

// Sink is the broadcast encoder as seen by the director.
type Sink interface {
	media.StreamSink
	EnsureRunning(ctx context.Context) error
	Age() time.Duration
	ForceRestart(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// ClipPlayer streams one clip into the sink.
type ClipPlayer interface {
	Play(ctx context.Context, entry playlist.Entry, out media.StreamSink, cancel <-chan struct{}) (media.Outcome, error)
}

// TransitionPlayer plays the between-clip filler.
type TransitionPlayer interface {
	Play(ctx context.Context, out media.StreamSink) error
}

// SkipTrigger is the vote tracker's cancellation side.
type SkipTrigger interface {
	Reset()
	Triggered() <-chan struct{}
}

// Announcer posts best-effort chat notices.
type Announcer interface {
	Say(text string)
}

// Deps collects the director's collaborators.
type Deps struct {
	Source     Source
	Store      ProgressStore
	Sink       Sink
	Clips      ClipPlayer
	Transition TransitionPlayer
	Skips      SkipTrigger
	Announcer  Announcer // may be nil when chat is disabled
	Bus        *events.Bus
	Metrics    *telemetry.Metrics
}

// Director owns the sink and all media process spawning. It runs on a
// single goroutine; only the skip trigger crosses in from the chat side.
type Director struct {
	cfg        *config.Config
	source     Source
	store      ProgressStore
	sink       Sink
	clips      ClipPlayer
	transition TransitionPlayer
	skips      SkipTrigger
	announcer  Announcer
	bus        *events.Bus
	metrics    *telemetry.Metrics
	logger     zerolog.Logger

	startOverride int64

	mu      sync.Mutex
	current *playlist.Entry
}

// NewDirector creates a playout director.
func NewDirector(cfg *config.Config, deps Deps, logger zerolog.Logger) *Director {
	return &Director{
		cfg:        cfg,
		source:     deps.Source,
		store:      deps.Store,
		sink:       deps.Sink,
		clips:      deps.Clips,
		transition: deps.Transition,
		skips:      deps.Skips,
		announcer:  deps.Announcer,
		bus:        deps.Bus,
		metrics:    deps.Metrics,
		logger:     logger.With().Str("component", "director").Logger(),
	}
}

// SetStartOverride makes the run resume after the given clip id instead of
// the persisted cursor. Zero means no override.
func (d *Director) SetStartOverride(id int64) {
	d.startOverride = id
}

// Current returns the clip being played right now, if any.
func (d *Director) Current() (playlist.Entry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return playlist.Entry{}, false
	}
	return *d.current, true
}

// Run executes the playback loop until ctx is cancelled or a fatal error
// occurs. On return the sink has been shut down cleanly.
func (d *Director) Run(ctx context.Context) error {
	d.logger.Info().Msg("playout director started")
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.sink.Shutdown(shutdownCtx); err != nil {
			d.logger.Error().Err(err).Msg("sink shutdown failed")
		}
		d.logger.Info().Msg("playout director stopped")
	}()

	lastCompleted, haveCursor, err := d.resolveStart(ctx)
	if err != nil {
		return fmt.Errorf("resolve start position: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		entries, err := d.source.Entries()
		if err != nil {
			return fmt.Errorf("read playlist: %w", err)
		}
		if len(entries) == 0 {
			return ErrEmptyPlaylist
		}

		startIdx := d.resolveCursor(entries, lastCompleted, haveCursor)
		played := make(map[int64]struct{})

		for idx := startIdx; idx < len(entries); idx++ {
			if err := ctx.Err(); err != nil {
				return err
			}

			entry := entries[idx]
			if _, dup := played[entry.ID]; dup {
				d.logger.Warn().Int64("clip_id", entry.ID).Msg("duplicate playlist entry skipped")
				continue
			}
			played[entry.ID] = struct{}{}

			if err := d.playEntry(ctx, entry); err != nil {
				return err
			}

			// The cursor advances on every outcome: success, skip, and
			// permanent failure alike mean "no longer current". The save must
			// land even when shutdown arrived during the clip.
			lastCompleted, haveCursor = entry.ID, true
			if err := d.store.Save(context.WithoutCancel(ctx), entry.ID); err != nil {
				return fmt.Errorf("persist cursor: %w", err)
			}
		}

		d.bus.Publish(events.EventPassComplete, events.Payload{"last_clip_id": lastCompleted})
		d.logger.Info().Msg("end of playlist, rechecking for new clips")
		lastCompleted, haveCursor = 0, false
	}
}

// resolveStart picks the resume cursor: CLI override first, then the store.
func (d *Director) resolveStart(ctx context.Context) (int64, bool, error) {
	if d.startOverride > 0 {
		d.logger.Info().Int64("clip_id", d.startOverride).Msg("resuming from override")
		return d.startOverride, true, nil
	}
	id, ok, err := d.store.Load(ctx)
	if err != nil {
		return 0, false, err
	}
	if ok {
		d.logger.Info().Int64("clip_id", id).Msg("resuming after persisted cursor")
	} else {
		d.logger.Info().Msg("no persisted cursor, starting from the first clip")
	}
	return id, ok, nil
}

// resolveCursor maps the cursor to the index after lastCompleted in the
// current snapshot. A missing id resets to the start of the playlist.
func (d *Director) resolveCursor(entries []playlist.Entry, lastCompleted int64, haveCursor bool) int {
	if !haveCursor {
		return 0
	}
	for i, entry := range entries {
		if entry.ID == lastCompleted {
			return i + 1
		}
	}
	d.logger.Warn().Int64("clip_id", lastCompleted).
		Msg("cursor not found in playlist snapshot, starting from the beginning")
	return 0
}

// playEntry plays one entry with bounded retries. It returns an error only
// for context cancellation; every per-clip failure is contained here.
func (d *Director) playEntry(ctx context.Context, entry playlist.Entry) error {
	// Votes are cleared once per clip. A retry after a sink restart keeps
	// accumulated votes: the audience voted against this clip, not the attempt.
	d.skips.Reset()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Session age check, always at a clip boundary.
		if age := d.sink.Age(); d.sink.Running() && age > d.cfg.MaxSessionAge {
			d.logger.Info().Dur("age", age).Msg("session age ceiling reached, restarting encoder")
			if err := d.restartSink(ctx); err != nil {
				return err
			}
		}
		d.metrics.SinkSessionAge.Set(d.sink.Age().Seconds())

		if err := d.sink.EnsureRunning(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Error().Err(err).Int("attempt", attempt).Msg("failed to start encoder")
			if attempt >= d.cfg.MaxClipRetries {
				return d.failEntry(ctx, entry, attempt)
			}
			continue
		}

		d.setCurrent(&entry)
		d.announce(entry)
		d.publishNowPlaying(entry)

		outcome, err := d.clips.Play(ctx, entry, d.sink, d.skips.Triggered())
		d.setCurrent(nil)

		switch outcome {
		case media.OutcomeCompleted:
			d.metrics.ClipsPlayed.Inc()
			d.logger.Info().Int64("clip_id", entry.ID).Str("title", entry.DisplayTitle()).Msg("clip completed")
			d.playTransition(ctx)
			return nil

		case media.OutcomeCancelled:
			// Shutdown also surfaces as a cancelled relay; it is not a skip.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.metrics.ClipsSkipped.Inc()
			d.bus.Publish(events.EventClipSkipped, events.Payload{"clip_id": entry.ID, "title": entry.DisplayTitle()})
			d.logger.Info().Int64("clip_id", entry.ID).Msg("clip skipped")
			d.playTransition(ctx)
			return nil

		case media.OutcomeSinkClosed:
			d.logger.Warn().Err(err).Int64("clip_id", entry.ID).Int("attempt", attempt).
				Msg("sink closed mid-clip, restarting encoder")
			if rerr := d.restartSink(ctx); rerr != nil {
				return rerr
			}

		case media.OutcomeFailed:
			d.logger.Warn().Err(err).Int64("clip_id", entry.ID).Int("attempt", attempt).
				Msg("clip playback failed")
		}

		if attempt >= d.cfg.MaxClipRetries {
			return d.failEntry(ctx, entry, attempt)
		}
	}
}

// failEntry marks an entry permanently failed for this run and moves on.
func (d *Director) failEntry(ctx context.Context, entry playlist.Entry, attempts int) error {
	d.metrics.ClipsFailed.Inc()
	d.bus.Publish(events.EventClipFailed, events.Payload{"clip_id": entry.ID, "attempts": attempts})
	d.logger.Error().Int64("clip_id", entry.ID).Int("attempts", attempts).
		Msg("clip permanently failed this run, skipping")
	d.playTransition(ctx)
	return nil
}

// restartSink restarts the encoder and records the restart. Returns an error
// only on context cancellation.
func (d *Director) restartSink(ctx context.Context) error {
	if err := d.sink.ForceRestart(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Error().Err(err).Msg("encoder restart failed")
		return nil
	}
	d.metrics.SinkRestarts.Inc()
	d.bus.Publish(events.EventSinkRestarted, events.Payload{"age_limit": d.cfg.MaxSessionAge.String()})
	return nil
}

func (d *Director) playTransition(ctx context.Context) {
	if err := d.transition.Play(ctx, d.sink); err != nil {
		if ctx.Err() != nil {
			return
		}
		d.logger.Warn().Err(err).Msg("transition failed")
	}
}

// announce posts the now-playing notice. Chat failures never stop playback.
func (d *Director) announce(entry playlist.Entry) {
	if d.announcer == nil {
		return
	}
	d.announcer.Say(chat.NowPlayingText(entry))
}

func (d *Director) publishNowPlaying(entry playlist.Entry) {
	d.bus.Publish(events.EventNowPlaying, events.Payload{
		"clip_id":      entry.ID,
		"title":        entry.DisplayTitle(),
		"release_date": entry.ReleaseDate,
		"link":         entry.Link,
	})
}

func (d *Director) setCurrent(entry *playlist.Entry) {
	d.mu.Lock()
	d.current = entry
	d.mu.Unlock()
}
