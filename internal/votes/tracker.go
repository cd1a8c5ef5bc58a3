/*
Copyright (C) 2026 Hugin Media

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package votes turns per-user skip requests into a single cancellation
// trigger per clip.
package votes

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/huginmedia/skald/internal/config"
	"github.com/huginmedia/skald/internal/telemetry"
)

// Tracker accumulates skip votes while a clip plays. OnMessage runs on the
// chat listener goroutine; Reset runs on the playout goroutine. The trigger
// is a single-slot channel so a skip fires exactly once per clip.
type Tracker struct {
	keyword   string
	threshold int
	instant   map[string]struct{}
	notify    func(string)
	metrics   *telemetry.Metrics
	logger    zerolog.Logger

	mu        sync.Mutex
	votes     map[string]struct{}
	triggered bool
	trigger   chan struct{}
}

// NewTracker creates a vote tracker. notify sends a best-effort chat notice
// and may be nil.
func NewTracker(cfg *config.Config, notify func(string), metrics *telemetry.Metrics, logger zerolog.Logger) *Tracker {
	instant := make(map[string]struct{}, len(cfg.InstantSkipUsers))
	for _, user := range cfg.InstantSkipUsers {
		instant[strings.ToLower(strings.TrimSpace(user))] = struct{}{}
	}

	return &Tracker{
		keyword:   cfg.SkipKeyword,
		threshold: cfg.SkipThreshold,
		instant:   instant,
		notify:    notify,
		metrics:   metrics,
		logger:    logger.With().Str("component", "votes").Logger(),
		votes:     make(map[string]struct{}),
		trigger:   make(chan struct{}, 1),
	}
}

// Triggered returns the channel the cancellation signal is delivered on.
func (t *Tracker) Triggered() <-chan struct{} {
	return t.trigger
}

// OnMessage processes one chat line. Anything that does not normalize to the
// skip keyword is ignored.
func (t *Tracker) OnMessage(user, text string) {
	if !strings.EqualFold(strings.TrimSpace(text), t.keyword) {
		return
	}
	user = strings.ToLower(strings.TrimSpace(user))
	if user == "" {
		return
	}

	t.mu.Lock()
	if t.triggered {
		t.mu.Unlock()
		return
	}

	if _, ok := t.instant[user]; ok {
		t.triggered = true
		t.votes = make(map[string]struct{})
		t.mu.Unlock()

		if t.metrics != nil {
			t.metrics.SkipVotes.Inc()
		}
		t.logger.Info().Str("user", user).Msg("instant skip")
		t.fire()
		t.say(fmt.Sprintf("%s skipped the current clip!", user))
		return
	}

	if _, dup := t.votes[user]; !dup {
		t.votes[user] = struct{}{}
		if t.metrics != nil {
			t.metrics.SkipVotes.Inc()
		}
		t.logger.Info().Str("user", user).Int("votes", len(t.votes)).Msg("skip vote")
	}

	count := len(t.votes)
	if count < t.threshold {
		t.mu.Unlock()
		return
	}

	t.triggered = true
	t.votes = make(map[string]struct{})
	t.mu.Unlock()

	t.logger.Info().Int("votes", count).Msg("skip threshold reached")
	t.fire()
	t.say(fmt.Sprintf("Skip threshold reached with %d votes! Skipping the current clip.", count))
}

// Reset clears votes and re-arms the trigger. Called by the playout loop at
// the start of every clip; the only way out of the triggered state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.votes = make(map[string]struct{})
	t.triggered = false
	select {
	case <-t.trigger:
	default:
	}
}

// Votes returns the current distinct vote count.
func (t *Tracker) Votes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.votes)
}

func (t *Tracker) fire() {
	select {
	case t.trigger <- struct{}{}:
	default:
	}
}

func (t *Tracker) say(text string) {
	if t.notify != nil {
		t.notify(text)
	}
}
