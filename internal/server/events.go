/*
Copyright (C) 2026 Hugin Media

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"sync"
	"time"

	"github.com/huginmedia/skald/internal/events"
)

const recentEventLimit = 20

// trackedEvent is one bus event rendered into the status page.
type trackedEvent struct {
	At      time.Time      `json:"at"`
	Type    string         `json:"type"`
	Payload events.Payload `json:"payload,omitempty"`
}

// eventTracker keeps a short history of playout events for /status.
type eventTracker struct {
	bus *events.Bus

	mu     sync.Mutex
	events []trackedEvent
}

func newEventTracker(bus *events.Bus) *eventTracker {
	return &eventTracker{bus: bus}
}

// run consumes bus events until ctx ends.
func (t *eventTracker) run(ctx context.Context) {
	if t.bus == nil {
		return
	}

	types := []events.EventType{
		events.EventNowPlaying,
		events.EventClipSkipped,
		events.EventClipFailed,
		events.EventSinkRestarted,
		events.EventPassComplete,
	}

	var wg sync.WaitGroup
	for _, eventType := range types {
		sub := t.bus.Subscribe(eventType)
		wg.Add(1)
		go func(eventType events.EventType, sub events.Subscriber) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case payload, ok := <-sub:
					if !ok {
						return
					}
					t.add(trackedEvent{At: time.Now(), Type: string(eventType), Payload: payload})
				}
			}
		}(eventType, sub)
	}
	wg.Wait()
}

func (t *eventTracker) add(event trackedEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
	if len(t.events) > recentEventLimit {
		t.events = t.events[len(t.events)-recentEventLimit:]
	}
}

// recent returns the tracked events, newest first.
func (t *eventTracker) recent() []trackedEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]trackedEvent, len(t.events))
	for i, event := range t.events {
		out[len(t.events)-1-i] = event
	}
	return out
}
