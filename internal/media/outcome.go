/*
Copyright (C) 2026 Hugin Media

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package media spawns per-clip transform processes and relays their output
// into the broadcast sink.
package media

// Outcome classifies how a clip playback ended.
type Outcome int

const (
	// OutcomeCompleted means the transform process reached end of stream.
	// A nonzero exit after partial data is still Completed (best effort).
	OutcomeCompleted Outcome = iota

	// OutcomeCancelled means the skip trigger fired mid-clip.
	OutcomeCancelled

	// OutcomeSinkClosed means the sink's input pipe broke; the sink needs a
	// restart and the same clip should be retried.
	OutcomeSinkClosed

	// OutcomeFailed means the transform process could not be run at all.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeSinkClosed:
		return "sink_closed"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}
