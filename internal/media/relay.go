/*
Copyright (C) 2026 Hugin Media

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"github.com/huginmedia/skald/internal/config"
	"github.com/huginmedia/skald/internal/sink"
	"github.com/huginmedia/skald/internal/telemetry"
)

// StreamSink is the byte sink the relay feeds. Satisfied by sink.Controller.
type StreamSink interface {
	Write(p []byte) error
	Running() bool
}

// relay runs one transform process and copies its output to the sink in
// bounded chunks, in order. Cancellation is observed at chunk granularity.
// A nil cancel channel makes the relay uncancellable (transitions).
func relay(ctx context.Context, cfg *config.Config, logger zerolog.Logger, metrics *telemetry.Metrics, args []string, out StreamSink, cancel <-chan struct{}) (Outcome, error) {
	cmd := exec.Command(cfg.FFmpegBin, args...)
	cmd.Stderr = nil

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return OutcomeFailed, fmt.Errorf("create transform stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return OutcomeFailed, fmt.Errorf("start transform: %w", err)
	}

	logger.Debug().Int("pid", cmd.Process.Pid).Msg("transform started")

	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}

	// The reader goroutine owns stdout and the child's exit status: it reads
	// to EOF, then reaps the process and closes chunks. A closed chunks
	// channel therefore always means "child has exited and been waited on".
	var waitErr error
	chunks := make(chan []byte, 1)
	go func() {
		defer close(chunks)
		for {
			buf := make([]byte, chunkSize)
			n, readErr := stdout.Read(buf)
			if n > 0 {
				chunks <- buf[:n]
			}
			if readErr != nil {
				break
			}
		}
		waitErr = cmd.Wait()
	}()

	var relayed int64
	for {
		select {
		case <-ctx.Done():
			terminate(cmd, chunks, cfg.StopGrace, logger)
			return OutcomeCancelled, ctx.Err()

		case <-cancel:
			terminate(cmd, chunks, cfg.StopGrace, logger)
			return OutcomeCancelled, nil

		case data, ok := <-chunks:
			if !ok {
				if waitErr != nil {
					if relayed == 0 {
						return OutcomeFailed, fmt.Errorf("transform produced no output: %w", waitErr)
					}
					// Best-effort playback: a partially decodable clip must
					// not abort the broadcast.
					logger.Warn().Err(waitErr).Int64("relayed_bytes", relayed).
						Msg("transform exited with error after partial output")
				}
				return OutcomeCompleted, nil
			}

			if err := out.Write(data); err != nil {
				terminate(cmd, chunks, cfg.StopGrace, logger)
				if errors.Is(err, sink.ErrClosed) {
					return OutcomeSinkClosed, err
				}
				return OutcomeFailed, fmt.Errorf("relay write: %w", err)
			}
			relayed += int64(len(data))
			metrics.RelayBytes.Add(float64(len(data)))
		}
	}
}

// terminate stops the child with a graceful signal, waits a bounded grace
// period, then kills it. Remaining output is drained and discarded; on
// return the child has been reaped.
func terminate(cmd *exec.Cmd, chunks <-chan []byte, grace time.Duration, logger zerolog.Logger) {
	if cmd.Process != nil {
		_ = cmd.Process.Signal(os.Interrupt)
	}

	if grace <= 0 {
		grace = 5 * time.Second
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()

	for {
		select {
		case _, ok := <-chunks:
			if !ok {
				return
			}
			// Discard output produced after cancellation.
		case <-timer.C:
			logger.Warn().Msg("transform did not stop in time, killing")
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
			for range chunks {
			}
			return
		}
	}
}
