/*
Copyright (C) 2026 Hugin Media

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playlist reads the externally generated clip playlist.
package playlist

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Entry is one clip in the externally supplied playback order.
// Field tags follow the playlist generator's JSON document.
type Entry struct {
	ID          int64  `json:"videoNumber"`
	Title       string `json:"name"`
	Path        string `json:"file_path"`
	ReleaseDate string `json:"release_date"`
	Link        string `json:"youtube_link"`
}

// PreEncoded reports whether the clip was produced by the preprocessing
// tool and can be streamed without re-encoding. The marker is the filename
// suffix the tool writes; the file must also still exist on disk.
func (e Entry) PreEncoded(marker string) bool {
	if marker == "" || !strings.Contains(e.Path, marker) {
		return false
	}
	_, err := os.Stat(e.Path)
	return err == nil
}

// DisplayTitle returns the title or a placeholder for untitled clips.
func (e Entry) DisplayTitle() string {
	if e.Title == "" {
		return "Untitled"
	}
	return e.Title
}

type document struct {
	Playlist []Entry `json:"playlist"`
}

// FileSource reads entries from a playlist JSON file. The file is re-read
// on every call so externally appended entries are picked up between passes.
type FileSource struct {
	path string
}

// NewFileSource creates a playlist source backed by a JSON file.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Entries returns the current playlist snapshot in supplied order.
func (s *FileSource) Entries() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read playlist: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse playlist: %w", err)
	}

	return doc.Playlist, nil
}
