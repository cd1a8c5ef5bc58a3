/*
Copyright (C) 2026 Hugin Media

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int

	// Broadcast sink
	FFmpegBin     string
	StreamURL     string // RTMP ingest base, e.g. rtmp://live.twitch.tv/app
	StreamKey     string
	MaxSessionAge time.Duration // restart the encoder before the remote session limit

	// Playlist and progress
	PlaylistPath     string
	ProgressPath     string
	PreEncodedMarker string // filename marker produced by the preprocessing tool

	// Chat (empty nick disables the chat listener)
	ChatNick    string
	ChatToken   string
	ChatChannel string

	// Skip policy
	SkipKeyword      string
	SkipThreshold    int
	InstantSkipUsers []string

	// Clip conformance target
	Resolution   string
	VideoBitrate string
	FrameRate    int
	AudioRate    int
	KeyframeGap  int

	// Relay and retry policy
	ChunkSize          int
	MaxClipRetries     int
	TransitionDuration time.Duration
	StopGrace          time.Duration
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("SKALD_ENV", "development"),
		HTTPBind:    getEnv("SKALD_HTTP_BIND", "127.0.0.1"),
		HTTPPort:    getEnvInt("SKALD_HTTP_PORT", 8090),

		FFmpegBin:     getEnv("SKALD_FFMPEG_BIN", "ffmpeg"),
		StreamURL:     getEnv("SKALD_STREAM_URL", "rtmp://live.twitch.tv/app"),
		StreamKey:     getEnv("SKALD_STREAM_KEY", ""),
		MaxSessionAge: getEnvDuration("SKALD_MAX_SESSION_AGE", 47*time.Hour),

		PlaylistPath:     getEnv("SKALD_PLAYLIST_PATH", "playlist.json"),
		ProgressPath:     getEnv("SKALD_PROGRESS_PATH", "progress.db"),
		PreEncodedMarker: getEnv("SKALD_PRE_ENCODED_MARKER", "_processed.mp4"),

		ChatNick:    getEnv("SKALD_CHAT_NICK", ""),
		ChatToken:   getEnv("SKALD_CHAT_TOKEN", ""),
		ChatChannel: getEnv("SKALD_CHAT_CHANNEL", ""),

		SkipKeyword:      getEnv("SKALD_SKIP_KEYWORD", "!skip"),
		SkipThreshold:    getEnvInt("SKALD_SKIP_THRESHOLD", 3),
		InstantSkipUsers: getEnvList("SKALD_INSTANT_SKIP_USERS", nil),

		Resolution:   getEnv("SKALD_RESOLUTION", "1280x720"),
		VideoBitrate: getEnv("SKALD_VIDEO_BITRATE", "2300k"),
		FrameRate:    getEnvInt("SKALD_FRAME_RATE", 30),
		AudioRate:    getEnvInt("SKALD_AUDIO_RATE", 44100),
		KeyframeGap:  getEnvInt("SKALD_KEYFRAME_GAP", 60),

		ChunkSize:          getEnvInt("SKALD_CHUNK_SIZE", 64*1024),
		MaxClipRetries:     getEnvInt("SKALD_MAX_CLIP_RETRIES", 3),
		TransitionDuration: getEnvDuration("SKALD_TRANSITION_DURATION", 3*time.Second),
		StopGrace:          getEnvDuration("SKALD_STOP_GRACE", 5*time.Second),
	}

	if cfg.StreamKey == "" {
		return nil, fmt.Errorf("SKALD_STREAM_KEY must be provided")
	}

	if cfg.SkipThreshold < 1 {
		return nil, fmt.Errorf("SKALD_SKIP_THRESHOLD must be at least 1")
	}

	if cfg.MaxClipRetries < 1 {
		return nil, fmt.Errorf("SKALD_MAX_CLIP_RETRIES must be at least 1")
	}

	if cfg.ChatNick != "" && (cfg.ChatToken == "" || cfg.ChatChannel == "") {
		return nil, fmt.Errorf("SKALD_CHAT_TOKEN and SKALD_CHAT_CHANNEL are required when SKALD_CHAT_NICK is set")
	}

	return cfg, nil
}

// SinkURL returns the full RTMP ingest URL including the stream key.
func (c *Config) SinkURL() string {
	return strings.TrimSuffix(c.StreamURL, "/") + "/" + c.StreamKey
}

// ChatEnabled reports whether the chat listener should run.
func (c *Config) ChatEnabled() bool {
	return c.ChatNick != ""
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return def
}

// getEnvList parses a comma-separated environment value, trimming blanks.
func getEnvList(key string, def []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
