/*
Copyright (C) 2026 Hugin Media

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package chat is the Twitch IRC boundary. It turns raw IRC traffic into
// typed {user, text} events and sends best-effort outbound notices; IRC
// framing never leaks past this package.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	twitchirc "github.com/gempir/go-twitch-irc/v4"
	"github.com/rs/zerolog"

	"github.com/huginmedia/skald/internal/config"
	"github.com/huginmedia/skald/internal/playlist"
)

// Message is one inbound chat line.
type Message struct {
	User string
	Text string
}

// Client wraps the IRC connection for one channel.
type Client struct {
	irc     *twitchirc.Client
	channel string
	logger  zerolog.Logger

	mu      sync.Mutex
	handler func(Message)
}

// NewClient creates a chat client for the configured channel.
func NewClient(cfg *config.Config, logger zerolog.Logger) *Client {
	token := cfg.ChatToken
	if token != "" && !strings.HasPrefix(token, "oauth:") {
		token = "oauth:" + token
	}

	c := &Client{
		irc:     twitchirc.NewClient(cfg.ChatNick, token),
		channel: cfg.ChatChannel,
		logger:  logger.With().Str("component", "chat").Logger(),
	}

	c.irc.OnConnect(func() {
		c.logger.Info().Str("channel", c.channel).Msg("chat connected")
	})
	c.irc.OnPrivateMessage(func(msg twitchirc.PrivateMessage) {
		c.mu.Lock()
		handler := c.handler
		c.mu.Unlock()
		if handler != nil {
			handler(Message{User: msg.User.Name, Text: msg.Message})
		}
	})
	c.irc.Join(cfg.ChatChannel)

	return c
}

// OnMessage registers the inbound handler. The handler runs on the chat
// listener goroutine.
func (c *Client) OnMessage(handler func(Message)) {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
}

// Say sends a chat line, fire-and-forget.
func (c *Client) Say(text string) {
	c.irc.Say(c.channel, text)
}

// Run connects and keeps reconnecting with backoff until ctx ends. A chat
// outage never stops playback.
func (c *Client) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		if err := c.irc.Disconnect(); err != nil {
			c.logger.Debug().Err(err).Msg("chat disconnect failed")
		}
	}()

	backoff := 2 * time.Second
	for {
		err := c.irc.Connect()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("chat disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < time.Minute {
			backoff *= 2
		}
	}
}

// NowPlayingText formats the announcement for a clip.
func NowPlayingText(entry playlist.Entry) string {
	text := fmt.Sprintf("Now playing: %s", entry.DisplayTitle())
	if entry.ReleaseDate != "" {
		text += fmt.Sprintf(" (released %s)", entry.ReleaseDate)
	}
	if entry.Link != "" {
		text += " " + entry.Link
	}
	return text
}
