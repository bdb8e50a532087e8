// Package feed provides push-style price-feed ingestion.
package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tradedesk/internal/models"
)

// WSFeedConfig holds configuration for the websocket feed client.
type WSFeedConfig struct {
	URL        string
	MaxRetries int
	BaseDelay  time.Duration
	Log        zerolog.Logger
}

// WSFeed reads JSON tick frames from a market-data websocket and pushes
// them at a Handler. A single reader goroutine preserves per-symbol
// arrival order.
type WSFeed struct {
	url        string
	maxRetries int
	baseDelay  time.Duration
	log        zerolog.Logger
}

// NewWSFeed creates a new websocket feed client.
func NewWSFeed(cfg WSFeedConfig) *WSFeed {
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}
	baseDelay := cfg.BaseDelay
	if baseDelay == 0 {
		baseDelay = time.Second
	}

	return &WSFeed{
		url:        cfg.URL,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		log:        cfg.Log.With().Str("component", "ws_feed").Logger(),
	}
}

// Run connects and consumes ticks until ctx is cancelled, reconnecting
// with exponential backoff on read or dial failures.
func (f *WSFeed) Run(ctx context.Context, h Handler) error {
	retries := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := f.consume(ctx, h)
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}

		retries++
		if retries > f.maxRetries {
			f.log.Error().Err(err).Int("retries", retries-1).Msg("Feed gave up reconnecting")
			return err
		}

		delay := f.baseDelay * time.Duration(1<<uint(retries-1))
		f.log.Warn().Err(err).Dur("delay", delay).Int("attempt", retries).Msg("Feed disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// consume runs one connection lifetime: dial, read until error or cancel.
func (f *WSFeed) consume(ctx context.Context, h Handler) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	f.log.Info().Str("url", f.url).Msg("Feed connected")

	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var tick models.Tick
		if err := json.Unmarshal(payload, &tick); err != nil {
			f.log.Warn().Err(err).Msg("Dropping malformed tick frame")
			continue
		}
		Dispatch(h, tick)
	}
}
