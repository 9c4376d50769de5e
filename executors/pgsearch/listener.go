package pgsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	gosearchcache "github.com/dgduncan/go-search-cache"
)

const (
	// DefaultChannel is the channel the schema trigger notifies on.
	DefaultChannel = "content_changed"

	defaultReconnectDelay = 5 * time.Second
)

// EventHandler receives every content event the listener decodes.
type EventHandler func(ctx context.Context, e gosearchcache.ContentEvent)

// Listener forwards PostgreSQL notifications as content events. It holds a
// dedicated connection because LISTEN state is per session.
type Listener struct {
	connString     string
	channel        string
	handler        EventHandler
	logger         *slog.Logger
	reconnectDelay time.Duration
}

// NewListener creates a listener on DefaultChannel. If logger is nil, a no-op
// logger is used.
func NewListener(connString string, handler EventHandler, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Listener{
		connString:     connString,
		channel:        DefaultChannel,
		handler:        handler,
		logger:         logger,
		reconnectDelay: defaultReconnectDelay,
	}
}

// Run listens until ctx is cancelled, reconnecting after connection failures.
// Notifications sent while disconnected are lost, so every reconnect is
// reported to the handler as an update of unknown content.
func (l *Listener) Run(ctx context.Context) error {
	first := true
	for {
		err := l.listen(ctx, !first)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		first = false

		l.logger.WarnContext(ctx, "content listener disconnected, reconnecting",
			"channel", l.channel, "delay", l.reconnectDelay, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.reconnectDelay):
		}
	}
}

func (l *Listener) listen(ctx context.Context, reconnect bool) error {
	conn, err := pgx.Connect(ctx, l.connString)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close(context.WithoutCancel(ctx))

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("failed to listen on %q: %w", l.channel, err)
	}
	l.logger.InfoContext(ctx, "content listener started", "channel", l.channel)

	if reconnect {
		l.handler(ctx, gosearchcache.ContentEvent{Kind: gosearchcache.EventUpdated})
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}

		e, err := parsePayload(n.Payload)
		if err != nil {
			l.logger.WarnContext(ctx, "malformed content notification, treating as update",
				"payload", n.Payload, "error", err)
		}
		l.handler(ctx, e)
	}
}

// parsePayload decodes a notification payload. An empty payload means
// "something changed". Undecodable payloads still yield an update event.
func parsePayload(payload string) (gosearchcache.ContentEvent, error) {
	fallback := gosearchcache.ContentEvent{Kind: gosearchcache.EventUpdated}

	if strings.TrimSpace(payload) == "" {
		return fallback, nil
	}

	var e gosearchcache.ContentEvent
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return fallback, err
	}
	if e.Kind == "" {
		e.Kind = gosearchcache.EventUpdated
	}

	return e, nil
}
