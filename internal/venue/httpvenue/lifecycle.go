package httpvenue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// LifecycleEvent is a push notification that a market's tradability may
// have changed, carrying just enough to justify an early discovery cycle
// rather than waiting out the full discover_interval.
type LifecycleEvent struct {
	Ticker string
	Status string
}

// lifecycleMessage is the minimal wire shape this package understands;
// venues with a richer event schema would need their own decoder, wired
// the same way KalshiDiscoverParser is.
type lifecycleMessage struct {
	Type   string `json:"type"`
	Ticker string `json:"market_ticker"`
	Status string `json:"status"`
}

// WatchLifecycle dials wsURL and streams LifecycleEvents until ctx is
// canceled, reconnecting with exponential backoff on any read or dial
// error. Grounded on the teacher's internal/connection.Client.Connect
// (dial, ping/pong keepalive) and Manager.reconnect (exponential backoff
// loop), collapsed from a multi-connection subscription manager into a
// single best-effort listener since core only needs a wake-up signal, not
// a full order-flow feed.
func (c *Client) WatchLifecycle(ctx context.Context, wsURL string) (<-chan LifecycleEvent, error) {
	events := make(chan LifecycleEvent, 64)

	go func() {
		defer close(events)
		backoff := time.Second
		const maxBackoff = 30 * time.Second

		for {
			if ctx.Err() != nil {
				return
			}
			if err := c.watchOnce(ctx, wsURL, events); err != nil {
				c.logger.Warn("lifecycle listener disconnected, reconnecting", "error", err, "backoff", backoff)
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}()

	return events, nil
}

// watchOnce holds one WebSocket connection open until it errors or ctx is
// canceled, forwarding decoded lifecycle events.
func (c *Client) watchOnce(ctx context.Context, wsURL string, events chan<- LifecycleEvent) error {
	header := http.Header{}
	if c.signer != nil {
		headers, err := c.signer.Sign(time.Now().UnixMilli(), http.MethodGet, wsURL)
		if err != nil {
			return fmt.Errorf("httpvenue: sign websocket dial: %w", err)
		}
		for k, v := range headers {
			header.Set(k, v)
		}
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return fmt.Errorf("httpvenue: dial lifecycle websocket: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		conn.Close()
		close(done)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				return nil
			default:
				return fmt.Errorf("httpvenue: read lifecycle message: %w", err)
			}
		}

		var msg lifecycleMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		select {
		case events <- LifecycleEvent{Ticker: msg.Ticker, Status: msg.Status}:
		case <-ctx.Done():
			return nil
		default:
			c.logger.Warn("lifecycle event buffer full, dropping event", "ticker", msg.Ticker)
		}
	}
}
