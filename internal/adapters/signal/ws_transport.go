package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

// WSTransport keeps a WebSocket open to /ws/<local>. The server pushes
// mailbox contents down the socket; outbound messages go up as envelopes.
type WSTransport struct {
	base
	cfg    Config
	wsURL  string
	dialer *websocket.Dialer
}

func NewWSTransport(cfg Config) (*WSTransport, error) {
	if err := domain.ValidatePeerID(cfg.Local); err != nil {
		return nil, fmt.Errorf("local peer: %w", err)
	}
	u, err := url.Parse(cfg.ServerAddress)
	if err != nil {
		return nil, fmt.Errorf("server address: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("server address: unsupported scheme %q", u.Scheme)
	}
	cfg.setDefaults()

	t := &WSTransport{
		cfg:    cfg,
		wsURL:  u.JoinPath("ws", string(cfg.Local)).String(),
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.RequestTimeout},
	}
	t.init(log.With().
		Str("module", "adapters.signal").
		Str("transport", "ws").
		Str("peer", string(cfg.Local)).
		Logger())
	return t, nil
}

func (t *WSTransport) Start(ctx context.Context) error {
	t.logger.Info().Str("url", t.wsURL).Msg("start websocket signaling")
	return t.start(ctx, t.run)
}

// run reconnects with backoff until ctx is done. A message whose write
// failed is retried on the next connection.
func (t *WSTransport) run(ctx context.Context) {
	b := newBackOff(t.cfg.PollInterval, t.cfg.MaxBackoff)
	var carry *outgoing
	for {
		conn, _, err := t.dialer.DialContext(ctx, t.wsURL, nil)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			wait := b.NextBackOff()
			t.logger.Warn().Err(err).Dur("retry_in", wait).Msg("dial failed")
			if !sleep(ctx, wait) {
				return
			}
			continue
		}
		b.Reset()
		t.logger.Info().Msg("websocket connected")
		carry = t.serve(ctx, conn, carry)
		if ctx.Err() != nil {
			if carry != nil {
				carry.finish(ErrTransportStopped)
			}
			return
		}
	}
}

func (t *WSTransport) serve(ctx context.Context, conn *websocket.Conn, carry *outgoing) *outgoing {
	readErr := make(chan error, 1)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		t.readPump(ctx, conn, readErr)
	}()
	defer func() {
		_ = conn.Close()
		<-readDone
	}()

	if carry != nil {
		if err := t.write(conn, *carry); err != nil {
			t.logger.Error().Err(err).Msg("writePump write error")
			return carry
		}
		carry.finish(nil)
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return nil
		case err := <-readErr:
			t.logger.Warn().Err(err).Msg("readPump closing")
			return nil
		case out := <-t.outbound:
			if err := t.write(conn, out); err != nil {
				t.logger.Error().Err(err).Msg("writePump write error")
				return &out
			}
			out.finish(nil)
		}
	}
}

func (t *WSTransport) write(conn *websocket.Conn, out outgoing) error {
	b, err := json.Marshal(envelope{To: out.to, Message: out.data})
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (t *WSTransport) readPump(ctx context.Context, conn *websocket.Conn, readErr chan<- error) {
	conn.SetReadLimit(maxMessageBytes)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		t.deliver(ctx, data)
	}
}
