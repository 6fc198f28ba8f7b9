package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *MailboxWSController) writePump(ctx context.Context, c *wsPeerConn) {
	defer c.Close()
	for {
		takeCtx, cancel := context.WithTimeout(ctx, pingPeriod)
		data, err := ctl.Boxes.Take(takeCtx, c.id)
		cancel()

		switch {
		case err == nil:
		case ctx.Err() != nil:
			log.Info().Str("module", "adapters.signal").Str("peer", string(c.id)).Msg("writePump ctx done")
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(writeWait))
			return
		case errors.Is(err, context.DeadlineExceeded):
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "adapters.signal").Str("peer", string(c.id)).Msg("writePump ping")
				return
			}
			continue
		default:
			log.Error().Err(err).Str("module", "adapters.signal").Msg("writePump take")
			return
		}

		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			ctl.requeue(c, data)
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Str("module", "adapters.signal").Str("peer", string(c.id)).Msg("writePump write error")
			ctl.requeue(c, data)
			return
		}
	}
}

// requeue puts back a message the socket failed to carry so the next
// connection (or a poll) still sees it.
func (ctl *MailboxWSController) requeue(c *wsPeerConn, data []byte) {
	if err := ctl.Boxes.Put(c.id, data); err != nil {
		log.Warn().Err(err).Str("module", "adapters.signal").Str("peer", string(c.id)).Msg("requeue failed")
	}
}

func (ctl *MailboxWSController) readPump(ctx context.Context, cancel context.CancelFunc, c *wsPeerConn) {
	defer func() {
		log.Info().Str("module", "adapters.signal").Str("peer", string(c.id)).Msg("readPump closing")
		cancel()
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Error().Err(err).Str("module", "adapters.signal").Str("peer", string(c.id)).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		ctl.forward(c, data)
	}
}

func (ctl *MailboxWSController) forward(c *wsPeerConn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || len(env.Message) == 0 {
		log.Warn().Err(err).Str("module", "adapters.signal").Str("peer", string(c.id)).Msg("bad envelope")
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(c.remote, env.To) {
		log.Warn().Str("module", "adapters.signal").Str("to", string(env.To)).Msg("rate limited")
		return
	}
	if err := ctl.Boxes.Put(env.To, env.Message); err != nil {
		log.Warn().Err(err).Str("module", "adapters.signal").Str("to", string(env.To)).Msg("forward failed")
	}
}
