// Package signal carries signaling messages between peers through the
// rendezvous service, over HTTP long-polling or WebSocket.
package signal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/rs/zerolog/log"
)

const maxMessageBytes = 1 << 20

// Config is shared by both transports.
type Config struct {
	// ServerAddress is the rendezvous base URL, e.g. "http://localhost:3000/".
	ServerAddress string
	Local         domain.PeerID

	PollInterval   time.Duration
	RequestTimeout time.Duration
	MaxBackoff     time.Duration
	// SendTimeout bounds the retries of a single outbound message.
	SendTimeout time.Duration

	HTTPClient *http.Client
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 2 * c.RequestTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
}

// PollingTransport long-polls GET /data/<local> and POSTs outbound messages
// to /data/<remote>. A 404 from the poll means the mailbox is empty.
type PollingTransport struct {
	base
	cfg     Config
	baseURL *url.URL
}

func NewPollingTransport(cfg Config) (*PollingTransport, error) {
	if err := domain.ValidatePeerID(cfg.Local); err != nil {
		return nil, fmt.Errorf("local peer: %w", err)
	}
	u, err := url.Parse(cfg.ServerAddress)
	if err != nil {
		return nil, fmt.Errorf("server address: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server address: unsupported scheme %q", u.Scheme)
	}
	cfg.setDefaults()

	t := &PollingTransport{cfg: cfg, baseURL: u}
	t.init(log.With().
		Str("module", "adapters.signal").
		Str("transport", "http").
		Str("peer", string(cfg.Local)).
		Logger())
	return t, nil
}

func (t *PollingTransport) Start(ctx context.Context) error {
	t.logger.Info().Str("server", t.baseURL.String()).Msg("start polling")
	return t.start(ctx, t.pollLoop, t.sendLoop)
}

func (t *PollingTransport) mailboxURL(id domain.PeerID) string {
	return t.baseURL.JoinPath("data", string(id)).String()
}

func (t *PollingTransport) pollLoop(ctx context.Context) {
	b := newBackOff(t.cfg.PollInterval, t.cfg.MaxBackoff)
	for {
		data, found, err := t.poll(ctx)
		if ctx.Err() != nil {
			return
		}
		switch {
		case err != nil:
			wait := b.NextBackOff()
			t.logger.Warn().Err(err).Dur("retry_in", wait).Msg("poll failed")
			if !sleep(ctx, wait) {
				return
			}
		case found:
			b.Reset()
			t.deliver(ctx, data)
		default:
			b.Reset()
			if !sleep(ctx, t.cfg.PollInterval) {
				return
			}
		}
	}
}

func (t *PollingTransport) poll(ctx context.Context) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.mailboxURL(t.cfg.Local), nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := t.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxMessageBytes))
		if err != nil {
			return nil, false, err
		}
		return data, true, nil
	case http.StatusNotFound:
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("poll: unexpected status %d", resp.StatusCode)
	}
}

func (t *PollingTransport) sendLoop(ctx context.Context) {
	b := newBackOff(t.cfg.PollInterval, t.cfg.MaxBackoff)
	for {
		select {
		case <-ctx.Done():
			return
		case out := <-t.outbound:
			b.Reset()
			sendCtx, cancel := context.WithTimeout(ctx, t.cfg.SendTimeout)
			err := backoff.Retry(func() error {
				return t.post(sendCtx, out)
			}, backoff.WithContext(b, sendCtx))
			cancel()
			if err != nil {
				t.logger.Error().Err(err).Str("to", string(out.to)).Str("type", string(out.kind)).Msg("send failed")
			} else {
				t.logger.Debug().Str("to", string(out.to)).Str("type", string(out.kind)).Msg("sent")
			}
			out.finish(err)
		}
	}
}

var errRetryable = errors.New("retryable status")

func (t *PollingTransport) post(ctx context.Context, out outgoing) error {
	reqCtx, cancel := context.WithTimeout(ctx, t.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, t.mailboxURL(out.to), bytes.NewReader(out.data))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return fmt.Errorf("%w %d", errRetryable, resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("send: unexpected status %d", resp.StatusCode))
	}
}
