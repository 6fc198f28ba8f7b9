package signal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dkeye/VideoCall/internal/core"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/rs/zerolog"
)

var (
	ErrTransportStopped = errors.New("transport stopped")
	ErrBackpressure     = errors.New("backpressure")
)

const (
	inboundBuffer  = 64
	outboundBuffer = 256
)

type outgoing struct {
	to   domain.PeerID
	kind core.MessageKind
	data []byte
	res  chan error
}

func (o outgoing) finish(err error) {
	o.res <- err
	close(o.res)
}

func failed(err error) <-chan error {
	res := make(chan error, 1)
	res <- err
	close(res)
	return res
}

// base holds what both transports share: the inbound stream, the ordered
// outbound queue and the start/stop lifecycle.
type base struct {
	logger zerolog.Logger

	inbound  chan core.Message
	outbound chan outgoing

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func (b *base) init(logger zerolog.Logger) {
	b.logger = logger
	b.inbound = make(chan core.Message, inboundBuffer)
	b.outbound = make(chan outgoing, outboundBuffer)
}

func (b *base) start(ctx context.Context, loops ...func(context.Context)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return ErrTransportStopped
	}
	if b.started {
		return nil
	}
	b.started = true
	ctx, b.cancel = context.WithCancel(ctx)
	for _, loop := range loops {
		b.wg.Add(1)
		go func(loop func(context.Context)) {
			defer b.wg.Done()
			loop(ctx)
		}(loop)
	}
	return nil
}

func (b *base) Messages() <-chan core.Message { return b.inbound }

// Send never blocks. Messages to the same peer are delivered in call order.
func (b *base) Send(to domain.PeerID, msg core.Message) <-chan error {
	data, err := Encode(msg)
	if err != nil {
		return failed(err)
	}
	out := outgoing{to: to, kind: msg.Kind, data: data, res: make(chan error, 1)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return failed(ErrTransportStopped)
	}
	select {
	case b.outbound <- out:
	default:
		return failed(ErrBackpressure)
	}
	return out.res
}

// deliver decodes data and hands it to the consumer. Malformed payloads are
// dropped here.
func (b *base) deliver(ctx context.Context, data []byte) {
	msg, err := Decode(data)
	if err != nil {
		b.logger.Warn().Err(err).Int("bytes", len(data)).Msg("dropping inbound message")
		return
	}
	select {
	case b.inbound <- msg:
	case <-ctx.Done():
	}
}

// Stop waits for the loops to exit, fails queued sends and closes Messages.
func (b *base) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	cancel := b.cancel
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()

failQueued:
	for {
		select {
		case out := <-b.outbound:
			out.finish(ErrTransportStopped)
		default:
			break failQueued
		}
	}
dropInbound:
	for {
		select {
		case <-b.inbound:
		default:
			break dropInbound
		}
	}
	close(b.inbound)
	b.logger.Info().Msg("transport stopped")
}

func newBackOff(initial, maxInterval time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// sleep waits for d or until ctx is done, reporting false in the latter case.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
