package app

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrMailboxFull = errors.New("mailbox full")

// Mailboxes is the rendezvous store: one bounded FIFO of raw signaling
// payloads per peer id. A full mailbox rejects writes instead of dropping
// queued messages. A mailbox exists only while it holds messages or has a
// reader waiting on it.
type Mailboxes struct {
	capacity int

	mu    sync.Mutex
	boxes map[domain.PeerID]*mailbox
}

type mailbox struct {
	ch      chan []byte
	waiters int
}

type MailboxInfo struct {
	ID      domain.PeerID `json:"id"`
	Pending int           `json:"pending"`
	Waiters int           `json:"waiters"`
}

func NewMailboxes(capacity int) *Mailboxes {
	if capacity < 1 {
		capacity = 1
	}
	return &Mailboxes{
		capacity: capacity,
		boxes:    make(map[domain.PeerID]*mailbox),
	}
}

// getOrCreate must be called with m.mu held.
func (m *Mailboxes) getOrCreate(id domain.PeerID) *mailbox {
	if box, ok := m.boxes[id]; ok {
		return box
	}
	box := &mailbox{ch: make(chan []byte, m.capacity)}
	m.boxes[id] = box
	log.Debug().Str("module", "app.mailbox").Str("peer", string(id)).Msg("created mailbox")
	return box
}

// dropIfIdle must be called with m.mu held.
func (m *Mailboxes) dropIfIdle(id domain.PeerID, box *mailbox) {
	if box.waiters == 0 && len(box.ch) == 0 && m.boxes[id] == box {
		delete(m.boxes, id)
		log.Debug().Str("module", "app.mailbox").Str("peer", string(id)).Msg("removed mailbox")
	}
}

func (m *Mailboxes) Put(id domain.PeerID, data []byte) error {
	if err := domain.ValidatePeerID(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	box := m.getOrCreate(id)
	select {
	case box.ch <- data:
		log.Debug().Str("module", "app.mailbox").Str("peer", string(id)).Int("bytes", len(data)).Msg("put")
		return nil
	default:
		log.Warn().Str("module", "app.mailbox").Str("peer", string(id)).Msg("mailbox full")
		return ErrMailboxFull
	}
}

// Take waits for the next message for id until ctx is done.
func (m *Mailboxes) Take(ctx context.Context, id domain.PeerID) ([]byte, error) {
	if err := domain.ValidatePeerID(id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	box := m.getOrCreate(id)
	box.waiters++
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		box.waiters--
		m.dropIfIdle(id, box)
		m.mu.Unlock()
	}()

	select {
	case data := <-box.ch:
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Mailboxes) List() []MailboxInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MailboxInfo, 0, len(m.boxes))
	for id, box := range m.boxes {
		out = append(out, MailboxInfo{ID: id, Pending: len(box.ch), Waiters: box.waiters})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
