package app

import (
	"sync"
	"time"

	"github.com/dkeye/VideoCall/internal/domain"
)

// SendLimiter bounds writes into mailboxes with two sliding windows, one per
// sender and one per target mailbox. A write is counted against both or
// neither.
type SendLimiter struct {
	limit    int
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	senders   map[string][]time.Time
	targets   map[domain.PeerID][]time.Time
	lastSweep time.Time
}

func NewSendLimiter(limit int, interval time.Duration) *SendLimiter {
	return &SendLimiter{
		limit:    limit,
		interval: interval,
		now:      time.Now,
		senders:  make(map[string][]time.Time),
		targets:  make(map[domain.PeerID][]time.Time),
	}
}

// Allow reports whether sender may write to target now. A limit of zero or
// less disables limiting.
func (rl *SendLimiter) Allow(sender string, target domain.PeerID) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)
	if now.Sub(rl.lastSweep) >= rl.interval {
		sweep(rl.senders, windowStart)
		sweep(rl.targets, windowStart)
		rl.lastSweep = now
	}

	fromSender := prune(rl.senders[sender], windowStart)
	toTarget := prune(rl.targets[target], windowStart)
	if len(fromSender) >= rl.limit || len(toTarget) >= rl.limit {
		store(rl.senders, sender, fromSender)
		store(rl.targets, target, toTarget)
		return false
	}
	rl.senders[sender] = append(fromSender, now)
	rl.targets[target] = append(toTarget, now)
	return true
}

// Len returns how many senders and targets are currently tracked.
func (rl *SendLimiter) Len() (senders, targets int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.senders), len(rl.targets)
}

func prune(attempts []time.Time, windowStart time.Time) []time.Time {
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	return fresh
}

func store[K comparable](m map[K][]time.Time, key K, fresh []time.Time) {
	if len(fresh) == 0 {
		delete(m, key)
		return
	}
	m[key] = fresh
}

// sweep drops keys whose whole history is outside the window.
func sweep[K comparable](m map[K][]time.Time, windowStart time.Time) {
	for key, attempts := range m {
		if n := len(attempts); n == 0 || !attempts[n-1].After(windowStart) {
			delete(m, key)
		}
	}
}
