package computehook

import (
	"context"
	"sync"

	"github.com/attachctl/attachctl/pkg/log"
	"github.com/attachctl/attachctl/pkg/types"
)

// Notification carries one shard's current attachment binding.
type Notification struct {
	TenantShardID types.TenantShardId
	Node          types.NodeId
	Generation    types.Generation
}

// Notifier is the compute hook's sink: it receives the latest binding for a
// shard. Implementations must tolerate being called less often than Notify,
// since consecutive notifications for the same shard may be coalesced.
type Notifier interface {
	NotifyAttachment(ctx context.Context, n Notification) error
}

// Hook delivers at-most-once, generation-monotone attachment notifications
// to compute. Notify never blocks the caller on delivery: it stores the
// latest notification per shard in a single slot, superseding any pending
// one with a lower generation, and a background worker drains slots to the
// Notifier. A notification for generation g never overtakes one already
// delivered for a later generation on the same shard.
type Hook struct {
	notifier Notifier

	mu      sync.Mutex
	pending map[types.TenantShardId]Notification
	sent    map[types.TenantShardId]types.Generation
	signal  chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// New creates a Hook that delivers to notifier. Run must be called to start
// the delivery loop.
func New(notifier Notifier) *Hook {
	return &Hook{
		notifier: notifier,
		pending:  make(map[types.TenantShardId]Notification),
		sent:     make(map[types.TenantShardId]types.Generation),
		signal:   make(chan struct{}, 1),
		stopped:  make(chan struct{}),
	}
}

// Notify records the shard's current binding for delivery. Stale
// notifications (generation not newer than the last one queued or sent for
// this shard) are dropped.
func (h *Hook) Notify(n Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if g, ok := h.sent[n.TenantShardID]; ok && n.Generation <= g {
		return
	}
	if existing, ok := h.pending[n.TenantShardID]; ok && n.Generation <= existing.Generation {
		return
	}

	h.pending[n.TenantShardID] = n
	select {
	case h.signal <- struct{}{}:
	default:
	}
}

// Run drains pending notifications until ctx is cancelled. A failed delivery
// is logged and dropped: Run never retries it, and the caller of Notify is
// not told of the failure.
func (h *Hook) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.signal:
			h.drain(ctx)
		}
	}
}

func (h *Hook) drain(ctx context.Context) {
	for {
		n, ok := h.next()
		if !ok {
			return
		}
		if err := h.notifier.NotifyAttachment(ctx, n); err != nil {
			log.WithShard(n.TenantShardID.String()).Warn().Err(err).Msg("compute notification failed, dropping")
			continue
		}
		h.markSent(n)
		if ctx.Err() != nil {
			return
		}
	}
}

func (h *Hook) next() (Notification, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, n := range h.pending {
		delete(h.pending, id)
		return n, true
	}
	return Notification{}, false
}

func (h *Hook) markSent(n Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if g, ok := h.sent[n.TenantShardID]; !ok || n.Generation > g {
		h.sent[n.TenantShardID] = n.Generation
	}
}

// Stopped is closed once Run has returned.
func (h *Hook) Stopped() <-chan struct{} {
	return h.stopped
}
