package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/rosterd/internal/observability"
)

type memoryDelivery struct {
	claim FeedClaim
}

// MemoryFeed is an at-least-once change feed for dashboard pollers. Claims
// that are not acked before their visibility deadline are re-delivered.
type MemoryFeed struct {
	mu       sync.Mutex
	items    []FeedEvent
	inflight map[string]memoryDelivery
	counter  uint64
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{
		items:    make([]FeedEvent, 0, 128),
		inflight: make(map[string]memoryDelivery),
	}
}

func (f *MemoryFeed) labels(extra map[string]string) map[string]string {
	l := map[string]string{"feed_backend": "memory"}
	for k, v := range extra {
		l[k] = v
	}
	return l
}

func (f *MemoryFeed) Publish(_ context.Context, event FeedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	f.items = append(f.items, event)
	observability.Default.IncCounter("feed_published_total", f.labels(map[string]string{"kind": event.Kind}), 1)
	return nil
}

func (f *MemoryFeed) Poll(_ context.Context, max int, consumer string, visibilityTimeout time.Duration) ([]FeedClaim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if max <= 0 {
		max = 1
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = 15 * time.Second
	}
	now := time.Now().UTC()
	f.requeueExpiredLocked(now)
	if len(f.items) == 0 {
		return nil, nil
	}
	if max > len(f.items) {
		max = len(f.items)
	}
	out := make([]FeedClaim, 0, max)
	for i := 0; i < max; i++ {
		event := f.items[0]
		f.items = f.items[1:]
		f.counter++
		receipt := fmt.Sprintf("mem:%s:%d", consumer, f.counter)
		claim := FeedClaim{
			Event:     event,
			Receipt:   receipt,
			ClaimedBy: consumer,
			ClaimedAt: now,
			VisibleAt: now.Add(visibilityTimeout),
		}
		f.inflight[receipt] = memoryDelivery{claim: claim}
		out = append(out, claim)
	}
	observability.Default.IncCounter("feed_polled_total", f.labels(map[string]string{"consumer": consumer}), float64(len(out)))
	return out, nil
}

func (f *MemoryFeed) Ack(_ context.Context, claims []FeedClaim) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range claims {
		delete(f.inflight, c.Receipt)
	}
	observability.Default.IncCounter("feed_acked_total", f.labels(nil), float64(len(claims)))
	return nil
}

func (f *MemoryFeed) requeueExpiredLocked(now time.Time) {
	for receipt, d := range f.inflight {
		if d.claim.VisibleAt.After(now) {
			continue
		}
		delete(f.inflight, receipt)
		f.items = append(f.items, d.claim.Event)
	}
}
