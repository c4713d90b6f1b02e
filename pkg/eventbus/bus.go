// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package eventbus

import (
	"context"
	"sync"
	"sync/atomic"

	"kilnctl/pkg/logger"
)

type Topic string
type Event = any

// subscriber is either latest-value (capacity 1, older event replaced)
// or a queue that keeps every event until it is full.
type subscriber struct {
	ch    chan Event
	queue bool
}

// Bus implements an in-memory pub/sub where the most recent event
// is the only one kept per subscriber.
type Bus struct {
	mu        sync.RWMutex
	subs      map[Topic]map[uint64]*subscriber
	last      map[Topic]Event
	idCounter uint64
	closed    atomic.Bool

	eventCount       atomic.Int64
	sendCount        atomic.Int64
	sendDropCount    atomic.Int64
	sendReplaceCount atomic.Int64

	log *logger.Logger
}

// Stats is a point-in-time copy of the bus counters.
type Stats struct {
	Events   int64 `json:"events"`
	Sent     int64 `json:"sent"`
	Replaced int64 `json:"replaced"`
	Dropped  int64 `json:"dropped"`
}

func (b *Bus) Stats() Stats {
	return Stats{
		Events:   b.eventCount.Load(),
		Sent:     b.sendCount.Load(),
		Replaced: b.sendReplaceCount.Load(),
		Dropped:  b.sendDropCount.Load(),
	}
}

func (b *Bus) PrintStats() {
	st := b.Stats()
	b.log.Info("events=%d sent=%d replaced=%d dropped=%d", st.Events, st.Sent, st.Replaced, st.Dropped)
}

// New returns an initialized Bus.
func New() *Bus {
	return &Bus{
		subs: make(map[Topic]map[uint64]*subscriber),
		last: make(map[Topic]Event),
		log:  logger.New("EventBus"),
	}
}

// Publish stores ev as the last event for topic and hands it to every
// subscriber. A latest-value subscriber holds one event and an unread
// older event is replaced. A queue subscriber drops ev only when full.
func (b *Bus) Publish(topic Topic, ev Event) {
	if b.closed.Load() {
		return
	}
	b.eventCount.Add(1)

	// sends never block, so they are done under the lock to stay
	// ordered with Close
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.Load() {
		return
	}
	b.last[topic] = ev
	for _, sub := range b.subs[topic] {
		if sub.queue {
			b.publishQueue(sub.ch, ev)
		} else {
			b.publishReplace(sub.ch, ev)
		}
	}
}

func (b *Bus) publishQueue(ch chan Event, ev Event) {
	select {
	case ch <- ev:
		b.sendCount.Add(1)
	default:
		b.log.Error("queue full, dropped event: %T", ev)
		b.sendDropCount.Add(1)
	}
}

// publishReplace delivers ev to ch, dropping an unread older event.
func (b *Bus) publishReplace(ch chan Event, ev Event) {
	select {
	case ch <- ev:
		b.sendCount.Add(1)
		return
	default:
	}

	select {
	case <-ch:
		b.sendReplaceCount.Add(1)
	default:
	}
	select {
	case ch <- ev:
		b.sendCount.Add(1)
	default:
		b.log.Error("dropped event: %T", ev)
		b.sendDropCount.Add(1)
	}
}

// Subscribe returns a latest-value channel for topic and an unsubscribe
// func. With withLast set, the last published event is delivered first.
// The channel is closed when ctx is done, on unsubscribe, or on Close.
func (b *Bus) Subscribe(ctx context.Context, topic Topic, withLast bool) (<-chan Event, func()) {
	return b.subscribe(ctx, topic, &subscriber{ch: make(chan Event, 1)}, withLast)
}

// SubscribeQueue returns a channel that keeps up to size unread events
// in publish order instead of only the latest one. Use it for topics
// where every event matters, like state transitions.
func (b *Bus) SubscribeQueue(ctx context.Context, topic Topic, size int) (<-chan Event, func()) {
	return b.subscribe(ctx, topic, &subscriber{ch: make(chan Event, max(size, 1)), queue: true}, false)
}

func (b *Bus) subscribe(ctx context.Context, topic Topic, sub *subscriber, withLast bool) (<-chan Event, func()) {
	b.mu.Lock()
	if b.closed.Load() {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := atomic.AddUint64(&b.idCounter, 1)
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]*subscriber)
	}
	b.subs[topic][id] = sub
	if last, ok := b.last[topic]; ok && withLast {
		b.publishReplace(sub.ch, last)
	}
	b.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	unsub := func() { once.Do(func() { close(done) }) }

	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		b.remove(topic, id)
	}()

	return sub.ch, unsub
}

// remove closes the subscriber channel unless Close already did.
func (b *Bus) remove(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.subs[topic]
	if !ok {
		return
	}
	if sub, ok := m[id]; ok {
		delete(m, id)
		close(sub.ch)
	}
	if len(m) == 0 {
		delete(b.subs, topic)
	}
}

// GetLast returns the last published event for a topic (if any).
func (b *Bus) GetLast(topic Topic) (Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.last[topic]
	return v, ok
}

// Close closes the bus and all subscriber channels. After Close, Publish is a no-op and Subscribe
// returns a closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.Swap(true) {
		return
	}
	for _, m := range b.subs {
		for _, sub := range m {
			close(sub.ch)
		}
	}
	b.subs = nil
	b.last = nil
}
