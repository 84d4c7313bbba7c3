package service

import "sync"

// Feed broadcasts values to subscribers. A new subscriber first receives
// the latest published value. Slow subscribers only see the newest value.
type Feed[T any] struct {
	mu     sync.Mutex
	latest T
	has    bool
	subs   map[uint64]chan T
	nextID uint64
}

// NewFeed returns an empty feed.
func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[uint64]chan T)}
}

// Publish stores v as the latest value and hands it to every subscriber.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest, f.has = v, true
	for _, ch := range f.subs {
		offer(ch, v)
	}
}

// offer replaces a pending value in ch with v.
func offer[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}

// Latest returns the last published value.
func (f *Feed[T]) Latest() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, f.has
}

// Subscribe returns a channel of values and a function that cancels the
// subscription and closes the channel.
func (f *Feed[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, 1)
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	if f.has {
		ch <- f.latest
	}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(ch)
		})
	}
}
