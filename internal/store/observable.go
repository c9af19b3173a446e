package store

import "sync"

// observable holds a value and pushes every new value to its subscribers
// in registration order. Deliveries go through one FIFO queue, so a
// subscriber may publish from inside its callback and every subscriber
// still sees values in the order they were published.
type observable[T any] struct {
	mu       sync.Mutex
	value    T
	subs     []*listener[T]
	queue    []delivery[T]
	flushing bool
}

type listener[T any] struct {
	fn     func(T)
	active bool
}

type delivery[T any] struct {
	to    *listener[T]
	value T
}

func newObservable[T any](initial T) *observable[T] {
	return &observable[T]{value: initial}
}

func (o *observable[T]) get() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value
}

// subscribe queues the current value for fn and delivers it before
// returning, unless another goroutine is already draining the queue. In
// that case the draining goroutine delivers it, possibly after subscribe
// has returned, and fn runs on that goroutine.
func (o *observable[T]) subscribe(fn func(T)) func() {
	l := &listener[T]{fn: fn, active: true}
	o.mu.Lock()
	o.subs = append(o.subs, l)
	o.queue = append(o.queue, delivery[T]{to: l, value: o.value})
	o.mu.Unlock()
	o.drain()

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if !l.active {
			return
		}
		l.active = false
		for i, s := range o.subs {
			if s == l {
				o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
				break
			}
		}
	}
}

// publish replaces the value and queues it for every subscriber. Callers
// follow it with drain once they hold no locks of their own.
func (o *observable[T]) publish(v T) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.value = v
	for _, l := range o.subs {
		o.queue = append(o.queue, delivery[T]{to: l, value: v})
	}
}

// set is publish followed by drain.
func (o *observable[T]) set(v T) {
	o.publish(v)
	o.drain()
}

// drain delivers queued values until the queue is empty. Only one
// goroutine drains at a time; the others return at once and leave their
// values to it. If a subscriber panics the rest of the queue is dropped
// and the next publish drains again.
func (o *observable[T]) drain() {
	o.mu.Lock()
	if o.flushing {
		o.mu.Unlock()
		return
	}
	o.flushing = true
	done := false
	defer func() {
		if done {
			return
		}
		o.mu.Lock()
		o.queue = nil
		o.flushing = false
		o.mu.Unlock()
	}()
	for len(o.queue) > 0 {
		d := o.queue[0]
		o.queue[0] = delivery[T]{}
		o.queue = o.queue[1:]
		if !d.to.active {
			continue
		}
		o.mu.Unlock()
		d.to.fn(d.value)
		o.mu.Lock()
	}
	o.queue = nil
	o.flushing = false
	done = true
	o.mu.Unlock()
}

func (o *observable[T]) subscribers() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs)
}
