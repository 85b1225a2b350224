package events

import "sync"

// Latest is a single-slot mailbox holding the newest value. Writers
// overwrite; readers either peek (TryReceive), consume (TryTake), or
// block until something arrives (Receive). Overwriting an unconsumed
// value counts as a drop.
type Latest[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	value  T
	has    bool
	seq    uint64
	drops  uint64
	closed bool
}

// NewLatest creates an empty mailbox.
func NewLatest[T any]() *Latest[T] {
	l := &Latest[T]{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Set stores v as the pending value, replacing any unconsumed one, and
// wakes blocked receivers.
func (l *Latest[T]) Set(v T) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrReceiverClosed
	}

	if l.has {
		l.drops++
	}
	l.value = v
	l.has = true
	l.seq++
	l.cond.Broadcast()
	return nil
}

// Receive blocks until a value is available or the mailbox closes,
// then consumes it. The second return is false once the mailbox is
// closed.
func (l *Latest[T]) Receive() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for !l.has && !l.closed {
		l.cond.Wait()
	}

	var zero T
	if l.closed {
		return zero, false
	}

	v := l.value
	l.value = zero // release the buffer reference
	l.has = false
	return v, true
}

// TryReceive returns the pending value without consuming it.
func (l *Latest[T]) TryReceive() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.has {
		var zero T
		return zero, false
	}
	return l.value, true
}

// TryTake consumes and returns the pending value without blocking.
// Each value is handed out at most once.
func (l *Latest[T]) TryTake() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var zero T
	if !l.has {
		return zero, false
	}

	v := l.value
	l.value = zero
	l.has = false
	return v, true
}

// Seq returns how many values were set over the mailbox lifetime.
func (l *Latest[T]) Seq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// Drops returns how many unconsumed values were overwritten.
func (l *Latest[T]) Drops() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.drops
}

// Close empties the mailbox and wakes blocked receivers. Set after
// Close fails with ErrReceiverClosed. Close is idempotent.
func (l *Latest[T]) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true

	var zero T
	l.value = zero
	l.has = false
	l.cond.Broadcast()
}
