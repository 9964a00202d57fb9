package transport

import (
	"context"
	"sync"
)

type mailKey struct {
	from int
	tag  int
}

type slot struct {
	queue [][]float64
	ready chan struct{}
}

// Mailbox buffers delivered messages until they are received. Each
// (sender, tag) pair must have at most one waiting receiver.
type Mailbox struct {
	mu    sync.Mutex
	slots map[mailKey]*slot
	err   error
	done  chan struct{}
}

// NewMailbox returns an empty Mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{slots: make(map[mailKey]*slot), done: make(chan struct{})}
}

func (m *Mailbox) slotLocked(k mailKey) *slot {
	s, ok := m.slots[k]
	if !ok {
		s = &slot{ready: make(chan struct{}, 1)}
		m.slots[k] = s
	}
	return s
}

// Deliver queues msg from sender from under tag. The Mailbox takes ownership
// of msg.
func (m *Mailbox) Deliver(from, tag int, msg []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.slotLocked(mailKey{from, tag})
	s.queue = append(s.queue, msg)
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Take blocks until a message from sender from with tag is available. Queued
// messages are still returned after Fail.
func (m *Mailbox) Take(ctx context.Context, from, tag int) ([]float64, error) {
	k := mailKey{from, tag}
	for {
		m.mu.Lock()
		s := m.slotLocked(k)
		if len(s.queue) > 0 {
			msg := s.queue[0]
			s.queue = s.queue[1:]
			if len(s.queue) == 0 {
				delete(m.slots, k)
			}
			m.mu.Unlock()
			return msg, nil
		}
		if m.err != nil {
			err := m.err
			m.mu.Unlock()
			return nil, err
		}
		ready := s.ready
		m.mu.Unlock()

		select {
		case <-ready:
		case <-m.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Fail wakes all receivers with err. Only the first error is kept.
func (m *Mailbox) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err == nil {
		m.err = err
		close(m.done)
	}
}

// Err returns the error passed to Fail, if any.
func (m *Mailbox) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Pending returns the number of queued messages.
func (m *Mailbox) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.slots {
		n += len(s.queue)
	}
	return n
}
