package transport

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("transport: closed")

	// ErrNoPeer is returned when a rank does not name another worker.
	ErrNoPeer = errors.New("transport: no such peer")
)

// Transport moves tagged float64 vectors between workers.
type Transport interface {
	// Rank returns this worker's id in [0, Size).
	Rank() int
	// Size returns the number of workers.
	Size() int
	// Send delivers data to worker to under tag. data may be reused after
	// Send returns.
	Send(ctx context.Context, to, tag int, data []float64) error
	// Recv blocks until a message from worker from with tag arrives and
	// copies it into dst, whose length must match the message.
	Recv(ctx context.Context, from, tag int, dst []float64) error
	// Close releases the transport.
	Close() error
}

// Local is the transport of a single-worker run.
type Local struct{}

// Rank implements Transport.
func (Local) Rank() int { return 0 }

// Size implements Transport.
func (Local) Size() int { return 1 }

// Send implements Transport. There is nobody to send to.
func (Local) Send(_ context.Context, to, _ int, _ []float64) error {
	return fmt.Errorf("%w: %d", ErrNoPeer, to)
}

// Recv implements Transport. There is nobody to receive from.
func (Local) Recv(_ context.Context, from, _ int, _ []float64) error {
	return fmt.Errorf("%w: %d", ErrNoPeer, from)
}

// Close implements Transport.
func (Local) Close() error { return nil }

// CheckPeer validates that peer names a worker other than self.
func CheckPeer(self, size, peer int) error {
	if peer < 0 || peer >= size || peer == self {
		return fmt.Errorf("%w: %d", ErrNoPeer, peer)
	}
	return nil
}

// CopyInto copies a received message into dst.
func CopyInto(dst, msg []float64, from, tag int) error {
	if len(dst) != len(msg) {
		return fmt.Errorf("transport: message from %d tag %d has %d values, want %d", from, tag, len(msg), len(dst))
	}
	copy(dst, msg)
	return nil
}
