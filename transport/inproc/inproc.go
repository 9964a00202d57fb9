// Package inproc runs a group of workers as goroutines of one process.
//
// Messages are copied on Send and delivered straight into the receiver's
// mailbox, so the exchange protocol behaves exactly as over a network.
package inproc

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/hupe1980/plsago/transport"
)

// Cluster is a set of connected in-process workers.
type Cluster struct {
	nodes []*Node
}

// NewCluster returns a cluster of size workers.
func NewCluster(size int) *Cluster {
	c := &Cluster{nodes: make([]*Node, size)}
	for rank := range c.nodes {
		c.nodes[rank] = &Node{cluster: c, rank: rank, mailbox: transport.NewMailbox()}
	}
	return c
}

// Size returns the number of workers.
func (c *Cluster) Size() int { return len(c.nodes) }

// Node returns the transport of worker rank.
func (c *Cluster) Node(rank int) *Node { return c.nodes[rank] }

// Transports returns every worker's transport in rank order.
func (c *Cluster) Transports() []transport.Transport {
	out := make([]transport.Transport, len(c.nodes))
	for i, n := range c.nodes {
		out[i] = n
	}
	return out
}

// Close closes every node.
func (c *Cluster) Close() error {
	for _, n := range c.nodes {
		_ = n.Close()
	}
	return nil
}

// Node is one worker's view of the cluster.
type Node struct {
	cluster *Cluster
	rank    int
	mailbox *transport.Mailbox
	closed  atomic.Bool
	sent    atomic.Uint64
}

var _ transport.Transport = (*Node)(nil)

// Rank implements transport.Transport.
func (n *Node) Rank() int { return n.rank }

// Size implements transport.Transport.
func (n *Node) Size() int { return len(n.cluster.nodes) }

// Send implements transport.Transport.
func (n *Node) Send(ctx context.Context, to, tag int, data []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.closed.Load() {
		return transport.ErrClosed
	}
	if err := transport.CheckPeer(n.rank, n.Size(), to); err != nil {
		return err
	}
	peer := n.cluster.nodes[to]
	if peer.closed.Load() {
		return transport.ErrClosed
	}
	peer.mailbox.Deliver(n.rank, tag, slices.Clone(data))
	n.sent.Add(uint64(8 * len(data)))
	return nil
}

// Recv implements transport.Transport.
func (n *Node) Recv(ctx context.Context, from, tag int, dst []float64) error {
	if err := transport.CheckPeer(n.rank, n.Size(), from); err != nil {
		return err
	}
	msg, err := n.mailbox.Take(ctx, from, tag)
	if err != nil {
		return err
	}
	return transport.CopyInto(dst, msg, from, tag)
}

// BytesSent returns the payload bytes sent by this node.
func (n *Node) BytesSent() uint64 { return n.sent.Load() }

// Close implements transport.Transport. Pending receives fail with
// transport.ErrClosed.
func (n *Node) Close() error {
	if n.closed.CompareAndSwap(false, true) {
		n.mailbox.Fail(transport.ErrClosed)
	}
	return nil
}
