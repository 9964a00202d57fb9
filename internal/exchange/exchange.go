package exchange

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/plsago/internal/converge"
	"github.com/hupe1980/plsago/internal/partition"
	"github.com/hupe1980/plsago/internal/store"
	"github.com/hupe1980/plsago/model"
	"github.com/hupe1980/plsago/transport"
)

// Coordinator is the rank of the coordinating worker.
const Coordinator = 0

// Error reports a failed send or receive.
type Error struct {
	Op   string
	Peer int
	Tag  int
	Err  error
}

func (e *Error) Error() string {
	iteration, kind, cluster := DecodeTag(e.Tag)
	return fmt.Sprintf("exchange: %s %s (iteration %d, cluster %d) peer %d: %v", e.Op, kind, iteration, cluster, e.Peer, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Stats counts the messages handled by an Exchange.
type Stats struct {
	Sent     uint64
	Received uint64
}

// Exchange runs the collective operations of one worker.
type Exchange struct {
	tr          transport.Transport
	numClusters uint32
	workers     uint32
	rank        uint32
	blocks      []partition.Block

	scratch []float64
	scalar  []float64

	sent     atomic.Uint64
	received atomic.Uint64
}

// New returns an Exchange for numClusters clusters over tr.
func New(tr transport.Transport, numClusters uint32) *Exchange {
	p := uint32(tr.Size())
	return &Exchange{
		tr:          tr,
		numClusters: numClusters,
		workers:     p,
		rank:        uint32(tr.Rank()),
		blocks:      partition.Blocks(p, numClusters),
		scalar:      make([]float64, 1),
	}
}

// Rank returns this worker's rank.
func (x *Exchange) Rank() int { return int(x.rank) }

// Workers returns the number of workers.
func (x *Exchange) Workers() int { return int(x.workers) }

// IsCoordinator reports whether this worker coordinates the run.
func (x *Exchange) IsCoordinator() bool { return x.rank == Coordinator }

// Block returns the clusters owned by this worker.
func (x *Exchange) Block() partition.Block { return x.blocks[x.rank] }

// Blocks returns the blocks of all workers.
func (x *Exchange) Blocks() []partition.Block { return x.blocks }

// Stats returns the message counters.
func (x *Exchange) Stats() Stats {
	return Stats{Sent: x.sent.Load(), Received: x.received.Load()}
}

func (x *Exchange) send(ctx context.Context, op string, to, tag int, data []float64) error {
	if err := x.tr.Send(ctx, to, tag, data); err != nil {
		return &Error{Op: op, Peer: to, Tag: tag, Err: err}
	}
	x.sent.Add(1)
	return nil
}

func (x *Exchange) recv(ctx context.Context, op string, from, tag int, dst []float64) error {
	if err := x.tr.Recv(ctx, from, tag, dst); err != nil {
		return &Error{Op: op, Peer: from, Tag: tag, Err: err}
	}
	x.received.Add(1)
	return nil
}

func (x *Exchange) owner(k uint32) int {
	return int(partition.Owner(k, x.workers, x.numClusters))
}

// sendCluster sends the W1 row, W2 row and prior of cluster k.
func (x *Exchange) sendCluster(ctx context.Context, op string, iter uint32, to int, gen *store.Generation, k int) error {
	if err := x.send(ctx, op, to, Tag(iter, KindW1, k), gen.W1.Row(k)); err != nil {
		return err
	}
	if err := x.send(ctx, op, to, Tag(iter, KindW2, k), gen.W2.Row(k)); err != nil {
		return err
	}
	return x.send(ctx, op, to, Tag(iter, KindPrior, k), gen.Prior.Data()[k:k+1])
}

func (x *Exchange) recvCluster(ctx context.Context, op string, iter uint32, from int, gen *store.Generation, k int) error {
	if err := x.recv(ctx, op, from, Tag(iter, KindW1, k), gen.W1.Row(k)); err != nil {
		return err
	}
	if err := x.recv(ctx, op, from, Tag(iter, KindW2, k), gen.W2.Row(k)); err != nil {
		return err
	}
	return x.recv(ctx, op, from, Tag(iter, KindPrior, k), gen.Prior.Data()[k:k+1])
}

// Scatter distributes the coordinator's gen to the owners of each cluster.
// Every other worker receives exactly its own block.
func (x *Exchange) Scatter(ctx context.Context, iter uint32, gen *store.Generation) error {
	if x.workers == 1 {
		return nil
	}
	if x.IsCoordinator() {
		for k := uint32(0); k < x.numClusters; k++ {
			if owner := x.owner(k); owner != Coordinator {
				if err := x.sendCluster(ctx, "scatter", iter, owner, gen, int(k)); err != nil {
					return err
				}
			}
		}
		return nil
	}
	block := x.Block()
	for k := block.Start; k < block.End; k++ {
		if err := x.recvCluster(ctx, "scatter", iter, Coordinator, gen, int(k)); err != nil {
			return err
		}
	}
	return nil
}

// Gather collects every worker's block of gen on the coordinator.
func (x *Exchange) Gather(ctx context.Context, iter uint32, gen *store.Generation) error {
	if x.workers == 1 {
		return nil
	}
	if !x.IsCoordinator() {
		block := x.Block()
		for k := block.Start; k < block.End; k++ {
			if err := x.sendCluster(ctx, "gather", iter, Coordinator, gen, int(k)); err != nil {
				return err
			}
		}
		return nil
	}
	for k := uint32(0); k < x.numClusters; k++ {
		if owner := x.owner(k); owner != Coordinator {
			if err := x.recvCluster(ctx, "gather", iter, owner, gen, int(k)); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReduceJoint sends every worker's partial joint matrix to the coordinator,
// which log-adds them cell by cell into its own in worker order.
func (x *Exchange) ReduceJoint(ctx context.Context, iter uint32, joint *model.Joint) error {
	if x.workers == 1 {
		return nil
	}
	tag := Tag(iter, KindJoint, 0)
	if !x.IsCoordinator() {
		return x.send(ctx, "reduce", Coordinator, tag, joint.Data())
	}
	if len(x.scratch) != len(joint.Data()) {
		x.scratch = make([]float64, len(joint.Data()))
	}
	for w := 1; w < int(x.workers); w++ {
		if err := x.recv(ctx, "reduce", w, tag, x.scratch); err != nil {
			return err
		}
		if err := joint.Merge(x.scratch); err != nil {
			return err
		}
	}
	return nil
}

// BroadcastJoint replaces every worker's joint matrix with the coordinator's.
func (x *Exchange) BroadcastJoint(ctx context.Context, iter uint32, joint *model.Joint) error {
	if x.workers == 1 {
		return nil
	}
	tag := Tag(iter, KindJoint, 1)
	if !x.IsCoordinator() {
		return x.recv(ctx, "broadcast", Coordinator, tag, joint.Data())
	}
	for w := 1; w < int(x.workers); w++ {
		if err := x.send(ctx, "broadcast", w, tag, joint.Data()); err != nil {
			return err
		}
	}
	return nil
}

// BroadcastDecision sends the coordinator's decision for round iter to every
// worker and returns the decision all workers agree on.
func (x *Exchange) BroadcastDecision(ctx context.Context, iter uint32, d converge.Decision) (converge.Decision, error) {
	if x.workers == 1 {
		return d, nil
	}
	tag := Tag(iter, KindDecision, 0)
	payload := []float64{float64(d.Iteration), float64(d.State)}
	if x.IsCoordinator() {
		for w := 1; w < int(x.workers); w++ {
			if err := x.send(ctx, "decision", w, tag, payload); err != nil {
				return d, err
			}
		}
		return d, nil
	}
	if err := x.recv(ctx, "decision", Coordinator, tag, payload); err != nil {
		return d, err
	}
	return converge.Decision{Iteration: uint32(payload[0]), State: converge.State(payload[1])}, nil
}

// Barrier returns once every worker has entered round iter.
func (x *Exchange) Barrier(ctx context.Context, iter uint32) error {
	if x.workers == 1 {
		return nil
	}
	arrive := Tag(iter, KindBarrier, 0)
	release := Tag(iter, KindBarrier, 1)
	if !x.IsCoordinator() {
		if err := x.send(ctx, "barrier", Coordinator, arrive, nil); err != nil {
			return err
		}
		return x.recv(ctx, "barrier", Coordinator, release, nil)
	}
	for w := 1; w < int(x.workers); w++ {
		if err := x.recv(ctx, "barrier", w, arrive, nil); err != nil {
			return err
		}
	}
	for w := 1; w < int(x.workers); w++ {
		if err := x.send(ctx, "barrier", w, release, nil); err != nil {
			return err
		}
	}
	return nil
}
