package partition

import "fmt"

// Block is a half-open range [Start, End) of cluster indices owned by one worker.
type Block struct {
	Start uint32
	End   uint32
}

// Size returns the number of clusters in the block.
func (b Block) Size() uint32 { return b.End - b.Start }

// Contains reports whether cluster k belongs to the block.
func (b Block) Contains(k uint32) bool { return k >= b.Start && k < b.End }

// String implements fmt.Stringer.
func (b Block) String() string {
	if b.Size() == 0 {
		return "[empty]"
	}
	return fmt.Sprintf("%d - %d", b.Start, b.End-1)
}

// Low returns the first cluster owned by worker id.
func Low(id, p, n uint32) uint32 {
	return uint32(uint64(id) * uint64(n) / uint64(p))
}

// BlockOf returns the cluster block owned by worker id out of p workers and n clusters.
func BlockOf(id, p, n uint32) Block {
	return Block{Start: Low(id, p, n), End: Low(id+1, p, n)}
}

// Owner returns the worker that owns cluster index out of p workers and n clusters.
func Owner(index, p, n uint32) uint32 {
	return uint32((uint64(p)*(uint64(index)+1) - 1) / uint64(n))
}

// Blocks returns the blocks of all p workers in worker order.
func Blocks(p, n uint32) []Block {
	blocks := make([]Block, p)
	for id := range p {
		blocks[id] = BlockOf(id, p, n)
	}
	return blocks
}
