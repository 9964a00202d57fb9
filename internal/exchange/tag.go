package exchange

import (
	"fmt"
	"math"
)

// MaxClusters is the cluster capacity of the tag encoding. Cluster counts must
// be strictly below it.
const MaxClusters = 1000

// IterationStride separates the tags of consecutive iterations.
const IterationStride = 10000

// MaxTagIterations is the largest iteration whose tags fit in an int32.
const MaxTagIterations = (math.MaxInt32 - (IterationStride - 1)) / IterationStride

// Kind identifies the payload of a message.
type Kind int

const (
	KindW1    Kind = 1
	KindW2    Kind = 2
	KindPrior Kind = 3
	// KindPosterior is reserved so the tag layout keeps kind 4; posteriors
	// are computed locally and never exchanged.
	KindPosterior Kind = 4
	KindJoint     Kind = 5
	KindDecision  Kind = 6
	KindBarrier   Kind = 7
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindW1:
		return "w1"
	case KindW2:
		return "w2"
	case KindPrior:
		return "prior"
	case KindPosterior:
		return "posterior"
	case KindJoint:
		return "joint"
	case KindDecision:
		return "decision"
	case KindBarrier:
		return "barrier"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Tag encodes (iteration, kind, cluster).
func Tag(iteration uint32, kind Kind, cluster int) int {
	return int(iteration)*IterationStride + int(kind)*MaxClusters + cluster
}

// DecodeTag splits a tag into its parts.
func DecodeTag(tag int) (iteration uint32, kind Kind, cluster int) {
	iteration = uint32(tag / IterationStride)
	rest := tag % IterationStride
	return iteration, Kind(rest / MaxClusters), rest % MaxClusters
}

// CheckCapacity validates that numClusters clusters and maxIterations
// iterations fit the tag encoding.
func CheckCapacity(numClusters, maxIterations uint32) error {
	if numClusters >= MaxClusters {
		return fmt.Errorf("exchange: %d clusters, capacity is %d", numClusters, MaxClusters-1)
	}
	if maxIterations > MaxTagIterations {
		return fmt.Errorf("exchange: %d iterations, capacity is %d", maxIterations, MaxTagIterations)
	}
	return nil
}
