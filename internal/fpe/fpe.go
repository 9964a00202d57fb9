// Package fpe counts floating-point faults raised by the EM arithmetic.
//
// Go does not trap floating-point exceptions, so the engine checks the values it
// produces and reports every NaN or infinity to a Counter. The Counter's policy
// decides whether a fault only increments the count or aborts the run.
package fpe

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
)

// ErrNumericFault is returned by Counter.Err under the Abort policy.
var ErrNumericFault = errors.New("fpe: numeric fault")

// Policy selects how faults are handled.
type Policy uint8

const (
	// Count records faults and lets the computation continue.
	Count Policy = iota
	// Abort records faults and makes Err report them.
	Abort
)

// String implements fmt.Stringer.
func (p Policy) String() string {
	switch p {
	case Count:
		return "count"
	case Abort:
		return "abort"
	default:
		return fmt.Sprintf("Policy(%d)", p)
	}
}

// ParsePolicy parses "count" or "abort".
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "count":
		return Count, nil
	case "abort":
		return Abort, nil
	default:
		return Count, fmt.Errorf("fpe: unknown policy %q", s)
	}
}

// Counter is safe for concurrent use.
type Counter struct {
	policy Policy
	n      atomic.Uint64
}

// NewCounter returns a Counter with the given policy.
func NewCounter(p Policy) *Counter {
	return &Counter{policy: p}
}

// Observe records v if it is NaN or infinite and reports whether it was.
func (c *Counter) Observe(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		c.n.Add(1)
		return true
	}
	return false
}

// Add records n faults detected elsewhere.
func (c *Counter) Add(n int) {
	if n > 0 {
		c.n.Add(uint64(n))
	}
}

// Count returns the number of recorded faults.
func (c *Counter) Count() uint64 { return c.n.Load() }

// Policy returns the counter's policy.
func (c *Counter) Policy() Policy { return c.policy }

// Err returns ErrNumericFault when faults were recorded under Abort.
func (c *Counter) Err() error {
	if c.policy == Abort {
		if n := c.n.Load(); n > 0 {
			return fmt.Errorf("%w: %d non-finite values", ErrNumericFault, n)
		}
	}
	return nil
}
