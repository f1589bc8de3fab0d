// Package ratelimit implements the two-level token-bucket accountant
// (C9, §4.7, §8): a process-wide global read bucket and a per-OR-link
// receiver bucket bounded to [0, 10*bandwidth].
package ratelimit

import (
	"relaylink/internal/connrec"

	"golang.org/x/time/rate"
)

// Accountant owns the global read bucket and paces the once-per-second
// refill tick. The per-link receiver bucket lives on connrec.Conn
// itself (§3.1's ReceiverBucket field) since its cap depends on each
// connection's own Bandwidth.
type Accountant struct {
	globalCap    int64
	globalBucket int64

	// tickLimiter paces how often Tick may actually refill — a real
	// rate.Limiter rather than a bare time.Ticker comparison, so the
	// refill cadence itself is governed by the same token-bucket
	// primitive the rest of the subsystem uses (SPEC_FULL.md F.2).
	tickLimiter *rate.Limiter
}

// New creates an accountant with the given global bucket cap (octets
// refilled per tick) and tick interval via the provided rate.Limiter
// burst-of-one pattern (rate.Every(interval), 1).
func New(globalCap int64, limiter *rate.Limiter) *Accountant {
	return &Accountant{globalCap: globalCap, globalBucket: globalCap, tickLimiter: limiter}
}

// GlobalBucket returns the current global read allowance.
func (a *Accountant) GlobalBucket() int64 { return a.globalBucket }

// ConsumeGlobal decrements the global bucket by n octets, clamping at
// zero (§3.2 invariant 7: never negative).
func (a *Accountant) ConsumeGlobal(n int64) {
	a.globalBucket -= n
	if a.globalBucket < 0 {
		a.globalBucket = 0
	}
}

// Tick refills the global bucket if the tick limiter allows it right
// now (it always does on a true one-second cadence; the limiter exists
// so bursts of manual Tick calls in tests don't over-refill). Returns
// whether a refill actually happened.
func (a *Accountant) Tick() bool {
	if a.tickLimiter != nil && !a.tickLimiter.Allow() {
		return false
	}
	a.globalBucket = a.globalCap
	return true
}

// ReceiverBucketShouldIncrease implements §4.7's predicate exactly:
// true iff kind=Or, state=Open, bandwidth>0, and the current level is
// below 9*bandwidth.
func ReceiverBucketShouldIncrease(c *connrec.Conn) bool {
	if c.Kind != connrec.KindOr || c.State != connrec.StateOpen {
		return false
	}
	if c.Bandwidth == 0 {
		return false
	}
	return c.ReceiverBucket < int64(9)*int64(c.Bandwidth)
}

// CreditReceiverBucket adds n octets to c's receiver bucket, clamped to
// [0, 10*bandwidth] per §3.2 invariant 3.
func CreditReceiverBucket(c *connrec.Conn, n int64) {
	limit := int64(10) * int64(c.Bandwidth)
	c.ReceiverBucket += n
	if c.ReceiverBucket > limit {
		c.ReceiverBucket = limit
	}
}

// ConsumeReceiverBucket decrements c's receiver bucket by n octets,
// clamping at zero.
func ConsumeReceiverBucket(c *connrec.Conn, n int64) {
	c.ReceiverBucket -= n
	if c.ReceiverBucket < 0 {
		c.ReceiverBucket = 0
	}
}
