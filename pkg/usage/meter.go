// Package usage counts model tokens over the lifetime of the process.
package usage

import "sync/atomic"

// Meter is a monotonically non-decreasing token counter, safe for concurrent use.
type Meter struct {
	total atomic.Int64
}

// Add records n tokens and returns the new total. Non-positive n is ignored.
func (m *Meter) Add(n int64) int64 {
	if n <= 0 {
		return m.total.Load()
	}
	return m.total.Add(n)
}

// Total returns the tokens recorded so far.
func (m *Meter) Total() int64 { return m.total.Load() }
