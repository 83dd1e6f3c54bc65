// Package clock provides the wall-clock source embedded in every lock so
// a remote lock cleaner can judge whether the lock's owner is plausibly
// still alive. It is deliberately separate from the timestamp oracle
// (package oracle): wall-clock milliseconds and the oracle's logical
// timestamps are different axes and must never be confused, mirroring how
// the Themis Java client keeps System.currentTimeMillis() calls distinct
// from its timestamp-service calls.
package clock

import "time"

// Clock returns the current wall-clock time in milliseconds since the
// Unix epoch. It exists as an interface so tests can supply a fake clock
// instead of sleeping real time to exercise lock TTL expiry.
type Clock interface {
	NowMillis() int64
}

// System is the production Clock backed by time.Now.
type System struct{}

// NowMillis returns time.Now() in epoch milliseconds.
func (System) NowMillis() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

// Fake is a Clock with a settable time, for tests that need to simulate
// TTL expiry deterministically.
type Fake struct {
	millis int64
}

// NewFake creates a Fake clock starting at the given epoch-millisecond
// time.
func NewFake(startMillis int64) *Fake {
	return &Fake{millis: startMillis}
}

// NowMillis returns the fake clock's current time.
func (f *Fake) NowMillis() int64 { return f.millis }

// Advance moves the fake clock forward by delta milliseconds.
func (f *Fake) Advance(delta int64) { f.millis += delta }

// Set pins the fake clock to an absolute epoch-millisecond time.
func (f *Fake) Set(millis int64) { f.millis = millis }
