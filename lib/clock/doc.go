// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock interface parameter instead of
// calling time.Now, time.After, time.NewTicker, or time.Sleep
// directly. In production, Real() provides the standard library
// behavior. In tests, Fake() provides a deterministic clock that
// advances only when Advance is called — so a test can fire the
// daemon's periodic sysfs resync without waiting thirty real seconds.
//
// # Wiring Pattern
//
// Add a Clock field to structs that use time:
//
//	type Daemon struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// In production:
//
//	d := &Daemon{clock: clock.Real()}
//
// In tests:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	d := &Daemon{clock: c}
//	// ... start goroutines ...
//	c.WaitForTimers(1)         // wait for the resync ticker to register
//	c.Advance(30 * time.Second) // fire it deterministically
//
// # FakeClock Synchronization
//
// When a goroutine calls Sleep, After, or NewTicker on a FakeClock,
// it registers a pending waiter. Use WaitForTimers to block until a
// specific number of waiters are registered before calling Advance.
// This eliminates the race between timer registration and time
// advancement that plagues tests using time.Sleep for
// synchronization.
package clock
