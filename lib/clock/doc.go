// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for the relay.
//
// Code that waits (the attachment retry delay, the relay's poll
// interval) or stamps times (claim records, watchdog states) takes a
// Clock instead of calling the time package. Production wiring uses
// Real(). Tests use Fake(), which only moves when Advance is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go client.SendAttachment(ctx, recipient, path)
//	c.WaitForTimers(1)
//	c.Advance(5 * time.Second)
//
// WaitForTimers blocks until the goroutine under test has registered
// its wait, which removes the race between registering a timer and
// advancing past it.
package clock
