// Package execmodel abstracts how a worker Gateway schedules inbound
// CHANNEL_EXEC tasks (spec §4.4). It is grounded on the receiver-lock +
// single exec-queue structure of original_source/execnet's
// gateway_base.py (BaseGateway._thread_receiver, SlaveGateway.serve):
// the receiver always runs in its own goroutine and feeds a queue that an
// execution backend drains, but the backends differ in how many tasks may
// run concurrently.
package execmodel

import "github.com/execfabric/execfabric/xerr"

// Task is one scheduled unit of work: run the function, signalling done
// when finished. Gateway builds Task closures that bind a Channel and
// source text (spec §4.6).
type Task func()

// Model schedules Tasks submitted by a Gateway's receiver loop (spec
// §4.4). Implementations decide concurrency policy; Gateway itself is
// agnostic to which one is plugged in.
type Model interface {
	// Spawn schedules fn to run, returning immediately. It never blocks
	// the caller on fn's completion.
	Spawn(fn Task) error
	// Name identifies the backend.
	Name() string
	// Stop requests the backend to stop accepting new tasks and wait for
	// in-flight ones to finish.
	Stop()
}

// New constructs a Model by name: "thread" (default, one goroutine per
// task), "main_thread_only" (exactly one task at a time, a second
// concurrent submission fails instead of deadlocking), or "eventlet" /
// "gevent" (cooperative backends that, in Go, both reduce to the thread
// backend's goroutine-per-task scheduling — Go's scheduler is already
// cooperative M:N, so there is no separate green-thread runtime to bind
// to; the distinct names are accepted for XSpec compatibility with
// callers ported from the Python original, spec §9, and the returned
// Model's Name is "thread").
func New(name string) (Model, error) {
	switch name {
	case "", "thread":
		return newThreaded(), nil
	case "main_thread_only":
		return newMainThreadOnly(), nil
	case "eventlet", "gevent":
		return newThreaded(), nil
	default:
		return nil, xerr.NewDumpError("unknown exec model %q", name)
	}
}
