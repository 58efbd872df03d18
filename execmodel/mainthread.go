package execmodel

import (
	"sync"

	"github.com/execfabric/execfabric/xerr"
)

// mainThreadOnly permits exactly one task to execute at a time, mirroring
// a single-threaded Python interpreter's restriction that only one piece
// of worker code may run at once. A second Spawn while one is in flight
// does not block and deadlock the caller (the Gateway's single receiver
// goroutine) — it fails immediately with MainThreadOnlyDeadlock, which the
// Gateway turns into a CHANNEL_CLOSE_ERROR on the offending channel
// (spec §4.4, §5, grounded on BaseGateway._thread_receiver's single
// receive-lock: a receiver that blocked waiting for the exec slot would
// starve every other channel on the same gateway).
type mainThreadOnly struct {
	mu   sync.Mutex
	wg   sync.WaitGroup
	busy bool
	done chan struct{}
}

func newMainThreadOnly() *mainThreadOnly {
	return &mainThreadOnly{done: make(chan struct{})}
}

func (m *mainThreadOnly) Name() string { return "main_thread_only" }

func (m *mainThreadOnly) Spawn(fn Task) error {
	m.mu.Lock()
	select {
	case <-m.done:
		m.mu.Unlock()
		return errStopped
	default:
	}
	if m.busy {
		m.mu.Unlock()
		return xerr.NewRemoteError(xerr.MainThreadOnlyDeadlockText)
	}
	m.busy = true
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			m.busy = false
			m.mu.Unlock()
			m.wg.Done()
		}()
		fn()
	}()
	return nil
}

func (m *mainThreadOnly) Stop() {
	m.mu.Lock()
	select {
	case <-m.done:
	default:
		close(m.done)
	}
	m.mu.Unlock()
	m.wg.Wait()
}
