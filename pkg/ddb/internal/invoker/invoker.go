// Package invoker provides the goroutine-spawning abstraction used by every
// long-running component (transport accept loop, heartbeat loop,
// health-checker, election watchdog, replication sweeper). Routing all
// goroutine creation through one seam keeps lifecycles observable and lets
// tests join on every spawned goroutine before asserting state or running
// goleak.
package invoker

import "sync"

// Invoker spawns a function as a goroutine and tracks it.
type Invoker interface {
	// Spawn runs f in a new goroutine.
	Spawn(f func())

	// Stop blocks until every spawned goroutine that has not returned
	// has finished.
	Stop()
}

// WaitGroupInvoker is the production Invoker: every spawned function
// registers on a sync.WaitGroup so Stop can join them all.
type WaitGroupInvoker struct {
	group sync.WaitGroup
}

// New returns a WaitGroupInvoker ready for use.
func New() *WaitGroupInvoker {
	return &WaitGroupInvoker{}
}

func (w *WaitGroupInvoker) Spawn(f func()) {
	w.group.Add(1)
	go func() {
		defer w.group.Done()
		f()
	}()
}

func (w *WaitGroupInvoker) Stop() {
	w.group.Wait()
}
