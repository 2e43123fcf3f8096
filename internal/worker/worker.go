// Package worker provides the halt/goroutine-lifecycle primitive used by
// every long-lived loop in this module: the handshake runner and the
// discovery log writer embed a Worker, and the medium environment's
// executor holds one, instead of hand-rolling a done channel and a
// WaitGroup.
package worker

import "sync"

// Worker is embedded by any type that runs one or more background
// goroutines which must be told to stop and waited on. Call Go to launch a
// loop; the loop should select on HaltCh() alongside its own channels and
// call Done when it returns. Call Halt to request shutdown and block until
// every launched loop has called Done.
type Worker struct {
	sync.WaitGroup

	haltOnce sync.Once
	haltedCh chan struct{}
	initOnce sync.Once
}

func (w *Worker) init() {
	w.initOnce.Do(func() {
		w.haltedCh = make(chan struct{})
	})
}

// Go launches fn on a new goroutine, registering it with the internal
// WaitGroup. fn is responsible for calling Done before it returns.
func (w *Worker) Go(fn func()) {
	w.init()
	w.Add(1)
	go fn()
}

// HaltCh returns the channel that is closed when Halt is first called.
// Loops select on it to learn they should stop.
func (w *Worker) HaltCh() chan struct{} {
	w.init()
	return w.haltedCh
}

// Halt closes the halt channel (idempotently) and blocks until every
// goroutine launched via Go has called Done.
func (w *Worker) Halt() {
	w.init()
	w.haltOnce.Do(func() {
		close(w.haltedCh)
	})
	w.Wait()
}
