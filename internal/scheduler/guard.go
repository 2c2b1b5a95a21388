package scheduler

import "sync/atomic"

// RunGuard lets at most one run of a job proceed at a time.
type RunGuard struct {
	running atomic.Bool
}

// TryRun runs fn unless a previous run is still active, and reports
// whether fn ran.
func (g *RunGuard) TryRun(fn func()) bool {
	if !g.running.CompareAndSwap(false, true) {
		return false
	}
	defer g.running.Store(false)
	fn()
	return true
}

// Running reports whether a run is in progress.
func (g *RunGuard) Running() bool {
	return g.running.Load()
}
