package automation

import "golang.org/x/sync/errgroup"

// WorkerPool bounds the number of concurrently running blocking executors
// (shell, webhook, device-command) so event ingestion on the pipeline
// goroutine never itself blocks, per spec.md §5.
type WorkerPool struct {
	g *errgroup.Group
}

// NewWorkerPool returns a pool that runs at most limit submitted functions
// concurrently.
func NewWorkerPool(limit int) *WorkerPool {
	g := &errgroup.Group{}
	g.SetLimit(limit)
	return &WorkerPool{g: g}
}

// Submit schedules fn to run, blocking the caller only long enough to
// acquire a pool slot (never for fn's own duration).
func (p *WorkerPool) Submit(fn func()) {
	p.g.Go(func() error {
		fn()
		return nil
	})
}

// Wait blocks until every submitted function has returned. Used during
// shutdown to bound how long the process waits for in-flight executors.
func (p *WorkerPool) Wait() {
	_ = p.g.Wait()
}
