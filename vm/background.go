package vm

import (
	"sync"

	"github.com/gofrs/uuid"
)

// ---------------------------------------------------------------------------
// Background compilation
// ---------------------------------------------------------------------------

// CompilationTask is one queued background optimization. Completion is
// signalled through a monitor: callers that need the result block in Wait
// until the helper thread finishes, whatever the outcome.
type CompilationTask struct {
	id  uuid.UUID
	ctx *ExecutionContext
	fn  *Function

	mu   sync.Mutex
	cond *sync.Cond
	done bool
	err  error
}

func newCompilationTask(ctx *ExecutionContext, fn *Function) *CompilationTask {
	t := &CompilationTask{
		id:  uuid.Must(uuid.NewV4()),
		ctx: ctx,
		fn:  fn,
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// ID returns the task's unique identifier.
func (t *CompilationTask) ID() uuid.UUID {
	return t.id
}

// Function returns the function being optimized.
func (t *CompilationTask) Function() *Function {
	return t.fn
}

// Run executes the task on a pool worker. The worker attaches to the
// context as a helper for the duration and detaches on every path out.
func (t *CompilationTask) Run() {
	scope := t.ctx.AttachHelper("optimizer")
	defer scope.Detach()

	_, err := t.ctx.CompileOptimizedFunction(t.fn)
	if err != nil {
		// Optimization failures are not fatal: the function keeps
		// running its baseline code.
		t.ctx.log.Errorf("background optimization of %s failed: %v", t.fn.QualifiedName(), err)
	}

	t.fn.optimizing.Store(false)

	t.mu.Lock()
	t.done = true
	t.err = err
	t.mu.Unlock()
	t.cond.Broadcast()
}

// Wait blocks until the task has run and returns its error, if any.
func (t *CompilationTask) Wait() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for !t.done {
		t.cond.Wait()
	}
	return t.err
}

// Done reports completion without blocking.
func (t *CompilationTask) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// ScheduleOptimization queues fn for background optimization. At most one
// task per function is in flight; redundant requests return nil. The
// returned task can be waited on, which tests and deterministic callers use
// to observe the tier-up.
func (ctx *ExecutionContext) ScheduleOptimization(fn *Function) *CompilationTask {
	if fn.HasOptimizedCode() {
		return nil
	}
	if !fn.optimizing.CompareAndSwap(false, true) {
		return nil
	}
	task := newCompilationTask(ctx, fn)
	if err := ctx.pool.Submit(task); err != nil {
		fn.optimizing.Store(false)
		ctx.log.Warningf("could not queue optimization of %s: %v", fn.QualifiedName(), err)
		return nil
	}
	ctx.log.Debugf("queued optimization of %s (task %s)", fn.QualifiedName(), task.id)
	return task
}
