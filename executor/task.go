package executor

// Task represents a unit of work running, or finished running, on an Executor.
type Task struct {
	id   uint32
	done chan struct{}
}

// ID returns the Executor-assigned, monotonically increasing task number.
func (t *Task) ID() uint32 { return t.id }

// Done returns a channel that is closed when the task's WorkFunc returns.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task's WorkFunc returns.
func (t *Task) Wait() {
	<-t.done
}
