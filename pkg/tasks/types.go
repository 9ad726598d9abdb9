package tasks

import "context"

// ActionFunc is the unit of work a task performs. It blocks until the work is
// done; dependents observe completion, not just invocation start.
type ActionFunc func(ctx context.Context) error

// Task is a named unit of build work. Deps lists the task names that have to
// finish successfully before the action starts. A nil Action is valid for
// tasks that only aggregate prerequisites.
type Task struct {
	Name   string
	Desc   string
	Deps   []string
	Hidden bool
	Action ActionFunc
}
