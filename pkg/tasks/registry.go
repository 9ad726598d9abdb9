package tasks

import (
	"context"
	"time"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"
)

// Registry holds every known task for one build invocation. It is owned by the
// host entry point and passed around explicitly; there is no package-global
// instance.
type Registry struct {
	tasks map[string]*Task
	order []string
}

// NewRegistry returns an empty task registry.
func NewRegistry() *Registry {
	return &Registry{
		tasks: make(map[string]*Task),
	}
}

// RegisterTask adds the given task to the registry. Registering a name twice
// is an error; the first registration stays untouched.
func (r *Registry) RegisterTask(task *Task) error {
	if task.Name == "" {
		return eris.New("task name must not be empty")
	}

	if _, exists := r.tasks[task.Name]; exists {
		return eris.Wrapf(ErrDuplicateTask, "task %s", task.Name)
	}

	r.tasks[task.Name] = task
	r.order = append(r.order, task.Name)
	return nil
}

// Register adds a task under the given name with the given prerequisite list.
func (r *Registry) Register(name string, deps []string, action ActionFunc) error {
	return r.RegisterTask(&Task{
		Name:   name,
		Deps:   deps,
		Action: action,
	})
}

// Has reports whether a task with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tasks[name]
	return ok
}

// Get returns the registered task with the given name.
func (r *Registry) Get(name string) (*Task, bool) {
	task, ok := r.tasks[name]
	return task, ok
}

// Names returns all registered task names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	return len(r.tasks)
}

type (
	runKey   struct{}
	runState struct {
		id     string
		done   map[string]bool // false = currently running, true = finished
		dryRun bool
		force  bool
	}
)

// NewRunContext attaches a fresh run state to the context. Within one run
// every task executes at most once; a new run starts with a clean slate.
// dryRun only prints external commands instead of executing them, force
// disables the skip checks of script tasks.
func NewRunContext(ctx context.Context, dryRun, force bool) context.Context {
	run := &runState{
		id:     nanoid.New(),
		done:   make(map[string]bool),
		dryRun: dryRun,
		force:  force,
	}

	return context.WithValue(ctx, runKey{}, run)
}

func getRun(ctx context.Context) *runState {
	run, _ := ctx.Value(runKey{}).(*runState)
	return run
}

func runDryRun(ctx context.Context) bool {
	if run := getRun(ctx); run != nil {
		return run.dryRun
	}
	return false
}

func runForce(ctx context.Context) bool {
	if run := getRun(ctx); run != nil {
		return run.force
	}
	return false
}

func (r *Registry) ensureRun(ctx context.Context) context.Context {
	if getRun(ctx) != nil {
		return ctx
	}

	ctx = NewRunContext(ctx, false, false)
	log(ctx).Debug().Str("run", getRun(ctx).id).Msg("starting run")
	return ctx
}

// Run executes the named task after running all of its prerequisites to
// completion. Every task runs at most once per run context; a prerequisite
// failure aborts the dependent task.
func (r *Registry) Run(ctx context.Context, name string) error {
	ctx = r.ensureRun(ctx)

	task, ok := r.tasks[name]
	if !ok {
		return eris.Wrapf(ErrTaskNotFound, "task %s", name)
	}

	return r.runTask(ctx, task)
}

// RunSequence executes the named tasks strictly in the given order, stopping
// at the first failure. The prerequisite graph alone only guarantees "before",
// not a relative order across siblings, which is why composites call this.
func (r *Registry) RunSequence(ctx context.Context, names ...string) error {
	ctx = r.ensureRun(ctx)

	for _, name := range names {
		task, ok := r.tasks[name]
		if !ok {
			return eris.Wrapf(ErrTaskNotFound, "task %s", name)
		}

		err := r.runTask(ctx, task)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *Registry) runTask(ctx context.Context, task *Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	run := getRun(ctx)
	finished, seen := run.done[task.Name]
	if seen {
		if finished {
			log(ctx).Debug().Msgf("Task %s already run", task.Name)
			return nil
		}

		return eris.Wrapf(ErrTaskRecursion, "task %s", task.Name)
	}

	run.done[task.Name] = false

	for _, dep := range task.Deps {
		if run.done[dep] {
			continue
		}

		depTask, ok := r.tasks[dep]
		if !ok {
			return eris.Wrapf(ErrTaskNotFound, "task %s depends on %s", task.Name, dep)
		}

		err := r.runTask(ctx, depTask)
		if err != nil {
			return eris.Wrapf(err, "Task %s failed due to its dependency %s", task.Name, dep)
		}
	}

	if task.Action != nil {
		log(ctx).Info().Str("task", task.Name).Msg("running")

		start := time.Now()
		err := task.Action(ctx)
		if err != nil {
			return err
		}

		log(ctx).Debug().Str("task", task.Name).Msgf("finished after %s", time.Since(start).Round(time.Millisecond))
	}

	run.done[task.Name] = true
	return nil
}
