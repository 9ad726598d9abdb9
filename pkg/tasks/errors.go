package tasks

import "errors"

var (
	// ErrDuplicateTask is returned when a task name is registered twice.
	ErrDuplicateTask = errors.New("task is already registered")
	// ErrTaskNotFound is returned when a task or prerequisite name is unknown.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskRecursion is returned when a task ends up being its own prerequisite.
	ErrTaskRecursion = errors.New("task was called recursively")
	// ErrConfigNotFound is returned when a required configuration file is
	// missing from both search locations.
	ErrConfigNotFound = errors.New("configuration file not found")
	// ErrLintViolations is returned after all style violations have been reported.
	ErrLintViolations = errors.New("lint violations found")
	// ErrDependencyIssues is returned after invalid files or unused dependencies
	// have been reported.
	ErrDependencyIssues = errors.New("dependency issues found")
)
