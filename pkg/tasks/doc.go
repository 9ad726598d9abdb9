// Package tasks implements the shared build steps used by our tooling
// projects: cleaning, linting, dependency checking, compiling, testing and a
// few composites tying them together. Each step is registered by name in an
// explicit Registry and declares which steps have to finish first; the heavy
// lifting is always delegated to the project's external toolchain.
// A logger has to be attached to the context via WithLogger before any task
// runs.
package tasks
