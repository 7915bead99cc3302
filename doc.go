// Package stepflow provides a step-based workflow executor for long,
// multi-stage processing jobs that run inside an isolated worker process.
//
// Stepflow grew out of geodata processing backends, where a single job —
// packaging a project for field devices, applying a batch of collaborative
// deltas — is a fixed pipeline of operations that must be wired together
// before anything runs, and whose partial progress must survive a mid-run
// failure as structured, machine-readable feedback.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Operation
//  2. Step
//  3. Workflow
//  4. Runner
//  5. Feedback
//
// # Operation
//
// An Operation is an external callable with an explicit descriptor: a name,
// a fixed list of named parameters, and a Call function. Stepflow knows
// nothing about what an operation does; downloading files, launching a
// container, or diffing layers all look the same to it.
//
// # Step
//
// A Step binds one operation to concrete argument sources and names its
// return values. An argument is a literal, a reference to a named return of
// an earlier step (FromStep), or a path inside the per-run working
// directory (WorkDir). A subset of the returns can be marked as outputs,
// meaning they are safe to externalize to end users.
//
// # Workflow
//
// A Workflow is an ordered sequence of steps with identity and version
// metadata. The whole graph is validated at construction time: every
// operation parameter must be bound exactly once, every reference must
// point at an earlier step and a declared return name. A workflow that
// validates cannot fail at run time for wiring reasons.
//
// # Runner
//
// Run executes the steps strictly in declared order, single-threaded, in a
// working directory created fresh for the run. Execution stops at the
// first failure, but the feedback document is always assembled and
// delivered: completed steps keep their returns and outputs, untouched
// steps appear with their stage only, and the failure is captured as an
// error message plus a formatted stack.
//
// # Job layer
//
// For deployments that process jobs from a queue, the worker package pulls
// job records from a store, builds the workflow registered for the job
// type, runs it, and persists the resulting feedback and terminal status.
// In-memory and SQLite-backed stores and queues are provided, and
// LocalRunner bundles them for development and tests.
package stepflow
