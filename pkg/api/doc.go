// Package api defines the public types of the stepflow workflow executor:
// workflows, steps, argument bindings, operations, the feedback document,
// and the observer callbacks.
//
// Most users should import the root stepflow package instead, which
// re-exports these types together with the builder and the runner.
package api
