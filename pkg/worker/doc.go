// Package worker contains the job-processing loop used by isolated worker
// processes: pull a task from the queue, load the job record, run the
// workflow registered for the job type, and persist the feedback document
// and the terminal status.
//
// Workers hold no scheduling logic of their own. One worker processes one
// job at a time; concurrency comes from running several workers against
// the same store and queue (see stepflow.LocalRunner and the
// stepflow-worker command).
package worker
