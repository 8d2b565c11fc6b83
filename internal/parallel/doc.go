// Package parallel runs independent jobs on a bounded worker pool.
//
// The scanner uses it to validate candidate task files concurrently; each
// job reports a Result keyed by its ID and failures never stop other jobs
// unless the pool was created fail-fast.
package parallel
