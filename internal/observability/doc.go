// Package observability reads and writes the append-only event log under
// the state directory, derives metrics from it on demand and evaluates
// alerts against the task queue and the session lock.
package observability
