// Package daemon combines the queue poller, the pipeline orchestrator, and
// the stale-job reconciler into a single lifecycle with flock-based locking
// to prevent multiple concurrent instances.
package daemon
