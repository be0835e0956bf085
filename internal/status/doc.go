// Package status exposes read-only projections of job and cache state.
// Reporters read the durable stores directly on every call; nothing here
// caches or mutates.
package status
