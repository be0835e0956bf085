// Package stemcache persists the durable URL to artifact-set mapping that
// lets repeat submissions skip recomputation.
//
// The cache is keyed by source URL with at most one row per URL; a store for
// an existing key replaces the row wholesale. Lookup of a missing key is not
// an error. Writes commit before Store returns, so a crash immediately after
// a successful pipeline run cannot lose the result.
package stemcache
