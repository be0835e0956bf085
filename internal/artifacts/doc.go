// Package artifacts manages final stem files on disk. Completed jobs place
// their stems under a per-job directory in the configured output root, and the
// manager prunes the oldest directories when the root grows past its size
// budget or the filesystem runs low on free space.
package artifacts
