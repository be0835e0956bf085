// Package pipeline sequences the download, separation, and conversion stages
// for a submitted URL, advancing the job record at each stage boundary. Cache
// hits bypass the engines entirely, and completed artifact sets are memoized
// so repeat submissions are free.
package pipeline
