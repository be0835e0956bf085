// Package config loads, normalizes, and validates jamsplitter configuration
// from TOML. Path fields are tilde-expanded and made absolute during load so
// downstream packages never see relative paths.
package config
