// Package logging constructs slog loggers for the daemon and CLI.
//
// Loggers are configured from the application config: console output uses a
// compact single-line handler, json output uses slog's JSON handler with
// normalized keys. Helpers expose typed attribute constructors and the
// standardized field names used across packages so log output stays
// greppable (component, job_id, stage, event_type).
package logging
