// Package activity persists the audit trail emitted by credential flows. The
// Repository implements types.ActivitySink for writes and exposes a small
// read side (cursor-paginated feeds and per-verb counts). SanitizingSink masks
// token and password fields before any record reaches a sink.
package activity
