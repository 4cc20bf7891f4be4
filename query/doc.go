// Package query exposes go-command compatible read handlers: the profile of
// the authenticated identity and its auth activity feed.
package query
