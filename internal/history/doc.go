// Package history persists a session log of bridge lifecycle events to
// SQLite: connections to the guiding server coming and going, and the
// guide star being acquired or lost.
//
// Each process run is one session, identified by a generated UUID. Events
// reference their session, so overlapping observing nights stay separable
// when querying the log afterwards.
//
// The log is strictly append-only from the bridge's point of view; rows
// are never updated or deleted here.
package history
