// Package directory is the agent registry the coordination bus reads
// from.
//
// The bus depends only on the Directory interface: registration
// lookups, collaboration recording, and advisory preview-listener
// registration. SQLiteDirectory is the production implementation;
// MockDirectory backs tests.
//
// Registrations are point-in-time snapshots. The bus never mutates
// them, and a snapshot handed to a subscriber stays valid even after
// the underlying row changes.
package directory
