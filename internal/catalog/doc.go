// Package catalog defines the domain model shared by the synchronizer, the
// stores, and the archival pipeline: stations, programs, the archive status
// state machine, and the narrow interfaces the core consumes.
package catalog
