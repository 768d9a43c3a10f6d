// Package location aggregates position fixes from the active telemetry
// source and derives approach guidance against the selected target.
//
// All mutations go through one mutex; readers call Snapshot and receive an
// independent copy.
package location
