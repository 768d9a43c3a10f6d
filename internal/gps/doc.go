// Package gps reads the local positioning sensor and emits position fixes.
//
// Two ingest paths are supported:
// - NMEA over a serial device (RMC for position/speed/track, GGA for altitude)
// - gpsd TPV reports over TCP
package gps
