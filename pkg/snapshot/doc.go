// ABOUTME: Snapshot publication package
// ABOUTME: Double-buffered values shared between a real-time writer and readers
// Package snapshot publishes fixed-size values from one real-time writer
// to any number of readers without locks or allocation.
//
// A DoubleBuffer holds two copies of the value. The writer fills the copy
// no reader holds and flips the front index; readers pin the front copy
// with a reference count while they copy it out. When a reader still
// holds the back copy the publish is skipped and reported, so the writer
// never waits.
package snapshot
