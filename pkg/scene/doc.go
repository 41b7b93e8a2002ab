// ABOUTME: Scene graph package
// ABOUTME: Emitter slot arena, registration contract and room profile publication
// Package scene implements the shared emitter table that connects
// independently scheduled plugin instances.
//
// A Graph is a fixed arena of emitter slots addressed by integer index.
// Instances acquire a slot (or the single renderer role) with a claim
// token obtained through compare-and-swap, publish slot records under a
// sequence counter, and hand one block of mono audio per slot to the
// renderer. Nothing here blocks or allocates once the Graph exists, so
// every method except the Service lifecycle may run on an audio thread.
//
// Reads of another instance's slot may be one audio block stale; readers
// never wait for a writer.
package scene
