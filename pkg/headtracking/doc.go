// ABOUTME: Head-tracking package
// ABOUTME: Pose packet codec, lock-free publication, transports and orientation interpolation
// Package headtracking receives listener orientation from an external
// sensor and turns it into a smooth orientation the renderer can sample
// once per block.
//
// Packets arrive on a transport goroutine (UDP, serial or a pcap replay),
// are decoded and validated, and are handed to a Publisher that keeps only
// strictly increasing sequence numbers. Audio threads read the latest
// snapshot without locking and feed it to their own Interpolator:
//
//	pub := headtracking.NewPublisher(headtracking.PublisherConfig{})
//	l, err := headtracking.Listen(headtracking.ListenerConfig{}, pub)
//	go l.Run(ctx)
//
//	// audio thread
//	var snap headtracking.Snapshot
//	if pub.Latest(&snap) {
//		interp.Ingest(snap, nowMs)
//	}
//	q := interp.At(nowMs)
package headtracking
