// ABOUTME: Reference-counted owner of the process-wide Graph
// ABOUTME: Instances acquire on creation and release on destruction
package scene

import "sync"

// Service hands every instance in a process the same Graph. The Graph is
// created by the first Acquire and dropped when the last holder releases.
// Acquire and Release lock and allocate, so call them from instance
// setup and teardown, never from an audio thread.
type Service struct {
	mu       sync.Mutex
	capacity int
	graph    *Graph
	refs     int
}

// NewService returns a Service whose Graphs hold capacity slots.
func NewService(capacity int) *Service {
	return &Service{capacity: capacity}
}

// Acquire returns the shared Graph, creating it if needed.
func (s *Service) Acquire() *Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.graph == nil {
		s.graph = NewGraph(s.capacity)
	}
	s.refs++
	return s.graph
}

// Release drops one reference. Extra releases are ignored.
func (s *Service) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs == 0 {
		return
	}
	s.refs--
	if s.refs == 0 {
		s.graph = nil
	}
}

// Refs returns the number of live holders.
func (s *Service) Refs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}
