package obs

import "sync/atomic"

// Sequence hands out monotonically increasing event sequence numbers.
type Sequence struct {
	next atomic.Uint64
}

// Next returns the next sequence number, starting at 1.
func (s *Sequence) Next() uint64 {
	if s == nil {
		return 0
	}
	return s.next.Add(1)
}

// Last returns the most recently issued sequence number.
func (s *Sequence) Last() uint64 {
	if s == nil {
		return 0
	}
	return s.next.Load()
}
