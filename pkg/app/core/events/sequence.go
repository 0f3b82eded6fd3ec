package events

import "sync/atomic"

// Sequencer hands out strictly increasing event sequence numbers.
// Fresh start begins at 0; after a restart it resumes from the stored value.
type Sequencer struct {
	last atomic.Uint64
}

func NewSequencer(start uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(start)
	return s
}

// Current returns the last issued sequence number.
func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}

// Stamp numbers evs starting after Current without issuing them. Commit with
// Advance once the events are durable.
func (s *Sequencer) Stamp(evs []Event) uint64 {
	seq := s.Current()
	for i := range evs {
		seq++
		evs[i].Seq = seq
	}
	return seq
}

// Advance moves the counter forward to v. Lower values are ignored.
func (s *Sequencer) Advance(v uint64) {
	for {
		cur := s.last.Load()
		if v <= cur || s.last.CompareAndSwap(cur, v) {
			return
		}
	}
}
