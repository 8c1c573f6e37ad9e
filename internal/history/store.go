package history

import (
	"sync"
	"time"

	"github.com/ppiankov/pulseguard/internal/model"
)

// DefaultCapacity is the number of records kept when none is configured.
const DefaultCapacity = 1000

// Store is a bounded ring of recent records. The monitor loop is the only
// writer; readers get copies and never alias the ring.
type Store struct {
	mu      sync.RWMutex
	buf     []model.Record
	head    int // index of the oldest record
	size    int
	nextSeq uint64
}

// New creates a Store holding at most capacity records.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{buf: make([]model.Record, capacity)}
}

// Append stores a sample and its verdict, evicting the oldest record when full.
func (s *Store) Append(sample model.Sample, verdict model.Verdict, mark model.Mark) model.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSeq++
	rec := model.Record{
		Seq:          s.nextSeq,
		Timestamp:    sample.ReceivedAt,
		Sample:       sample,
		Verdict:      verdict,
		Intervention: mark,
	}

	if s.size < len(s.buf) {
		s.buf[(s.head+s.size)%len(s.buf)] = rec
		s.size++
	} else {
		s.buf[s.head] = rec
		s.head = (s.head + 1) % len(s.buf)
	}
	return rec
}

// Annotate updates the intervention mark of a record still in the ring.
// Returns false when the record was already evicted.
func (s *Store) Annotate(seq uint64, mark model.Mark) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < s.size; i++ {
		idx := (s.head + i) % len(s.buf)
		if s.buf[idx].Seq == seq {
			s.buf[idx].Intervention = mark
			return true
		}
	}
	return false
}

// Snapshot returns a copy of all records, oldest first.
func (s *Store) Snapshot() []model.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Record, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.buf[(s.head+i)%len(s.buf)]
	}
	return out
}

// Since returns copies of records received at or after t, oldest first.
func (s *Store) Since(t time.Time) []model.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Record
	for i := 0; i < s.size; i++ {
		rec := s.buf[(s.head+i)%len(s.buf)]
		if !rec.Timestamp.Before(t) {
			out = append(out, rec)
		}
	}
	return out
}

// Latest returns the newest record.
func (s *Store) Latest() (model.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.size == 0 {
		return model.Record{}, false
	}
	return s.buf[(s.head+s.size-1)%len(s.buf)], true
}

// Len returns the number of records held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Capacity returns the ring size.
func (s *Store) Capacity() int {
	return len(s.buf)
}
