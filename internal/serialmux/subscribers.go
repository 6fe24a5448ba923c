package serialmux

import (
	"sync"

	"github.com/google/uuid"
)

// subscriberSet owns the subscriber channels of a mux. Once closed it hands
// out channels that are already closed so late readers never block.
type subscriberSet struct {
	mu     sync.Mutex
	chans  map[string]chan string
	buffer int
	closed bool
}

func newSubscriberSet(buffer int) *subscriberSet {
	return &subscriberSet{chans: make(map[string]chan string), buffer: buffer}
}

func (s *subscriberSet) add() (string, chan string) {
	id := uuid.NewString()
	ch := make(chan string, s.buffer)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return id, ch
	}
	s.chans[id] = ch
	return id, ch
}

func (s *subscriberSet) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.chans[id]; ok {
		close(ch)
		delete(s.chans, id)
	}
}

// broadcast offers line to every subscriber, skipping any that are full.
func (s *subscriberSet) broadcast(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.chans {
		select {
		case ch <- line:
		default:
		}
	}
}

// closeAll closes every channel. It reports false if the set was already
// closed.
func (s *subscriberSet) closeAll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	for id, ch := range s.chans {
		close(ch)
		delete(s.chans, id)
	}
	return true
}

func (s *subscriberSet) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *subscriberSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chans)
}
