package runtime

import "sync"

// inputSlot holds the latest submitted text. A submission overwrites any
// unread one and wakes a waiting Listen.
type inputSlot struct {
	mu    sync.Mutex
	text  string
	fresh bool
	wake  chan struct{}
}

func newInputSlot() *inputSlot {
	return &inputSlot{wake: make(chan struct{}, 1)}
}

func (s *inputSlot) submit(text string) {
	s.mu.Lock()
	s.text = text
	s.fresh = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// clear discards unread input. The wake signal is drained first so a
// submission racing with clear is either discarded or fully visible.
func (s *inputSlot) clear() {
	select {
	case <-s.wake:
	default:
	}
	s.mu.Lock()
	s.text = ""
	s.fresh = false
	s.mu.Unlock()
}

func (s *inputSlot) take() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fresh {
		return "", false
	}
	s.fresh = false
	return s.text, true
}
