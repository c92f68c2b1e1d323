package knn

import "sync"

// DefaultSmoothWindow is the number of recent predictions the smoother keeps.
const DefaultSmoothWindow = 15

// Smoother stabilizes per-frame labels with a majority vote over a sliding window.
type Smoother struct {
	mu     sync.Mutex
	size   int
	labels []string
}

// NewSmoother creates a smoother over the last size labels.
// A size below 1 disables smoothing (window of one).
func NewSmoother(size int) *Smoother {
	if size < 1 {
		size = 1
	}
	return &Smoother{size: size, labels: make([]string, 0, size)}
}

// Push records a label and returns the window's majority label.
// Ties go to the most recently seen of the tied labels.
func (s *Smoother) Push(label string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.labels) == s.size {
		copy(s.labels, s.labels[1:])
		s.labels = s.labels[:s.size-1]
	}
	s.labels = append(s.labels, label)

	return s.current()
}

// Current returns the majority label without recording anything.
// Returns "" when the window is empty.
func (s *Smoother) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current()
}

func (s *Smoother) current() string {
	counts := make(map[string]int, len(s.labels))
	lastSeen := make(map[string]int, len(s.labels))
	for i, l := range s.labels {
		counts[l]++
		lastSeen[l] = i
	}

	best, found := "", false
	for l, n := range counts {
		if !found || n > counts[best] || (n == counts[best] && lastSeen[l] > lastSeen[best]) {
			best, found = l, true
		}
	}
	return best
}

// Len returns the number of labels in the window.
func (s *Smoother) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.labels)
}

// Reset empties the window.
func (s *Smoother) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels = s.labels[:0]
}
