package compose

import (
	"log/slog"
	"sync"
)

// sinkStatus keeps the last sink error as a string. Transitions are logged
// once rather than on every failing cycle.
type sinkStatus struct {
	path   string
	logger *slog.Logger

	mu       sync.Mutex
	msg      string
	failures uint64
	sent     uint64
}

func (s *sinkStatus) record(err error) {
	s.mu.Lock()
	prev := s.msg
	if err != nil {
		s.msg = err.Error()
		s.failures++
	} else {
		s.msg = ""
		s.sent++
	}
	cur := s.msg
	s.mu.Unlock()

	switch {
	case cur != "" && cur != prev:
		s.logger.Warn("output sink error", "path", s.path, "error", cur)
	case cur == "" && prev != "":
		s.logger.Info("output sink recovered", "path", s.path)
	}
}

func (s *sinkStatus) get() (msg string, sent, failures uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.msg, s.sent, s.failures
}
