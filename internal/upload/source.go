// Package upload produces bounded request bodies for the upload test and
// posts them to the probe service.
package upload

import "io"

// fill is the byte every upload body consists of; the server discards it.
const fill = '1'

// Counter receives the number of bytes handed to the transport.
type Counter interface {
	Add(delta int64) int64
}

// Source is an io.Reader producing exactly total bytes, or fewer when
// stopped. Every chunk is added to the shared counter as it is produced so
// samplers see in-flight progress.
type Source struct {
	total    int64
	produced int64
	counter  Counter
	stopped  func() bool
}

// NewSource returns a body of total bytes. counter and stopped may be nil.
func NewSource(total int64, counter Counter, stopped func() bool) *Source {
	return &Source{total: total, counter: counter, stopped: stopped}
}

func (s *Source) Read(p []byte) (int, error) {
	if s.produced >= s.total {
		return 0, io.EOF
	}
	if s.stopped != nil && s.stopped() {
		return 0, io.EOF
	}
	n := len(p)
	if remaining := s.total - s.produced; int64(n) > remaining {
		n = int(remaining)
	}
	for i := range p[:n] {
		p[i] = fill
	}
	s.produced += int64(n)
	if s.counter != nil {
		s.counter.Add(int64(n))
	}
	return n, nil
}

// Produced is the number of bytes handed out so far.
func (s *Source) Produced() int64 { return s.produced }

// Remaining is the number of bytes left before EOF.