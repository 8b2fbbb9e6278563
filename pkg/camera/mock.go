package camera

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockSource replays scripted frames for tests.
// A nil entry in the script produces ErrReadFailed for that read.
// After the script is exhausted the last frame repeats, unless
// FailWhenDone is set.
type MockSource struct {
	mu     sync.Mutex
	frames []*gocv.Mat
	pos    int
	closed bool

	// FailWhenDone makes reads past the end of the script fail.
	FailWhenDone bool

	// Reads counts Read calls.
	Reads int
}

// NewMockSource returns a source that replays frames in order.
// The source clones each frame so callers keep ownership of their Mats.
func NewMockSource(frames ...*gocv.Mat) *MockSource {
	m := &MockSource{}
	for _, f := range frames {
		if f == nil {
			m.frames = append(m.frames, nil)
			continue
		}
		c := f.Clone()
		m.frames = append(m.frames, &c)
	}
	return m
}

// Read copies the next scripted frame into dst.
func (m *MockSource) Read(dst *gocv.Mat) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Reads++
	if m.closed {
		return ErrClosed
	}
	if len(m.frames) == 0 {
		return ErrReadFailed
	}

	idx := m.pos
	if idx >= len(m.frames) {
		if m.FailWhenDone {
			return ErrReadFailed
		}
		idx = len(m.frames) - 1
	} else {
		m.pos++
	}

	f := m.frames[idx]
	if f == nil {
		return ErrReadFailed
	}
	f.CopyTo(dst)
	return nil
}

// Push appends frames to the script.
func (m *MockSource) Push(frames ...*gocv.Mat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range frames {
		if f == nil {
			m.frames = append(m.frames, nil)
			continue
		}
		c := f.Clone()
		m.frames = append(m.frames, &c)
	}
}

// Close releases the scripted frames.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, f := range m.frames {
		if f != nil {
			f.Close()
		}
	}
	m.frames = nil
	return nil
}
