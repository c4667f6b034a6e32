package capture

import (
	"errors"
	"sync"
	"time"
)

// ErrFramesExhausted is returned by a non-looping MockCamera once every
// queued frame has been delivered.
var ErrFramesExhausted = errors.New("mock camera: frames exhausted")

// MockCamera replays a fixed frame sequence. Each read returns a shallow copy
// stamped with a fresh sequence number and timestamp; plane data is shared.
type MockCamera struct {
	mu     sync.Mutex
	frames []*Frame
	next   int
	loop   bool
	open   bool
	fps    int
	seq    uint64
	reads  int
}

// NewMockCamera creates a MockCamera over frames. With loop set, playback
// wraps around instead of returning ErrFramesExhausted.
func NewMockCamera(frames []*Frame, loop bool) *MockCamera {
	return &MockCamera{frames: frames, loop: loop, fps: DefaultFPS}
}

// Open starts playback from the first frame.
func (c *MockCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = true
	c.next = 0
	return nil
}

func (c *MockCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	return nil
}

func (c *MockCamera) ReadFrame() (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case !c.open:
		return nil, ErrCameraNotOpen
	case len(c.frames) == 0:
		return nil, ErrFramesExhausted
	case c.next == len(c.frames) && !c.loop:
		return nil, ErrFramesExhausted
	case c.next == len(c.frames):
		c.next = 0
	}

	f := *c.frames[c.next]
	c.next++
	c.seq++
	c.reads++
	f.Seq = c.seq
	f.Timestamp = time.Now()
	return &f, nil
}

// SetFPS records fps; values <= 0 are ignored as with the real camera.
func (c *MockCamera) SetFPS(fps int) {
	if fps <= 0 {
		return
	}
	c.mu.Lock()
	c.fps = fps
	c.mu.Unlock()
}

func (c *MockCamera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}

func (c *MockCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Reads reports how many frames have been delivered since creation.
func (c *MockCamera) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// SetFrames swaps the playback sequence and rewinds to its start.
func (c *MockCamera) SetFrames(frames []*Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = frames
	c.next = 0
}
