package capture

import "sync"

// DefaultWarmupFrames is the number of frames dropped after arming while
// sensor exposure settles.
const DefaultWarmupFrames = 10

// Admission decides whether an incoming frame is processed at all. It never
// blocks the producer: a rejected frame is simply released by the caller.
//
// Frames are dropped when capture is not armed, while the first warmup
// frames since arming are still arriving, or while another frame is in flight.
type Admission struct {
	mu       sync.Mutex
	warmup   uint64
	armed    bool
	inFlight bool
	total    uint64
	sinceArm uint64
}

// NewAdmission creates a disarmed Admission. A negative warmup uses
// DefaultWarmupFrames; zero admits from the first frame.
func NewAdmission(warmup int) *Admission {
	if warmup < 0 {
		warmup = DefaultWarmupFrames
	}
	return &Admission{warmup: uint64(warmup)}
}

// Arm enables admission. The warmup count restarts only when coming from the
// disarmed state.
func (a *Admission) Arm() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.armed {
		a.sinceArm = 0
	}
	a.armed = true
}

// Disarm stops admitting frames. A frame already in flight still finishes.
func (a *Admission) Disarm() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.armed = false
}

// Armed reports whether frames are currently admitted.
func (a *Admission) Armed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.armed
}

// Admit counts the frame and reports whether it may be processed. On true the
// caller owns the single in-flight slot and must call Release when done.
func (a *Admission) Admit() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	if !a.armed {
		return false
	}
	a.sinceArm++
	if a.sinceArm <= a.warmup {
		return false
	}
	if a.inFlight {
		return false
	}
	a.inFlight = true
	return true
}

// Release frees the in-flight slot.
func (a *Admission) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inFlight = false
}

// InFlight reports whether a frame is currently being processed.
func (a *Admission) InFlight() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inFlight
}

// Total returns the number of frames offered since creation.
func (a *Admission) Total() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}
