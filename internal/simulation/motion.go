package simulation

import (
	"fmt"
	"time"
)

// Motion is a drive command being played back over several ticks so the robot
// never moves faster than the drive's declared velocity.
type Motion struct {
	DriveID   string
	Magnitude float64
	Delta     PoseDelta
	Duration  time.Duration

	elapsed time.Duration
	applied PoseDelta
}

// NewMotion creates a motion that spreads delta evenly over duration.
func NewMotion(driveID string, magnitude float64, delta PoseDelta, duration time.Duration) *Motion {
	if duration < 0 {
		duration = 0
	}
	return &Motion{DriveID: driveID, Magnitude: magnitude, Delta: delta, Duration: duration}
}

// Advance moves the motion forward by dt and returns the share of the delta to
// apply for this step. The last step returns the exact remainder, so the shares
// always sum to Delta.
func (m *Motion) Advance(dt time.Duration) (PoseDelta, bool) {
	if m.Done() {
		return PoseDelta{}, true
	}
	m.elapsed += dt
	if m.elapsed >= m.Duration {
		m.elapsed = m.Duration
		step := m.Delta.Sub(m.applied)
		m.applied = m.Delta
		return step, true
	}
	target := m.Delta.Scale(float64(m.elapsed) / float64(m.Duration))
	step := target.Sub(m.applied)
	m.applied = target
	return step, false
}

// Done reports whether the full delta has been handed out.
func (m *Motion) Done() bool {
	return m.applied == m.Delta && m.elapsed >= m.Duration
}

// Progress returns the completed fraction in [0, 1].
func (m *Motion) Progress() float64 {
	if m.Duration == 0 {
		if m.Done() {
			return 1
		}
		return 0
	}
	return float64(m.elapsed) / float64(m.Duration)
}

func (m *Motion) String() string {
	return fmt.Sprintf("Motion[%s %.3f] %s/%s", m.DriveID, m.Magnitude, m.elapsed, m.Duration)
}
