package simulation

import (
	"fmt"
	"sync"

	"simmer-sim/internal/common"
)

// Pose is the robot's position (inches) and heading (degrees in [0, 360)).
type Pose struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"`
}

// Position returns the pose's location as a vector.
func (p Pose) Position() common.Vector {
	return common.NewVector(p.X, p.Y)
}

// ToWorld maps a robot-local point into world coordinates.
func (p Pose) ToWorld(local common.Vector) common.Vector {
	return local.Rotate(p.Heading).Add(p.Position())
}

func (p Pose) String() string {
	return fmt.Sprintf("Pose[%.3f, %.3f @ %.2f°]", p.X, p.Y, p.Heading)
}

// PoseDelta is a world-frame change of pose.
type PoseDelta struct {
	DX       float64
	DY       float64
	DHeading float64
}

// Scale multiplies every component by f.
func (d PoseDelta) Scale(f float64) PoseDelta {
	return PoseDelta{DX: d.DX * f, DY: d.DY * f, DHeading: d.DHeading * f}
}

// Sub returns d - other.
func (d PoseDelta) Sub(other PoseDelta) PoseDelta {
	return PoseDelta{DX: d.DX - other.DX, DY: d.DY - other.DY, DHeading: d.DHeading - other.DHeading}
}

// Add returns d + other.
func (d PoseDelta) Add(other PoseDelta) PoseDelta {
	return PoseDelta{DX: d.DX + other.DX, DY: d.DY + other.DY, DHeading: d.DHeading + other.DHeading}
}

// PoseIntegrator owns the single live pose. All mutation goes through
// Integrate or Reset; readers always see a whole pose.
type PoseIntegrator struct {
	mu    sync.RWMutex
	pose  Pose
	start Pose
}

// NewPoseIntegrator creates an integrator resting at start.
func NewPoseIntegrator(start Pose) *PoseIntegrator {
	start.Heading = common.WrapDegrees(start.Heading)
	return &PoseIntegrator{pose: start, start: start}
}

// Integrate applies a world-frame delta and returns the resulting pose.
func (i *PoseIntegrator) Integrate(delta PoseDelta) Pose {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.pose = Pose{
		X:       i.pose.X + delta.DX,
		Y:       i.pose.Y + delta.DY,
		Heading: common.WrapDegrees(i.pose.Heading + delta.DHeading),
	}
	return i.pose
}

// Pose returns a consistent snapshot of the current pose.
func (i *PoseIntegrator) Pose() Pose {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.pose
}

// Reset returns the robot to its starting pose.
func (i *PoseIntegrator) Reset() Pose {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.pose = i.start
	return i.pose
}
