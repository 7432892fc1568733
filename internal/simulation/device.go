package simulation

import (
	"fmt"

	"simmer-sim/internal/common"
)

// Device is anything mounted on the robot body.
type Device interface {
	// GetID returns the identifier commands use to address the device.
	GetID() string
	// MountPosition returns the robot-local position of the device.
	MountPosition() common.Vector
	// MountRotation returns the robot-local rotation of the device in degrees.
	MountRotation() float64
}

// Offset holds per-axis values for drive bias and error.
type Offset struct {
	X        float64
	Y        float64
	Rotation float64
}

// Motor is a pure descriptor consumed by a Drive.
type Motor struct {
	ID       string
	Position common.Vector
	Rotation float64
	Outline  common.Polygon // motor-local, for rendering only
	Visible  bool
}

func (m *Motor) GetID() string                { return m.ID }
func (m *Motor) MountPosition() common.Vector { return m.Position }
func (m *Motor) MountRotation() float64       { return m.Rotation }

// Drive is a differential pair of motors that turns a scalar command into
// translation, rotation, or both.
type Drive struct {
	ID              string
	Position        common.Vector
	Rotation        float64
	Visible         bool
	LinearVelocity  common.Vector // robot-local, inches per second
	AngularVelocity float64       // degrees per second
	Motors          [2]*Motor
	MotorDirection  [2]int
	Bias            Offset
	Error           Offset
}

func (d *Drive) GetID() string                { return d.ID }
func (d *Drive) MountPosition() common.Vector { return d.Position }
func (d *Drive) MountRotation() float64       { return d.Rotation }

// forward is the share of the motor pair pushing in the same direction.
func (d *Drive) forward() float64 {
	return float64(d.MotorDirection[0]+d.MotorDirection[1]) / 2
}

// turn is the share of the motor pair pushing against each other.
func (d *Drive) turn() float64 {
	return float64(d.MotorDirection[0]-d.MotorDirection[1]) / 2
}

// EffectiveVelocity returns the local linear and angular velocity once the
// motor directions are applied.
func (d *Drive) EffectiveVelocity() (common.Vector, float64) {
	return d.LinearVelocity.MultiplyByScalar(d.forward()), d.AngularVelocity * d.turn()
}

// Rotational reports whether commands to this drive are angles rather than distances.
func (d *Drive) Rotational() bool {
	linear, _ := d.EffectiveVelocity()
	return linear.IsZero()
}

func (d *Drive) String() string {
	linear, angular := d.EffectiveVelocity()
	return fmt.Sprintf("Drive[%s] Velocity: %s AngVelocity: %.2f Motors: %s/%s", d.ID, linear, angular, d.Motors[0].ID, d.Motors[1].ID)
}

// Sensor is an ultrasonic ranging sensor.
type Sensor struct {
	ID                 string
	Position           common.Vector
	Height             float64
	Rotation           float64
	Error              float64
	Outline            common.Polygon // sensor-local, for rendering only
	Visible            bool
	VisibleMeasurement bool
}

func (s *Sensor) GetID() string                { return s.ID }
func (s *Sensor) MountPosition() common.Vector { return s.Position }
func (s *Sensor) MountRotation() float64       { return s.Rotation }

// String representation for logging
func (s *Sensor) String() string {
	return fmt.Sprintf("Sensor[%s] Pos: %s Height: %.2f Rotation: %.1f Error: %.3f", s.ID, s.Position, s.Height, s.Rotation, s.Error)
}
