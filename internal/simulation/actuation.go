package simulation

import (
	"math"
	"time"

	"simmer-sim/internal/common"
)

// ActuationModel converts drive commands into world-frame pose deltas.
type ActuationModel struct {
	errors     ErrorSource
	biasAtIdle bool
}

// NewActuationModel creates an actuation model. When biasAtIdle is set, a drive's
// bias is also applied to zero-magnitude commands.
func NewActuationModel(source ErrorSource, biasAtIdle bool) *ActuationModel {
	if source == nil {
		source = NoError{}
	}
	return &ActuationModel{errors: source, biasAtIdle: biasAtIdle}
}

// Duration returns how long the drive needs to carry out a command of the given
// magnitude at its declared velocity. Commands are distances for translating
// drives and angles for purely rotational ones. ok is false when the time does
// not fit in a time.Duration; the result is then saturated.
func (a *ActuationModel) Duration(drive *Drive, magnitude float64) (d time.Duration, ok bool) {
	ns := a.seconds(drive, magnitude) * float64(time.Second)
	if ns >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64), false
	}
	return time.Duration(ns), true
}

func (a *ActuationModel) seconds(drive *Drive, magnitude float64) float64 {
	linear, angular := drive.EffectiveVelocity()
	speed := linear.Norm()
	if speed == 0 {
		speed = math.Abs(angular)
	}
	if speed == 0 {
		return 0
	}
	return math.Abs(magnitude) / speed
}

// Apply returns the world-frame pose change produced by commanding the drive
// with magnitude while the robot faces heading. Error samples are drawn in the
// fixed order x, y, rotation.
func (a *ActuationModel) Apply(drive *Drive, magnitude, heading float64) PoseDelta {
	linear, angular := drive.EffectiveVelocity()
	t := a.seconds(drive, magnitude)
	sign := 1.0
	if magnitude < 0 {
		sign = -1
	}

	local := linear.MultiplyByScalar(t * sign)
	rotation := angular * t * sign

	if magnitude != 0 || a.biasAtIdle {
		local = local.Add(common.NewVector(drive.Bias.X, drive.Bias.Y))
		rotation += drive.Bias.Rotation
	}
	if magnitude != 0 {
		local.X += a.errors.Sample(drive.Error.X)
		local.Y += a.errors.Sample(drive.Error.Y)
		rotation += a.errors.Sample(drive.Error.Rotation)
	}

	world := local.Rotate(heading)
	return PoseDelta{DX: world.X, DY: world.Y, DHeading: rotation}
}
