package simulation

import (
	"math"

	"simmer-sim/internal/common"
	"simmer-sim/internal/maze"
)

// NoDetection is reported when nothing tall enough lies within range of a sensor.
const NoDetection = -1.0

// RangingModel computes ultrasonic readings by casting rays into the maze.
type RangingModel struct {
	maze     *maze.Maze
	errors   ErrorSource
	maxRange float64
}

// NewRangingModel creates a ranging model limited to maxRange inches.
func NewRangingModel(m *maze.Maze, source ErrorSource, maxRange float64) *RangingModel {
	if source == nil {
		source = NoError{}
	}
	return &RangingModel{maze: m, errors: source, maxRange: maxRange}
}

// MaxRange returns the ranging limit.
func (r *RangingModel) MaxRange() float64 {
	return r.maxRange
}

// Ray returns the world-space origin and facing of the sensor for the given pose.
func (r *RangingModel) Ray(sensor *Sensor, pose Pose) (common.Vector, common.Vector) {
	origin := pose.ToWorld(sensor.Position)
	return origin, common.Heading(pose.Heading + sensor.Rotation)
}

// Trace returns the raw, unperturbed hit seen by the sensor. Obstacles lower than
// the sensor's mount height are ignored.
func (r *RangingModel) Trace(sensor *Sensor, pose Pose) (maze.Hit, bool) {
	origin, dir := r.Ray(sensor, pose)
	return r.maze.NearestIntersectionAbove(origin, dir, r.maxRange, sensor.Height)
}

// Measure returns the sensor's reading for the pose: the distance to the
// nearest qualifying obstacle plus one error sample, never negative. It
// returns NoDetection when nothing qualifies within range.
func (r *RangingModel) Measure(sensor *Sensor, pose Pose) float64 {
	hit, ok := r.Trace(sensor, pose)
	if !ok {
		return NoDetection
	}
	return math.Max(0, hit.Distance+r.errors.Sample(sensor.Error))
}
