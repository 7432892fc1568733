package simulation

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"simmer-sim/internal/common"
	"simmer-sim/internal/config"
	"simmer-sim/internal/maze"
)

// Simulation holds everything one simulated robot needs: the read-only device
// tables and maze, the live pose and the latest sensor readings. It is passed
// explicitly to the dispatcher and engine; nothing is kept in package state.
type Simulation struct {
	maze    *maze.Maze
	floor   maze.Floor
	motors  map[string]*Motor
	drives  map[string]*Drive
	sensors map[string]*Sensor

	integrator *PoseIntegrator
	actuation  *ActuationModel
	ranging    *RangingModel

	robotOutline common.Polygon
	simulateList []string

	readingsMu sync.RWMutex
	readings   map[string]float64
}

// NewFromConfig builds a simulation from validated configuration tables. The
// error source is chosen by the caller, once.
func NewFromConfig(cfg *config.Config, source ErrorSource) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		source = NewErrorSource(cfg.Simulation.RandError, cfg.Simulation.Seed)
	}

	blockHeight := cfg.Block.Height
	if blockHeight == 0 {
		blockHeight = cfg.Block.Size
	}
	m, err := maze.New(cfg.Maze.Walls, cfg.Maze.WallSegmentLength, cfg.Maze.WallHeight, &maze.Block{
		Position: cfg.Block.Position.Vector(),
		Rotation: cfg.Block.Rotation,
		Size:     cfg.Block.Size,
		Height:   blockHeight,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build maze: %w", err)
	}

	s := &Simulation{
		maze:         m,
		floor:        maze.NewFloor(m, cfg.Maze.FloorSegmentLength, cfg.Maze.FloorSeed),
		motors:       make(map[string]*Motor, len(cfg.Motors)),
		drives:       make(map[string]*Drive, len(cfg.Drives)),
		sensors:      make(map[string]*Sensor, len(cfg.Sensors)),
		actuation:    NewActuationModel(source, cfg.Simulation.BiasAtIdle),
		ranging:      NewRangingModel(m, source, cfg.Simulation.MaxRange),
		robotOutline: cfg.Robot.Outline(),
		simulateList: append([]string(nil), cfg.Simulation.SimulateList...),
		readings:     make(map[string]float64),
	}
	s.integrator = NewPoseIntegrator(Pose{
		X:       cfg.Robot.StartPosition[0],
		Y:       cfg.Robot.StartPosition[1],
		Heading: cfg.Robot.StartRotation,
	})

	for _, mc := range cfg.Motors {
		s.motors[mc.ID] = &Motor{
			ID:       mc.ID,
			Position: mc.Position.Vector(),
			Rotation: mc.Rotation,
			Outline:  mc.OutlinePolygon(),
			Visible:  mc.Visible,
		}
	}
	for _, dc := range cfg.Drives {
		s.drives[dc.ID] = &Drive{
			ID:              dc.ID,
			Position:        dc.Position.Vector(),
			Rotation:        dc.Rotation,
			Visible:         dc.Visible,
			LinearVelocity:  dc.Velocity.Vector(),
			AngularVelocity: dc.AngVelocity,
			Motors:          [2]*Motor{s.motors[dc.Motors[0]], s.motors[dc.Motors[1]]},
			MotorDirection:  [2]int{dc.MotorDirection[0], dc.MotorDirection[1]},
			Bias:            Offset(dc.Bias),
			Error:           Offset(dc.Error),
		}
	}
	for _, sc := range cfg.Sensors {
		s.sensors[sc.ID] = &Sensor{
			ID:                 sc.ID,
			Position:           sc.Position.Vector(),
			Height:             sc.Height,
			Rotation:           sc.Rotation,
			Error:              sc.Error,
			Outline:            sc.OutlinePolygon(),
			Visible:            sc.Visible,
			VisibleMeasurement: sc.VisibleMeasurement,
		}
	}
	return s, nil
}

// Maze returns the wall geometry.
func (s *Simulation) Maze() *maze.Maze {
	return s.maze
}

// Floor returns the pattern drawn under the maze.
func (s *Simulation) Floor() maze.Floor {
	return s.floor
}

// Drive looks up a drive by id.
func (s *Simulation) Drive(id string) (*Drive, bool) {
	d, ok := s.drives[id]
	return d, ok
}

// Sensor looks up a sensor by id.
func (s *Simulation) Sensor(id string) (*Sensor, bool) {
	sen, ok := s.sensors[id]
	return sen, ok
}

// Motors returns all motors ordered by id.
func (s *Simulation) Motors() []*Motor {
	return sortedByID(s.motors)
}

// Drives returns all drives ordered by id.
func (s *Simulation) Drives() []*Drive {
	return sortedByID(s.drives)
}

// Sensors returns all sensors ordered by id.
func (s *Simulation) Sensors() []*Sensor {
	return sortedByID(s.sensors)
}

func sortedByID[T Device](m map[string]T) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetID() < out[j].GetID() })
	return out
}

// RobotOutline returns the robot perimeter relative to its centre.
func (s *Simulation) RobotOutline() common.Polygon {
	return s.robotOutline
}

// SimulateList returns the sensors probed every tick for display.
func (s *Simulation) SimulateList() []string {
	return s.simulateList
}

// Pose returns a consistent snapshot of the robot pose.
func (s *Simulation) Pose() Pose {
	return s.integrator.Pose()
}

// Ranging exposes the ranging model, e.g. for drawing sensor rays.
func (s *Simulation) Ranging() *RangingModel {
	return s.ranging
}

// Actuate computes the motion a drive command produces from the current pose
// without applying it. Error samples are drawn here.
func (s *Simulation) Actuate(drive *Drive, magnitude float64) *Motion {
	delta := s.actuation.Apply(drive, magnitude, s.integrator.Pose().Heading)
	duration, _ := s.actuation.Duration(drive, magnitude)
	return NewMotion(drive.ID, magnitude, delta, duration)
}

// Move applies a drive command in a single step and returns the new pose.
func (s *Simulation) Move(drive *Drive, magnitude float64) Pose {
	return s.integrator.Integrate(s.actuation.Apply(drive, magnitude, s.integrator.Pose().Heading))
}

// Integrate applies a world-frame delta to the live pose.
func (s *Simulation) Integrate(delta PoseDelta) Pose {
	return s.integrator.Integrate(delta)
}

// Measure takes one reading from the sensor at the current pose and remembers it.
func (s *Simulation) Measure(sensor *Sensor) float64 {
	reading := s.ranging.Measure(sensor, s.integrator.Pose())
	s.readingsMu.Lock()
	s.readings[sensor.ID] = reading
	s.readingsMu.Unlock()
	return reading
}

// MeasureAll reads several sensors in order. Every id is resolved before any
// reading is taken, so an unknown id leaves the error stream untouched.
func (s *Simulation) MeasureAll(ids []string) ([]float64, error) {
	sensors := make([]*Sensor, 0, len(ids))
	for _, id := range ids {
		sen, ok := s.sensors[id]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, id)
		}
		sensors = append(sensors, sen)
	}
	readings := make([]float64, len(sensors))
	for i, sen := range sensors {
		readings[i] = s.Measure(sen)
	}
	return readings, nil
}

// Probe returns the error-free reading of a sensor without touching the error
// stream, so display refreshes cannot shift seeded command results.
func (s *Simulation) Probe(sensor *Sensor) float64 {
	hit, ok := s.ranging.Trace(sensor, s.integrator.Pose())
	if !ok {
		return NoDetection
	}
	return hit.Distance
}

// Readings returns a copy of the latest commanded reading per sensor.
func (s *Simulation) Readings() map[string]float64 {
	s.readingsMu.RLock()
	defer s.readingsMu.RUnlock()
	out := make(map[string]float64, len(s.readings))
	for k, v := range s.readings {
		out[k] = v
	}
	return out
}

// Reset restores the starting pose and forgets previous readings.
func (s *Simulation) Reset() Pose {
	s.readingsMu.Lock()
	clear(s.readings)
	s.readingsMu.Unlock()
	return s.integrator.Reset()
}

// String summarises the device tables for logging.
func (s *Simulation) String() string {
	ids := func(devs []string) string { return strings.Join(devs, ",") }
	var drives, sensors []string
	for _, d := range s.Drives() {
		drives = append(drives, d.ID)
	}
	for _, sen := range s.Sensors() {
		sensors = append(sensors, sen.ID)
	}
	return fmt.Sprintf("Simulation[maze %dx%d drives %s sensors %s] %s",
		s.maze.Rows(), s.maze.Cols(), ids(drives), ids(sensors), s.Pose())
}
