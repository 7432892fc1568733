// Package config loads the declarative device and world tables the simulator is
// built from. Everything here is read once before the simulation loop starts.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"simmer-sim/internal/common"
)

//go:embed defaults.yaml
var defaultDocument []byte

// ReservedCommand is the session-restart token; no device may use it as an id.
const ReservedCommand = "reset"

var ErrInvalidConfig = errors.New("invalid configuration")

// Point is a two element [x, y] pair as written in the YAML tables.
type Point [2]float64

// Vector converts the pair into a common.Vector.
func (p Point) Vector() common.Vector {
	return common.NewVector(p[0], p[1])
}

// Offset holds per-axis values for drive bias and error.
type Offset struct {
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	Rotation float64 `yaml:"rotation"`
}

type Config struct {
	Network    NetworkConfig    `yaml:"network"`
	Simulation SimulationConfig `yaml:"simulation"`
	Robot      RobotConfig      `yaml:"robot"`
	Maze       MazeConfig       `yaml:"maze"`
	Block      BlockConfig      `yaml:"block"`
	Motors     []MotorConfig    `yaml:"motors"`
	Drives     []DriveConfig    `yaml:"drives"`
	Sensors    []SensorConfig   `yaml:"sensors"`
	Graphics   GraphicsConfig   `yaml:"graphics"`
	Recording  RecordingConfig  `yaml:"recording"`
	Log        LogConfig        `yaml:"log"`
}

type NetworkConfig struct {
	Host         string  `yaml:"host"`
	PortRx       int     `yaml:"port_rx"`
	PortTx       int     `yaml:"port_tx"`
	Timeout      float64 `yaml:"timeout"` // seconds
	SnapshotAddr string  `yaml:"snapshot_addr"`
	SerialPort   string  `yaml:"serial_port"`
	SerialBaud   int     `yaml:"serial_baud"`
}

// RxAddr is the address command connections are accepted on.
func (n NetworkConfig) RxAddr() string {
	return fmt.Sprintf("%s:%d", n.Host, n.PortRx)
}

// TxAddr is the address reply connections are accepted on.
func (n NetworkConfig) TxAddr() string {
	return fmt.Sprintf("%s:%d", n.Host, n.PortTx)
}

// IdleTimeout converts the configured timeout into a duration.
func (n NetworkConfig) IdleTimeout() time.Duration {
	return time.Duration(n.Timeout * float64(time.Second))
}

type SimulationConfig struct {
	RandError    bool     `yaml:"rand_error"`
	Seed         uint64   `yaml:"seed"`
	BiasAtIdle   bool     `yaml:"bias_at_idle"`
	FrameRate    float64  `yaml:"frame_rate"`
	MaxRange     float64  `yaml:"max_range"`
	SimulateList []string `yaml:"simulate_list"`
}

// Tick is the fixed simulation step derived from the frame rate.
func (s SimulationConfig) Tick() time.Duration {
	return time.Duration(float64(time.Second) / s.FrameRate)
}

type RobotConfig struct {
	StartPosition Point   `yaml:"start_position"`
	StartRotation float64 `yaml:"start_rotation"`
	Width         float64 `yaml:"width"`
	Height        float64 `yaml:"height"`
}

// Outline returns the robot perimeter relative to its centre.
func (r RobotConfig) Outline() common.Polygon {
	w, h := r.Width/2, r.Height/2
	return common.Polygon{
		common.NewVector(-w, -h),
		common.NewVector(-w, h),
		common.NewVector(w, h),
		common.NewVector(w, -h),
	}
}

type MazeConfig struct {
	WallSegmentLength  float64   `yaml:"wall_segment_length"`
	WallHeight         float64   `yaml:"wall_height"`
	FloorSegmentLength float64   `yaml:"floor_segment_length"`
	FloorSeed          uint64    `yaml:"floor_seed"`
	Walls              [][]uint8 `yaml:"walls"`
}

type BlockConfig struct {
	Position Point   `yaml:"position"`
	Rotation float64 `yaml:"rotation"`
	Size     float64 `yaml:"size"`
	Height   float64 `yaml:"height"`
}

type MotorConfig struct {
	ID       string  `yaml:"id"`
	Position Point   `yaml:"position"`
	Rotation float64 `yaml:"rotation"`
	Outline  []Point `yaml:"outline"`
	Visible  bool    `yaml:"visible"`
}

// OutlinePolygon converts the configured wheel outline into a polygon.
func (m MotorConfig) OutlinePolygon() common.Polygon {
	return polygon(m.Outline)
}

type DriveConfig struct {
	ID             string   `yaml:"id"`
	Position       Point    `yaml:"position"`
	Rotation       float64  `yaml:"rotation"`
	Visible        bool     `yaml:"visible"`
	Velocity       Point    `yaml:"velocity"`
	AngVelocity    float64  `yaml:"ang_velocity"`
	Motors         []string `yaml:"motors"`
	MotorDirection []int    `yaml:"motor_direction"`
	Bias           Offset   `yaml:"bias"`
	Error          Offset   `yaml:"error"`
}

type SensorConfig struct {
	ID                 string  `yaml:"id"`
	Position           Point   `yaml:"position"`
	Height             float64 `yaml:"height"`
	Rotation           float64 `yaml:"rotation"`
	Error              float64 `yaml:"error"`
	Outline            []Point `yaml:"outline"`
	Visible            bool    `yaml:"visible"`
	VisibleMeasurement bool    `yaml:"visible_measurement"`
}

// OutlinePolygon converts the configured outline into a polygon.
func (s SensorConfig) OutlinePolygon() common.Polygon {
	return polygon(s.Outline)
}

func polygon(points []Point) common.Polygon {
	poly := make(common.Polygon, len(points))
	for i, p := range points {
		poly[i] = p.Vector()
	}
	return poly
}

type RGB [3]uint8

type GraphicsConfig struct {
	PPI             float64 `yaml:"ppi"`
	WallThickness   float64 `yaml:"wall_thickness"`
	RobotThickness  float64 `yaml:"robot_thickness"`
	BlockThickness  float64 `yaml:"block_thickness"`
	BackgroundColor RGB     `yaml:"background_color"`
	WallColor       RGB     `yaml:"wall_color"`
	RobotColor      RGB     `yaml:"robot_color"`
	BlockColor      RGB     `yaml:"block_color"`
	FloorColor      RGB     `yaml:"floor_color"`
	MotorColor      RGB     `yaml:"motor_color"`
}

type RecordingConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() (*Config, error) {
	return Parse(bytes.NewReader(defaultDocument))
}

// Load reads and validates a YAML configuration file. Keys missing from the
// file keep their built-in default values.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .yaml extension, got %q", ext)
	}
	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(bytes.NewReader(defaultDocument))
	if err != nil {
		return nil, err
	}
	if err := decodeInto(f, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", cleanPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes and validates a complete configuration document.
func Parse(r io.Reader) (*Config, error) {
	var cfg Config
	if err := decodeInto(r, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeInto(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Validate checks the cross references and invariants the simulation relies on.
func (c *Config) Validate() error {
	var problems []string
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Simulation.FrameRate <= 0 {
		fail("simulation.frame_rate must be positive")
	}
	if c.Simulation.MaxRange <= 0 {
		fail("simulation.max_range must be positive")
	}
	if c.Maze.WallSegmentLength <= 0 {
		fail("maze.wall_segment_length must be positive")
	}
	if c.Maze.WallHeight <= 0 {
		fail("maze.wall_height must be positive")
	}
	if c.Maze.FloorSegmentLength < 0 {
		fail("maze.floor_segment_length must not be negative")
	}
	if len(c.Maze.Walls) == 0 || len(c.Maze.Walls[0]) == 0 {
		fail("maze.walls must have at least one cell")
	}
	for r, row := range c.Maze.Walls {
		if len(row) != len(c.Maze.Walls[0]) {
			fail("maze.walls row %d has %d cells, want %d", r, len(row), len(c.Maze.Walls[0]))
		}
		for col, code := range row {
			if code > 3 {
				fail("maze.walls[%d][%d] has unknown code %d", r, col, code)
			}
		}
	}
	if c.Block.Size <= 0 {
		fail("block.size must be positive")
	}
	if c.Block.Height < 0 {
		fail("block.height must not be negative")
	}

	ids := make(map[string]string)
	claim := func(kind, id string) {
		switch {
		case id == "":
			fail("%s with empty id", kind)
			return
		case id == ReservedCommand:
			fail("%s id %q is reserved", kind, id)
		case strings.ContainsAny(id, "- \t\r\n,"):
			fail("%s id %q contains a separator", kind, id)
		}
		if other, ok := ids[id]; ok {
			fail("%s id %q already used by a %s", kind, id, other)
		}
		ids[id] = kind
	}

	motors := make(map[string]bool, len(c.Motors))
	for _, m := range c.Motors {
		claim("motor", m.ID)
		motors[m.ID] = true
	}
	for _, d := range c.Drives {
		claim("drive", d.ID)
		if len(d.Motors) != 2 {
			fail("drive %s must reference exactly two motors, got %d", d.ID, len(d.Motors))
		}
		if len(d.MotorDirection) != len(d.Motors) {
			fail("drive %s motor_direction length %d does not match %d motors", d.ID, len(d.MotorDirection), len(d.Motors))
		}
		for _, m := range d.Motors {
			if !motors[m] {
				fail("drive %s references unknown motor %q", d.ID, m)
			}
		}
		for _, dir := range d.MotorDirection {
			if dir != 1 && dir != -1 {
				fail("drive %s motor_direction values must be 1 or -1, got %d", d.ID, dir)
			}
		}
		if d.Error.X < 0 || d.Error.Y < 0 || d.Error.Rotation < 0 {
			fail("drive %s error magnitudes must not be negative", d.ID)
		}
	}
	sensors := make(map[string]bool, len(c.Sensors))
	for _, s := range c.Sensors {
		claim("sensor", s.ID)
		sensors[s.ID] = true
		if s.Error < 0 {
			fail("sensor %s error must not be negative", s.ID)
		}
		if s.Height < 0 {
			fail("sensor %s height must not be negative", s.ID)
		}
	}
	for _, id := range c.Simulation.SimulateList {
		if !sensors[id] {
			fail("simulation.simulate_list references unknown sensor %q", id)
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
