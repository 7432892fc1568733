package visualization

import (
	"fmt"
	"image/color"
	"sort"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"simmer-sim/internal/common"
	"simmer-sim/internal/config"
	"simmer-sim/internal/maze"
	"simmer-sim/internal/simulation"
)

const padding = 20.0

var (
	sensorColor      = color.RGBA{255, 255, 255, 255}
	measurementColor = color.RGBA{0, 255, 0, 160}
	headingColor     = color.RGBA{255, 255, 0, 255}
)

// SnapshotSource is implemented by *simulation.Engine.
type SnapshotSource interface {
	Snapshot() *simulation.Snapshot
}

// Renderer implements ebiten.Game. It only reads: static geometry comes from
// the simulation, everything that moves comes from the latest snapshot.
type Renderer struct {
	sim      *simulation.Simulation
	source   SnapshotSource
	graphics config.GraphicsConfig

	projector *Projector
	floor     [][2]common.Vector // dark squares, corner pairs
	walls     []maze.Segment
	block     common.Polygon

	screenWidth  int
	screenHeight int
}

// NewRenderer creates a renderer for sim, drawing the snapshots published by source.
func NewRenderer(sim *simulation.Simulation, source SnapshotSource, graphics config.GraphicsConfig) *Renderer {
	r := &Renderer{
		sim:       sim,
		source:    source,
		graphics:  graphics,
		projector: NewProjector(padding),
	}
	for _, seg := range sim.Maze().Segments() {
		if seg.Kind == maze.KindWall {
			r.walls = append(r.walls, seg)
		}
	}
	if b, ok := sim.Maze().Block(); ok {
		r.block = b.Outline()
	}
	floor := sim.Floor()
	for row := 0; row < floor.Rows; row++ {
		for col := 0; col < floor.Cols; col++ {
			if floor.Dark(row, col) {
				lo, hi := floor.Tile(row, col)
				r.floor = append(r.floor, [2]common.Vector{lo, hi})
			}
		}
	}
	r.screenWidth, r.screenHeight = r.WindowSize()
	return r
}

// WindowSize returns the initial window size derived from the configured
// pixels per inch.
func (r *Renderer) WindowSize() (int, int) {
	lo, hi := r.sim.Maze().Bounds()
	ppi := r.graphics.PPI
	if ppi <= 0 {
		ppi = 10
	}
	return int((hi.X-lo.X)*ppi + 2*padding), int((hi.Y-lo.Y)*ppi + 2*padding)
}

func (r *Renderer) Update() error {
	lo, hi := r.sim.Maze().Bounds()
	r.projector.Fit(lo, hi, r.screenWidth, r.screenHeight)
	return nil
}

func (r *Renderer) Draw(screen *ebiten.Image) {
	screen.Fill(rgba(r.graphics.BackgroundColor))

	snap := r.source.Snapshot()
	r.drawFloor(screen)
	r.drawWalls(screen)
	if snap == nil {
		ebitenutil.DebugPrint(screen, "Waiting for the simulation...")
		return
	}
	r.drawRobot(screen, snap.Pose)
	r.drawMotors(screen, snap.Pose)
	r.drawSensors(screen, snap)
	r.drawDebugInfo(screen, snap)
}

func (r *Renderer) drawFloor(screen *ebiten.Image) {
	c := rgba(r.graphics.FloorColor)
	for _, tile := range r.floor {
		x0, y0 := r.projector.ToScreen(tile[0])
		x1, y1 := r.projector.ToScreen(tile[1])
		vector.DrawFilledRect(screen, x0, y0, x1-x0, y1-y0, c, false)
	}
}

func (r *Renderer) drawWalls(screen *ebiten.Image) {
	wallWidth := r.strokeWidth(r.graphics.WallThickness)
	wallColor := rgba(r.graphics.WallColor)
	for _, seg := range r.walls {
		r.line(screen, seg.A, seg.B, wallWidth, wallColor)
	}
	r.polygon(screen, r.block, r.strokeWidth(r.graphics.BlockThickness), rgba(r.graphics.BlockColor))
}

func (r *Renderer) drawRobot(screen *ebiten.Image, pose simulation.Pose) {
	outline := r.sim.RobotOutline().Transform(pose.Position(), pose.Heading)
	width := r.strokeWidth(r.graphics.RobotThickness)
	r.polygon(screen, outline, width, rgba(r.graphics.RobotColor))

	// Short tick pointing forward.
	nose := pose.ToWorld(common.NewVector(0, 2))
	r.line(screen, pose.Position(), nose, width, headingColor)
}

func (r *Renderer) drawMotors(screen *ebiten.Image, pose simulation.Pose) {
	width := r.strokeWidth(r.graphics.RobotThickness) / 2
	c := rgba(r.graphics.MotorColor)
	for _, motor := range r.sim.Motors() {
		if !motor.Visible {
			continue
		}
		outline := motor.Outline.Transform(motor.Position, motor.Rotation).Transform(pose.Position(), pose.Heading)
		r.polygon(screen, outline, width, c)
	}
}

func (r *Renderer) drawSensors(screen *ebiten.Image, snap *simulation.Snapshot) {
	width := r.strokeWidth(r.graphics.RobotThickness) / 2
	for _, sensor := range r.sim.Sensors() {
		if sensor.Visible {
			outline := sensor.Outline.Transform(sensor.Position, sensor.Rotation).Transform(snap.Pose.Position(), snap.Pose.Heading)
			r.polygon(screen, outline, width, sensorColor)
		}
		if !sensor.VisibleMeasurement {
			continue
		}
		distance, ok := snap.Probes[sensor.ID]
		if !ok || distance == simulation.NoDetection {
			continue
		}
		origin, dir := r.sim.Ranging().Ray(sensor, snap.Pose)
		hit := origin.Add(dir.MultiplyByScalar(distance))
		r.line(screen, origin, hit, width, measurementColor)
		x, y := r.projector.ToScreen(hit)
		vector.DrawFilledCircle(screen, x, y, 2*width, measurementColor, true)
	}
}

func (r *Renderer) drawDebugInfo(screen *ebiten.Image, snap *simulation.Snapshot) {
	var b strings.Builder
	fmt.Fprintf(&b, "t=%.2fs tick %d  FPS %.1f\n", snap.Time, snap.Tick, ebiten.ActualFPS())
	fmt.Fprintf(&b, "%s\n", snap.Pose)
	if snap.Moving {
		fmt.Fprintf(&b, "driving %s\n", snap.Drive)
	}
	ids := make([]string, 0, len(snap.Readings))
	for id := range snap.Readings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(&b, "%s: %.3f\n", id, snap.Readings[id])
	}
	ebitenutil.DebugPrint(screen, b.String())
}

func (r *Renderer) line(screen *ebiten.Image, a, b common.Vector, width float32, c color.Color) {
	x0, y0 := r.projector.ToScreen(a)
	x1, y1 := r.projector.ToScreen(b)
	vector.StrokeLine(screen, x0, y0, x1, y1, width, c, true)
}

func (r *Renderer) polygon(screen *ebiten.Image, poly common.Polygon, width float32, c color.Color) {
	for _, e := range poly.Edges() {
		r.line(screen, e[0], e[1], width, c)
	}
}

func (r *Renderer) strokeWidth(inches float64) float32 {
	w := r.projector.Length(inches)
	if w < 1 {
		return 1
	}
	return w
}

// Layout is called when the window size changes.
func (r *Renderer) Layout(outsideWidth, outsideHeight int) (int, int) {
	r.screenWidth = outsideWidth
	r.screenHeight = outsideHeight
	return r.screenWidth, r.screenHeight
}

func rgba(c config.RGB) color.RGBA {
	return color.RGBA{R: c[0], G: c[1], B: c[2], A: 255}
}
