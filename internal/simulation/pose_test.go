package simulation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"simmer-sim/internal/common"
)

func TestIntegrateWrapsHeading(t *testing.T) {
	tests := []struct {
		name  string
		start float64
		turn  float64
		want  float64
	}{
		{name: "past 360", start: 350, turn: 20, want: 10},
		{name: "below zero", start: 0, turn: -10, want: 350},
		{name: "exactly 360", start: 180, turn: 180, want: 0},
		{name: "several turns", start: 10, turn: 725, want: 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			integrator := NewPoseIntegrator(Pose{Heading: tt.start})
			pose := integrator.Integrate(PoseDelta{DHeading: tt.turn})
			require.InDelta(t, tt.want, pose.Heading, tolerance)
		})
	}
}

func TestIntegratorStartIsWrapped(t *testing.T) {
	integrator := NewPoseIntegrator(Pose{X: 1, Y: 2, Heading: 370})
	require.InDelta(t, 10, integrator.Pose().Heading, tolerance)
}

func TestIntegrateAccumulatesAndResets(t *testing.T) {
	start := Pose{X: 6, Y: 42, Heading: 180}
	integrator := NewPoseIntegrator(start)

	integrator.Integrate(PoseDelta{DX: 1, DY: -2})
	pose := integrator.Integrate(PoseDelta{DX: 0.5, DY: -0.5, DHeading: 90})
	require.InDelta(t, 7.5, pose.X, tolerance)
	require.InDelta(t, 39.5, pose.Y, tolerance)
	require.InDelta(t, 270, pose.Heading, tolerance)
	require.Equal(t, pose, integrator.Pose())

	require.Equal(t, start, integrator.Reset())
}

func TestIntegrateConcurrent(t *testing.T) {
	integrator := NewPoseIntegrator(Pose{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				integrator.Integrate(PoseDelta{DX: 1})
				_ = integrator.Pose()
			}
		}()
	}
	wg.Wait()
	require.InDelta(t, 800, integrator.Pose().X, tolerance)
}

func TestPoseToWorld(t *testing.T) {
	pose := Pose{X: 6, Y: 37, Heading: 180}
	world := pose.ToWorld(common.NewVector(1.25, 2.25))
	require.InDelta(t, 4.75, world.X, tolerance)
	require.InDelta(t, 34.75, world.Y, tolerance)
}

func TestPoseDeltaArithmetic(t *testing.T) {
	d := PoseDelta{DX: 2, DY: -4, DHeading: 10}
	require.Equal(t, PoseDelta{DX: 1, DY: -2, DHeading: 5}, d.Scale(0.5))
	require.Equal(t, PoseDelta{DX: 1, DY: -2, DHeading: 5}, d.Sub(d.Scale(0.5)))
	require.Equal(t, PoseDelta{DX: 4, DY: -8, DHeading: 20}, d.Add(d))
}
