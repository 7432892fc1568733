package simulation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simmer-sim/internal/config"
)

const frameTick = time.Second / 60

type memoryRecorder struct {
	mu        sync.Mutex
	exchanges []Exchange
}

func (m *memoryRecorder) Record(ex Exchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchanges = append(m.exchanges, ex)
	return nil
}

// stepUntil steps the engine until a result arrives and returns it with the
// number of steps taken.
func stepUntil(t *testing.T, e *Engine, ch <-chan Result, limit int) (Result, int) {
	t.Helper()
	for i := 1; i <= limit; i++ {
		e.Step()
		select {
		case res := <-ch:
			return res, i
		default:
		}
	}
	t.Fatalf("no result after %d steps", limit)
	return Result{}, 0
}

func TestEngineInitialSnapshot(t *testing.T) {
	e := NewEngine(newQuietSimulation(t), frameTick, nil)
	snap := e.Snapshot()
	require.NotNil(t, snap)
	require.Zero(t, snap.Tick)
	require.Equal(t, Pose{X: 6, Y: 42, Heading: 180}, snap.Pose)
	require.Len(t, snap.Probes, 6)
	require.Empty(t, snap.Readings)
	require.False(t, snap.Moving)
}

func TestEngineSensorAnsweredSameTick(t *testing.T) {
	e := NewEngine(newQuietSimulation(t), frameTick, nil)
	ch, err := e.SubmitAsync("u0 u1")
	require.NoError(t, err)

	res, steps := stepUntil(t, e, ch, 1)
	require.Equal(t, 1, steps)
	require.NoError(t, res.Err)
	require.Len(t, res.Readings, 2)
	require.Equal(t, res.Readings[0], e.Snapshot().Readings["u0"])
}

func TestEnginePacesDriveCommands(t *testing.T) {
	e := NewEngine(newQuietSimulation(t), frameTick, nil)
	ch, err := e.SubmitAsync("w0-5 u0")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		e.Step()
	}
	snap := e.Snapshot()
	require.True(t, snap.Moving)
	require.Equal(t, "w0", snap.Drive)
	require.Less(t, snap.Pose.Y, 42.0)
	require.Greater(t, snap.Pose.Y, 37.0)
	// 10 ticks at 6 in/s is one inch.
	require.InDelta(t, 41, snap.Pose.Y, 1e-6)

	res, steps := stepUntil(t, e, ch, 100)
	require.NoError(t, res.Err)
	// 5 inches at 6 in/s take 50 ticks; allow one extra for duration rounding.
	require.InDelta(t, 50.5, float64(10+steps), 0.5)
	require.Len(t, res.Readings, 2)
	require.Equal(t, 5.0, res.Readings[0])
	require.InDelta(t, 22.75, res.Readings[1], 1e-9)

	snap = e.Snapshot()
	require.False(t, snap.Moving)
	require.InDelta(t, 6, snap.Pose.X, 1e-9)
	require.InDelta(t, 37, snap.Pose.Y, 1e-9)
}

func TestEngineMatchesDispatcher(t *testing.T) {
	const message = "w0-5 r0-90 u0 u1 w0--3 u2 r0--45 u4"
	newSim := func() *Simulation {
		cfg, err := config.Default()
		require.NoError(t, err)
		sim, err := NewFromConfig(cfg, nil)
		require.NoError(t, err)
		return sim
	}

	want, err := NewDispatcher(newSim()).DispatchAll(message)
	require.NoError(t, err)

	e := NewEngine(newSim(), frameTick, nil)
	ch, err := e.SubmitAsync(message)
	require.NoError(t, err)
	res, _ := stepUntil(t, e, ch, 1000)
	require.NoError(t, res.Err)
	require.InDeltaSlice(t, want, res.Readings, 1e-9)
}

func TestEngineCommandError(t *testing.T) {
	rec := &memoryRecorder{}
	e := NewEngine(newQuietSimulation(t), frameTick, nil, WithRecorder(rec))
	ch, err := e.SubmitAsync("u0 u9 u1")
	require.NoError(t, err)

	res, _ := stepUntil(t, e, ch, 1)
	require.ErrorIs(t, res.Err, ErrUnknownDevice)
	require.True(t, IsCommandError(res.Err))
	require.Len(t, res.Readings, 1)

	// The engine keeps serving after a bad command.
	ch, err = e.SubmitAsync("u1")
	require.NoError(t, err)
	res, _ = stepUntil(t, e, ch, 1)
	require.NoError(t, res.Err)

	require.Len(t, rec.exchanges, 2)
	require.Equal(t, "u0 u9 u1", rec.exchanges[0].Message)
	require.ErrorIs(t, rec.exchanges[0].Err, ErrUnknownDevice)
	require.Equal(t, uint64(1), rec.exchanges[0].Tick)
	require.Equal(t, uint64(2), rec.exchanges[1].Tick)
	require.Equal(t, 2*frameTick, rec.exchanges[1].Time)
}

func TestEngineQueueFull(t *testing.T) {
	e := NewEngine(newQuietSimulation(t), frameTick, nil, WithQueueSize(1))
	_, err := e.SubmitAsync("u0")
	require.NoError(t, err)
	_, err = e.SubmitAsync("u1")
	require.ErrorIs(t, err, ErrEngineBusy)
}

func TestEngineMessagesRunInOrder(t *testing.T) {
	e := NewEngine(newQuietSimulation(t), frameTick, nil)
	first, err := e.SubmitAsync("w0-1")
	require.NoError(t, err)
	second, err := e.SubmitAsync("u0")
	require.NoError(t, err)

	e.Step()
	select {
	case <-second:
		t.Fatal("second message answered while the first was still moving")
	default:
	}
	res, _ := stepUntil(t, e, first, 20)
	require.Equal(t, []float64{1}, res.Readings)
	res, _ = stepUntil(t, e, second, 1)
	require.Len(t, res.Readings, 1)
}

func TestEngineRun(t *testing.T) {
	e := NewEngine(newQuietSimulation(t), time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	readings, err := e.Submit(ctx, "u0")
	require.NoError(t, err)
	require.Len(t, readings, 1)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}

	_, err = e.Submit(context.Background(), "u0")
	require.ErrorIs(t, err, ErrEngineStopped)
	_, err = e.SubmitAsync("u0")
	require.ErrorIs(t, err, ErrEngineStopped)
}

func TestEngineStopAnswersPending(t *testing.T) {
	e := NewEngine(newQuietSimulation(t), time.Millisecond, nil)
	// 60 inches at 6 in/s keeps the engine busy for ten seconds.
	busy, err := e.SubmitAsync("w0-60")
	require.NoError(t, err)
	queued, err := e.SubmitAsync("u0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	res := <-busy
	require.ErrorIs(t, res.Err, ErrEngineStopped)
	res = <-queued
	require.ErrorIs(t, res.Err, ErrEngineStopped)
}

func TestSubmitHonoursContext(t *testing.T) {
	e := NewEngine(newQuietSimulation(t), frameTick, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := e.Submit(ctx, "u0")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEngineRejectsUnpaceableDrive(t *testing.T) {
	sim := newQuietSimulation(t)
	e := NewEngine(sim, frameTick, nil)
	before := sim.Pose()

	ch, err := e.SubmitAsync("w0-100000000000")
	require.NoError(t, err)
	res, _ := stepUntil(t, e, ch, 1)
	require.ErrorIs(t, res.Err, ErrParse)
	require.Empty(t, res.Readings)
	require.Equal(t, before, sim.Pose())
	require.False(t, e.Snapshot().Moving)
}

func TestSubmitAsyncRacingStop(t *testing.T) {
	sim := newQuietSimulation(t)
	for i := 0; i < 20; i++ {
		e := NewEngine(sim, frameTick, nil, WithQueueSize(64))
		accepted := make(chan (<-chan Result), 8)

		var wg sync.WaitGroup
		for j := 0; j < 8; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ch, err := e.SubmitAsync("u0"); err == nil {
					accepted <- ch
				} else {
					assert.ErrorIs(t, err, ErrEngineStopped)
				}
			}()
		}
		e.stop()
		wg.Wait()
		close(accepted)

		for ch := range accepted {
			select {
			case res := <-ch:
				require.ErrorIs(t, res.Err, ErrEngineStopped)
			case <-time.After(time.Second):
				t.Fatal("accepted message was never answered")
			}
		}
	}
}
