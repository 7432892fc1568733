package simulation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"simmer-sim/internal/observability/log"
)

// Result is the reply to one submitted message: the readings of every token in
// order, or the error that stopped it together with the readings gathered so far.
type Result struct {
	Readings []float64
	Err      error
}

// Exchange is one finished message as seen by a Recorder.
type Exchange struct {
	Tick     uint64
	Time     time.Duration
	Message  string
	Readings []float64
	Err      error
}

// Recorder receives every finished message, in completion order.
type Recorder interface {
	Record(Exchange) error
}

// Snapshot is an immutable view of the simulation published once per tick.
type Snapshot struct {
	Tick     uint64             `json:"tick"`
	Time     float64            `json:"time"` // seconds of simulated time
	Pose     Pose               `json:"pose"`
	Readings map[string]float64 `json:"readings"`
	Probes   map[string]float64 `json:"probes,omitempty"`
	Moving   bool               `json:"moving"`
	Drive    string             `json:"drive,omitempty"`
}

type request struct {
	message string
	reply   chan Result
}

// inflight is the message the engine is currently working through.
type inflight struct {
	req      *request
	tokens   []string
	readings []float64
	motion   *Motion
}

const defaultQueueSize = 16

// Engine advances a Simulation at a fixed rate. Messages are queued and worked
// through one at a time: sensor readings are taken immediately, drive commands
// are played back over as many ticks as the drive's velocity requires.
type Engine struct {
	sim        *Simulation
	dispatcher *Dispatcher
	logger     log.Log
	recorder   Recorder
	tick       time.Duration

	requests chan *request
	done     chan struct{}
	stopOnce sync.Once

	// mu orders enqueues against stop, so every queued request is answered.
	mu      sync.Mutex
	stopped bool

	// Owned by the goroutine calling Step.
	ticks   uint64
	clock   time.Duration
	current *inflight

	snapshot atomic.Pointer[Snapshot]
}

type EngineOption func(*Engine)

// WithRecorder feeds every finished message to r.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

// WithQueueSize bounds the number of messages waiting for the engine.
func WithQueueSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.requests = make(chan *request, n)
		}
	}
}

// NewEngine creates an engine stepping sim every tick.
func NewEngine(sim *Simulation, tick time.Duration, logger log.Log, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = log.NewNop()
	}
	e := &Engine{
		sim:        sim,
		dispatcher: NewDispatcher(sim),
		logger:     logger.With(log.String("component", "engine")),
		tick:       tick,
		requests:   make(chan *request, defaultQueueSize),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.publish()
	return e
}

// Tick returns the fixed step.
func (e *Engine) Tick() time.Duration {
	return e.tick
}

// Simulation returns the context the engine drives.
func (e *Engine) Simulation() *Simulation {
	return e.sim
}

// Run steps the simulation until ctx is cancelled. Pending and queued messages
// are answered with ErrEngineStopped on the way out.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("Engine started", log.Duration("tick", e.tick), log.String("simulation", e.sim.String()))
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()
	defer e.stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Engine stopping", log.Int64("ticks", int64(e.ticks)))
			return nil
		case <-ticker.C:
			e.Step()
		}
	}
}

func (e *Engine) stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		e.stopped = true
		e.mu.Unlock()

		close(e.done)
		if e.current != nil {
			e.finish(ErrEngineStopped)
		}
		for {
			select {
			case req := <-e.requests:
				req.reply <- Result{Err: ErrEngineStopped}
			default:
				return
			}
		}
	})
}

// Step advances the simulation by one tick. It must not be called while Run is
// active.
func (e *Engine) Step() {
	e.ticks++
	e.clock += e.tick

	if e.current == nil {
		select {
		case req := <-e.requests:
			e.current = &inflight{req: req, tokens: SplitMessage(req.message), readings: []float64{}}
		default:
		}
	}
	if e.current != nil {
		e.work()
	}
	e.publish()
}

// work runs tokens of the current message until a motion needs more ticks or
// the message is finished.
func (e *Engine) work() {
	cur := e.current
	for {
		if cur.motion != nil {
			step, done := cur.motion.Advance(e.tick)
			e.sim.Integrate(step)
			if !done {
				return
			}
			cur.readings = append(cur.readings, cur.motion.Magnitude)
			cur.motion = nil
		}
		if len(cur.tokens) == 0 {
			e.finish(nil)
			return
		}

		token := cur.tokens[0]
		cur.tokens = cur.tokens[1:]
		cmd, err := e.dispatcher.Prepare(token)
		if err != nil {
			e.logger.Warn("Command rejected", log.String("token", token), log.Error(err))
			e.finish(err)
			return
		}
		e.logger.Debug("Command accepted", log.String("token", token), log.String("kind", cmd.Kind.String()))

		if cmd.Kind == KindDrive {
			cur.motion = e.sim.Actuate(cmd.Drive, cmd.Magnitude)
			continue
		}
		cur.readings = append(cur.readings, e.dispatcher.Execute(cmd).Readings...)
	}
}

func (e *Engine) finish(err error) {
	cur := e.current
	e.current = nil
	cur.req.reply <- Result{Readings: cur.readings, Err: err}

	if e.recorder == nil {
		return
	}
	ex := Exchange{Tick: e.ticks, Time: e.clock, Message: cur.req.message, Readings: cur.readings, Err: err}
	if rerr := e.recorder.Record(ex); rerr != nil {
		e.logger.Warn("Failed to record exchange", log.String("message", cur.req.message), log.Error(rerr))
	}
}

func (e *Engine) publish() {
	snap := &Snapshot{
		Tick:     e.ticks,
		Time:     e.clock.Seconds(),
		Pose:     e.sim.Pose(),
		Readings: e.sim.Readings(),
	}
	if list := e.sim.SimulateList(); len(list) > 0 {
		snap.Probes = make(map[string]float64, len(list))
		for _, id := range list {
			if sensor, ok := e.sim.Sensor(id); ok {
				snap.Probes[id] = e.sim.Probe(sensor)
			}
		}
	}
	if e.current != nil && e.current.motion != nil {
		snap.Moving = true
		snap.Drive = e.current.motion.DriveID
	}
	e.snapshot.Store(snap)
}

// Snapshot returns the most recently published view. It never blocks.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshot.Load()
}

// enqueue hands req to the engine without blocking. Once it succeeds, req is
// answered exactly once, either by Step or by stop.
func (e *Engine) enqueue(req *request) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrEngineStopped
	}
	select {
	case e.requests <- req:
		return nil
	default:
		return ErrEngineBusy
	}
}

// SubmitAsync queues a message without waiting. The returned channel receives
// exactly one Result.
func (e *Engine) SubmitAsync(message string) (<-chan Result, error) {
	req := &request{message: message, reply: make(chan Result, 1)}
	if err := e.enqueue(req); err != nil {
		return nil, err
	}
	return req.reply, nil
}

// Submit queues a message and waits for its readings. A full queue is retried
// every tick. Cancelling ctx stops the wait but not a message the engine has
// already taken.
func (e *Engine) Submit(ctx context.Context, message string) ([]float64, error) {
	req := &request{message: message, reply: make(chan Result, 1)}
	for {
		err := e.enqueue(req)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrEngineBusy) {
			return nil, err
		}
		select {
		case <-time.After(e.tick):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	select {
	case res := <-req.reply:
		return res.Readings, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// IsCommandError reports whether err is a per-command failure the caller can
// answer and move past.
func IsCommandError(err error) bool {
	return errors.Is(err, ErrParse) || errors.Is(err, ErrUnknownDevice)
}
