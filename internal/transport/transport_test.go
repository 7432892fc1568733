package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simmer-sim/internal/config"
	"simmer-sim/internal/simulation"
	"simmer-sim/internal/telemetry"
)

// fakeEngine answers messages from a table.
type fakeEngine struct {
	mu       sync.Mutex
	readings map[string][]float64
	errs     map[string]error
	got      []string
}

func (f *fakeEngine) Submit(_ context.Context, message string) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, message)
	if err, ok := f.errs[message]; ok {
		return f.readings[message], err
	}
	return f.readings[message], nil
}

func (f *fakeEngine) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.got...)
}

func TestReply(t *testing.T) {
	require.Equal(t, telemetry.Encode([]float64{1, 2}), reply([]float64{1, 2}, nil))
	require.Equal(t, telemetry.Encode([]float64{1}), reply([]float64{1}, fmt.Errorf("u9: %w", simulation.ErrUnknownDevice)))
	require.Empty(t, reply(nil, simulation.ErrParse))
	require.Empty(t, reply([]float64{1}, simulation.ErrEngineStopped))
}

func startTCPLink(t *testing.T, engine Submitter, timeout float64) (*TCPLink, func()) {
	t.Helper()
	link := NewTCPLink(config.NetworkConfig{Host: "127.0.0.1", Timeout: timeout}, engine, nil)
	require.NoError(t, link.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- link.Serve(ctx) }()
	return link, func() {
		cancel()
		require.NoError(t, <-done)
	}
}

func send(t *testing.T, addr net.Addr, message string) {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	_, err = conn.Write([]byte(message))
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}

func collect(t *testing.T, addr net.Addr) []byte {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	b, err := io.ReadAll(conn)
	require.NoError(t, err)
	return b
}

func TestTCPLinkExchange(t *testing.T) {
	engine := &fakeEngine{
		readings: map[string][]float64{"u0": {22.75}, "w0-5 u1": {5, 13.5}},
		errs:     map[string]error{"u9": simulation.ErrUnknownDevice},
	}
	link, stop := startTCPLink(t, engine, 5)
	defer stop()
	rx, tx := link.Addrs()

	send(t, rx, "u0")
	got, err := telemetry.Decode(collect(t, tx))
	require.NoError(t, err)
	require.Equal(t, []float64{22.75}, got)

	send(t, rx, "w0-5 u1\n")
	got, err = telemetry.Decode(collect(t, tx))
	require.NoError(t, err)
	require.Equal(t, []float64{5, 13.5}, got)

	send(t, rx, "u9")
	require.Empty(t, collect(t, tx))

	require.Equal(t, []string{"u0", "w0-5 u1", "u9"}, engine.messages())
}

func TestTCPLinkIgnoresEmptyConnections(t *testing.T) {
	engine := &fakeEngine{readings: map[string][]float64{"u0": {1}}}
	link, stop := startTCPLink(t, engine, 5)
	defer stop()
	rx, tx := link.Addrs()

	send(t, rx, "  \n")
	send(t, rx, "u0")
	got, err := telemetry.Decode(collect(t, tx))
	require.NoError(t, err)
	require.Equal(t, []float64{1}, got)
	require.Equal(t, []string{"u0"}, engine.messages())
}

func TestTCPLinkReplyTimeout(t *testing.T) {
	link, stop := startTCPLink(t, &fakeEngine{}, 0.05)
	defer stop()
	_, tx := link.Addrs()

	start := time.Now()
	require.Empty(t, collect(t, tx))
	require.Less(t, time.Since(start), 4*time.Second)
}

func TestTCPLinkWithEngine(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	for i := range cfg.Drives {
		cfg.Drives[i].Bias = config.Offset{}
		cfg.Drives[i].Error = config.Offset{}
	}
	for i := range cfg.Sensors {
		cfg.Sensors[i].Error = 0
	}
	sim, err := simulation.NewFromConfig(cfg, nil)
	require.NoError(t, err)
	// A fast tick keeps the 5 inch move short.
	engine := simulation.NewEngine(sim, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = engine.Run(ctx) }()

	link, stop := startTCPLink(t, engine, 5)
	defer stop()
	rx, tx := link.Addrs()

	send(t, rx, "w0-5 u0")
	got, err := telemetry.Decode(collect(t, tx))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 5.0, got[0])
	require.InDelta(t, 22.75, got[1], 1e-9)
}

type pipePort struct {
	io.Reader
	mu     sync.Mutex
	out    bytes.Buffer
	closed atomic.Bool
}

func (p *pipePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.Write(b)
}

func (p *pipePort) Close() error {
	p.closed.Store(true)
	if c, ok := p.Reader.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (p *pipePort) written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.out.Bytes()...)
}

func TestSerialLinkFraming(t *testing.T) {
	engine := &fakeEngine{
		readings: map[string][]float64{"u0": {22.75}, "w0-5": {5}},
		errs:     map[string]error{"u9": simulation.ErrUnknownDevice},
	}
	port := &pipePort{Reader: strings.NewReader("u0\r\n\nu9\nw0-5\n")}
	link := NewSerialLink(port, engine, nil)

	require.NoError(t, link.Serve(context.Background()))
	require.True(t, port.closed.Load())
	require.Equal(t, []string{"u0", "u9", "w0-5"}, engine.messages())

	want := append(telemetry.Encode([]float64{22.75}), telemetry.Encode([]float64{5})...)
	require.Equal(t, want, port.written())
	require.NoError(t, link.Close())
}

func TestSerialLinkStopsOnCancel(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	port := &pipePort{Reader: r}
	link := NewSerialLink(port, &fakeEngine{readings: map[string][]float64{"u0": {1}}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- link.Serve(ctx) }()

	_, err := w.Write([]byte("u0\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(port.written()) == 8 }, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serial link did not stop")
	}
	require.True(t, port.closed.Load())
}

type stepSource struct {
	tick atomic.Uint64
}

func (s *stepSource) Snapshot() *simulation.Snapshot {
	n := s.tick.Add(1)
	return &simulation.Snapshot{
		Tick:     n,
		Pose:     simulation.Pose{X: 6, Y: 42, Heading: 180},
		Readings: map[string]float64{"u0": 22.75},
	}
}

type fixedSource struct{ snap *simulation.Snapshot }

func (f fixedSource) Snapshot() *simulation.Snapshot { return f.snap }

func dialSnapshots(t *testing.T, srv *SnapshotServer) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + SnapshotPath
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestSnapshotStream(t *testing.T) {
	conn := dialSnapshots(t, NewSnapshotServer(&stepSource{}, 5*time.Millisecond, nil))

	var prev uint64
	for i := 0; i < 3; i++ {
		var snap simulation.Snapshot
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		require.NoError(t, conn.ReadJSON(&snap))
		assert.Greater(t, snap.Tick, prev)
		assert.Equal(t, simulation.Pose{X: 6, Y: 42, Heading: 180}, snap.Pose)
		assert.Equal(t, 22.75, snap.Readings["u0"])
		prev = snap.Tick
	}
}

func TestSnapshotStreamSkipsUnchanged(t *testing.T) {
	conn := dialSnapshots(t, NewSnapshotServer(fixedSource{snap: &simulation.Snapshot{Tick: 7}}, 5*time.Millisecond, nil))

	var snap simulation.Snapshot
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&snap))
	require.Equal(t, uint64(7), snap.Tick)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestSnapshotServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := NewSnapshotServer(fixedSource{snap: &simulation.Snapshot{}}, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	u := fmt.Sprintf("ws://%s%s", ln.Addr(), SnapshotPath)
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer conn.Close()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("snapshot server did not stop")
	}
}
