package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"simmer-sim/internal/observability/log"
	"simmer-sim/internal/simulation"
)

// SnapshotPath is where the stream is served.
const SnapshotPath = "/snapshot"

// SnapshotSource is implemented by *simulation.Engine.
type SnapshotSource interface {
	Snapshot() *simulation.Snapshot
}

// SnapshotServer pushes the latest simulation snapshot as JSON to every
// connected websocket client, skipping frames in which nothing was published.
type SnapshotServer struct {
	source   SnapshotSource
	interval time.Duration
	logger   log.Log
	upgrader websocket.Upgrader
}

func NewSnapshotServer(source SnapshotSource, interval time.Duration, logger log.Log) *SnapshotServer {
	if logger == nil {
		logger = log.NewNop()
	}
	return &SnapshotServer{
		source:   source,
		interval: interval,
		logger:   logger.With(log.String("component", "snapshot")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Viewers are local tools, not browsers on other origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns a mux serving the stream at SnapshotPath.
func (s *SnapshotServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(SnapshotPath, s)
	return mux
}

func (s *SnapshotServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", log.Error(err))
		return
	}
	defer conn.Close()
	s.logger.Debug("Viewer connected", log.String("remote", conn.RemoteAddr().String()))

	// The read pump only watches for the viewer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	var last *simulation.Snapshot
	for {
		if snap := s.source.Snapshot(); snap != nil && snap != last {
			_ = conn.SetWriteDeadline(time.Now().Add(5 * s.interval))
			if err := conn.WriteJSON(snap); err != nil {
				s.logger.Debug("Viewer write failed", log.Error(err))
				return
			}
			last = snap
		}
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// ListenAndServe serves the stream on addr until ctx is cancelled.
func (s *SnapshotServer) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen for snapshot viewers: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves the stream on ln until ctx is cancelled.
func (s *SnapshotServer) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("Serving snapshots", log.String("addr", ln.Addr().String()), log.String("path", SnapshotPath))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve snapshots: %w", err)
	}
	return nil
}
