package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"simmer-sim/internal/config"
	"simmer-sim/internal/observability/log"
)

const (
	maxMessageSize  = 4096
	replyQueueDepth = 64
)

// TCPLink speaks the dual-port protocol: controllers connect to the receive
// port to send one command message, and connect to the transmit port to
// collect the next reply. Replies are handed out in the order messages finished.
type TCPLink struct {
	rxAddr  string
	txAddr  string
	timeout time.Duration
	engine  Submitter
	logger  log.Log

	replies chan []byte

	mu   sync.Mutex
	rxLn net.Listener
	txLn net.Listener
}

func NewTCPLink(cfg config.NetworkConfig, engine Submitter, logger log.Log) *TCPLink {
	if logger == nil {
		logger = log.NewNop()
	}
	return &TCPLink{
		rxAddr:  cfg.RxAddr(),
		txAddr:  cfg.TxAddr(),
		timeout: cfg.IdleTimeout(),
		engine:  engine,
		logger:  logger.With(log.String("component", "tcp")),
		replies: make(chan []byte, replyQueueDepth),
	}
}

// Listen binds both ports. It is called by Serve when needed; calling it first
// lets the caller learn the bound addresses.
func (l *TCPLink) Listen() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rxLn != nil {
		return nil
	}
	rx, err := net.Listen("tcp", l.rxAddr)
	if err != nil {
		return fmt.Errorf("listen on receive port: %w", err)
	}
	tx, err := net.Listen("tcp", l.txAddr)
	if err != nil {
		rx.Close()
		return fmt.Errorf("listen on transmit port: %w", err)
	}
	l.rxLn, l.txLn = rx, tx
	return nil
}

// Addrs returns the bound receive and transmit addresses, or nil before Listen.
func (l *TCPLink) Addrs() (rx, tx net.Addr) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rxLn == nil {
		return nil, nil
	}
	return l.rxLn.Addr(), l.txLn.Addr()
}

// Serve accepts connections on both ports until ctx is cancelled.
func (l *TCPLink) Serve(ctx context.Context) error {
	if err := l.Listen(); err != nil {
		return err
	}
	rx, tx := l.Addrs()
	l.logger.Info("Listening", log.String("rx", rx.String()), log.String("tx", tx.String()))

	var conns sync.WaitGroup
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		l.rxLn.Close()
		l.txLn.Close()
		return nil
	})
	g.Go(func() error {
		return l.acceptLoop(ctx, l.rxLn, &conns, l.handleCommand)
	})
	g.Go(func() error {
		return l.acceptLoop(ctx, l.txLn, &conns, l.handleReply)
	})
	err := g.Wait()
	conns.Wait()
	return err
}

func (l *TCPLink) acceptLoop(ctx context.Context, ln net.Listener, conns *sync.WaitGroup, handle func(context.Context, net.Conn, log.Log)) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept on %s: %w", ln.Addr(), err)
		}
		session := l.logger.With(
			log.String("session", uuid.NewString()),
			log.String("remote", conn.RemoteAddr().String()),
		)
		conns.Add(1)
		go func() {
			defer conns.Done()
			defer conn.Close()
			handle(ctx, conn, session)
		}()
	}
}

// handleCommand reads one message, terminated by a newline or by the
// controller closing its side, and queues the reply.
func (l *TCPLink) handleCommand(ctx context.Context, conn net.Conn, logger log.Log) {
	if l.timeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(l.timeout))
	}
	message, err := bufio.NewReader(io.LimitReader(conn, maxMessageSize)).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		logger.Warn("Failed to read command", log.Error(err))
		return
	}
	message = strings.TrimSpace(message)
	if message == "" {
		logger.Debug("Empty command connection")
		return
	}

	readings, err := l.engine.Submit(ctx, message)
	if err != nil {
		logger.Warn("Command failed", log.String("message", message), log.Error(err))
	} else {
		logger.Debug("Command done", log.String("message", message), log.Int("readings", len(readings)))
	}

	select {
	case l.replies <- reply(readings, err):
	case <-ctx.Done():
	}
}

// handleReply writes the next reply to a collecting controller, or closes the
// connection empty-handed once the idle timeout passes.
func (l *TCPLink) handleReply(ctx context.Context, conn net.Conn, logger log.Log) {
	var idle <-chan time.Time
	if l.timeout > 0 {
		timer := time.NewTimer(l.timeout)
		defer timer.Stop()
		idle = timer.C
	}

	select {
	case buf := <-l.replies:
		if l.timeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(l.timeout))
		}
		if _, err := conn.Write(buf); err != nil {
			logger.Warn("Failed to send reply", log.Error(err))
		}
	case <-idle:
		logger.Info("Reply connection idle", log.Duration("timeout", l.timeout))
	case <-ctx.Done():
	}
}
