package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.bug.st/serial"

	"simmer-sim/internal/observability/log"
)

// SerialPorter is the part of a serial port the link needs. It lets tests run
// without hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// OpenSerial opens a real serial port in 8N1 mode.
func OpenSerial(path string, baud int) (serial.Port, error) {
	if baud <= 0 {
		baud = 9600
	}
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return port, nil
}

// SerialLink reads newline-terminated command messages from a serial port and
// writes each reply back as binary telemetry.
type SerialLink struct {
	port   SerialPorter
	engine Submitter
	logger log.Log

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func NewSerialLink(port SerialPorter, engine Submitter, logger log.Log) *SerialLink {
	if logger == nil {
		logger = log.NewNop()
	}
	return &SerialLink{port: port, engine: engine, logger: logger.With(log.String("component", "serial"))}
}

// Serve handles messages until the port reaches EOF or ctx is cancelled. The
// port is closed on return.
func (s *SerialLink) Serve(ctx context.Context) error {
	defer s.Close()

	scan := bufio.NewScanner(s.port)
	lines := make(chan string)
	scanErr := make(chan error, 1)

	// Scan blocks on the port; closing the port is what unblocks it on shutdown.
	go func() {
		defer close(lines)
		for scan.Scan() {
			select {
			case lines <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			scanErr <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			return fmt.Errorf("read serial port: %w", err)
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return fmt.Errorf("read serial port: %w", err)
				default:
				}
				s.logger.Info("Serial port closed by peer")
				return nil
			}
			if err := s.handle(ctx, line); err != nil {
				return err
			}
		}
	}
}

func (s *SerialLink) handle(ctx context.Context, line string) error {
	message := strings.TrimSpace(line)
	if message == "" {
		return nil
	}
	readings, err := s.engine.Submit(ctx, message)
	if err != nil {
		s.logger.Warn("Command failed", log.String("message", message), log.Error(err))
	}

	buf := reply(readings, err)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	n, werr := s.port.Write(buf)
	if werr != nil {
		return fmt.Errorf("write serial port: %w", werr)
	}
	if n != len(buf) {
		return fmt.Errorf("write serial port: %w", io.ErrShortWrite)
	}
	return nil
}

// Close releases the port. It is safe to call more than once.
func (s *SerialLink) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.port.Close() })
	return err
}
