// Package serialport provides a tether.Transport over a serial device node, such as an
// RFCOMM-bound /dev/rfcomm0 or a USB serial adapter.
package serialport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-tether/logger"
	"github.com/arloliu/go-tether/tether"
	"go.bug.st/serial"
)

// Default transport settings.
const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 20 * time.Millisecond

	readBufferSize = 1024
)

// OpenFunc opens a serial port. serial.Open is used unless replaced with WithOpenFunc.
type OpenFunc func(name string, mode *serial.Mode) (serial.Port, error)

// Transport reads and writes a serial port.
type Transport struct {
	name        string
	mode        *serial.Mode
	readTimeout time.Duration
	open        OpenFunc
	logger      logger.Logger

	mu        sync.Mutex // protects port
	port      serial.Port
	streaming atomic.Bool
	buf       []byte
}

var _ tether.Transport = (*Transport)(nil)

// Option configures a Transport.
type Option func(t *Transport)

// WithBaudRate sets the baud rate of the port.
func WithBaudRate(baud int) Option {
	return func(t *Transport) {
		if baud > 0 {
			t.mode.BaudRate = baud
		}
	}
}

// WithReadTimeout bounds how long Read waits for data.
func WithReadTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.readTimeout = d
		}
	}
}

// WithOpenFunc replaces the function opening the port.
func WithOpenFunc(open OpenFunc) Option {
	return func(t *Transport) {
		if open != nil {
			t.open = open
		}
	}
}

// WithLogger sets the logger of the transport.
func WithLogger(l logger.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

// New creates a transport for the serial device name, 8N1 at DefaultBaudRate unless
// configured otherwise.
func New(name string, opts ...Option) *Transport {
	t := &Transport{
		name: name,
		mode: &serial.Mode{
			BaudRate: DefaultBaudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
		readTimeout: DefaultReadTimeout,
		open:        serial.Open,
		logger:      logger.GetLogger(),
		buf:         make([]byte, readBufferSize),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("port", name)

	return t
}

// Name returns the device name of the port.
func (t *Transport) Name() string { return t.name }

type openResult struct {
	port serial.Port
	err  error
}

// Connect opens the port. Opening cannot be interrupted, so when ctx ends first the port is
// closed as soon as the open completes.
func (t *Transport) Connect(ctx context.Context) error {
	resCh := make(chan openResult, 1)
	go func() {
		port, err := t.open(t.name, t.mode)
		resCh <- openResult{port: port, err: err}
	}()

	var res openResult
	select {
	case <-ctx.Done():
		go func() {
			if r := <-resCh; r.err == nil {
				_ = r.port.Close()
			}
		}()

		return ctx.Err()

	case res = <-resCh:
	}

	if res.err != nil {
		return fmt.Errorf("serialport: open %s: %w", t.name, res.err)
	}

	if err := res.port.SetReadTimeout(t.readTimeout); err != nil {
		_ = res.port.Close()
		return fmt.Errorf("serialport: set read timeout: %w", err)
	}

	t.mu.Lock()
	if t.port != nil {
		_ = t.port.Close()
	}
	t.port = res.port
	t.mu.Unlock()

	t.streaming.Store(true)
	t.logger.Debug("port opened", "baud", t.mode.BaudRate)

	return nil
}

// Close closes the port.
func (t *Transport) Close() error {
	t.streaming.Store(false)

	t.mu.Lock()
	port := t.port
	t.port = nil
	t.mu.Unlock()

	if port == nil {
		return nil
	}

	return port.Close()
}

// Streaming reports whether the port is open and no disconnection was detected.
func (t *Transport) Streaming() bool {
	return t.streaming.Load()
}

// Write sends text to the port.
func (t *Transport) Write(text string) error {
	port := t.current()
	if port == nil {
		return tether.ErrNotConnected
	}

	if _, err := port.Write([]byte(text)); err != nil {
		t.checkDisconnect(err)
		return fmt.Errorf("serialport: write: %w", err)
	}

	return nil
}

// Read waits up to the read timeout for data. A read that times out returns "".
func (t *Transport) Read() (string, error) {
	port := t.current()
	if port == nil {
		return "", tether.ErrNotConnected
	}

	n, err := port.Read(t.buf)
	if err != nil {
		t.checkDisconnect(err)
		return "", fmt.Errorf("serialport: read: %w", err)
	}

	return string(t.buf[:n]), nil
}

// checkDisconnect marks the port as not streaming when err signals a removed or closed
// device.
func (t *Transport) checkDisconnect(err error) {
	if !isDisconnectionError(err) {
		t.logger.Warn("serial i/o error", "error", err)
		return
	}

	if t.streaming.Swap(false) {
		t.logger.Info("serial device disconnected", "error", err)
	}
}

func isDisconnectionError(err error) bool {
	var code serial.PortErrorCode
	var ptrErr *serial.PortError
	var valErr serial.PortError

	switch {
	case errors.As(err, &ptrErr):
		code = ptrErr.Code()
	case errors.As(err, &valErr):
		code = valErr.Code()
	default:
		// an OS-level error on an open port means the device went away
		return true
	}

	switch code {
	case serial.PortNotFound, serial.PortClosed, serial.InvalidSerialPort:
		return true
	default:
		return false
	}
}

func (t *Transport) current() serial.Port {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.port
}
