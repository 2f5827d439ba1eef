// Package tcp provides a tether.Transport over a TCP connection.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-tether/logger"
	"github.com/arloliu/go-tether/tether"
)

// Default transport settings.
const (
	DefaultReadTimeout  = 20 * time.Millisecond
	DefaultWriteTimeout = time.Second
	DefaultKeepAlive    = 30 * time.Second

	readBufferSize = 1024
)

// Transport connects to a device, or a serial-to-TCP bridge, listening on addr.
type Transport struct {
	addr         string
	readTimeout  time.Duration
	writeTimeout time.Duration
	keepAlive    time.Duration
	logger       logger.Logger

	mu        sync.Mutex // protects conn
	conn      net.Conn
	streaming atomic.Bool
	buf       []byte
}

var _ tether.Transport = (*Transport)(nil)

// Option configures a Transport.
type Option func(t *Transport)

// WithReadTimeout bounds how long Read waits for data.
func WithReadTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.readTimeout = d
		}
	}
}

// WithWriteTimeout bounds a single Write.
func WithWriteTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.writeTimeout = d
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

// New creates a TCP transport for addr ("host:port").
func New(addr string, opts ...Option) *Transport {
	t := &Transport{
		addr:         addr,
		readTimeout:  DefaultReadTimeout,
		writeTimeout: DefaultWriteTimeout,
		keepAlive:    DefaultKeepAlive,
		logger:       logger.GetLogger(),
		buf:          make([]byte, readBufferSize),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("remote", addr)

	return t
}

// Addr returns the remote address.
func (t *Transport) Addr() string { return t.addr }

// Connect dials the remote address. ctx bounds the dial.
func (t *Transport) Connect(ctx context.Context) error {
	dialer := &net.Dialer{KeepAlive: t.keepAlive}

	conn, err := dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		t.logger.Debug("failed to dial", "error", err)
		return err
	}

	t.mu.Lock()
	if t.conn != nil {
		_ = t.conn.Close()
	}
	t.conn = conn
	t.mu.Unlock()

	t.streaming.Store(true)
	t.logger.Debug("connected",
		"local_addr", conn.LocalAddr().String(),
		"remote_addr", conn.RemoteAddr().String(),
	)

	return nil
}

// Close closes the connection.
func (t *Transport) Close() error {
	t.streaming.Store(false)

	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}

	return conn.Close()
}

// Streaming reports whether the connection is up. It turns false once a read or write
// failed with anything but a timeout.
func (t *Transport) Streaming() bool {
	return t.streaming.Load()
}

// Write sends text with a write deadline.
func (t *Transport) Write(text string) error {
	conn := t.current()
	if conn == nil {
		return tether.ErrNotConnected
	}

	_ = conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	if _, err := io.WriteString(conn, text); err != nil {
		t.streaming.Store(false)
		return fmt.Errorf("tcp: write: %w", err)
	}

	return nil
}

// Read waits up to the read timeout for data and returns what arrived, or "".
func (t *Transport) Read() (string, error) {
	conn := t.current()
	if conn == nil {
		return "", tether.ErrNotConnected
	}

	_ = conn.SetReadDeadline(time.Now().Add(t.readTimeout))
	n, err := conn.Read(t.buf)
	text := string(t.buf[:n])

	if err == nil {
		return text, nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return text, nil
	}

	t.streaming.Store(false)
	if n > 0 {
		return text, nil
	}

	if errors.Is(err, io.EOF) {
		t.logger.Debug("connection closed by remote")
	}

	return "", fmt.Errorf("tcp: read: %w", err)
}

func (t *Transport) current() net.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.conn
}
