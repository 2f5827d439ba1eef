// Package memory provides an in-process tether.Transport connected to a simulated device end.
package memory

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/arloliu/go-tether/tether"
)

// ErrUnavailable is returned by Connect when the device end is unavailable or closed.
var ErrUnavailable = errors.New("memory: device unavailable")

type pipe struct {
	mu        sync.Mutex
	available bool
	connected bool
	closed    bool
	connects  int
	toHost    []byte
	toDevice  []byte
	notify    chan struct{} // wakes up a blocked device reader
}

func (p *pipe) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// New creates a connected pair: the host-side Transport and the device end.
// The device starts available and the link starts disconnected.
func New() (*Transport, *Device) {
	p := &pipe{available: true, notify: make(chan struct{}, 1)}
	return &Transport{p: p}, &Device{p: p}
}

// Transport is the host end of the pipe.
type Transport struct {
	p *pipe
}

var _ tether.Transport = (*Transport)(nil)

// Connect establishes the link when the device is available. Data left over from a previous
// link is discarded.
func (t *Transport) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.p.mu.Lock()
	defer t.p.mu.Unlock()

	if t.p.closed || !t.p.available {
		return ErrUnavailable
	}

	t.p.connected = true
	t.p.connects++
	t.p.toHost = t.p.toHost[:0]
	t.p.toDevice = t.p.toDevice[:0]
	t.p.wake()

	return nil
}

// Close breaks the link.
func (t *Transport) Close() error {
	t.p.mu.Lock()
	defer t.p.mu.Unlock()

	t.p.connected = false
	t.p.wake()

	return nil
}

// Streaming reports whether the link is up.
func (t *Transport) Streaming() bool {
	t.p.mu.Lock()
	defer t.p.mu.Unlock()

	return t.p.connected
}

// Write sends text to the device end.
func (t *Transport) Write(text string) error {
	t.p.mu.Lock()
	defer t.p.mu.Unlock()

	if !t.p.connected {
		return tether.ErrNotConnected
	}
	t.p.toDevice = append(t.p.toDevice, text...)
	t.p.wake()

	return nil
}

// Read returns everything the device wrote since the previous Read, or "" when nothing is
// pending. It never blocks.
func (t *Transport) Read() (string, error) {
	t.p.mu.Lock()
	defer t.p.mu.Unlock()

	if !t.p.connected {
		return "", tether.ErrNotConnected
	}
	if len(t.p.toHost) == 0 {
		return "", nil
	}

	text := string(t.p.toHost)
	t.p.toHost = t.p.toHost[:0]

	return text, nil
}

// Device is the device end of the pipe. It implements io.ReadWriteCloser so the same device
// logic serves in-memory and network links.
type Device struct {
	p *pipe
}

var _ io.ReadWriteCloser = (*Device)(nil)

// Read blocks until the host wrote data or the device is closed.
func (d *Device) Read(b []byte) (int, error) {
	for {
		d.p.mu.Lock()
		if d.p.closed {
			d.p.mu.Unlock()
			return 0, io.EOF
		}
		if len(d.p.toDevice) > 0 {
			n := copy(b, d.p.toDevice)
			d.p.toDevice = d.p.toDevice[n:]
			d.p.mu.Unlock()

			return n, nil
		}
		d.p.mu.Unlock()

		<-d.p.notify
	}
}

// Write transmits b to the host. Data written while the link is down is lost, as on a radio
// link without a listener.
func (d *Device) Write(b []byte) (int, error) {
	d.p.mu.Lock()
	defer d.p.mu.Unlock()

	if d.p.closed {
		return 0, io.ErrClosedPipe
	}
	if d.p.connected {
		d.p.toHost = append(d.p.toHost, b...)
	}

	return len(b), nil
}

// Close powers the device off: the link drops and further connects fail.
func (d *Device) Close() error {
	d.p.mu.Lock()
	defer d.p.mu.Unlock()

	d.p.closed = true
	d.p.connected = false
	d.p.wake()

	return nil
}

// Drop breaks the link from the device side, as when the device goes out of range.
func (d *Device) Drop() {
	d.p.mu.Lock()
	defer d.p.mu.Unlock()

	d.p.connected = false
}

// SetAvailable controls whether host connect attempts succeed.
func (d *Device) SetAvailable(available bool) {
	d.p.mu.Lock()
	defer d.p.mu.Unlock()

	d.p.available = available
}

// Connected reports whether the host end is connected.
func (d *Device) Connected() bool {
	d.p.mu.Lock()
	defer d.p.mu.Unlock()

	return d.p.connected
}

// Connects returns the number of successful host connects.
func (d *Device) Connects() int {
	d.p.mu.Lock()
	defer d.p.mu.Unlock()

	return d.p.connects
}
