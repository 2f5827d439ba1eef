package tether

import (
	"context"
	"sync"
)

// fakeTransport is a scripted Transport: Read pops queued chunks, Write records the
// written text.
type fakeTransport struct {
	mu           sync.Mutex
	streaming    bool
	connectErr   error
	connectBlock bool
	connects     int
	closes       int
	reads        []string
	writes       []string
}

var _ Transport = (*fakeTransport)(nil)

func (t *fakeTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	t.connects++
	block, err := t.connectBlock, t.connectErr
	t.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.streaming = true
	t.mu.Unlock()

	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closes++
	t.streaming = false

	return nil
}

func (t *fakeTransport) Streaming() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.streaming
}

func (t *fakeTransport) Write(text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.streaming {
		return ErrNotConnected
	}
	t.writes = append(t.writes, text)

	return nil
}

func (t *fakeTransport) Read() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.reads) == 0 {
		return "", nil
	}
	text := t.reads[0]
	t.reads = t.reads[1:]

	return text, nil
}

func (t *fakeTransport) push(chunks ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.reads = append(t.reads, chunks...)
}

func (t *fakeTransport) setStreaming(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.streaming = v
}

func (t *fakeTransport) setConnectErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.connectErr = err
}

func (t *fakeTransport) written() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]string(nil), t.writes...)
}

func (t *fakeTransport) counts() (connects int, closes int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.connects, t.closes
}

// eventRecorder collects delivered events.
type eventRecorder struct {
	mu     sync.Mutex
	addrs  []string
	events []Event
}

func (r *eventRecorder) handle(address string, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.addrs = append(r.addrs, address)
	r.events = append(r.events, ev)
}

func (r *eventRecorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Event(nil), r.events...)
}

func (r *eventRecorder) types() []EventType {
	evs := r.snapshot()
	types := make([]EventType, len(evs))
	for i, ev := range evs {
		types[i] = ev.Type()
	}

	return types
}

func (r *eventRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.events)
}
