package tether

import "sync/atomic"

// SessionMetrics contains atomic metrics for a session.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc; the metrics
// package exports them as a prometheus.Collector.
type SessionMetrics struct {
	// ConnectCount indicates the number of successful connects.
	ConnectCount atomic.Uint64
	// ConnectFailCount indicates the number of failed connect attempts.
	ConnectFailCount atomic.Uint64
	// DisconnectCount indicates the number of Disconnected events emitted.
	DisconnectCount atomic.Uint64
	// TimeoutCount indicates the number of disconnects forced by the activity timeout.
	TimeoutCount atomic.Uint64

	// FrameRecvCount indicates the number of complete frames received.
	FrameRecvCount atomic.Uint64
	// FrameDropCount indicates the number of malformed or oversized frames dropped.
	FrameDropCount atomic.Uint64

	// CommandSendCount indicates the number of commands written to the transport.
	CommandSendCount atomic.Uint64
	// CommandOverwriteCount indicates the number of unsent commands replaced by a newer one.
	CommandOverwriteCount atomic.Uint64
	// CommandErrCount indicates the number of failed command writes.
	CommandErrCount atomic.Uint64

	// EventDropCount indicates the number of events dropped because the event queue was full.
	EventDropCount atomic.Uint64

	// ConnRetryGauge indicates the number of consecutive failed connect attempts.
	ConnRetryGauge atomic.Uint32
}

func (m *SessionMetrics) incConnectCount() {
	m.ConnectCount.Add(1)
}

func (m *SessionMetrics) incConnectFailCount() {
	m.ConnectFailCount.Add(1)
}

func (m *SessionMetrics) incDisconnectCount() {
	m.DisconnectCount.Add(1)
}

func (m *SessionMetrics) incTimeoutCount() {
	m.TimeoutCount.Add(1)
}

func (m *SessionMetrics) incFrameRecvCount() {
	m.FrameRecvCount.Add(1)
}

func (m *SessionMetrics) incFrameDropCount() {
	m.FrameDropCount.Add(1)
}

func (m *SessionMetrics) addFrameDropCount(n uint64) {
	m.FrameDropCount.Add(n)
}

func (m *SessionMetrics) incCommandSendCount() {
	m.CommandSendCount.Add(1)
}

func (m *SessionMetrics) incCommandOverwriteCount() {
	m.CommandOverwriteCount.Add(1)
}

func (m *SessionMetrics) incCommandErrCount() {
	m.CommandErrCount.Add(1)
}

func (m *SessionMetrics) incEventDropCount() {
	m.EventDropCount.Add(1)
}

func (m *SessionMetrics) incConnRetryGauge() uint32 {
	return m.ConnRetryGauge.Add(1)
}

func (m *SessionMetrics) resetConnRetryGauge() {
	m.ConnRetryGauge.Store(0)
}
