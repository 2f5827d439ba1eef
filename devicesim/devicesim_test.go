package devicesim

import (
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/arloliu/go-tether/transport/memory"
	"github.com/arloliu/go-tether/transport/tcp"
	"github.com/stretchr/testify/require"
)

type reader interface {
	Read() (string, error)
}

// collect accumulates everything read from r until cond holds for the collected text.
func collect(t *testing.T, r reader, cond func(string) bool) string {
	t.Helper()

	var sb strings.Builder
	require.Eventually(t, func() bool {
		text, err := r.Read()
		if err != nil {
			return false
		}
		sb.WriteString(text)

		return cond(sb.String())
	}, 2*time.Second, time.Millisecond)

	return sb.String()
}

func contains(sub string) func(string) bool {
	return func(s string) bool { return strings.Contains(s, sub) }
}

func TestSimulator_Serve(t *testing.T) {
	require := require.New(t)

	host, dev := memory.New()
	require.NoError(host.Connect(context.Background()))

	sim := New(WithInterval(5 * time.Millisecond))
	sim.SetPosition(10, -20, 30)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sim.Serve(ctx, dev) }()

	collect(t, host, contains("POS 10 -20 30\n"))

	require.NoError(host.Write("LED 1\n"))
	collect(t, host, contains("AOK LED 1\n"))

	require.NoError(host.Write("FOO\n"))
	collect(t, host, contains("ERROR UNKNOWN FOO\n"))
	require.Equal([]string{"LED 1", "FOO"}, sim.Commands())

	require.NoError(sim.SetButton(2, true))
	collect(t, host, contains("BTN_2 1\n"))
	require.Error(sim.SetButton(3, true))

	cancel()
	require.NoError(dev.Close())

	select {
	case err := <-done:
		require.NoError(err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return")
	}
}

func TestSimulator_Jitter(t *testing.T) {
	require := require.New(t)

	sim := New(WithJitter(5))
	var prev [3]int32
	for i := 0; i < 100; i++ {
		var cur [3]int32
		_, err := fmt.Sscanf(sim.nextPositionFrame(), "POS %d %d %d", &cur[0], &cur[1], &cur[2])
		require.NoError(err)
		for axis := range cur {
			require.LessOrEqual(cur[axis]-prev[axis], int32(5))
			require.GreaterOrEqual(cur[axis]-prev[axis], int32(-5))
		}
		prev = cur
	}

	sim = New(WithJitter(0))
	require.Equal("POS 0 0 0", sim.nextPositionFrame())
}

func TestSimulator_CommandHandler(t *testing.T) {
	require := require.New(t)

	h := AcknowledgeCommands("LED")
	require.Equal("AOK LED 1", h("LED 1"))
	require.Equal("ERROR UNKNOWN BEEP", h("BEEP"))

	sim := New(WithCommandHandler(func(cmd string) string { return "AOK" }))
	require.Equal("AOK", sim.handler("ANY"))
}

func TestSimulator_ServeListener(t *testing.T) {
	require := require.New(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err)

	sim := New(WithInterval(0))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sim.ServeListener(ctx, ln) }()

	tr := tcp.New(ln.Addr().String(), tcp.WithReadTimeout(5*time.Millisecond))
	require.NoError(tr.Connect(context.Background()))

	require.NoError(tr.Write("PING\n"))
	collect(t, tr, contains("AOK PING\n"))

	// the connection is registered once it answered a command
	require.NoError(sim.SetButton(1, true))
	collect(t, tr, contains("BTN_1 1\n"))

	cancel()
	select {
	case err := <-done:
		require.NoError(err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}

	require.Eventually(func() bool {
		_, _ = tr.Read()
		return !tr.Streaming()
	}, 2*time.Second, time.Millisecond)
	require.NoError(tr.Close())
}
