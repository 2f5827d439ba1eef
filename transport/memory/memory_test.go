package memory

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/arloliu/go-tether/tether"
	"github.com/stretchr/testify/require"
)

func TestPipe(t *testing.T) {
	require := require.New(t)

	host, dev := New()
	require.False(host.Streaming())
	require.ErrorIs(host.Write("LED 1\n"), tether.ErrNotConnected)

	// data written without a link is lost
	_, err := dev.Write([]byte("POS 1 2 3\n"))
	require.NoError(err)

	require.NoError(host.Connect(context.Background()))
	require.True(host.Streaming())
	require.True(dev.Connected())
	require.Equal(1, dev.Connects())

	text, err := host.Read()
	require.NoError(err)
	require.Empty(text)

	_, err = dev.Write([]byte("BTN_1 1\n"))
	require.NoError(err)
	_, err = dev.Write([]byte("AOK\n"))
	require.NoError(err)

	text, err = host.Read()
	require.NoError(err)
	require.Equal("BTN_1 1\nAOK\n", text)

	require.NoError(host.Write("LED 1\n"))
	buf := make([]byte, 64)
	n, err := dev.Read(buf)
	require.NoError(err)
	require.Equal("LED 1\n", string(buf[:n]))

	dev.Drop()
	require.False(host.Streaming())

	require.NoError(host.Close())
}

func TestPipe_Availability(t *testing.T) {
	require := require.New(t)

	host, dev := New()
	dev.SetAvailable(false)
	require.ErrorIs(host.Connect(context.Background()), ErrUnavailable)

	dev.SetAvailable(true)
	require.NoError(host.Connect(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(host.Connect(ctx), context.Canceled)
}

func TestDevice_CloseUnblocksRead(t *testing.T) {
	require := require.New(t)

	host, dev := New()
	require.NoError(host.Connect(context.Background()))

	errCh := make(chan error, 1)
	go func() {
		_, err := dev.Read(make([]byte, 16))
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(dev.Close())

	select {
	case err := <-errCh:
		require.ErrorIs(err, io.EOF)
	case <-time.After(time.Second):
		t.Fatal("read not unblocked by close")
	}

	require.False(host.Streaming())
	require.ErrorIs(host.Connect(context.Background()), ErrUnavailable)

	_, err := dev.Write([]byte("x"))
	require.ErrorIs(err, io.ErrClosedPipe)
}
