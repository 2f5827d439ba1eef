package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/arloliu/go-tether/tether"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"
)

// ErrClientClosed is returned by Client operations after Close.
var ErrClientClosed = errors.New("wsbridge: client closed")

// Client is a WebSocket client of a Hub.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	id      string

	pending *xsync.MapOf[string, chan Message] // reply channels of in-flight Send calls, by request id
	events  chan AddressedEvent
	done    chan struct{}
	err     error
}

// AddressedEvent is an event received from the hub together with its session address.
type AddressedEvent struct {
	Address string
	Event   tether.Event
}

// Dial connects to the hub at url ("ws://host:port/ws") and waits for its hello message.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	var hello Message
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	if err := conn.ReadJSON(&hello); err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Time{})

	if hello.Type != MsgHello {
		_ = conn.Close()
		return nil, errors.New("wsbridge: unexpected first message " + hello.Type)
	}

	c := &Client{
		conn:    conn,
		pending: xsync.NewMapOf[string, chan Message](),
		events:  make(chan AddressedEvent, 64),
		done:    make(chan struct{}),
	}
	c.id = decodeClientID(hello)

	go c.readLoop()

	return c, nil
}

// ID returns the client id assigned by the hub.
func (c *Client) ID() string { return c.id }

// Events returns the events pushed by the hub. Events are dropped while the channel is full.
// The channel is closed when the connection ends.
func (c *Client) Events() <-chan AddressedEvent { return c.events }

// Err returns the error that ended the connection, once Events is closed.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Send asks the hub to send cmd to the device of address and reports whether the session
// accepted it. A reply arriving after Send returned is discarded.
func (c *Client) Send(ctx context.Context, address string, cmd string) (bool, error) {
	id := uuid.NewString()
	reply := make(chan Message, 1)
	c.pending.Store(id, reply)
	defer c.pending.Delete(id)

	c.writeMu.Lock()
	err := c.conn.WriteJSON(Message{Type: MsgSend, ID: id, Address: address, Command: cmd})
	c.writeMu.Unlock()
	if err != nil {
		return false, err
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-c.done:
		return false, ErrClientClosed
	case res := <-reply:
		if res.Type == MsgError {
			return false, errors.New("wsbridge: " + res.Error)
		}

		return res.Accepted != nil && *res.Accepted, nil
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	return c.conn.Close()
}

func (c *Client) readLoop() {
	defer func() {
		close(c.events)
		close(c.done)
	}()

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.err = err
			}

			return
		}

		switch msg.Type {
		case MsgSendResult, MsgError:
			reply, ok := c.pending.Load(msg.ID)
			if !ok {
				// answer to a Send that already gave up
				continue
			}
			select {
			case reply <- msg:
			default:
			}
		default:
			ev, ok := DecodeEvent(msg)
			if !ok {
				continue
			}
			select {
			case c.events <- AddressedEvent{Address: msg.Address, Event: ev}:
			default:
				// nobody consumes events
			}
		}
	}
}

func decodeClientID(hello Message) string {
	var p HelloPayload
	if err := json.Unmarshal(hello.Payload, &p); err != nil {
		return ""
	}

	return p.ClientID
}
