// Package natsbridge publishes session events to NATS.
//
// Each event is published JSON-encoded on the subject "<prefix>.<address>.<event type>", the
// address being sanitized into a single subject token, e.g.
// "tether.00:06:66:4A:1B:2C.position".
package natsbridge

import (
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-tether/logger"
	"github.com/arloliu/go-tether/tether"
	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is the default first subject token.
const DefaultSubjectPrefix = "tether"

// Publisher publishes a message on a subject; *nats.Conn implements it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Record is the JSON body of a published event.
type Record struct {
	Address string          `json:"address"`
	Type    string          `json:"type"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"payload"`
}

// Bridge is a tether.EventHandler publishing events through a Publisher.
type Bridge struct {
	pub    Publisher
	prefix string
	logger logger.Logger
	now    func() time.Time

	published atomic.Uint64
	failed    atomic.Uint64
}

// New creates a bridge. An empty prefix selects DefaultSubjectPrefix.
func New(pub Publisher, prefix string, l logger.Logger) *Bridge {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if l == nil {
		l = logger.GetLogger()
	}

	return &Bridge{pub: pub, prefix: prefix, logger: l, now: time.Now}
}

// Subject returns the subject of events of type typ from address.
func (b *Bridge) Subject(address string, typ tether.EventType) string {
	return b.prefix + "." + SanitizeToken(address) + "." + typ.String()
}

// Handle publishes ev; it is meant to be registered as a tether.EventHandler.
func (b *Bridge) Handle(address string, ev tether.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.failed.Add(1)
		b.logger.Error("natsbridge: failed to encode event", "address", address, "error", err)

		return
	}

	data, err := json.Marshal(Record{
		Address: address,
		Type:    ev.Type().String(),
		Time:    b.now().UTC(),
		Payload: payload,
	})
	if err != nil {
		b.failed.Add(1)
		b.logger.Error("natsbridge: failed to encode record", "address", address, "error", err)

		return
	}

	subject := b.Subject(address, ev.Type())
	if err := b.pub.Publish(subject, data); err != nil {
		b.failed.Add(1)
		b.logger.Warn("natsbridge: publish failed", "subject", subject, "error", err)

		return
	}

	b.published.Add(1)
}

// Published returns the number of published events.
func (b *Bridge) Published() uint64 { return b.published.Load() }

// Failed returns the number of events that could not be published.
func (b *Bridge) Failed() uint64 { return b.failed.Load() }

// SanitizeToken turns s into a valid NATS subject token: separators, wildcards and
// whitespace become underscores.
func SanitizeToken(s string) string {
	if s == "" {
		return "_"
	}

	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		default:
			return r
		}
	}, s)
}

// Connect connects to the NATS server at url, reconnecting forever, and logs connection
// changes.
func Connect(url string, name string, l logger.Logger) (*nats.Conn, error) {
	if l == nil {
		l = logger.GetLogger()
	}

	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				l.Warn("natsbridge: disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			l.Info("natsbridge: reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			l.Debug("natsbridge: connection closed")
		}),
	)
}
