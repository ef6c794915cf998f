package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/diagnosis/fieldops/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data any) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

const msgIDHeader = "Nats-Msg-Id"

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url, name string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	msg := nats.NewMsg(subject)
	msg.Data = payload
	msg.Header.Set(msgIDHeader, uuid.NewString())
	return n.conn.PublishMsg(msg)
}

func toMessage(msg *nats.Msg) *Message {
	id := ""
	if msg.Header != nil {
		id = msg.Header.Get(msgIDHeader)
	}
	if id == "" {
		id = fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return &Message{
		Subject:   msg.Subject,
		Data:      msg.Data,
		Timestamp: time.Now().UTC(),
		ID:        id,
	}
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(toMessage(msg))
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(toMessage(msg))
	})
	return err
}

func (n *NATSEventBus) Close() error {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return err
	}
	return nil
}

// NopBus discards everything. Used when NATS is disabled or unreachable.
type NopBus struct{}

func (NopBus) Publish(context.Context, string, any) error { return nil }
func (NopBus) Subscribe(string, func(*Message)) error { return nil }
func (NopBus) QueueSubscribe(string, string, func(*Message)) error { return nil }
func (NopBus) Close() error { return nil }

// MemoryBus records published events in process and fans them out to
// subscribers synchronously. Subjects are matched exactly or by a trailing
// ">" wildcard.
type MemoryBus struct {
	mu        sync.Mutex
	published []Message
	handlers  map[string][]func(*Message)
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[string][]func(*Message))}
}

func (m *MemoryBus) Publish(_ context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	msg := Message{Subject: subject, Data: payload, Timestamp: time.Now().UTC(), ID: uuid.NewString()}

	m.mu.Lock()
	m.published = append(m.published, msg)
	var targets []func(*Message)
	for pattern, hs := range m.handlers {
		if subjectMatches(pattern, subject) {
			targets = append(targets, hs...)
		}
	}
	m.mu.Unlock()

	for _, h := range targets {
		cp := msg
		h(&cp)
	}
	return nil
}

func (m *MemoryBus) Subscribe(subject string, handler func(msg *Message)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[subject] = append(m.handlers[subject], handler)
	return nil
}

func (m *MemoryBus) QueueSubscribe(subject, _ string, handler func(msg *Message)) error {
	return m.Subscribe(subject, handler)
}

func (m *MemoryBus) Close() error { return nil }

// Published returns a copy of every message seen so far.
func (m *MemoryBus) Published() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.published...)
}

func subjectMatches(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	if n := len(pattern); n > 0 && pattern[n-1] == '>' {
		prefix := pattern[:n-1]
		return len(subject) > len(prefix) && subject[:len(prefix)] == prefix
	}
	return false
}

// Visit subjects
const (
	VisitScheduled = "visit.scheduled"
	VisitUpdated   = "visit.updated"
	VisitStarted   = "visit.started"
	VisitCompleted = "visit.completed"
	VisitCancelled = "visit.cancelled"
	VisitNoShow    = "visit.no_show"

	// VisitAll matches every visit subject.
	VisitAll = "visit.>"
)

// VisitEvent mirrors one persisted audit entry together with the visit
// state it produced.
type VisitEvent struct {
	EventID      string    `json:"event_id"`
	Type         string    `json:"type"`
	VisitID      string    `json:"visit_id"`
	CustomerID   string    `json:"customer_id"`
	SiteID       string    `json:"site_id"`
	TechnicianID string    `json:"technician_id"`
	State        string    `json:"state"`
	ActorID      string    `json:"actor_id,omitempty"`
	GeoLat       *float64  `json:"geo_lat,omitempty"`
	GeoLng       *float64  `json:"geo_lng,omitempty"`
	Payload      string    `json:"payload,omitempty"`
	Changes      []string  `json:"changes,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
