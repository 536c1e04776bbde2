package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/diagnosis/parkspot/pkg/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
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

// Decode unmarshals the message payload into v.
func (m *Message) Decode(v interface{}) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", m.Subject, err)
	}
	return nil
}

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

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(wrap(msg.Subject, msg.Data))
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(wrap(msg.Subject, msg.Data))
	})
	return err
}

// Ping reports whether the connection is currently usable.
func (n *NATSEventBus) Ping(ctx context.Context) error {
	if !n.conn.IsConnected() {
		return fmt.Errorf("nats status %s", n.conn.Status())
	}
	return nil
}

func (n *NATSEventBus) Close() error {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
	return nil
}

func wrap(subject string, data []byte) *Message {
	return &Message{
		Subject:   subject,
		Data:      data,
		Timestamp: time.Now(),
		ID:        uuid.NewString(),
	}
}

// MemoryBus delivers events synchronously inside the process. The API falls
// back to it when NATS is not configured, and tests use it to observe events.
type MemoryBus struct {
	mu       sync.Mutex
	handlers map[string][]func(msg *Message)
	sent     []*Message
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: map[string][]func(msg *Message){}}
}

func (b *MemoryBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	msg := wrap(subject, payload)

	b.mu.Lock()
	b.sent = append(b.sent, msg)
	handlers := append([]func(*Message){}, b.handlers[subject]...)
	b.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
	return nil
}

func (b *MemoryBus) Subscribe(subject string, handler func(msg *Message)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[subject] = append(b.handlers[subject], handler)
	return nil
}

// QueueSubscribe ignores the queue group; there is only one consumer in process.
func (b *MemoryBus) QueueSubscribe(subject, _ string, handler func(msg *Message)) error {
	return b.Subscribe(subject, handler)
}

// Sent returns the published messages for a subject, oldest first.
func (b *MemoryBus) Sent(subject string) []*Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*Message
	for _, m := range b.sent {
		if m.Subject == subject {
			out = append(out, m)
		}
	}
	return out
}

func (b *MemoryBus) Close() error { return nil }

// Event subjects
const (
	BookingCreated       = "booking.created"
	BookingStatusChanged = "booking.status_changed"
	ListingSurgeChanged  = "listing.surge_changed"
)

// Queue groups
const (
	DurationStatsQueue = "duration-stats"
	NotifyQueue        = "notify"
)

type BookingCreatedEvent struct {
	BookingID  string    `json:"booking_id"`
	ListingID  string    `json:"listing_id"`
	RenterID   string    `json:"renter_id"`
	Duration   float64   `json:"duration"`
	TotalPrice float64   `json:"total_price"`
	StartTime  time.Time `json:"start_time"`
	CreatedAt  time.Time `json:"created_at"`
}

type BookingStatusChangedEvent struct {
	BookingID string    `json:"booking_id"`
	ListingID string    `json:"listing_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
}

type ListingSurgeChangedEvent struct {
	ListingID       string    `json:"listing_id"`
	SurgeMultiplier float64   `json:"surge_multiplier"`
	ChangedAt       time.Time `json:"changed_at"`
}
