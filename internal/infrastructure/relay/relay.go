// Package relay forwards domain events from the in-process bus to external brokers.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/cafeteria/internal/domain/catalog"
	domorder "github.com/Zhima-Mochi/cafeteria/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/cafeteria/internal/domain/outbox"
	"github.com/Zhima-Mochi/cafeteria/internal/observability"
	"github.com/Zhima-Mochi/cafeteria/internal/observability/logctx"
	"github.com/google/uuid"
)

// Message is one broker write.
type Message struct {
	ID         string
	Event      string
	Key        string // aggregate id, used for partitioning
	RoutingKey string // empty means the event name
	Time       time.Time
	Body       []byte
}

// Sink is a broker producer.
type Sink interface {
	Name() string
	Send(ctx context.Context, m Message) error
	Close() error
}

// Envelope is the JSON body every relayed event is wrapped in.
type Envelope struct {
	ID         string          `json:"id"`
	Event      string          `json:"event"`
	Key        string          `json:"key"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Splitter turns one event into the messages a sink should receive.
type Splitter func(e domoutbox.Event) ([]Message, error)

// Relay subscribes to a fixed set of events and hands them to a sink.
type Relay struct {
	sink   Sink
	events []string
	split  Splitter
	log    observability.Logger

	relayed observability.Counter // events_relayed_total{sink,event,outcome}
}

// AllEvents are the domain events published by the order and inventory services.
var AllEvents = []string{
	domorder.StatusChangedEvent{}.EventName(),
	domorder.PaidEvent{}.EventName(),
	domorder.CancelledEvent{}.EventName(),
	catalog.StockLowEvent{}.EventName(),
}

func New(sink Sink, events []string, split Splitter, tel observability.Observability) *Relay {
	tel = observability.Or(tel)
	if split == nil {
		split = Single
	}
	return &Relay{
		sink:    sink,
		events:  events,
		split:   split,
		log:     tel.Logger().With(observability.F("component", "relay"), observability.F("sink", sink.Name())),
		relayed: tel.Metrics().Counter(observability.MEventsRelayed),
	}
}

func (r *Relay) Start(sub domoutbox.Subscriber) {
	for _, name := range r.events {
		sub.Subscribe(name, r.handle)
	}
}

func (r *Relay) Close() error { return r.sink.Close() }

func (r *Relay) handle(ctx context.Context, e domoutbox.Event) error {
	logger := logctx.FromOr(ctx, r.log)
	msgs, err := r.split(e)
	if err != nil {
		r.count(e.EventName(), "error")
		return fmt.Errorf("relay: encode %s: %w", e.EventName(), err)
	}
	for _, m := range msgs {
		if err := r.sink.Send(ctx, m); err != nil {
			r.count(m.Event, "error")
			logger.Warn("event_relay_failed",
				observability.F("sink", r.sink.Name()),
				observability.F("key", m.Key),
				observability.F("error", err.Error()),
			)
			return fmt.Errorf("relay: %s: send %s: %w", r.sink.Name(), m.Event, err)
		}
		r.count(m.Event, "success")
		logger.Debug("event_relayed",
			observability.F("sink", r.sink.Name()),
			observability.F("key", m.Key),
			observability.F("routing_key", m.RoutingKey),
		)
	}
	return nil
}

func (r *Relay) count(event, outcome string) {
	if r.relayed != nil {
		r.relayed.Add(1,
			observability.L("sink", r.sink.Name()),
			observability.L("event", event),
			observability.L("outcome", outcome),
		)
	}
}

// Single wraps e in one envelope keyed by its aggregate id.
func Single(e domoutbox.Event) ([]Message, error) {
	m, err := envelope(e, e, "")
	if err != nil {
		return nil, err
	}
	return []Message{m}, nil
}

// KitchenStations splits order.paid into one message per product kind so each station
// queue only sees its own lines. Routing keys are kitchen.<kind>.
func KitchenStations(e domoutbox.Event) ([]Message, error) {
	evt, ok := e.(domorder.PaidEvent)
	if !ok {
		return nil, nil
	}
	var kinds []catalog.Kind
	byKind := map[catalog.Kind][]domorder.PaidItem{}
	for _, it := range evt.Items {
		if _, seen := byKind[it.Kind]; !seen {
			kinds = append(kinds, it.Kind)
		}
		byKind[it.Kind] = append(byKind[it.Kind], it)
	}

	out := make([]Message, 0, len(kinds))
	for _, k := range kinds {
		part := evt
		part.Items = byKind[k]
		m, err := envelope(e, part, "kitchen."+string(k))
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func envelope(e domoutbox.Event, payload any, routingKey string) (Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	key, at := aggregateOf(e)
	env := Envelope{
		ID:         uuid.NewString(),
		Event:      e.EventName(),
		Key:        key,
		OccurredAt: at,
		Payload:    body,
	}
	b, err := json.Marshal(env)
	if err != nil {
		return Message{}, err
	}
	return Message{
		ID:         env.ID,
		Event:      env.Event,
		Key:        key,
		RoutingKey: routingKey,
		Time:       at,
		Body:       b,
	}, nil
}

func aggregateOf(e domoutbox.Event) (string, time.Time) {
	switch v := e.(type) {
	case domorder.StatusChangedEvent:
		return v.OrderID, v.OccurredAt
	case domorder.PaidEvent:
		return v.OrderID, v.OccurredAt
	case domorder.CancelledEvent:
		return v.OrderID, v.OccurredAt
	case catalog.StockLowEvent:
		return v.ProductID, v.OccurredAt
	default:
		return "", time.Now().UTC()
	}
}
