package main

import "github.com/rs/zerolog/log"

// Routing keys published by the catalog service.
const (
	RKOrderCreated = "order.created"
	RKOrderDeleted = "order.deleted"
)

type OrderCreatedPayload struct {
	OrderID string `json:"order_id"`
	BookID  int64  `json:"book_id"`
	Amount  int64  `json:"amount"`
}

type OrderDeletedPayload struct {
	OrderID string `json:"order_id"`
}

type Publisher interface {
	PublishJSON(routingKey string, v any) error
}

// Events is a nil-safe wrapper: with no broker configured every publish is a
// no-op, and publish failures never fail the request that triggered them.
type Events struct {
	pub Publisher
}

func NewEvents(pub Publisher) *Events { return &Events{pub: pub} }

func (e *Events) publish(key string, v any) {
	if e == nil || e.pub == nil {
		return
	}
	if err := e.pub.PublishJSON(key, v); err != nil {
		log.Warn().Err(err).Str("routing_key", key).Msg("publish failed")
	}
}

func (e *Events) OrderCreated(o *Order) {
	e.publish(RKOrderCreated, OrderCreatedPayload{OrderID: o.ID, BookID: o.BookID, Amount: o.Amount})
}

func (e *Events) OrderDeleted(orderID string) {
	e.publish(RKOrderDeleted, OrderDeletedPayload{OrderID: orderID})
}
