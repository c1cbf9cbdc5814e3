package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/rownie/vc-module-cart/pkg/kafka"
	"github.com/rownie/vc-module-cart/internal/domain"
)

// Kafka topic constants for cart domain events.
const (
	TopicCartUpdated = "commerce.cart.updated"
	TopicCartCleared = "commerce.cart.cleared"
	TopicCartDeleted = "commerce.cart.deleted"
)

// Aggregate type constant.
const AggregateTypeCart = "cart"

// Source identifier for events originating from this service.
const SourceCartService = "cart-service"

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	CartID     string `json:"cart_id"`
	StoreID    string `json:"store_id"`
	CustomerID string `json:"customer_id"`
	Currency   string `json:"currency"`
	ItemCount  int    `json:"item_count"`
	Total      int64  `json:"total"`
}

// CartClearedData is the payload for a cart.cleared event.
type CartClearedData struct {
	CartID     string `json:"cart_id"`
	CustomerID string `json:"customer_id"`
}

// CartDeletedData is the payload for a cart.deleted event.
type CartDeletedData struct {
	CartIDs []string `json:"cart_ids"`
}

// Producer publishes cart domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the cart service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCartUpdated publishes a cart.updated event.
func (p *Producer) PublishCartUpdated(ctx context.Context, cart *domain.Cart) error {
	data := CartUpdatedData{
		CartID:     cart.ID,
		StoreID:    cart.StoreID,
		CustomerID: cart.CustomerID,
		Currency:   cart.Currency,
		ItemCount:  cart.ItemCount(),
		Total:      cart.Total,
	}

	evt, err := pkgkafka.NewEvent(TopicCartUpdated, cart.ID, AggregateTypeCart, SourceCartService, data)
	if err != nil {
		return fmt.Errorf("create cart.updated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCartUpdated, evt); err != nil {
		return fmt.Errorf("publish cart.updated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published cart.updated event",
		slog.String("cart_id", cart.ID),
		slog.Int("item_count", cart.ItemCount()),
	)

	return nil
}

// PublishCartCleared publishes a cart.cleared event.
func (p *Producer) PublishCartCleared(ctx context.Context, cart *domain.Cart) error {
	data := CartClearedData{CartID: cart.ID, CustomerID: cart.CustomerID}

	evt, err := pkgkafka.NewEvent(TopicCartCleared, cart.ID, AggregateTypeCart, SourceCartService, data)
	if err != nil {
		return fmt.Errorf("create cart.cleared event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCartCleared, evt); err != nil {
		return fmt.Errorf("publish cart.cleared event: %w", err)
	}

	p.logger.DebugContext(ctx, "published cart.cleared event",
		slog.String("cart_id", cart.ID),
	)

	return nil
}

// PublishCartDeleted publishes a cart.deleted event for a bulk delete.
func (p *Producer) PublishCartDeleted(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	data := CartDeletedData{CartIDs: ids}

	evt, err := pkgkafka.NewEvent(TopicCartDeleted, ids[0], AggregateTypeCart, SourceCartService, data)
	if err != nil {
		return fmt.Errorf("create cart.deleted event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCartDeleted, evt); err != nil {
		return fmt.Errorf("publish cart.deleted event: %w", err)
	}

	p.logger.DebugContext(ctx, "published cart.deleted event",
		slog.Int("count", len(ids)),
	)

	return nil
}
