// Package stockwatch consumes order events dan menjaga sisi baca tetap
// jujur: invalidasi cache katalog setelah stok berubah, plus alert
// low-stock buat ops.
package stockwatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-shop-orders.git/internal/catalog"
	kafkax "github.com/ariefcatur/go-shop-orders.git/internal/kafka"
	"github.com/ariefcatur/go-shop-orders.git/internal/orders"
	"github.com/ariefcatur/go-shop-orders.git/internal/redisx"

	kafkago "github.com/segmentio/kafka-go"
)

type Service struct {
	Catalog   catalog.Reader
	Redis     *redis.Client
	Threshold int
	Log       *zap.Logger
}

// HandleOrderEvent dipasang sebagai handler consumer untuk kedua topic.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	switch env.EventType {
	case orders.EventOrderCreated, orders.EventOrderCancelled:
	default:
		return nil // ignore
	}

	// dedup via Redis (pakai event_id)
	dkey := fmt.Sprintf(redisx.KeyDedup, "stockwatch", env.EventID)
	if exists, _ := redisx.Exists(ctx, s.Redis, dkey); exists {
		return nil
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	var items []orders.EventLine
	switch env.EventType {
	case orders.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		if err != nil {
			return err
		}
		items = p.Items
	case orders.EventOrderCancelled:
		p, err := kafkax.UnwrapPayload[orders.OrderCancelledPayload](env.Payload)
		if err != nil {
			return err
		}
		items = p.Items
	}

	// stok berubah -> listing cache basi
	keys := []string{redisx.KeyCatalogAvailable}
	for _, it := range items {
		p, err := s.Catalog.GetProduct(ctx, it.ProductID)
		if err != nil {
			s.Log.Warn("product lookup failed", zap.String("product_id", it.ProductID), zap.Error(err))
			continue
		}
		if p.Category != "" {
			keys = append(keys, fmt.Sprintf(redisx.KeyCatalogCategory, p.Category))
		}
		if env.EventType == orders.EventOrderCreated && p.StockQuantity <= s.Threshold {
			s.Log.Warn("low stock",
				zap.String("product_id", p.ID),
				zap.String("name", p.Name),
				zap.Int("remaining", p.StockQuantity),
			)
		}
	}
	if err := s.Redis.Del(ctx, keys...).Err(); err != nil {
		s.Log.Warn("cache invalidation failed", zap.Error(err))
	}
	return nil
}
