package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-shop-orders.git/internal/kafka"
	"github.com/ariefcatur/go-shop-orders.git/internal/orders"
	"github.com/ariefcatur/go-shop-orders.git/internal/redisx"
)

type CreateOrderReq struct {
	ExternalID      string             `json:"external_id,omitempty"`
	Items           []orders.ItemInput `json:"items"`
	ShippingAddress string             `json:"shipping_address"`
	PaymentMethod   string             `json:"payment_method"`
}

type OrdersHandler struct {
	Svc               *orders.Service
	Ids               orders.Identity
	ProducerCreated   *kafkax.Producer
	ProducerCancelled *kafkax.Producer
	Redis             *redis.Client
	Service           string
	Log               *zap.Logger
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth)
		r.Post("/orders", h.createOrder)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getOrder)
		r.Post("/orders/{id}/cancel", h.cancelOrder)
	})
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Fast-path idempotency via Redis (optional, store tetap jadi kebenaran)
	if h.Redis != nil && req.ExternalID != "" {
		idemKey := fmt.Sprintf(redisx.KeyIdemOrderCreate, req.ExternalID)
		if orderID, err := h.Redis.Get(ctx, idemKey).Result(); err == nil && orderID != "" {
			if view, err := h.Svc.GetOrderByID(ctx, credential(r), orderID); err == nil {
				writeJSON(w, http.StatusCreated, view)
				return
			}
			// cache menunjuk order yang gagal dibaca; jatuh ke path normal
		}
	}

	view, err := h.Svc.CreateOrder(ctx, credential(r), orders.CreateOrderInput{
		ExternalID:      req.ExternalID,
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	if h.Redis != nil {
		if req.ExternalID != "" {
			idemKey := fmt.Sprintf(redisx.KeyIdemOrderCreate, req.ExternalID)
			_ = h.Redis.Set(ctx, idemKey, view.ID, redisx.TTLIdempotency).Err()
		}
		h.cacheView(ctx, view)
	}

	h.publish(orders.EventOrderCreated, view.ID,
		r.Header.Get("X-Request-Id"),
		orders.OrderCreatedPayload{
			OrderID:     view.ID,
			ExternalID:  req.ExternalID,
			UserID:      view.UserID,
			Items:       orders.EventLinesFromView(view),
			TotalAmount: view.TotalAmount,
		}, h.ProducerCreated)

	ordersCreated.Inc()
	writeJSON(w, http.StatusCreated, view)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	views, err := h.Svc.GetUserOrders(ctx, credential(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) coba cache; tetap cek ownership terhadap caller
	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderView, orderID)
		if raw, err := h.Redis.Get(ctx, key).Result(); err == nil && raw != "" {
			var view orders.OrderView
			if err := json.Unmarshal([]byte(raw), &view); err == nil {
				if user, err := h.Ids.Resolve(ctx, credential(r)); err == nil && user.ID == view.UserID {
					writeJSON(w, http.StatusOK, &view)
					return
				}
			}
		}
	}

	// 2) fallback store
	view, err := h.Svc.GetOrderByID(ctx, credential(r), orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if h.Redis != nil {
		h.cacheView(ctx, view)
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	view, err := h.Svc.CancelOrder(ctx, credential(r), orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if h.Redis != nil {
		h.cacheView(ctx, view) // overwrite projection lama
	}

	h.publish(orders.EventOrderCancelled, view.ID,
		r.Header.Get("X-Request-Id"),
		orders.OrderCancelledPayload{
			OrderID: view.ID,
			UserID:  view.UserID,
			Items:   orders.EventLinesFromView(view),
		}, h.ProducerCancelled)

	ordersCancelled.Inc()
	writeJSON(w, http.StatusOK, view)
}

func (h *OrdersHandler) cacheView(ctx context.Context, view *orders.OrderView) {
	key := fmt.Sprintf(redisx.KeyOrderView, view.ID)
	if b, err := json.Marshal(view); err == nil {
		_ = h.Redis.Set(ctx, key, b, redisx.TTLOrderView).Err()
	}
}

// publish: satu producer per topic, topic sudah terpasang di writer.
func (h *OrdersHandler) publish(eventType, orderID, trace string, payload any, p *kafkax.Producer) {
	if p == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       trace,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	if h.Log != nil {
		h.Log.Debug("event published", zap.String("event_type", eventType), zap.String("order_id", orderID))
	}
}
