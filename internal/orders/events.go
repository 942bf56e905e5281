package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderCancelled = "OrderCancelled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "order-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // biasanya order_id
	Payload       json.RawMessage `json:"payload"`
}

// ---- Payload tipe per event ----

type EventLine struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Qty         int             `json:"qty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type OrderCreatedPayload struct {
	OrderID     string          `json:"order_id"`
	ExternalID  string          `json:"external_id,omitempty"`
	UserID      string          `json:"user_id"`
	Items       []EventLine     `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type OrderCancelledPayload struct {
	OrderID string      `json:"order_id"`
	UserID  string      `json:"user_id"`
	Items   []EventLine `json:"items"` // qty yang dikembalikan ke stok
}

func EventLinesFromView(v *OrderView) []EventLine {
	out := make([]EventLine, 0, len(v.Lines))
	for _, l := range v.Lines {
		out = append(out, EventLine{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Qty:         l.Quantity,
			UnitPrice:   l.UnitPrice,
			Subtotal:    l.Subtotal,
		})
	}
	return out
}
