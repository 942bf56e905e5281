package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// Caller-facing projection; bentuk flat, tidak pernah mengekspos entity
// mentah ke layer HTTP.

type LineView struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type OrderView struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Username        string          `json:"username"`
	Lines           []LineView      `json:"items"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	ShippingAddress string          `json:"shipping_address"`
	PaymentMethod   string          `json:"payment_method"`
	Status          Status          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func Project(o *Order, u User) *OrderView {
	lines := make([]LineView, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, LineView{
			ID:          l.ID,
			OrderID:     l.OrderID,
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Subtotal:    l.Subtotal,
		})
	}
	return &OrderView{
		ID:              o.ID,
		UserID:          o.UserID,
		Username:        u.Username,
		Lines:           lines,
		TotalAmount:     o.TotalAmount,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		Status:          o.Status,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

type ProductView struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Category      string          `json:"category,omitempty"`
	Brand         string          `json:"brand,omitempty"`
	ImageURL      string          `json:"image_url,omitempty"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	Available     bool            `json:"available"`
}

func ProjectProduct(p *Product) ProductView {
	return ProductView{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Category:      p.Category,
		Brand:         p.Brand,
		ImageURL:      p.ImageURL,
		Price:         p.UnitPrice,
		StockQuantity: p.StockQuantity,
		Available:     p.Available,
	}
}
