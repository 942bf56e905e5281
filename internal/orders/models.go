package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type User struct {
	ID        string
	Username  string
	Email     string
	CreatedAt time.Time
}

type Product struct {
	ID            string
	Name          string
	Description   string
	Category      string
	Brand         string
	ImageURL      string
	UnitPrice     decimal.Decimal
	StockQuantity int
	Available     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Order struct {
	ID              string
	ExternalID      string
	UserID          string
	Lines           []OrderLine
	TotalAmount     decimal.Decimal
	Status          Status // lihat status.go
	ShippingAddress string
	PaymentMethod   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type OrderLine struct {
	ID      string
	OrderID string
	// LineNo menjaga urutan line seperti yang dikirim caller; id line
	// adalah uuid jadi tidak bisa dipakai buat sorting.
	LineNo      int
	ProductID   string
	ProductName string
	Quantity    int
	// UnitPrice adalah snapshot harga saat order dibuat; tidak ikut
	// berubah kalau harga katalog berubah.
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

// NewOrder stamps CreatedAt sekali; UpdatedAt di-maintain lewat Touch().
func NewOrder(userID, externalID, shippingAddress, paymentMethod string) *Order {
	now := time.Now().UTC()
	return &Order{
		ID:              uuid.NewString(),
		ExternalID:      externalID,
		UserID:          userID,
		TotalAmount:     decimal.Zero,
		Status:          StatusPending,
		ShippingAddress: shippingAddress,
		PaymentMethod:   paymentMethod,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// NewLine snapshots the product's current price and derives the subtotal.
// Subtotal is never set independently; it is always price * qty.
func NewLine(p *Product, qty int) OrderLine {
	return OrderLine{
		ID:          uuid.NewString(),
		ProductID:   p.ID,
		ProductName: p.Name,
		Quantity:    qty,
		UnitPrice:   p.UnitPrice,
		Subtotal:    p.UnitPrice.Mul(decimal.NewFromInt(int64(qty))),
	}
}

// AddLine menjaga TotalAmount == sum(line.Subtotal) dan menomori line
// sesuai urutan masuk.
func (o *Order) AddLine(l OrderLine) {
	l.OrderID = o.ID
	l.LineNo = len(o.Lines) + 1
	o.Lines = append(o.Lines, l)
	o.TotalAmount = o.TotalAmount.Add(l.Subtotal)
}

func (o *Order) Touch() { o.UpdatedAt = time.Now().UTC() }

// Cancel is the only transition this service owns.
func (o *Order) Cancel() error {
	if !CanTransition(o.Status, StatusCancelled) {
		return &InvalidStateError{OrderID: o.ID, Status: o.Status}
	}
	o.Status = StatusCancelled
	o.Touch()
	return nil
}

func (o *Order) Clone() *Order {
	c := *o
	c.Lines = make([]OrderLine, len(o.Lines))
	copy(c.Lines, o.Lines)
	return &c
}
