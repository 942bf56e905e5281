package orders

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

type ItemInput struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type CreateOrderInput struct {
	ExternalID      string
	Items           []ItemInput
	ShippingAddress string
	PaymentMethod   string
}

// Service orchestrates the order lifecycle: stock check, price snapshot,
// atomic decrement, persist, dan restitusi stok saat cancel.
type Service struct {
	store   Store
	ids     Identity
	log     *zap.Logger
	retries int
}

func NewService(store Store, ids Identity, log *zap.Logger) *Service {
	return &Service{store: store, ids: ids, log: log, retries: 3}
}

// WithRetryBudget overrides the conflict-retry attempt count (minimum 1).
func (s *Service) WithRetryBudget(n int) *Service {
	if n > 0 {
		s.retries = n
	}
	return s
}

// inTxRetry reruns fn only on commit conflicts; fn harus membangun ulang
// semua state per attempt supaya re-validasi baca stok yang fresh.
func (s *Service) inTxRetry(ctx context.Context, fn func(tx Tx) error) error {
	var err error
	for attempt := 1; attempt <= s.retries; attempt++ {
		err = s.store.RunInTx(ctx, fn)
		if err == nil || !errors.Is(err, ErrTxConflict) {
			return err
		}
		s.log.Warn("commit conflict, retrying", zap.Int("attempt", attempt), zap.Error(err))
	}
	return err
}

// CreateOrder validates the request against current stock, snapshots unit
// prices, decrements inventory and persists order + lines sebagai satu
// unit atomik. Kegagalan di item manapun -> tidak ada efek sama sekali.
func (s *Service) CreateOrder(ctx context.Context, credential string, in CreateOrderInput) (*OrderView, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}
	user, err := s.ids.Resolve(ctx, credential)
	if err != nil {
		return nil, err
	}

	var view *OrderView
	err = s.inTxRetry(ctx, func(tx Tx) error {
		// idempotency by external_id, seperti path create lama
		if in.ExternalID != "" {
			existing, err := tx.FindOrderByExternalID(ctx, user.ID, in.ExternalID)
			if err != nil {
				return err
			}
			if existing != nil {
				view = Project(existing, user)
				return nil
			}
		}

		order := NewOrder(user.ID, in.ExternalID, in.ShippingAddress, in.PaymentMethod)
		for _, it := range in.Items {
			p, err := tx.GetProductForUpdate(ctx, it.ProductID)
			if err != nil {
				return err
			}
			if p.StockQuantity < it.Qty {
				return &InsufficientStockError{
					ProductID:   p.ID,
					ProductName: p.Name,
					Requested:   it.Qty,
					Available:   p.StockQuantity,
				}
			}
			if err := tx.AdjustStock(ctx, p.ID, -it.Qty); err != nil {
				return err
			}
			order.AddLine(NewLine(p, it.Qty))
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		view = Project(order, user)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("order created",
		zap.String("order_id", view.ID),
		zap.String("user_id", user.ID),
		zap.Int("lines", len(view.Lines)),
	)
	return view, nil
}

// CancelOrder is status-gated: hanya PENDING/CONFIRMED. Stok setiap line
// dikembalikan dalam transaksi yang sama dengan perubahan status.
func (s *Service) CancelOrder(ctx context.Context, credential, orderID string) (*OrderView, error) {
	user, err := s.ids.Resolve(ctx, credential)
	if err != nil {
		return nil, err
	}

	var view *OrderView
	err = s.inTxRetry(ctx, func(tx Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != user.ID {
			return &AccessDeniedError{OrderID: orderID}
		}
		if err := o.Cancel(); err != nil {
			return err
		}
		for _, l := range o.Lines {
			if err := tx.AdjustStock(ctx, l.ProductID, l.Quantity); err != nil {
				return err
			}
		}
		if err := tx.UpdateOrderStatus(ctx, o); err != nil {
			return err
		}
		view = Project(o, user)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("order cancelled", zap.String("order_id", orderID), zap.String("user_id", user.ID))
	return view, nil
}

func (s *Service) GetOrderByID(ctx context.Context, credential, orderID string) (*OrderView, error) {
	user, err := s.ids.Resolve(ctx, credential)
	if err != nil {
		return nil, err
	}
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	// existence di-reveal, ownership yang ditolak (perilaku source system)
	if o.UserID != user.ID {
		return nil, &AccessDeniedError{OrderID: orderID}
	}
	return Project(o, user), nil
}

// GetUserOrders returns the caller's orders, paling baru duluan.
func (s *Service) GetUserOrders(ctx context.Context, credential string) ([]*OrderView, error) {
	user, err := s.ids.Resolve(ctx, credential)
	if err != nil {
		return nil, err
	}
	list, err := s.store.ListOrdersByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	views := make([]*OrderView, 0, len(list))
	for _, o := range list {
		views = append(views, Project(o, user))
	}
	return views, nil
}

func validateCreate(in CreateOrderInput) error {
	if len(in.Items) == 0 {
		return &ValidationError{Field: "items", Reason: "must contain at least one item"}
	}
	for _, it := range in.Items {
		if it.ProductID == "" {
			return &ValidationError{Field: "items", Reason: "product_id is required"}
		}
		if it.Qty < 1 {
			return &ValidationError{Field: "items", Reason: "qty must be at least 1"}
		}
	}
	if strings.TrimSpace(in.ShippingAddress) == "" {
		return &ValidationError{Field: "shipping_address", Reason: "is required"}
	}
	if strings.TrimSpace(in.PaymentMethod) == "" {
		return &ValidationError{Field: "payment_method", Reason: "is required"}
	}
	return nil
}
