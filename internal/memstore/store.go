// Package memstore is an in-memory orders.Store used by tests and dev mode.
// Transactions stage on cloned maps; commit swaps them in, jadi transaksi
// yang gagal tidak meninggalkan jejak apa pun.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ariefcatur/go-shop-orders.git/internal/orders"
)

type Store struct {
	mu           sync.RWMutex
	products     map[string]*orders.Product
	usersByToken map[string]orders.User
	usersByID    map[string]orders.User
	ordersByID   map[string]*orders.Order
	byExternalID map[string]string
}

func New() *Store {
	return &Store{
		products:     make(map[string]*orders.Product),
		usersByToken: make(map[string]orders.User),
		usersByID:    make(map[string]orders.User),
		ordersByID:   make(map[string]*orders.Order),
		byExternalID: make(map[string]string),
	}
}

func (s *Store) SeedProduct(p orders.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.products[p.ID] = &cp
}

func (s *Store) SeedUser(u orders.User, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usersByToken[token] = u
	s.usersByID[u.ID] = u
}

// Resolve implements orders.Identity.
func (s *Store) Resolve(ctx context.Context, credential string) (orders.User, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.usersByToken[credential]
	if !ok {
		return orders.User{}, &orders.NotFoundError{Kind: "user", ID: credential}
	}
	return u, nil
}

// RunInTx serializes all mutations behind one lock; itu cukup untuk
// kontrak isolasi per-product di backend memory.
func (s *Store) RunInTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &memTx{
		products:     cloneProducts(s.products),
		ordersByID:   cloneOrders(s.ordersByID),
		byExternalID: cloneIndex(s.byExternalID),
	}
	if err := fn(t); err != nil {
		return err // staged clones dibuang
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.products = t.products
	s.ordersByID = t.ordersByID
	s.byExternalID = t.byExternalID
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*orders.Order, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.ordersByID[id]
	if !ok {
		return nil, &orders.NotFoundError{Kind: "order", ID: id}
	}
	return o.Clone(), nil
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID string) ([]*orders.Order, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*orders.Order
	for _, o := range s.ordersByID {
		if o.UserID == userID {
			out = append(out, o.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// GetProduct is a read outside any order transaction (catalog path).
func (s *Store) GetProduct(ctx context.Context, id string) (*orders.Product, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, &orders.NotFoundError{Kind: "product", ID: id}
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ListAvailable(ctx context.Context) ([]*orders.Product, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*orders.Product
	for _, p := range s.products {
		if p.Available {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) FindByCategory(ctx context.Context, category string) ([]*orders.Product, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*orders.Product
	for _, p := range s.products {
		if p.Available && strings.EqualFold(p.Category, category) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) SearchKeyword(ctx context.Context, keyword string) ([]*orders.Product, error) {
	_ = ctx
	kw := strings.ToLower(keyword)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*orders.Product
	for _, p := range s.products {
		if !p.Available {
			continue
		}
		if strings.Contains(strings.ToLower(p.Name), kw) ||
			strings.Contains(strings.ToLower(p.Description), kw) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type memTx struct {
	products     map[string]*orders.Product
	ordersByID   map[string]*orders.Order
	byExternalID map[string]string
}

func (t *memTx) GetProductForUpdate(ctx context.Context, id string) (*orders.Product, error) {
	_ = ctx
	p, ok := t.products[id]
	if !ok {
		return nil, &orders.NotFoundError{Kind: "product", ID: id}
	}
	return p, nil
}

func (t *memTx) AdjustStock(ctx context.Context, productID string, delta int) error {
	_ = ctx
	p, ok := t.products[productID]
	if !ok {
		return &orders.NotFoundError{Kind: "product", ID: productID}
	}
	if p.StockQuantity+delta < 0 {
		// backstop; service sudah cek di bawah lock
		return fmt.Errorf("stock for product %s would go negative", productID)
	}
	p.StockQuantity += delta
	return nil
}

func (t *memTx) InsertOrder(ctx context.Context, o *orders.Order) error {
	_ = ctx
	if len(o.Lines) == 0 {
		return orders.ErrEmptyOrder
	}
	if _, exists := t.ordersByID[o.ID]; exists {
		return fmt.Errorf("order already exists: %s", o.ID)
	}
	t.ordersByID[o.ID] = o.Clone()
	if o.ExternalID != "" {
		t.byExternalID[extKey(o.UserID, o.ExternalID)] = o.ID
	}
	return nil
}

func (t *memTx) GetOrderForUpdate(ctx context.Context, id string) (*orders.Order, error) {
	_ = ctx
	o, ok := t.ordersByID[id]
	if !ok {
		return nil, &orders.NotFoundError{Kind: "order", ID: id}
	}
	return o.Clone(), nil
}

func (t *memTx) UpdateOrderStatus(ctx context.Context, o *orders.Order) error {
	_ = ctx
	if _, ok := t.ordersByID[o.ID]; !ok {
		return &orders.NotFoundError{Kind: "order", ID: o.ID}
	}
	t.ordersByID[o.ID] = o.Clone()
	return nil
}

func (t *memTx) FindOrderByExternalID(ctx context.Context, userID, externalID string) (*orders.Order, error) {
	_ = ctx
	id, ok := t.byExternalID[extKey(userID, externalID)]
	if !ok {
		return nil, nil
	}
	o, ok := t.ordersByID[id]
	if !ok {
		return nil, nil
	}
	return o.Clone(), nil
}

// Index key idempotency: external_id hanya unik per user.
func extKey(userID, externalID string) string {
	return userID + "\x1f" + externalID
}

func cloneProducts(in map[string]*orders.Product) map[string]*orders.Product {
	out := make(map[string]*orders.Product, len(in))
	for k, v := range in {
		cp := *v
		out[k] = &cp
	}
	return out
}

func cloneOrders(in map[string]*orders.Order) map[string]*orders.Order {
	out := make(map[string]*orders.Order, len(in))
	for k, v := range in {
		out[k] = v.Clone()
	}
	return out
}

func cloneIndex(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
