package orders

import "context"

// Identity resolves an opaque caller credential (bearer token) ke user
// record. Gagal dengan *NotFoundError kalau kredensial tidak dikenal.
type Identity interface {
	Resolve(ctx context.Context, credential string) (User, error)
}

// Store is the durable home of orders plus the product stock it touches.
// Mutations run inside RunInTx: fn return error -> seluruh staged change
// dibuang, nil -> semuanya commit sebagai satu unit.
type Store interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	GetOrder(ctx context.Context, id string) (*Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]*Order, error)
}

// Tx exposes the row operations available inside one transaction. Rows
// returned by the ForUpdate getters are locked sampai commit/rollback.
type Tx interface {
	GetProductForUpdate(ctx context.Context, id string) (*Product, error)
	// AdjustStock applies a delta; stok tidak boleh jadi negatif.
	AdjustStock(ctx context.Context, productID string, delta int) error

	InsertOrder(ctx context.Context, o *Order) error
	GetOrderForUpdate(ctx context.Context, id string) (*Order, error)
	UpdateOrderStatus(ctx context.Context, o *Order) error
	// FindOrderByExternalID di-scope per user: external_id milik client,
	// jadi dua user boleh pakai nilai yang sama tanpa saling lihat.
	FindOrderByExternalID(ctx context.Context, userID, externalID string) (*Order, error)
}
