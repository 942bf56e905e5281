package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-shop-orders.git/internal/orders"
)

// Store implements orders.Store di atas Postgres. Create dan cancel
// masing-masing satu transaksi: lock row product (FOR UPDATE), mutasi
// stok + order dalam unit yang sama, rollback via defer kalau gagal.
type Store struct{ DB *pgxpool.Pool }

func (s *Store) RunInTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	pgtx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return asConflict(err)
	}
	defer func() { _ = pgtx.Rollback(ctx) }()

	if err := fn(&storeTx{tx: pgtx}); err != nil {
		return asConflict(err)
	}
	return asConflict(pgtx.Commit(ctx))
}

// asConflict maps serialization/deadlock failures ke ErrTxConflict supaya
// service bisa retry dengan re-validasi.
func asConflict(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", orders.ErrTxConflict, pgErr.Message)
		}
	}
	return err
}

type storeTx struct{ tx pgx.Tx }

func (t *storeTx) GetProductForUpdate(ctx context.Context, id string) (*orders.Product, error) {
	row := t.tx.QueryRow(ctx, productCols+` FROM products WHERE id=$1 FOR UPDATE`, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &orders.NotFoundError{Kind: "product", ID: id}
	}
	return p, err
}

func (t *storeTx) AdjustStock(ctx context.Context, productID string, delta int) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity + $2, updated_at = now()
		WHERE id = $1 AND stock_quantity + $2 >= 0`,
		productID, delta)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("stock for product %s would go negative", productID)
	}
	return nil
}

func (t *storeTx) InsertOrder(ctx context.Context, o *orders.Order) error {
	if len(o.Lines) == 0 {
		return orders.ErrEmptyOrder
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(id, external_id, user_id, status, total_amount, shipping_address, payment_method, created_at, updated_at)
		VALUES ($1, NULLIF($2,''), $3, $4, $5::numeric, $6, $7, $8, $9)`,
		o.ID, o.ExternalID, o.UserID, string(o.Status), o.TotalAmount.String(),
		o.ShippingAddress, o.PaymentMethod, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}
	for _, l := range o.Lines {
		_, err = t.tx.Exec(ctx, `
			INSERT INTO order_lines(id, order_id, line_no, product_id, product_name, qty, unit_price, subtotal)
			VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric)`,
			l.ID, l.OrderID, l.LineNo, l.ProductID, l.ProductName, l.Quantity,
			l.UnitPrice.String(), l.Subtotal.String())
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *storeTx) GetOrderForUpdate(ctx context.Context, id string) (*orders.Order, error) {
	row := t.tx.QueryRow(ctx, orderCols+` FROM orders WHERE id=$1 FOR UPDATE`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &orders.NotFoundError{Kind: "order", ID: id}
	}
	if err != nil {
		return nil, err
	}
	if err := loadLines(ctx, t.tx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (t *storeTx) UpdateOrderStatus(ctx context.Context, o *orders.Order) error {
	ct, err := t.tx.Exec(ctx,
		`UPDATE orders SET status=$2, updated_at=$3 WHERE id=$1`,
		o.ID, string(o.Status), o.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return &orders.NotFoundError{Kind: "order", ID: o.ID}
	}
	return nil
}

func (t *storeTx) FindOrderByExternalID(ctx context.Context, userID, externalID string) (*orders.Order, error) {
	row := t.tx.QueryRow(ctx, orderCols+` FROM orders WHERE user_id=$1 AND external_id=$2`, userID, externalID)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := loadLines(ctx, t.tx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*orders.Order, error) {
	row := s.DB.QueryRow(ctx, orderCols+` FROM orders WHERE id=$1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &orders.NotFoundError{Kind: "order", ID: id}
	}
	if err != nil {
		return nil, err
	}
	if err := loadLines(ctx, s.DB, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID string) ([]*orders.Order, error) {
	rows, err := s.DB.Query(ctx, orderCols+` FROM orders WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*orders.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, o := range out {
		if err := loadLines(ctx, s.DB, o); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Resolve implements orders.Identity: opaque bearer token -> user row.
func (s *Store) Resolve(ctx context.Context, credential string) (orders.User, error) {
	var u orders.User
	err := s.DB.QueryRow(ctx,
		`SELECT id, username, email, created_at FROM users WHERE api_token=$1`,
		credential).Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.User{}, &orders.NotFoundError{Kind: "user", ID: "credential"}
	}
	if err != nil {
		return orders.User{}, err
	}
	return u, nil
}

// ---- catalog reads (di luar transaksi order) ----

func (s *Store) GetProduct(ctx context.Context, id string) (*orders.Product, error) {
	row := s.DB.QueryRow(ctx, productCols+` FROM products WHERE id=$1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &orders.NotFoundError{Kind: "product", ID: id}
	}
	return p, err
}

func (s *Store) ListAvailable(ctx context.Context) ([]*orders.Product, error) {
	return s.queryProducts(ctx, productCols+` FROM products WHERE available ORDER BY name`)
}

func (s *Store) FindByCategory(ctx context.Context, category string) ([]*orders.Product, error) {
	return s.queryProducts(ctx,
		productCols+` FROM products WHERE available AND lower(category) = lower($1) ORDER BY name`,
		category)
}

func (s *Store) SearchKeyword(ctx context.Context, keyword string) ([]*orders.Product, error) {
	pattern := "%" + keyword + "%"
	return s.queryProducts(ctx,
		productCols+` FROM products WHERE available AND (name ILIKE $1 OR description ILIKE $1) ORDER BY name`,
		pattern)
}

func (s *Store) queryProducts(ctx context.Context, sql string, args ...any) ([]*orders.Product, error) {
	rows, err := s.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*orders.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ---- scanning ----

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const productCols = `SELECT id, name, COALESCE(description,''), COALESCE(category,''),
	COALESCE(brand,''), COALESCE(image_url,''), unit_price::text, stock_quantity,
	available, created_at, updated_at`

const orderCols = `SELECT id, COALESCE(external_id,''), user_id, status, total_amount::text,
	COALESCE(shipping_address,''), COALESCE(payment_method,''), created_at, updated_at`

func scanProduct(row pgx.Row) (*orders.Product, error) {
	var p orders.Product
	var price string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Brand,
		&p.ImageURL, &price, &p.StockQuantity, &p.Available, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse unit_price: %w", err)
	}
	p.UnitPrice = d
	return &p, nil
}

func scanOrder(row pgx.Row) (*orders.Order, error) {
	var o orders.Order
	var status, total string
	if err := row.Scan(&o.ID, &o.ExternalID, &o.UserID, &status, &total,
		&o.ShippingAddress, &o.PaymentMethod, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("parse total_amount: %w", err)
	}
	o.Status = orders.Status(status)
	o.TotalAmount = d
	return &o, nil
}

func loadLines(ctx context.Context, q queryer, o *orders.Order) error {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, line_no, product_id, product_name, qty, unit_price::text, subtotal::text
		FROM order_lines WHERE order_id=$1 ORDER BY line_no`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var l orders.OrderLine
		var price, sub string
		if err := rows.Scan(&l.ID, &l.OrderID, &l.LineNo, &l.ProductID, &l.ProductName,
			&l.Quantity, &price, &sub); err != nil {
			return err
		}
		if l.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return err
		}
		if l.Subtotal, err = decimal.NewFromString(sub); err != nil {
			return err
		}
		o.Lines = append(o.Lines, l)
	}
	return rows.Err()
}
