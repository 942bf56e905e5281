package redisx

import "time"

const (
	// Idempotency create order: idem:order:create:{external_id} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s"

	// Cache projection order: order_view:{order_id} -> OrderView JSON
	KeyOrderView = "order_view:%s"

	// Cache listing katalog: catalog:available -> []ProductView JSON
	KeyCatalogAvailable = "catalog:available"

	// Cache katalog per kategori: catalog:category:{category}
	KeyCatalogCategory = "catalog:category:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLOrderView   = 5 * time.Minute
	TTLCatalog     = 1 * time.Minute
	TTLDedup       = 48 * time.Hour
)
