// Package catalog serves the read paths outside the order core: listing,
// category filter, dan keyword/semantic search. Stok yang dilaporkan di
// sini hanyalah snapshot; kebenaran stok tetap di transaksi order.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ariefcatur/go-shop-orders.git/internal/orders"
	"github.com/ariefcatur/go-shop-orders.git/internal/redisx"
)

// Reader is the availability-filtered product source (Postgres or memstore).
type Reader interface {
	GetProduct(ctx context.Context, id string) (*orders.Product, error)
	ListAvailable(ctx context.Context) ([]*orders.Product, error)
	FindByCategory(ctx context.Context, category string) ([]*orders.Product, error)
	SearchKeyword(ctx context.Context, keyword string) ([]*orders.Product, error)
}

// Searcher is the external ranking service. Optional; kalau nil atau
// down, search jatuh ke LIKE-query lokal.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]SearchResult, error)
}

type SearchResult struct {
	ProductID  string  `json:"product_id"`
	Similarity float64 `json:"similarity"`
}

type Service struct {
	reader   Reader
	searcher Searcher
	rdb      *redis.Client
	log      *zap.Logger
	sf       singleflight.Group
}

func NewService(reader Reader, searcher Searcher, rdb *redis.Client, log *zap.Logger) *Service {
	return &Service{reader: reader, searcher: searcher, rdb: rdb, log: log}
}

func (s *Service) GetProduct(ctx context.Context, id string) (orders.ProductView, error) {
	p, err := s.reader.GetProduct(ctx, id)
	if err != nil {
		return orders.ProductView{}, err
	}
	return orders.ProjectProduct(p), nil
}

// ListAvailable is cached; singleflight supaya cache miss tidak bikin
// stampede ke DB.
func (s *Service) ListAvailable(ctx context.Context) ([]orders.ProductView, error) {
	return s.cached(ctx, redisx.KeyCatalogAvailable, func() ([]orders.ProductView, error) {
		ps, err := s.reader.ListAvailable(ctx)
		if err != nil {
			return nil, err
		}
		return projectAll(ps), nil
	})
}

func (s *Service) FindByCategory(ctx context.Context, category string) ([]orders.ProductView, error) {
	key := fmt.Sprintf(redisx.KeyCatalogCategory, category)
	return s.cached(ctx, key, func() ([]orders.ProductView, error) {
		ps, err := s.reader.FindByCategory(ctx, category)
		if err != nil {
			return nil, err
		}
		return projectAll(ps), nil
	})
}

// Search tries the external ranking service first; hasilnya di-resolve
// ulang ke catalog lokal supaya harga/stok selalu otoritatif.
func (s *Service) Search(ctx context.Context, query string, topK int) ([]orders.ProductView, error) {
	if topK <= 0 {
		topK = 10
	}
	if s.searcher != nil {
		results, err := s.searcher.Search(ctx, query, topK)
		if err == nil {
			out := make([]orders.ProductView, 0, len(results))
			for _, r := range results {
				p, err := s.reader.GetProduct(ctx, r.ProductID)
				if err != nil {
					continue // hasil ranking bisa menunjuk produk yang sudah unavailable
				}
				if !p.Available {
					continue
				}
				out = append(out, orders.ProjectProduct(p))
			}
			return out, nil
		}
		s.log.Warn("search service unavailable, falling back to keyword query",
			zap.String("query", query), zap.Error(err))
	}
	ps, err := s.reader.SearchKeyword(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(ps) > topK {
		ps = ps[:topK]
	}
	return projectAll(ps), nil
}

func (s *Service) cached(ctx context.Context, key string, load func() ([]orders.ProductView, error)) ([]orders.ProductView, error) {
	if s.rdb != nil {
		if raw, err := s.rdb.Get(ctx, key).Result(); err == nil && raw != "" {
			var views []orders.ProductView
			if err := json.Unmarshal([]byte(raw), &views); err == nil {
				return views, nil
			}
		}
	}
	v, err, _ := s.sf.Do(key, func() (any, error) {
		views, err := load()
		if err != nil {
			return nil, err
		}
		if s.rdb != nil {
			if b, err := json.Marshal(views); err == nil {
				_ = s.rdb.Set(ctx, key, b, redisx.TTLCatalog).Err()
			}
		}
		return views, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]orders.ProductView), nil
}

func projectAll(ps []*orders.Product) []orders.ProductView {
	out := make([]orders.ProductView, 0, len(ps))
	for _, p := range ps {
		out = append(out, orders.ProjectProduct(p))
	}
	return out
}
