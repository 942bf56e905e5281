package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-shop-orders.git/internal/catalog"
	"github.com/ariefcatur/go-shop-orders.git/internal/config"
	"github.com/ariefcatur/go-shop-orders.git/internal/httpx"
	kafkax "github.com/ariefcatur/go-shop-orders.git/internal/kafka"
	"github.com/ariefcatur/go-shop-orders.git/internal/logx"
	"github.com/ariefcatur/go-shop-orders.git/internal/memstore"
	"github.com/ariefcatur/go-shop-orders.git/internal/orders"
	"github.com/ariefcatur/go-shop-orders.git/internal/postgres"
	"github.com/ariefcatur/go-shop-orders.git/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := logx.New(cfg.ServiceName, cfg.DevMode)
	if err != nil {
		stdlog.Fatalf("logger: %v", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		store  orders.Store
		ids    orders.Identity
		reader catalog.Reader

		rdb            *redis.Client
		prodCreated    *kafkax.Producer
		prodCancelled  *kafkax.Producer
	)

	if cfg.DevMode {
		// tanpa Postgres/Redis/Kafka; cukup buat main lokal
		mem := memstore.New()
		seedDev(mem)
		store, ids, reader = mem, mem, mem
		log.Info("dev mode: in-memory store, demo token=dev-token")
	} else {
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("db connect", zap.Error(err))
		}
		defer db.Close()
		pg := &postgres.Store{DB: db}
		store, ids, reader = pg, pg, pg

		rdb = redisx.New(cfg.RedisAddr)
		defer rdb.Close()

		prodCreated = kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024, log)
		prodCreated.Start(ctx)
		prodCancelled = kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCancelled, 1024, log)
		prodCancelled.Start(ctx)
	}

	svc := orders.NewService(store, ids, log).WithRetryBudget(cfg.TxRetryBudget)

	var searcher catalog.Searcher
	if cfg.SearchBaseURL != "" {
		searcher = catalog.NewSearchClient(cfg.SearchBaseURL)
	}
	cat := catalog.NewService(reader, searcher, rdb, log)

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Svc:               svc,
		Ids:               ids,
		ProducerCreated:   prodCreated,
		ProducerCancelled: prodCancelled,
		Redis:             rdb,
		Service:           cfg.ServiceName,
		Log:               log,
	}
	oh.Register(router)
	(&httpx.CatalogHandler{Svc: cat}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	if prodCreated != nil {
		prodCreated.Close() // tutup inbox -> flush & close writer
		prodCancelled.Close()
		cancel() // stop producer loop
		prodCreated.WaitClosed()
		prodCancelled.WaitClosed()
	}
}

func seedDev(mem *memstore.Store) {
	now := time.Now().UTC()
	mem.SeedUser(orders.User{ID: "u-1", Username: "demo", Email: "demo@example.com", CreatedAt: now}, "dev-token")
	mem.SeedProduct(orders.Product{
		ID: "p-1", Name: "USB-C Cable", Category: "Electronics",
		UnitPrice: decimal.RequireFromString("19.99"), StockQuantity: 10, Available: true,
		CreatedAt: now, UpdatedAt: now,
	})
	mem.SeedProduct(orders.Product{
		ID: "p-2", Name: "Mechanical Keyboard", Category: "Electronics",
		UnitPrice: decimal.RequireFromString("89.50"), StockQuantity: 4, Available: true,
		CreatedAt: now, UpdatedAt: now,
	})
}
