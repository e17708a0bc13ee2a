package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fjod/go_fulfill/internal/cache"
	"github.com/fjod/go_fulfill/internal/cart"
	"github.com/fjod/go_fulfill/internal/catalog"
	"github.com/fjod/go_fulfill/internal/domain"
	"github.com/fjod/go_fulfill/internal/gateway"
	h "github.com/fjod/go_fulfill/internal/http"
	"github.com/fjod/go_fulfill/internal/logistics"
	"github.com/fjod/go_fulfill/internal/order"
	"github.com/fjod/go_fulfill/internal/payment"
	"github.com/fjod/go_fulfill/internal/publisher"
	"github.com/fjod/go_fulfill/internal/repository"
	"github.com/fjod/go_fulfill/internal/webhook"
)

// Config is read from the environment with the FULFILL_ prefix.
type Config struct {
	HTTPPort        string        `envconfig:"HTTP_PORT" default:"8080"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	PostgresHost     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	PostgresPort     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	PostgresUser     string `envconfig:"POSTGRES_USER" default:"postgres"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD" default:"postgres"`
	PostgresDB       string `envconfig:"POSTGRES_DB" default:"fulfill"`
	MigrationsPath   string `envconfig:"MIGRATIONS_PATH" default:"migrations"`

	MongoURI string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDB  string `envconfig:"MONGO_DB" default:"fulfill"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`

	CardAPIBaseURL   string `envconfig:"CARD_API_BASE_URL" default:"https://api.card-processor.test"`
	CardAPIKey       string `envconfig:"CARD_API_KEY"`
	CardSecret       string `envconfig:"CARD_WEBHOOK_SECRET"`
	WalletAEndpoint  string `envconfig:"WALLET_A_ENDPOINT" default:"https://wallet-a.test/pay"`
	WalletAMerchant  string `envconfig:"WALLET_A_MERCHANT_ID"`
	WalletASecret    string `envconfig:"WALLET_A_SECRET"`
	WalletBEndpoint  string `envconfig:"WALLET_B_ENDPOINT" default:"https://wallet-b.test/pay"`
	WalletBMerchant  string `envconfig:"WALLET_B_MERCHANT_ID"`
	WalletBSecret    string `envconfig:"WALLET_B_SECRET"`
	BankName         string `envconfig:"BANK_NAME" default:""`
	BankAccountName  string `envconfig:"BANK_ACCOUNT_NAME" default:""`
	BankAccountNum   string `envconfig:"BANK_ACCOUNT_NUMBER" default:""`
	LogisticsBaseURL string `envconfig:"LOGISTICS_BASE_URL" default:""`
	CatalogBaseURL   string `envconfig:"CATALOG_BASE_URL" default:"http://localhost:8081"`

	CartSweepInterval time.Duration `envconfig:"CART_SWEEP_INTERVAL" default:"1h"`
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	var cfg Config
	if err := envconfig.Process("FULFILL", &cfg); err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Postgres holds orders, payments, stock and the outbox.
	cred := &repository.Credentials{
		Host:              cfg.PostgresHost,
		Port:              cfg.PostgresPort,
		User:              cfg.PostgresUser,
		Password:          cfg.PostgresPassword,
		DBName:            cfg.PostgresDB,
		MigrationsDirPath: cfg.MigrationsPath,
	}
	pg, err := repository.NewPostgresRepository(cred)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pg.Close()
	if err := pg.RunMigrations(cred); err != nil {
		logger.Fatal("run migrations", zap.Error(err))
	}
	logger.Info("postgres ready", zap.String("host", cfg.PostgresHost))

	// Mongo holds carts.
	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		logger.Fatal("connect mongodb", zap.Error(err))
	}
	defer mongoDB.Client().Disconnect(context.Background())
	cartRepo := repository.NewMongoCartRepository(mongoDB)
	logger.Info("mongodb ready", zap.String("uri", cfg.MongoURI))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis ping", zap.Error(err))
	}
	logger.Info("redis ready", zap.String("addr", cfg.RedisAddr))

	var quoter logistics.RateQuoter
	if cfg.LogisticsBaseURL != "" {
		quoter = logistics.NewHTTPQuoter(cfg.LogisticsBaseURL, cfg.RequestTimeout)
	}

	cat := catalog.NewHTTPCatalog(cfg.CatalogBaseURL, cfg.RequestTimeout)

	carts := cart.NewCartService(cartRepo, cache.NewRedisCartCache(redisClient), cat, pg, logger)
	orders := order.NewOrderService(pg, cache.NewRedisOrderCache(redisClient), carts, cat, quoter, logger)

	gateways := gateway.NewSet(
		gateway.NewCardAdapter(gateway.CardConfig{
			BaseURL:   cfg.CardAPIBaseURL,
			APIKey:    cfg.CardAPIKey,
			Timeout:   cfg.RequestTimeout,
			SecretKey: cfg.CardSecret,
		}),
		gateway.NewWalletAdapter(gateway.WalletConfig{
			Kind:       domain.GatewayWalletA,
			Endpoint:   cfg.WalletAEndpoint,
			MerchantID: cfg.WalletAMerchant,
			Secret:     cfg.WalletASecret,
		}),
		gateway.NewWalletAdapter(gateway.WalletConfig{
			Kind:       domain.GatewayWalletB,
			Endpoint:   cfg.WalletBEndpoint,
			MerchantID: cfg.WalletBMerchant,
			Secret:     cfg.WalletBSecret,
		}),
		gateway.NewBankTransferAdapter(gateway.BankTransferConfig{
			BankName:      cfg.BankName,
			AccountName:   cfg.BankAccountName,
			AccountNumber: cfg.BankAccountNum,
		}),
		gateway.NewCODAdapter(),
	)

	payments := payment.NewPaymentService(pg, orders, gateways, logger)
	ingestor := webhook.NewIngestor(payments, webhook.Secrets{
		Card:    cfg.CardSecret,
		WalletA: cfg.WalletASecret,
		WalletB: cfg.WalletBSecret,
	}, logger)

	poller := publisher.NewOutboxPoller(pg, logger, cfg.KafkaBrokers...)
	go poller.Run(ctx)

	sweeper := cart.NewSweeper(cartRepo, cfg.CartSweepInterval, logger)
	go sweeper.Run(ctx)

	router := h.NewRouter(
		h.NewCartHandler(carts),
		h.NewOrderHandler(orders),
		h.NewPaymentHandler(payments),
		h.NewWebhookHandler(ingestor),
		cfg.RequestTimeout,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("fulfillment engine listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("stopped")
}
