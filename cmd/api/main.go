package main

import (
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"net/smtp"
	"os"
	"time"

	"github.com/atelierhq/marketplace/account"
	"github.com/atelierhq/marketplace/admin"
	"github.com/atelierhq/marketplace/auth"
	"github.com/atelierhq/marketplace/db"
	"github.com/atelierhq/marketplace/listing"
	"github.com/atelierhq/marketplace/notification"
	"github.com/atelierhq/marketplace/order"
	"github.com/atelierhq/marketplace/payment"
	"github.com/atelierhq/marketplace/shipping"
	"github.com/atelierhq/marketplace/subscription"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v7"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Build-time injected variables
var (
	Version = ""
)

func main() {
	var logger *zap.Logger
	var authEnvironment auth.Environment
	var dotFile string
	var err error

	// Determine running environment and initialize structural logger
	env := os.Getenv("API_ENV")
	if "production" == env {
		dotFile = ".env.production"
		authEnvironment = auth.EnvProduction
		logger, err = zap.NewProduction()
	} else {
		dotFile = ".env.development"
		authEnvironment = auth.EnvDevelopment
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		log.Fatalf("Cannot initialize logger: %v\n", err)
	}
	logger = logger.With(zap.String("Version", Version))

	// Initialize sentry for error reporting
	if err := sentry.Init(sentry.ClientOptions{
		Environment: string(authEnvironment),
		Debug:       authEnvironment == auth.EnvDevelopment,
	}); err != nil {
		log.Fatal("Cannot initialize sentry",
			zap.Error(err),
		)
	}
	defer sentry.Flush(time.Second * 2)

	// Attach sentry to zap so we can do automatic error capturing
	cfg := zapsentry.Configuration{
		Level: zapcore.ErrorLevel,
		Tags: map[string]string{
			"component": "api",
		},
	}
	core, err := zapsentry.NewCore(cfg, zapsentry.NewSentryClientFromClient(sentry.CurrentHub().Client()))
	if err != nil {
		logger.Error("Cannot initialize zapsentry",
			zap.Error(err),
		)
	}
	logger = zapsentry.AttachCoreToLogger(core, logger)

	defer logger.Sync()

	// Load configurations from dotFile
	if err := godotenv.Load(dotFile); err != nil {
		logger.Fatal("Cannot load configurations from .env",
			zap.Error(err),
		)
	}

	// Initialize backend connections
	db, err := db.New(logger, os.Getenv("POSTGRES_URI"))
	if err != nil {
		logger.Fatal("Cannot connect to Postgres",
			zap.Error(err),
		)
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{os.Getenv("REDIS_URI")},
		Password: os.Getenv("REDIS_PW"),
		DB:       0,
	})
	if _, err := rdb.Ping().Result(); err != nil {
		logger.Fatal("Cannot connect to Redis",
			zap.Error(err),
		)
	}
	defer rdb.Close()

	notifier, err := notification.NewAMQPNotifier(logger, os.Getenv("AMQP_URI"))
	if err != nil {
		logger.Fatal("Cannot connect to Message Broker",
			zap.Error(err),
		)
	}
	defer notifier.Close()

	stripeClient := payment.NewStripeClient(os.Getenv("STRIPE_KEY"))
	processor, err := payment.NewStripeProcessor(payment.StripeOptions{
		StripeClient: stripeClient,
		Logger:       logger,
		Currency:     os.Getenv("CURRENCY"),
	})
	if err != nil {
		logger.Fatal("Cannot initialize Stripe Processor",
			zap.Error(err),
		)
	}

	carrier, err := shipping.NewHTTPClient(shipping.HTTPClientOptions{
		BaseURL: os.Getenv("CARRIER_API_URL"),
		APIKey:  os.Getenv("CARRIER_API_KEY"),
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Carrier API client",
			zap.Error(err),
		)
	}

	smtpAuth := smtp.PlainAuth("", os.Getenv("SMTP_USERNAME"), os.Getenv("SMTP_PASSWORD"), os.Getenv("SMTP_HOST"))

	authManager, err := auth.New(auth.Options{
		Redis:  rdb,
		Logger: logger,

		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),

		Environment: authEnvironment,
		SMTPAuth:    smtpAuth,
		From:        os.Getenv("SMTP_FROM"),
		Hostname:    os.Getenv("SMTP_HOST") + ":" + os.Getenv("SMTP_PORT"),
		EmailOption: auth.EmailOption{
			Name: os.Getenv("SITE_NAME"),
			LinkGenerator: func(uid, token string) string {
				return fmt.Sprintf("%s/login/%s/%s", os.Getenv("SITE_URL"), uid, token)
			},
		},
	})
	if err != nil {
		logger.Fatal("Cannot initialize Auth",
			zap.Error(err),
		)
	}

	// Initialize domain managers
	accountManager, err := account.NewManager(logger, db)
	if err != nil {
		logger.Fatal("Cannot initialize AccountManager",
			zap.Error(err),
		)
	}

	listingManager, err := listing.NewManager(logger, db)
	if err != nil {
		logger.Fatal("Cannot initialize ListingManager",
			zap.Error(err),
		)
	}

	subscriptionManager, err := subscription.NewManager(subscription.ManagerOptions{
		DB:             db,
		Logger:         logger,
		PathToPlanJSON: "plans.json",
	})
	if err != nil {
		logger.Fatal("Cannot initialize SubscriptionManager",
			zap.Error(err),
		)
	}

	orderManager, err := order.NewManager(order.ManagerOptions{
		DB:     db,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize OrderManager",
			zap.Error(err),
		)
	}

	// Initialize service routers
	accountRouter, err := account.NewService(account.Options{
		Auth:           authManager,
		AccountManager: accountManager,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Account Service Router",
			zap.Error(err),
		)
	}

	listingRouter, err := listing.NewService(listing.ServiceOptions{
		Auth:                authManager,
		ListingManager:      listingManager,
		SubscriptionManager: subscriptionManager,
		Logger:              logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Listing Service Router",
			zap.Error(err),
		)
	}

	subscriptionRouter, err := subscription.NewService(subscription.ServiceOptions{
		Auth:                authManager,
		SubscriptionManager: subscriptionManager,
		Processor:           processor,
		Notifier:            notifier,
		Logger:              logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Subscription Service Router",
			zap.Error(err),
		)
	}

	orderRouter, err := order.NewService(order.ServiceOptions{
		Auth:           authManager,
		OrderManager:   orderManager,
		ListingManager: listingManager,
		AccountManager: accountManager,
		Carrier:        carrier,
		Processor:      processor,
		Notifier:       notifier,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Order Service Router",
			zap.Error(err),
		)
	}

	adminRouter, err := admin.NewService(admin.ServiceOptions{
		Auth:                authManager,
		OrderManager:        orderManager,
		SubscriptionManager: subscriptionManager,
		Notifier:            notifier,
		Logger:              logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Admin Service Router",
			zap.Error(err),
		)
	}

	rootRouter := chi.NewRouter()

	rootRouter.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{os.Getenv("SITE_URL")},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	rootRouter.Mount("/accounts", accountRouter.Router())
	rootRouter.Mount("/listings", listingRouter.Router())
	rootRouter.Mount("/subscription", subscriptionRouter.Router())
	rootRouter.Mount("/orders", orderRouter.Router())
	rootRouter.Mount("/admin", adminRouter.Router())

	rootRouter.HandleFunc("/pprof/*", pprof.Index)
	rootRouter.HandleFunc("/pprof/cmdline", pprof.Cmdline)
	rootRouter.HandleFunc("/pprof/profile", pprof.Profile)
	rootRouter.HandleFunc("/pprof/symbol", pprof.Symbol)
	rootRouter.HandleFunc("/pprof/trace", pprof.Trace)

	rootRouter.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "ok")
	})

	srv := &http.Server{
		Handler: rootRouter,
		Addr:    ":8192",
	}

	logger.Info("API started",
		zap.String("Addr", srv.Addr),
	)

	log.Fatalln(srv.ListenAndServe())
}
