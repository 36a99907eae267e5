package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Ngumi22/zami-web-sub001/internal/handlers"
	"github.com/Ngumi22/zami-web-sub001/internal/payments"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/auth"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/config"
	pfirestore "github.com/Ngumi22/zami-web-sub001/internal/platform/firestore"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/idempotency"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/jobs"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/observability"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/secrets"
	platformstorage "github.com/Ngumi22/zami-web-sub001/internal/platform/storage"
	"github.com/Ngumi22/zami-web-sub001/internal/repositories"
	firestoreRepo "github.com/Ngumi22/zami-web-sub001/internal/repositories/firestore"
	"github.com/Ngumi22/zami-web-sub001/internal/repositories/memory"
	"github.com/Ngumi22/zami-web-sub001/internal/services"
)

const (
	idempotencyCollection = "idempotencyKeys"
	meterName             = "orders-api"
	secretHealthReference = "secret://system/healthz?version=latest"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Orders    services.OrderService
	Invoices  services.InvoiceService
	RateGuard services.RateGuard
	System    services.SystemService
}

// Options supplies process-level collaborators that outlive the container.
type Options struct {
	Logger  *zap.Logger
	Build   services.BuildInfo
	Secrets *secrets.Resolver
	Clock   func() time.Time
	// Registry overrides the store driver selected by configuration.
	Registry repositories.Registry
	// TokenVerifier overrides the Firebase verifier.
	TokenVerifier auth.TokenVerifier
}

// Container wires repositories, services, HTTP routing, and background tasks.
type Container struct {
	Config       config.Config
	Logger       *zap.Logger
	Repositories repositories.Registry
	Services     Services
	Router       http.Handler

	scheduler *jobs.Scheduler
	tasks     []jobs.Task
	closers   []func(context.Context) error
}

// NewContainer constructs the runtime dependencies for cfg.
func NewContainer(ctx context.Context, cfg config.Config, opts Options) (*Container, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	c := &Container{Config: cfg, Logger: logger, scheduler: jobs.NewScheduler(logger.Named("jobs"))}
	ok := false
	defer func() {
		if !ok {
			_ = c.Close(context.WithoutCancel(ctx))
		}
	}()

	checks, idemStore, err := c.buildRegistry(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	meter := otel.GetMeterProvider().Meter(meterName)
	metrics := observability.NewOrderMetrics(meter, logger.Named("metrics"))

	rateGuard, err := services.NewRateGuard(services.RateGuardDeps{
		Limits:        c.Repositories.RateLimits(),
		Blocklist:     c.Repositories.Blocklist(),
		DefaultWindow: cfg.RateLimits.Window,
		DefaultMax:    cfg.RateLimits.MaxRequests,
		Clock:         clock,
		Metrics:       metrics,
		Logger:        observability.ServiceLogger(logger.Named("rate_guard")),
	})
	if err != nil {
		return nil, fmt.Errorf("build rate guard: %w", err)
	}

	events, eventChecks, err := c.buildEventPublisher(ctx, cfg)
	if err != nil {
		return nil, err
	}
	checks = append(checks, eventChecks...)

	archiver, archiveChecks, err := c.buildInvoiceArchive(ctx, cfg)
	if err != nil {
		return nil, err
	}
	checks = append(checks, archiveChecks...)

	var refunder services.PaymentRefunder
	if key := strings.TrimSpace(cfg.PSP.StripeAPIKey); key != "" {
		stripeRefunder, err := payments.NewStripeRefunder(payments.StripeConfig{
			APIKey: key,
			Logger: payments.Logger(observability.ServiceLogger(logger.Named("payments"))),
		})
		if err != nil {
			return nil, fmt.Errorf("build stripe refunder: %w", err)
		}
		refunder = stripeRefunder
	} else {
		logger.Warn("stripe api key not configured; refunds of card payments will be recorded without a provider call")
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     c.Repositories.Orders(),
		Products:   c.Repositories.Products(),
		Coupons:    c.Repositories.Coupons(),
		Tokens:     c.Repositories.OrderTokens(),
		UnitOfWork: c.Repositories,
		RateGuard:  rateGuard,
		Payments:   refunder,
		Events:     events,
		Metrics:    metrics,
		Settings: services.OrderSettings{
			NumberPrefix:    cfg.Orders.NumberPrefix,
			DuplicateWindow: cfg.Orders.DuplicateWindow,
			AllowOversell:   !cfg.Orders.PreventOversell,
			Currency:        cfg.Orders.Currency,
		},
		Clock:  clock,
		Logger: observability.ServiceLogger(logger.Named("orders")),
	})
	if err != nil {
		return nil, fmt.Errorf("build order service: %w", err)
	}

	invoiceSvc, err := services.NewInvoiceService(services.InvoiceServiceDeps{
		Invoices:     c.Repositories.Invoices(),
		Orders:       c.Repositories.Orders(),
		Archiver:     archiver,
		RateGuard:    rateGuard,
		DueDays:      cfg.Invoices.DueDays,
		NumberPrefix: cfg.Invoices.NumberPrefix,
		Clock:        clock,
		Logger:       observability.ServiceLogger(logger.Named("invoices")),
	})
	if err != nil {
		return nil, fmt.Errorf("build invoice service: %w", err)
	}

	if opts.Secrets != nil {
		checks = append(checks, secretManagerCheck(opts.Secrets))
	}
	healthRepo, err := repositories.NewDependencyHealthRepository(checks, repositories.WithDependencyClock(clock))
	if err != nil {
		return nil, fmt.Errorf("build health repository: %w", err)
	}
	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: healthRepo,
		Clock:            clock,
		Build:            opts.Build,
	})
	if err != nil {
		return nil, fmt.Errorf("build system service: %w", err)
	}

	c.Services = Services{Orders: orderSvc, Invoices: invoiceSvc, RateGuard: rateGuard, System: systemSvc}

	router, err := c.buildRouter(ctx, cfg, opts, idemStore, clock)
	if err != nil {
		return nil, err
	}
	c.Router = router

	c.tasks = append(c.tasks, jobs.Task{
		Name:     "idempotency-cleanup",
		Interval: cfg.Idempotency.CleanupInterval,
		Timeout:  time.Minute,
		Run:      discardCount(idempotency.Cleanup(idemStore, cfg.Idempotency.CleanupBatchSize, clock)),
	})

	ok = true
	return c, nil
}

func (c *Container) buildRegistry(ctx context.Context, cfg config.Config, opts Options) ([]repositories.DependencyCheck, idempotency.Store, error) {
	if opts.Registry != nil {
		c.Repositories = opts.Registry
		return []repositories.DependencyCheck{{Name: "store", Check: func(context.Context) error { return nil }}}, idempotency.NewMemoryStore(), nil
	}

	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		store := memory.NewStore()
		c.Repositories = store
		c.tasks = append(c.tasks, jobs.Task{
			Name:     "rate-limit-sweep",
			Interval: cfg.RateLimits.SweepInterval,
			Run: func(context.Context) error {
				store.SweepRateLimits(time.Now())
				return nil
			},
		})
		check := repositories.DependencyCheck{Name: "memory", Check: func(context.Context) error { return nil }}
		return []repositories.DependencyCheck{check}, idempotency.NewMemoryStore(), nil

	case config.StoreDriverFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		reg, err := firestoreRepo.NewRegistry(provider)
		if err != nil {
			_ = provider.Close(ctx)
			return nil, nil, fmt.Errorf("build firestore registry: %w", err)
		}
		c.Repositories = reg
		check := repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				client, err := provider.Client(ctx)
				if err != nil {
					return err
				}
				_, err = client.Collections(ctx).Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		}
		return []repositories.DependencyCheck{check}, idempotency.NewFirestoreStore(provider, idempotencyCollection), nil

	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

func (c *Container) buildEventPublisher(ctx context.Context, cfg config.Config) (services.OrderEventPublisher, []repositories.DependencyCheck, error) {
	topicID := strings.TrimSpace(cfg.PubSub.OrderEventsTopic)
	if topicID == "" {
		return nil, nil, nil
	}
	projectID := strings.TrimSpace(cfg.PubSub.ProjectID)
	if projectID == "" {
		projectID = cfg.Firestore.ProjectID
	}
	if projectID == "" {
		c.Logger.Warn("pubsub project not configured; order events are not published", zap.String("topic", topicID))
		return nil, nil, nil
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("build pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	c.closers = append(c.closers, func(context.Context) error {
		topic.Stop()
		return client.Close()
	})

	publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
	if err != nil {
		return nil, nil, fmt.Errorf("build order event publisher: %w", err)
	}
	check := repositories.DependencyCheck{
		Name:     "pubsub",
		Timeout:  time.Second,
		Optional: true,
		Check: func(ctx context.Context) error {
			exists, err := topic.Exists(ctx)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("topic %s not found", topicID)
			}
			return nil
		},
	}
	return publisher, []repositories.DependencyCheck{check}, nil
}

func (c *Container) buildInvoiceArchive(ctx context.Context, cfg config.Config) (services.InvoiceArchiver, []repositories.DependencyCheck, error) {
	bucket := strings.TrimSpace(cfg.Storage.InvoiceArchiveBucket)
	if bucket == "" {
		return nil, nil, nil
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("build storage client: %w", err)
	}
	c.closers = append(c.closers, func(context.Context) error { return client.Close() })

	writer, err := platformstorage.NewGCSWriter(client)
	if err != nil {
		return nil, nil, fmt.Errorf("build storage writer: %w", err)
	}
	archive, err := platformstorage.NewInvoiceArchive(writer, bucket)
	if err != nil {
		return nil, nil, fmt.Errorf("build invoice archive: %w", err)
	}
	check := repositories.DependencyCheck{
		Name:     "storage",
		Timeout:  time.Second,
		Optional: true,
		Check: func(ctx context.Context) error {
			_, err := client.Bucket(bucket).Attrs(ctx)
			return err
		},
	}
	return archive, []repositories.DependencyCheck{check}, nil
}

func (c *Container) buildRouter(ctx context.Context, cfg config.Config, opts Options, idemStore idempotency.Store, clock func() time.Time) (http.Handler, error) {
	logger := c.Logger

	verifier := opts.TokenVerifier
	if verifier == nil {
		if strings.TrimSpace(cfg.Firebase.ProjectID) == "" {
			return nil, errors.New("firebase project id is required")
		}
		firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
		if err != nil {
			return nil, fmt.Errorf("build firebase verifier: %w", err)
		}
		verifier = firebaseVerifier
	}
	authenticator := auth.NewAuthenticator(verifier, auth.WithLogger(logger.Named("auth")))

	idemMiddleware := idempotency.Middleware(idemStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithClock(clock),
	)
	handlerOpts := []handlers.OrderHandlersOption{
		handlers.WithIdempotencyHeader(cfg.Idempotency.Header),
		handlers.WithMutationMiddleware(idemMiddleware),
	}

	orderHandlers := handlers.NewOrderHandlers(authenticator, c.Services.Orders, handlerOpts...)
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, c.Services.Orders, handlerOpts...)
	adminHandlers := handlers.NewAdminOrderHandlers(authenticator, c.Services.Orders, c.Services.Invoices, handlerOpts...)
	internalHandlers := handlers.NewInternalHandlers(c.Services.Invoices, clock)

	var webhookHandlers *handlers.WebhookHandlers
	if secret := strings.TrimSpace(cfg.PSP.StripeWebhookSecret); secret != "" {
		verifier, err := payments.NewWebhookVerifier(secret)
		if err != nil {
			return nil, fmt.Errorf("build webhook verifier: %w", err)
		}
		webhookHandlers = handlers.NewWebhookHandlers(verifier, c.Services.Orders)
	} else {
		logger.Warn("stripe webhook secret not configured; payment webhooks are disabled")
	}

	projectID := strings.TrimSpace(cfg.Firebase.ProjectID)
	if projectID == "" {
		projectID = cfg.Firestore.ProjectID
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(opts.Build),
		handlers.WithHealthSystemService(c.Services.System),
		handlers.WithHealthClock(clock),
	)

	routerOpts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.TraceMiddleware(projectID),
			observability.ClientAddressMiddleware(cfg.Server.TrustProxy),
			observability.RequestLoggerMiddleware(logger.Named("http")),
			observability.RecoveryMiddleware(logger.Named("http")),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
		handlers.WithInternalMiddlewares(buildOIDCMiddleware(logger.Named("auth"), cfg)),
	}
	if webhookHandlers != nil {
		routerOpts = append(routerOpts, handlers.WithWebhookRoutes(webhookHandlers.Routes))
	}
	return handlers.NewRouter(routerOpts...), nil
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	jwksURL := strings.TrimSpace(cfg.Security.OIDC.JWKSURL)
	if jwksURL == "" {
		jwksURL = auth.GoogleJWKSURL
	}
	cache := auth.NewJWKSCache(jwksURL, auth.WithJWKSLogger(logger))
	validator := auth.NewOIDCValidator(cache,
		auth.WithOIDCLogger(logger),
		auth.WithOIDCMeter(otel.GetMeterProvider().Meter(meterName)),
	)

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	return validator.RequireOIDC(audience, cfg.Security.OIDC.Issuers)
}

func secretManagerCheck(resolver *secrets.Resolver) repositories.DependencyCheck {
	return repositories.DependencyCheck{
		Name:     "secretManager",
		Timeout:  time.Second,
		Optional: true,
		Check: func(ctx context.Context) error {
			_, err := resolver.ResolveSecret(ctx, secretHealthReference)
			if err == nil {
				return nil
			}
			if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
				return nil
			}
			return err
		},
	}
}

func discardCount(fn func(context.Context) (int, error)) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := fn(ctx)
		return err
	}
}

// Start launches the background tasks. They stop when ctx is cancelled.
func (c *Container) Start(ctx context.Context) {
	if c == nil {
		return
	}
	for _, task := range c.tasks {
		c.scheduler.Start(ctx, task)
	}
}

// Close waits for background tasks and releases clients in reverse construction order. The context
// passed to Start must be cancelled first.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.scheduler != nil {
		c.scheduler.Wait()
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
