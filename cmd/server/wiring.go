package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apphandler "geoscore/internal/application/handler"
	appmetrics "geoscore/internal/application/metrics"
	appservice "geoscore/internal/application/service"
	appstore "geoscore/internal/application/store"
	"geoscore/internal/chain"
	chainmetrics "geoscore/internal/chain/metrics"
	claimhandler "geoscore/internal/claim/handler"
	claimmetrics "geoscore/internal/claim/metrics"
	claimservice "geoscore/internal/claim/service"
	claimstore "geoscore/internal/claim/store"
	outboxmetrics "geoscore/internal/outbox/metrics"
	"geoscore/internal/outbox/relay"
	outboxstore "geoscore/internal/outbox/store"
	"geoscore/internal/platform/config"
	"geoscore/internal/platform/kafka"
	"geoscore/internal/platform/metrics"
	platformmw "geoscore/internal/platform/middleware"
	"geoscore/internal/platform/postgres"
	redisclient "geoscore/internal/platform/redis"
	regionhandler "geoscore/internal/region/handler"
	regionservice "geoscore/internal/region/service"
	regionstore "geoscore/internal/region/store"
	riskhandler "geoscore/internal/risk/handler"
	riskservice "geoscore/internal/risk/service"
	"geoscore/internal/score"
	scorehandler "geoscore/internal/score/handler"
	scoreservice "geoscore/internal/score/service"
	scorestore "geoscore/internal/score/store"
	"geoscore/pkg/platform/circuit"
	"geoscore/pkg/platform/httputil"
	adminmw "geoscore/pkg/platform/middleware/admin"
	"geoscore/pkg/platform/middleware/appauth"
	"geoscore/pkg/platform/middleware/metadata"
	"geoscore/pkg/platform/middleware/request"
	"geoscore/pkg/platform/middleware/requesttime"
	"geoscore/pkg/platform/tx"
)

const (
	topicPartitions  = 3
	topicReplication = 1
)

// application holds everything run needs after wiring.
type application struct {
	router  http.Handler
	relay   *relay.Relay
	storage string
	closers []func()
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type claimStore interface {
	claimservice.Store
	riskservice.Activity
}

type outboxStore interface {
	claimservice.Outbox
	relay.Store
}

// backend is one consistent set of stores sharing a transaction runner.
type backend struct {
	name    string
	runner  tx.Runner
	regions regionservice.Store
	apps    appservice.Store
	claims  claimStore
	scores  scoreservice.Store
	outbox  outboxStore
	ping    func(ctx context.Context) error
}

func build(ctx context.Context, cfg config.Server, log *slog.Logger) (*application, error) {
	app := &application{}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	be, closeBackend, err := newBackend(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	app.storage = be.name
	app.closers = append(app.closers, closeBackend)

	checks := map[string]func(context.Context) error{"database": be.ping}
	verifier, closeVerifier, err := newVerifier(ctx, cfg, log, reg, checks)
	if err != nil {
		app.close()
		return nil, err
	}
	app.closers = append(app.closers, closeVerifier)

	publisher, closePublisher, err := newPublisher(ctx, cfg.Kafka, log)
	if err != nil {
		app.close()
		return nil, err
	}
	app.closers = append(app.closers, closePublisher)

	regionSvc := regionservice.New(be.regions,
		regionservice.WithLogger(log),
		regionservice.WithTxRunner(be.runner),
	)
	scoreSvc := scoreservice.New(be.scores,
		scoreservice.WithLogger(log),
		scoreservice.WithScorer(score.IdentityScorer{}),
	)
	appSvc := appservice.New(be.apps,
		appservice.WithLogger(log),
		appservice.WithMetrics(appmetrics.New(reg)),
	)
	claimSvc := claimservice.New(be.claims, regionSvc, verifier, scoreSvc, be.runner,
		claimservice.WithLogger(log),
		claimservice.WithMetrics(claimmetrics.New(reg)),
		claimservice.WithOutbox(be.outbox),
		claimservice.WithVerifyTimeout(cfg.Claim.VerifyTimeout),
		claimservice.WithRejectZeroValue(cfg.Claim.RejectZeroValue),
	)
	reportSvc := riskservice.New(regionSvc, scoreSvc, be.claims, riskservice.WithLogger(log))

	app.relay = relay.New(be.outbox, be.runner, publisher,
		relay.WithInterval(cfg.Kafka.RelayInterval),
		relay.WithBatchSize(cfg.Kafka.RelayBatchSize),
		relay.WithLogger(log),
		relay.WithMetrics(outboxmetrics.New(reg)),
	)

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(log))
	r.Use(request.Logger(log))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(platformmw.LatencyMiddleware(metrics.New(reg)))

	r.Get("/health", healthHandler(checks))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	claims := claimhandler.New(claimSvc, log)
	regions := regionhandler.New(regionSvc, log)

	apphandler.New(appSvc, log).Register(r)
	regions.Register(r)
	scorehandler.New(scoreSvc, log).Register(r)
	riskhandler.New(reportSvc, log).Register(r)
	claims.RegisterPublic(r)

	r.Group(func(r chi.Router) {
		r.Use(appauth.RequireApplication(appSvc, log))
		claims.RegisterApplicationRoutes(r)
	})

	if cfg.AdminToken != "" {
		r.Group(func(r chi.Router) {
			r.Use(adminmw.RequireAdminToken(cfg.AdminToken, log))
			regions.RegisterAdmin(r)
		})
	} else {
		log.Warn("ADMIN_TOKEN not set, admin routes disabled")
	}

	app.router = r
	return app, nil
}

// newBackend selects Postgres when a database URL is configured and the
// in-memory stores otherwise.
func newBackend(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*backend, func(), error) {
	if cfg.URL == "" {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		return &backend{
			name:    "memory",
			runner:  tx.NewMemoryRunner(),
			regions: regionstore.NewInMemory(),
			apps:    appstore.NewInMemory(),
			claims:  claimstore.NewInMemory(),
			scores:  scorestore.NewInMemory(),
			outbox:  outboxstore.NewInMemory(),
			ping:    func(context.Context) error { return nil },
		}, func() {}, nil
	}

	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.AutoMigrate {
		applied, err := postgres.Migrate(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Info("database schema applied", "migrations", applied)
	}

	return &backend{
		name:    "postgres",
		runner:  tx.NewPostgresRunner(db, tx.WithTimeout(cfg.TxTimeout)),
		regions: regionstore.NewPostgres(db),
		apps:    appstore.NewPostgres(db),
		claims:  claimstore.NewPostgres(db),
		scores:  scorestore.NewPostgres(db),
		outbox:  outboxstore.NewPostgres(db),
		ping:    db.PingContext,
	}, func() { _ = db.Close() }, nil
}

// newVerifier builds the ledger verifier behind a circuit breaker, with the
// Redis amount cache in front when Redis is configured.
func newVerifier(ctx context.Context, cfg config.Server, log *slog.Logger, reg prometheus.Registerer, checks map[string]func(context.Context) error) (chain.Verifier, func(), error) {
	m := chainmetrics.New(reg)
	breaker := circuit.New("sui-rpc",
		circuit.WithFailureThreshold(cfg.Chain.FailureThreshold),
		circuit.WithProbeInterval(cfg.Chain.ProbeInterval),
	)
	sui := chain.NewSuiVerifier(cfg.Chain.RPCURL,
		chain.WithTimeout(cfg.Chain.Timeout),
		chain.WithCoinType(cfg.Chain.NativeCoinType),
		chain.WithBreaker(breaker),
		chain.WithLogger(log),
		chain.WithMetrics(m),
	)

	rdb, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	if rdb == nil {
		return sui, func() {}, nil
	}
	checks["redis"] = rdb.Health
	cached := chain.NewCachedVerifier(sui, rdb,
		chain.WithCacheTTL(cfg.Chain.CacheTTL),
		chain.WithCacheCoinType(cfg.Chain.NativeCoinType),
		chain.WithCacheLogger(log),
		chain.WithCacheMetrics(m),
	)
	return cached, func() { _ = rdb.Close() }, nil
}

// newPublisher relays outbox events to Kafka, or to the log when no
// brokers are configured.
func newPublisher(ctx context.Context, cfg config.KafkaConfig, log *slog.Logger) (relay.Publisher, func(), error) {
	if len(cfg.Brokers) == 0 {
		log.Warn("KAFKA_BROKERS not set, relaying outbox events to the log")
		return relay.NewLogPublisher(log), func() {}, nil
	}
	producer, err := kafka.NewProducer(cfg.Brokers, cfg.Topic)
	if err != nil {
		return nil, nil, err
	}
	if err := producer.EnsureTopic(ctx, topicPartitions, topicReplication); err != nil {
		log.Warn("could not ensure outbox topic", "topic", cfg.Topic, "error", err)
	}
	return relay.NewKafkaPublisher(producer), producer.Close, nil
}

// healthHandler reports "ok" only when every dependency check passes.
func healthHandler(checks map[string]func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				status = http.StatusServiceUnavailable
				resp["status"] = "unavailable"
				resp[name] = err.Error()
				continue
			}
			resp[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
