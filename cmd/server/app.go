package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"bordereau/internal/bsdasri"
	"bordereau/internal/bspaoh"
	"bordereau/internal/company"
	"bordereau/internal/company/cache"
	companymetrics "bordereau/internal/company/metrics"
	companystore "bordereau/internal/company/store"
	"bordereau/internal/docstore"
	"bordereau/internal/events"
	"bordereau/internal/platform/config"
	"bordereau/internal/platform/metrics"
	"bordereau/internal/platform/postgres"
	"bordereau/internal/platform/redis"
	"bordereau/internal/receipt"
	receiptstore "bordereau/internal/receipt/store"
	"bordereau/internal/validation"
	validationmetrics "bordereau/internal/validation/metrics"
	"bordereau/internal/workflow"
	"bordereau/migrations"
	"bordereau/pkg/platform/circuit"
)

// app holds the wired services and what must be released on exit.
type app struct {
	bsdasri *bsdasri.Service
	bspaoh  *bspaoh.Service
	checks  map[string]check
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// build connects the configured backends. Without DATABASE_URL documents,
// companies and receipts live in memory; without REDIS_URL the company cache
// does; without KAFKA_BROKERS signature events are not published.
func build(ctx context.Context, cfg config.Server, log *slog.Logger) (_ *app, err error) {
	a := &app{checks: map[string]check{}}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		a.checks["postgres"] = pool.Ping
		if err := migrations.Apply(ctx, pool); err != nil {
			return nil, err
		}
	}

	registry, err := a.companies(ctx, cfg, pool, log)
	if err != nil {
		return nil, err
	}
	receipts, err := a.receipts(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pipelineOpts := []validation.Option{
		validation.WithConcurrency(cfg.LookupConcurrency),
		validation.WithLogger(log),
		validation.WithMetrics(validationmetrics.New()),
	}
	workflowOpts := []workflow.Option{
		workflow.WithLogger(log),
		workflow.WithMetrics(metrics.New()),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := events.NewKafkaPublisher(cfg.Kafka.Brokers,
			events.WithTopic(cfg.Kafka.Topic),
			events.WithLogger(log),
		)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, publisher.Close)
		a.checks["kafka"] = publisher.Ping
		if err := publisher.EnsureTopic(ctx, 3, 1); err != nil {
			log.WarnContext(ctx, "failed to ensure signature topic", "topic", cfg.Kafka.Topic, "error", err)
		}
		workflowOpts = append(workflowOpts, workflow.WithPublisher(publisher))
	}

	var (
		dasris docstore.Store[bsdasri.Bsdasri] = docstore.NewMemoryStore[bsdasri.Bsdasri](bsdasri.DocumentType)
		paohs  docstore.Store[bspaoh.Bspaoh]   = docstore.NewMemoryStore[bspaoh.Bspaoh](bspaoh.DocumentType)
	)
	if pool != nil {
		dasris = docstore.NewPostgresStore[bsdasri.Bsdasri](pool, bsdasri.DocumentType)
		paohs = docstore.NewPostgresStore[bspaoh.Bspaoh](pool, bspaoh.DocumentType)
	}

	a.bsdasri, err = bsdasri.NewService(dasris, bsdasri.Deps{
		Registry:           registry,
		Receipts:           receipts,
		VerifyDestinations: cfg.VerifyCompany,
	}, pipelineOpts, workflowOpts...)
	if err != nil {
		return nil, fmt.Errorf("build %s service: %w", bsdasri.DocumentType, err)
	}
	a.bspaoh, err = bspaoh.NewService(paohs, bspaoh.Deps{
		Registry:           registry,
		Receipts:           receipts,
		VerifyDestinations: cfg.VerifyCompany,
	}, pipelineOpts, workflowOpts...)
	if err != nil {
		return nil, fmt.Errorf("build %s service: %w", bspaoh.DocumentType, err)
	}
	return a, nil
}

// companies fronts the company table with a cache and a circuit breaker.
func (a *app) companies(ctx context.Context, cfg config.Server, pool *pgxpool.Pool, log *slog.Logger) (company.Registry, error) {
	m := companymetrics.New()

	var backend company.Registry = companystore.NewInMemoryRegistry()
	if pool != nil {
		backend = companystore.NewPostgresRegistry(pool)
	}

	var c company.Cache = cache.NewInMemoryCache(cfg.Registry.CacheTTL, m)
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client != nil {
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.checks["redis"] = client.Health
		c = cache.NewRedisCache(client.Client, cfg.Registry.CacheTTL, m)
	}

	breaker := circuit.New("company-registry",
		circuit.WithFailureThreshold(cfg.Registry.BreakerThreshold),
		circuit.WithCooldown(cfg.Registry.BreakerCooldown),
	)
	return company.NewService(backend,
		company.WithCache(c),
		company.WithBreaker(breaker),
		company.WithTimeout(cfg.Registry.Timeout),
		company.WithLogger(log),
		company.WithMetrics(m),
	), nil
}

// receipts picks DynamoDB when a table is configured, then Postgres.
func (a *app) receipts(ctx context.Context, cfg config.Server) (receipt.Store, error) {
	switch {
	case cfg.ReceiptsTable != "":
		client, err := receiptstore.NewDynamoClient(ctx, cfg.DynamoDBEndpoint)
		if err != nil {
			return nil, err
		}
		return receiptstore.NewDynamoStore(client, cfg.ReceiptsTable), nil
	case cfg.DatabaseURL != "":
		db, err := postgres.OpenSQL(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		a.checks["receipts"] = db.PingContext
		return receiptstore.NewPostgresStore(db), nil
	}
	return receiptstore.NewInMemoryStore(), nil
}
