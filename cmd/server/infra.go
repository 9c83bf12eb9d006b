package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"voiceid/internal/platform/config"
	"voiceid/internal/platform/kafka"
	"voiceid/internal/platform/metrics"
	"voiceid/internal/platform/postgres"
	redisclient "voiceid/internal/platform/redis"
	"voiceid/internal/voice/credential/persistence"
	"voiceid/internal/voice/ports"
	"voiceid/internal/voice/providers"
	"voiceid/internal/voice/providers/simulated"
	audit "voiceid/pkg/platform/audit"
	"voiceid/pkg/platform/audit/publisher"
	"voiceid/pkg/platform/audit/publishers/stream"
	"voiceid/pkg/platform/audit/store/memory"
	auditpg "voiceid/pkg/platform/audit/store/postgres"
	"voiceid/pkg/platform/circuit"
	"voiceid/pkg/platform/clock"
	"voiceid/pkg/platform/hashing"
	"voiceid/pkg/platform/httputil"
	"voiceid/pkg/platform/idgen"
)

// infra holds the process-wide collaborators and the clients behind them.
type infra struct {
	Persistence ports.PersistenceService
	Biometric   ports.BiometricProvider
	Ledger      ports.LedgerService
	Audit       *publisher.Publisher

	redis    *redisclient.Client
	db       *sql.DB
	producer *kafka.Producer
	log      *slog.Logger
}

func buildInfra(ctx context.Context, cfg config.Config, sched clock.Scheduler, m *metrics.Metrics, log *slog.Logger) (_ *infra, err error) {
	in := &infra{log: log}
	defer func() {
		if err != nil {
			in.Close()
		}
	}()

	var auditStore audit.Store = memory.NewInMemoryStore()
	switch cfg.Persistence {
	case config.PersistenceRedis:
		in.redis, err = redisclient.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		in.Persistence = persistence.NewRedis(in.redis.Client, persistence.WithRedisLogger(log))
	case config.PersistencePostgres:
		in.db, err = postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		store := persistence.NewPostgres(in.db, sched,
			persistence.WithPollInterval(cfg.Postgres.PollInterval),
			persistence.WithPostgresLogger(log),
		)
		if err = store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure credential schema: %w", err)
		}
		in.Persistence = store

		events := auditpg.New(in.db)
		if err = events.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		auditStore = events
	default:
		in.Persistence = persistence.NewMemory()
	}

	auditOpts := []publisher.Option{
		publisher.WithAsyncBuffer(cfg.Pipeline.AuditBuffer),
		publisher.WithLogger(log),
	}
	in.producer, err = kafka.New(ctx, cfg.Kafka)
	if err != nil {
		return nil, err
	}
	if in.producer != nil {
		if err = in.producer.EnsureTopic(ctx, cfg.Kafka.Partitions); err != nil {
			return nil, err
		}
		auditOpts = append(auditOpts, publisher.WithSink(stream.New(in.producer)))
	}
	in.Audit = publisher.NewPublisher(auditStore, auditOpts...)

	breaker := circuit.New("biometric",
		circuit.WithFailureThreshold(cfg.Biometric.FailureThreshold),
		circuit.WithSuccessThreshold(cfg.Biometric.SuccessThreshold),
		circuit.WithClock(sched.Now),
	)
	in.Biometric = providers.NewGuardedBiometric(
		simulated.NewBiometric(idgen.UUID{}, sched),
		breaker,
		providers.WithLogger(log),
		providers.WithMetrics(m),
	)
	in.Ledger = simulated.NewLedger(cfg.Ledger, idgen.UUID{}, hashing.Blake2b{}, sched)
	return in, nil
}

// HealthHandler reports unhealthy when a configured backing service is unreachable.
func (in *infra) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := map[string]string{}
	healthy := true
	record := func(name string, err error) {
		if err != nil {
			healthy = false
			checks[name] = err.Error()
			in.log.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
			return
		}
		checks[name] = "ok"
	}
	if in.redis != nil {
		record("redis", in.redis.Health(ctx))
	}
	if in.db != nil {
		record("postgres", in.db.PingContext(ctx))
	}
	if in.producer != nil {
		record("kafka", in.producer.Health(ctx))
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, map[string]any{"healthy": healthy, "checks": checks})
}

// Close flushes the audit publisher before the clients it may still use.
func (in *infra) Close() {
	if in.Audit != nil {
		in.Audit.Close()
	}
	if in.producer != nil {
		in.producer.Close()
	}
	if in.db != nil {
		if err := in.db.Close(); err != nil {
			in.log.Warn("close postgres", "error", err)
		}
	}
	if in.redis != nil {
		if err := in.redis.Close(); err != nil {
			in.log.Warn("close redis", "error", err)
		}
	}
}
