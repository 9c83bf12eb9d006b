package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	jwttoken "voiceid/internal/jwt_token"
	"voiceid/internal/platform/config"
	"voiceid/internal/platform/httpserver"
	"voiceid/internal/platform/logger"
	"voiceid/internal/platform/metrics"
	"voiceid/internal/voice/handler"
	"voiceid/internal/voice/registration"
	"voiceid/internal/voice/session"
	"voiceid/pkg/platform/clock"
	devicemw "voiceid/pkg/platform/middleware/device"
	"voiceid/pkg/platform/middleware/metadata"
	"voiceid/pkg/platform/middleware/requesttime"
)

// main wires infrastructure, the voice pipeline and the HTTP surface, then
// runs until SIGINT or SIGTERM.
func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("voiceid stopped", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	sched := clock.NewReal()

	backing, err := buildInfra(ctx, cfg, sched, m, log)
	if err != nil {
		return err
	}
	defer backing.Close()

	manager, err := session.NewManager(session.Deps{
		Persistence: backing.Persistence,
		Biometric:   backing.Biometric,
		Ledger:      backing.Ledger,
		Scheduler:   sched,
		Timings: registration.Timings{
			SettleDelay: cfg.Pipeline.SettleDelay,
			DisplayHold: cfg.Pipeline.DisplayHold,
			CallTimeout: cfg.Pipeline.CallTimeout,
		},
		MaxPayload: handler.DefaultMaxUpload,
		Logger:     log,
		Metrics:    m,
		Audit:      backing.Audit,
	})
	if err != nil {
		return err
	}

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, "voiceid-client")

	r := chi.NewRouter()
	r.Use(metadata.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(devicemw.Middleware)
	r.Get("/healthz", backing.HealthHandler)
	r.Handle("/metrics", promhttp.Handler())
	handler.New(manager, jwttoken.NewJWTServiceAdapter(jwtService), log).Register(r)

	srv := httpserver.New(cfg.Server.Addr, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting voiceid", "addr", cfg.Server.Addr, "persistence", cfg.Persistence)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		// Infra closes after run returns, so confirmed registrations must drain first.
		if drainErr := manager.CloseAll(shutdownCtx); drainErr != nil {
			err = errors.Join(err, drainErr)
		}
		log.Info("voiceid shut down")
		return err
	})
	return g.Wait()
}
