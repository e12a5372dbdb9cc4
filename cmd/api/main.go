package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-rx/cmd/mainconfig"
	"github.com/wolfman30/clinic-rx/internal/api/router"
	"github.com/wolfman30/clinic-rx/internal/app/bootstrap"
	"github.com/wolfman30/clinic-rx/internal/assets"
	"github.com/wolfman30/clinic-rx/internal/capture"
	"github.com/wolfman30/clinic-rx/internal/compliance"
	"github.com/wolfman30/clinic-rx/internal/compose"
	appconfig "github.com/wolfman30/clinic-rx/internal/config"
	"github.com/wolfman30/clinic-rx/internal/observability/metrics"
	"github.com/wolfman30/clinic-rx/internal/overlay"
	"github.com/wolfman30/clinic-rx/internal/patients"
	"github.com/wolfman30/clinic-rx/internal/payments"
	"github.com/wolfman30/clinic-rx/internal/prescriptions"
	"github.com/wolfman30/clinic-rx/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-rx API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	pool, err := bootstrap.BuildPool(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient == nil {
		logger.Error("redis is required for template storage", "addr", cfg.RedisAddr)
		os.Exit(1)
	}
	defer func() { _ = redisClient.Close() }()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	objects := bootstrap.BuildAssetStore(awsCfg, cfg, logger)

	metricsHandler, compositionMetrics := setupCompositionMetrics()
	routerCfg := buildRouterConfig(cfg, logger, redisClient, objects, compositionMetrics)
	routerCfg.MetricsHandler = metricsHandler
	if pool != nil {
		wirePostgres(routerCfg, pool, cfg.AuditTrailEnabled, logger)
	}
	r := router.New(routerCfg.Config)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func setupCompositionMetrics() (http.Handler, *metrics.CompositionMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	m := metrics.NewCompositionMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

// wiring carries the shared collaborators so the repository-backed handlers
// can be rebuilt when Postgres is available.
type wiring struct {
	*router.Config
	templates *overlay.Store
	engine    *compose.Engine
	objects   *assets.Store
	metrics   *metrics.CompositionMetrics
	logger    *logging.Logger
}

func buildRouterConfig(cfg *appconfig.Config, logger *logging.Logger, redisClient *redis.Client, objects *assets.Store, m *metrics.CompositionMetrics) *wiring {
	templates := overlay.NewStore(redisClient, logger.Component("templates"))
	observeTemplateChanges(templates, m, logger.Component("templates"))

	engine := compose.NewEngine(
		buildResolver(objects),
		compose.WithLogger(logger.Component("compose")),
		compose.WithObserver(m),
		compose.WithPrintDelay(cfg.PrintDialogDelay),
		compose.WithBrowserRefs(objects.BrowserURL),
	)

	w := &wiring{
		Config: &router.Config{
			Logger:             logger,
			CaptureHandler:     capture.NewHandler(captureLimits(cfg), logger.Component("capture")),
			TemplatesHandler:   overlay.NewHandler(templates, logoStorage(objects), cfg.MaxLogoBytes, m, logger.Component("templates")),
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
			JWTSecret:          cfg.JWTSecret,
			DevHeaders:         !cfg.IsProduction(),
			RenderRate:         5,
			RenderBurst:        10,
		},
		templates: templates,
		engine:    engine,
		objects:   objects,
		metrics:   m,
		logger:    logger,
	}
	w.wireRepositories(patients.NewInMemoryRepository(), prescriptions.NewInMemoryRepository(), payments.NewInMemoryRepository(), nil)
	return w
}

// observeTemplateChanges counts header and footer edits and records who
// changed which slot.
func observeTemplateChanges(templates *overlay.Store, m *metrics.CompositionMetrics, logger *logging.Logger) func() {
	return templates.Subscribe(func(c overlay.Change) {
		action := "save"
		if c.Reset {
			action = "reset"
		}
		m.ObserveTemplateChange(string(c.Kind), action)
		logger.Info("template changed", "clinic_id", c.ClinicID, "kind", c.Kind, "action", action, "has_logo", c.Overlay.HasLogo())
	})
}

// wirePostgres swaps in the pgx repositories. When auditTrail is set the
// access log shares the pool through database/sql.
func wirePostgres(w *wiring, pool *pgxpool.Pool, auditTrail bool, logger *logging.Logger) {
	logger.Info("using postgres repositories", "audit_trail", auditTrail)
	var audit *compliance.AuditService
	if auditTrail {
		audit = compliance.NewAuditService(stdlib.OpenDBFromPool(pool))
	}
	w.wireRepositories(
		patients.NewPostgresRepository(pool),
		prescriptions.NewPostgresRepository(pool),
		payments.NewPostgresRepository(pool),
		audit,
	)
	w.AuditHandler = nil
	if audit != nil {
		w.AuditHandler = compliance.NewHandler(audit, logger.Component("audit"))
	}
}

func (w *wiring) wireRepositories(patientRepo patients.Repository, rxRepo prescriptions.Repository, paymentRepo payments.Repository, audit *compliance.AuditService) {
	deps := prescriptions.Deps{
		Repo:      rxRepo,
		Patients:  patientRepo,
		Templates: w.templates,
		Engine:    w.engine,
		Observer:  w.metrics,
		Logger:    w.logger.Component("prescriptions"),
	}
	if w.objects.Enabled() {
		deps.Objects = w.objects
	}
	patientsHandler := patients.NewHandler(patientRepo, w.logger.Component("patients"))
	if audit != nil {
		deps.Audit = audit
		patientsHandler.WithAuditor(audit)
	}
	svc := prescriptions.NewService(deps)
	w.PatientsHandler = patientsHandler
	w.PrescriptionsHandler = prescriptions.NewHandler(svc, w.logger.Component("prescriptions"))
	w.PaymentsHandler = payments.NewHandler(paymentRepo, svc, w.logger.Component("payments"))
}

// buildResolver loads inline data URLs and clinic-owned stored objects.
// The server never fetches arbitrary URLs.
func buildResolver(objects *assets.Store) *assets.Resolver {
	if objects.Enabled() {
		return assets.NewResolver(nil, objects)
	}
	return assets.NewResolver(nil, nil)
}

func logoStorage(objects *assets.Store) overlay.LogoStorage {
	if objects.Enabled() {
		return objects
	}
	return nil
}

func captureLimits(cfg *appconfig.Config) capture.Limits {
	limits := capture.DefaultLimits
	if cfg.MaxCaptureWidth > 0 {
		limits.MaxWidth = cfg.MaxCaptureWidth
	}
	if cfg.MaxCaptureHeight > 0 {
		limits.MaxHeight = cfg.MaxCaptureHeight
	}
	return limits
}
