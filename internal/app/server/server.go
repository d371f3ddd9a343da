package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"branchpay/internal/domain/attendance"
	"branchpay/internal/domain/audit"
	"branchpay/internal/domain/auth"
	"branchpay/internal/domain/org"
	"branchpay/internal/domain/payroll"
	"branchpay/internal/domain/payslip"
	"branchpay/internal/domain/reports"
	"branchpay/internal/platform/config"
	"branchpay/internal/platform/crypto"
	"branchpay/internal/platform/db"
	"branchpay/internal/platform/jobs"
	"branchpay/internal/platform/lock"
	"branchpay/internal/platform/metrics"
	attendancehandler "branchpay/internal/transport/http/handlers/attendance"
	audithandler "branchpay/internal/transport/http/handlers/audit"
	authhandler "branchpay/internal/transport/http/handlers/auth"
	orghandler "branchpay/internal/transport/http/handlers/org"
	payrollhandler "branchpay/internal/transport/http/handlers/payroll"
	payslipshandler "branchpay/internal/transport/http/handlers/payslips"
	reportshandler "branchpay/internal/transport/http/handlers/reports"
	systemhandler "branchpay/internal/transport/http/handlers/system"
	"branchpay/internal/transport/http/middleware"
)

const jobQueueSize = 32

type App struct {
	Config  config.Config
	DB      *db.Pool
	Router  http.Handler
	Metrics *metrics.Collector
	Jobs    *jobs.Service
	Redis   *redis.Client
}

// New connects to the database and Redis, applies migrations and seed data,
// and assembles the router. Background job workers start on ctx.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, "migrations"); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			pool.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	sealer, err := crypto.New(cfg.DataEncryptionKey)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("encryption: %w", err)
	}
	if !sealer.Configured() {
		slog.Warn("DATA_ENCRYPTION_KEY not set; contact fields and payslips stored in clear")
	}

	redisClient, err := lock.Connect(ctx, cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, err
	}

	app := &App{Config: cfg, DB: pool, Redis: redisClient}
	if cfg.MetricsEnabled {
		app.Metrics = metrics.New()
	}
	app.Jobs = jobs.New(pool, jobQueueSize)
	app.Jobs.Start(ctx)
	app.Router = app.routes(sealer)
	return app, nil
}

func (a *App) routes(sealer *crypto.Service) http.Handler {
	cfg := a.Config
	pool := a.DB
	rateCounter := middleware.NewRateCounter(a.Redis)

	authStore := auth.NewStore(pool)
	authService := auth.NewService(authStore, sealer, cfg.JWTSecret, cfg.TokenTTL)
	auditService := audit.New(pool)
	orgService := org.NewService(org.NewStore(pool, sealer))
	attendanceService := attendance.NewService(attendance.NewStore(pool), orgService)
	payrollService := payroll.NewService(payroll.NewStore(pool), payroll.Deps{
		Roster:  orgService,
		Logs:    attendanceService,
		Locker:  lock.New(a.Redis),
		Audit:   auditService,
		Metrics: a.Metrics,
		LockTTL: cfg.PayrollLockTTL,
	})
	reportsService := reports.NewService(payrollService, orgService, reports.NewStore(pool))
	payslipService := payslip.NewService(payrollService, orgService, sealer, cfg.PayslipStorageDir, a.Metrics)
	idempotency := middleware.NewIdempotencyStore(pool)

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(middleware.RequestLogger(slog.Default()))
	if a.Metrics != nil {
		router.Use(middleware.Metrics(a.Metrics))
	}
	router.Use(chimw.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.IdempotencyHeader},
		ExposedHeaders:   []string{"Content-Disposition", "X-Total-Count", "X-Payslip-Pages", "X-Payslip-Errors"},
		MaxAge:           300,
	}))
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes, cfg.MaxUploadBytes))
	router.Use(chimw.Heartbeat("/ping"))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret, authService))
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute, middleware.WithCounter(rateCounter)))
		r.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute, middleware.WithCounter(rateCounter)))

		authHandler := authhandler.NewHandler(authService)
		authHandler.RegisterPublic(r)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)

			authHandler.RegisterRoutes(r)
			orghandler.NewHandler(orgService, auditService, authStore).RegisterRoutes(r)
			attendancehandler.NewHandler(attendanceService, auditService, authStore).RegisterRoutes(r)
			payrollhandler.NewHandler(payrollService, a.Jobs, auditService, idempotency, authStore).RegisterRoutes(r)
			reportshandler.NewHandler(reportsService, auditService, authStore).RegisterRoutes(r)
			payslipshandler.NewHandler(payslipService, a.Jobs, auditService, authStore).RegisterRoutes(r)
			audithandler.NewHandler(auditService, authStore).RegisterRoutes(r)

			var source systemhandler.MetricsSource
			if a.Metrics != nil {
				source = a.Metrics
			}
			systemhandler.NewHandler(a.Jobs, source, authStore).RegisterRoutes(r)
		})
	})

	router.Mount("/", spaHandler{staticPath: cfg.FrontendDir, indexPath: "index.html"})
	return router
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("branchpay server listening", "addr", a.Config.Addr, "env", a.Config.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	slog.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			slog.Warn("redis close failed", "err", err)
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

type spaHandler struct {
	staticPath string
	indexPath  string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(h.staticPath, filepath.Clean("/"+r.URL.Path))
	_, err := os.Stat(path)
	if err == nil {
		http.FileServer(http.Dir(h.staticPath)).ServeHTTP(w, r)
		return
	}

	if os.IsNotExist(err) {
		index := filepath.Join(h.staticPath, h.indexPath)
		if _, err := os.Stat(index); err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, index)
		return
	}

	http.NotFound(w, r)
}
