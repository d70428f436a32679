// Package app wires configuration, storage, image gateway and HTTP server
// into the running catalog service.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/boutique-catalog/internal/domain/auth"
	"github.com/xenking/boutique-catalog/internal/domain/product"
	"github.com/xenking/boutique-catalog/internal/handler"
	"github.com/xenking/boutique-catalog/internal/imagestore/local"
	"github.com/xenking/boutique-catalog/pkg/health"
	"github.com/xenking/boutique-catalog/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("images", cfg.Images.Driver),
	)
	if cfg.AdminPassword == "" {
		lg.Warn("Admin password is not set, every mutation will be rejected")
	}

	backend, err := OpenBackend(ctx, lg, cfg.Storage)
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	defer backend.Close()

	images, files, err := openImageStore(cfg.Images)
	if err != nil {
		return errors.Wrap(err, "open image store")
	}

	svc, err := product.NewService(backend.Products, images, product.ServiceConfig{
		UploadConcurrency: cfg.Images.Concurrency,
		TracerProvider:    m.TracerProvider(),
		MeterProvider:     m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create catalog service")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck(backend.Name, 5*time.Second, health.PingCheck(backend.Name, backend.Ping))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	h := handler.NewHandler(handler.HandlerConfig{
		MaxRequestBytes: cfg.HTTP.MaxRequestBytes,
		MaxImageBytes:   cfg.Images.MaxBytes,
	}, svc, auth.NewGate(cfg.AdminPassword))

	limiterCfg := httpmiddleware.RateLimitConfig{
		Max:    cfg.RateLimit.Max,
		Window: cfg.RateLimit.Window,
	}
	if cfg.RateLimit.TrustProxy {
		limiterCfg.KeyFunc = httpmiddleware.ClientIP
	}
	limiter := httpmiddleware.RateLimitWithCleanup(ctx, limiterCfg)

	r := newRouter(lg, cfg, h, healthSvc, files, limiter)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(r, "catalog",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newRouter mounts health probes, the API, local images and the optional
// storefront behind the shared middleware stack.
func newRouter(
	lg *zap.Logger,
	cfg *Config,
	h *handler.Handler,
	healthSvc *health.Health,
	files *local.Store,
	limiter httpmiddleware.Middleware,
) chi.Router {
	r := chi.NewRouter()
	r.Use(
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.LogRequests(),
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:  cfg.CORS.Origins,
			AllowHeaders:  []string{"Content-Type", auth.HeaderName, httpmiddleware.RequestIDHeader},
			ExposeHeaders: []string{httpmiddleware.RequestIDHeader},
			MaxAge:        86400,
		}),
	)
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)
	r.Mount("/api", h.Router(limiter))
	if files != nil {
		r.Handle(files.MountPath()+"/*", files.Handler())
		lg.Info("Serving local images", zap.String("path", files.MountPath()), zap.String("dir", cfg.Images.Dir))
	}
	if cfg.StaticDir != "" {
		r.Handle("/*", handler.Storefront(cfg.StaticDir))
		lg.Info("Serving storefront", zap.String("dir", cfg.StaticDir))
	}

	return r
}
