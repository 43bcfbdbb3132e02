package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/publishgate/pkg/api"
	"github.com/platinummonkey/publishgate/pkg/audit"
	"github.com/platinummonkey/publishgate/pkg/auth"
	"github.com/platinummonkey/publishgate/pkg/config"
	"github.com/platinummonkey/publishgate/pkg/github"
	"github.com/platinummonkey/publishgate/pkg/maintenance"
	"github.com/platinummonkey/publishgate/pkg/middleware"
	"github.com/platinummonkey/publishgate/pkg/observability"
	"github.com/platinummonkey/publishgate/pkg/publish"
	"github.com/platinummonkey/publishgate/pkg/registry"
	"github.com/platinummonkey/publishgate/pkg/totp"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the registry proxy and, when enabled, the login website",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	logger.WithFields(logrus.Fields{
		"version":  version,
		"upstream": cfg.Registry.Upstream,
		"login":    cfg.Login.Enabled,
		"storage":  cfg.Storage.Type,
	}).Info("starting publishgate")

	backends, err := openStorage(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	store := backends.store

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(promRegistry)

	tp, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		store.Close()
		return err
	}

	// Registry uploads can be large, so only GitHub calls get a client timeout.
	registryHTTP := &http.Client{
		Transport: metrics.InstrumentTransport("registry", observability.TracedTransport("registry", nil)),
	}
	githubHTTP := &http.Client{
		Transport: metrics.InstrumentTransport("github", observability.TracedTransport("github", nil)),
		Timeout:   30 * time.Second,
	}

	registryClient, err := registry.NewClient(cfg.Registry.Upstream,
		registry.WithHTTPClient(registryHTTP),
		registry.WithLogger(logger),
	)
	if err != nil {
		store.Close()
		return err
	}
	githubClient := github.NewClient(cfg.GitHub.APIURL,
		github.WithHTTPClient(githubHTTP),
		github.WithLogger(logger),
		github.WithMaxTagPages(cfg.GitHub.MaxTagPages),
	)
	otp, err := totp.NewGenerator(cfg.Registry.OTPSecret)
	if err != nil {
		store.Close()
		return err
	}

	engine := publish.NewEngine(store, registryClient, githubClient,
		registry.NewRelay(registryClient, cfg.Registry.NPMToken, otp),
		publish.Config{
			UserRegistryURL: cfg.Registry.PublicURL,
			Logger:          logger,
		})

	auditLog, auditDB, err := openAudit(ctx, cfg, backends.db, logger)
	if err != nil {
		store.Close()
		return err
	}

	deps := api.Dependencies{
		Store:    store,
		Engine:   engine,
		Registry: registryClient,
		GitHub:   githubClient,
		OTP:      otp,
		Limiter: middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.Login.RateLimit,
			BurstSize:         cfg.Login.RateBurst,
		}),
		Metrics: metrics,
		Logger:  logger,
		Audit:   auditLog,
	}
	if cfg.Login.Enabled {
		if deps.OAuth, err = github.NewWebFlow(github.OAuthConfig{
			ClientID:     cfg.GitHub.ClientID,
			ClientSecret: cfg.GitHub.ClientSecret,
			RedirectURL:  callbackURL(cfg.Login.URL),
			HTTPClient:   githubHTTP,
		}); err != nil {
			store.Close()
			return err
		}
		if deps.Sessions, err = auth.NewSessionManager(cfg.Login.SessionSecret, cfg.Login.SessionTTL, cfg.Login.SecureCookie); err != nil {
			store.Close()
			return err
		}
	}

	handler, err := api.NewServer(api.Config{
		PublicURL:    cfg.Registry.PublicURL,
		LoginURL:     cfg.Login.URL,
		LoginEnabled: cfg.Login.Enabled,
		NPMToken:     cfg.Registry.NPMToken,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}, deps)
	if err != nil {
		store.Close()
		return err
	}

	sweeper, err := maintenance.NewSweeper(maintenance.Chain{
		store,
		audit.Retention{Logger: auditDB, Keep: cfg.Audit.Retention},
	}, cfg.Maintenance.SweepSchedule, logger)
	if err != nil {
		store.Close()
		return err
	}

	apiServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	var probes []observability.Probe
	if backends.db != nil {
		probes = append(probes, observability.DatabaseProbe(backends.db))
	}
	if backends.redis != nil {
		probes = append(probes, observability.HandoffProbe(backends.redis))
	}
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(version, probes...))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, promRegistry)
	}
	healthServer := &http.Server{
		Addr:         cfg.Server.HealthAddr(),
		Handler:      healthMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	shutdown.AddServer(apiServer)
	shutdown.AddServer(healthServer)
	shutdown.RegisterShutdownFunc("sweeper", sweeper.Stop)
	shutdown.RegisterShutdownFunc("tracing", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, tp)
	})
	shutdown.RegisterShutdownFunc("storage", func(context.Context) error {
		return errors.Join(auditLog.Close(), store.Close())
	})

	sweeper.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return listen(apiServer, logger, "api")
	})
	g.Go(func() error {
		return listen(healthServer, logger, "health")
	})
	g.Go(func() error {
		return shutdown.WaitForShutdown(gctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("publishgate stopped")
	return nil
}

func listen(srv *http.Server, logger logrus.FieldLogger, name string) error {
	logger.WithFields(logrus.Fields{
		"server": name,
		"addr":   srv.Addr,
	}).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}

// callbackURL is the OAuth redirect for a login site, or empty to use the
// one registered with the GitHub app.
func callbackURL(loginURL string) string {
	if loginURL == "" {
		return ""
	}
	return strings.TrimSuffix(loginURL, "/") + "/oauth/github"
}
