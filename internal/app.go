package internal

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/cockroachdb/errors"
	"github.com/earthboundkid/versioninfo/v2"
	"github.com/getsentry/sentry-go"
	"github.com/libdns/cloudflare"
	"github.com/rm-hull/godx"
	"github.com/rm-hull/hideaway/internal/api"
	"github.com/rm-hull/hideaway/internal/catalog"
	"github.com/rm-hull/hideaway/internal/config"
	"github.com/rm-hull/hideaway/internal/logging"
	"github.com/rm-hull/hideaway/internal/nanomdm"
	"github.com/rm-hull/hideaway/internal/profiles"
	"github.com/rm-hull/hideaway/internal/scheduler"
	"github.com/tavsec/gin-healthcheck/checks"
	"golang.org/x/sync/errgroup"
)

const (
	cacheReaperSchedule = "@every 5m"
	shutdownTimeout     = 10 * time.Second
)

type App struct {
	Config *config.Config
	Logger *slog.Logger
}

// Services are the long-lived components shared by the server and the CLI.
type Services struct {
	Catalog  *catalog.Source
	Composer *profiles.Composer
	Client   *nanomdm.Client
	Delivery *profiles.Delivery
}

// NewServices loads the catalog and wires composer, nanomdm client and
// delivery. With offline set (or no nanomdm URL) profiles are written to
// the output directory instead of being queued.
func (app *App) NewServices(ctx context.Context, offline bool) (*Services, error) {
	cfg := app.Config

	source, err := catalog.NewSource(ctx, app.Logger, cfg.Catalog)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load catalog")
	}

	composer, err := profiles.NewComposerWithSource(source, profiles.OptionsFromConfig(cfg.Profiles), app.Logger)
	if err != nil {
		return nil, err
	}

	services := &Services{Catalog: source, Composer: composer}

	var enqueuer profiles.Enqueuer
	if !offline && cfg.NanoMDM.URL != "" {
		services.Client, err = nanomdm.NewClient(cfg.NanoMDM.URL, cfg.NanoMDM.APIKey, app.Logger,
			nanomdm.WithHTTPClient(&http.Client{Timeout: cfg.NanoMDM.Timeout}),
			nanomdm.WithMaxElapsed(cfg.NanoMDM.MaxElapsed))
		if err != nil {
			return nil, err
		}
		enqueuer = services.Client
	}

	services.Delivery = profiles.NewDelivery(composer, enqueuer, cfg.Profiles.OutputDir, app.Logger)
	return services, nil
}

func (app *App) initSentry() (func(), error) {
	if app.Config.Server.SentryDSN == "" {
		return func() {}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:     app.Config.Server.SentryDSN,
		Release: "hideaway@" + versioninfo.Short(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize sentry")
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// RunServer serves profiles over HTTP(S) and runs the focus-session
// scheduler until SIGINT or SIGTERM.
func (app *App) RunServer(ctx context.Context) error {
	godx.GitVersion()
	godx.EnvironmentVars()
	godx.UserInfo()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := app.Config
	logger := app.Logger

	flush, err := app.initSentry()
	if err != nil {
		return err
	}
	defer flush()

	services, err := app.NewServices(ctx, false)
	if err != nil {
		return err
	}

	handlers, err := api.NewHandlers(services.Delivery,
		profiles.EnrollmentOptionsFromConfig(cfg.Enrollment), cfg.Enrollment.CacheTTL, logger)
	if err != nil {
		return err
	}

	healthChecks := []checks.Check{}
	if services.Client != nil {
		healthChecks = append(healthChecks, nanomdm.NewHealthCheck(services.Client))
	}

	router, err := api.NewRouter(handlers, api.RouterOptions{
		DevMode:     cfg.Server.DevMode,
		MetricsAuth: cfg.Server.MetricsAuth,
		Sentry:      cfg.Server.SentryDSN != "",
		Checks:      healthChecks,
	}, logger)
	if err != nil {
		return err
	}

	sched, err := scheduler.New(cfg.Sessions, services.Composer, services.Delivery, logger)
	if err != nil {
		return err
	}
	if err := sched.AddJob(cacheReaperSchedule, api.NewCacheReaperCronJob(handlers.EnrollCache(), logger)); err != nil {
		return err
	}
	if services.Catalog.URI() != "" && cfg.CatalogRefresh != "" {
		if err := sched.AddJob(cfg.CatalogRefresh, catalog.NewReloadCronJob(services.Catalog)); err != nil {
			return errors.Wrap(err, "catalog_refresh")
		}
	}

	servers := []*http.Server{{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}}

	if len(cfg.Server.Domains) > 0 {
		tlsConfig, challenge, err := app.manageCertificates(ctx)
		if err != nil {
			return err
		}
		servers[0].Handler = challenge(router)
		servers = append(servers, &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPSPort),
			Handler:           router,
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	g, ctx := errgroup.WithContext(ctx)

	if services.Client != nil {
		g.Go(func() error {
			if err := services.Client.WaitReady(ctx); err != nil {
				logger.Warn("nanomdm is not reachable, device delivery will fail until it is", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return sched.Run(ctx)
	})

	for _, server := range servers {
		g.Go(func() error {
			var err error
			if server.TLSConfig != nil {
				logger.Info("Starting HTTPS server", "addr", server.Addr, "domains", cfg.Server.Domains)
				err = server.ListenAndServeTLS("", "")
			} else {
				logger.Info("Starting HTTP server", "addr", server.Addr)
				err = server.ListenAndServe()
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return errors.Wrapf(err, "server on %s failed", server.Addr)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		for _, server := range servers {
			if err := server.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, errors.Wrapf(err, "failed to shut down %s", server.Addr))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// manageCertificates starts obtaining certificates for the configured
// domains in the background. DNS-01 through Cloudflare is used when a token
// is set, otherwise HTTP-01 which needs the plain HTTP server reachable on
// port 80.
func (app *App) manageCertificates(ctx context.Context) (*tls.Config, func(http.Handler) http.Handler, error) {
	cfg := app.Config.Server
	zapLogger := logging.NewZapLogger(app.Logger, "certmagic")

	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = cfg.ACMEEmail
	certmagic.DefaultACME.Logger = zapLogger
	if cfg.CloudflareToken != "" {
		certmagic.DefaultACME.DNS01Solver = &certmagic.DNS01Solver{
			DNSManager: certmagic.DNSManager{
				DNSProvider: &cloudflare.Provider{APIToken: cfg.CloudflareToken},
			},
		}
	}
	certmagic.Default.Logger = zapLogger

	magic := certmagic.NewDefault()
	if err := magic.ManageAsync(ctx, cfg.Domains); err != nil {
		return nil, nil, errors.Wrapf(err, "failed to manage certificates for %v", cfg.Domains)
	}

	challenge := func(h http.Handler) http.Handler { return h }
	for _, issuer := range magic.Issuers {
		if acme, ok := issuer.(*certmagic.ACMEIssuer); ok {
			challenge = acme.HTTPChallengeHandler
			break
		}
	}

	tlsConfig := magic.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12
	tlsConfig.NextProtos = append([]string{"h2", "http/1.1"}, tlsConfig.NextProtos...)
	return tlsConfig, challenge, nil
}
