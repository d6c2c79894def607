package api

import (
	"log/slog"
	"strings"

	"github.com/Depado/ginprom"
	"github.com/cockroachdb/errors"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	sloggin "github.com/samber/slog-gin"
	healthcheck "github.com/tavsec/gin-healthcheck"
	"github.com/tavsec/gin-healthcheck/checks"
	hc_config "github.com/tavsec/gin-healthcheck/config"
)

type RouterOptions struct {
	DevMode     bool
	MetricsAuth string
	Sentry      bool
	Checks      []checks.Check
}

// NewRouter builds the gin engine with logging, metrics, health checks and
// the profile handlers mounted.
func NewRouter(handlers *Handlers, opts RouterOptions, logger *slog.Logger) (*gin.Engine, error) {
	var accounts gin.Accounts
	if opts.MetricsAuth != "" {
		user, pass, ok := strings.Cut(opts.MetricsAuth, ":")
		if !ok {
			return nil, errors.Newf("invalid metrics-auth value: %s", opts.MetricsAuth)
		}
		accounts = gin.Accounts{user: pass}
	}

	if !opts.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	if opts.DevMode {
		logger.Warn("pprof endpoints are enabled and exposed. Do not run with this flag in production.")
		pprof.Register(r)
	}

	prometheus := ginprom.New(
		ginprom.Path("/metrics"),
		ginprom.Ignore("/healthz", "/metrics"),
	)

	r.Use(
		gin.Recovery(),
		sloggin.NewWithConfig(logger.With(slog.String("source", "http")), sloggin.Config{
			DefaultLevel:     slog.LevelInfo,
			ClientErrorLevel: slog.LevelWarn,
			ServerErrorLevel: slog.LevelError,
			Filters:          []sloggin.Filter{sloggin.IgnorePath("/healthz", "/metrics")},
		}),
		prometheus.Instrument(),
	)
	if opts.Sentry {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}

	if err := healthcheck.New(r, hc_config.DefaultConfig(), opts.Checks); err != nil {
		return nil, errors.Wrap(err, "failed to initialize healthcheck")
	}

	if accounts == nil {
		logger.Warn("metrics endpoint is not protected by basic auth")
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	} else {
		logger.Info("Protecting /metrics endpoint with basic auth")
		authorized := r.Group("/", gin.BasicAuth(accounts))
		authorized.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	handlers.Register(r)
	return r, nil
}
