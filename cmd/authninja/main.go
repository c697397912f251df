package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-authninja"
	"github.com/goliatone/go-authninja/activitymap"
	"github.com/goliatone/go-authninja/config"
	"github.com/goliatone/go-authninja/logging"
	"github.com/goliatone/go-authninja/mailer"
)

type App struct {
	config   *config.Config
	logger   *logging.Logger
	bunDB    *bun.DB
	repo     auth.RepositoryManager
	registry *prometheus.Registry
	srv      router.Server[*fiber.App]
	fiberApp *fiber.App
}

func (a *App) GetLogger(name string) *logging.Logger {
	return a.logger.GetLogger(name)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	lgr := logging.New(os.Stderr, cfg.LogLevel, cfg.LogPretty)

	if cfg.Debug {
		fmt.Println("============")
		fmt.Println(print.MaybePrettyJSON(cfg.Mail))
		fmt.Println("============")
	}

	app := &App{
		config:   cfg,
		logger:   lgr,
		registry: prometheus.NewRegistry(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := WithPersistence(ctx, app); err != nil {
		lgr.Error("persistence setup failed", "error", err)
		os.Exit(1)
	}
	defer app.bunDB.Close()

	if err := WithHTTPServer(ctx, app); err != nil {
		lgr.Error("http setup failed", "error", err)
		os.Exit(1)
	}

	go PurgeExpiredTokens(ctx, app)

	lgr.Info("listening", "addr", cfg.Addr)
	go app.srv.Serve(cfg.Addr)

	sig := WaitExitSignal()
	lgr.Info("shutting down", "signal", sig.String())

	cancel()

	if err := app.fiberApp.ShutdownWithTimeout(10 * time.Second); err != nil {
		lgr.Error("shutdown failed", "error", err)
	}
}

func WithPersistence(ctx context.Context, app *App) error {
	db, err := auth.OpenSQLite(app.config.Database)
	if err != nil {
		return err
	}

	if err := auth.CreateSchema(ctx, db); err != nil {
		db.Close()
		return err
	}

	app.bunDB = db
	app.repo = auth.NewRepositoryManager(
		db,
		auth.WithVerificationTokenTTL(app.config.GetVerificationTokenTTL()),
	)
	app.repo.MustValidate()

	return SeedUser(ctx, app)
}

// SeedUser creates a demo credentials account when one is configured
func SeedUser(ctx context.Context, app *App) error {
	if app.config.SeedEmail == "" || app.config.SeedPassword == "" {
		return nil
	}

	hasher := auth.NewBcryptHasher(app.config.GetPasswordHashCost())
	register := auth.NewRegisterUserHandler(app.repo, hasher)

	err := register.Execute(ctx, auth.RegisterUserMessage{
		Email:    app.config.SeedEmail,
		Password: app.config.SeedPassword,
		OnResponse: func(user *auth.User) {
			app.GetLogger("seed").Info("seeded user", "user_id", user.ID.String(), "email", user.Email)
		},
	})

	if goerrors.Is(err, auth.ErrEmailInUse) {
		return nil
	}

	return err
}

func WithHTTPServer(ctx context.Context, app *App) error {
	cfg := app.config

	metrics, err := auth.NewSettingsMetrics(app.registry)
	if err != nil {
		return err
	}

	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var dispatcher auth.MailDispatcher
	if cfg.Mail.Enabled() {
		smtp, err := mailer.NewSMTPMailer(cfg.Mail, app.GetLogger("mailer").Zerolog())
		if err != nil {
			return err
		}
		dispatcher = smtp
	} else {
		dispatcher = mailer.NewLogMailer(cfg.Mail.AppURL, app.GetLogger("mailer").Zerolog())
	}

	activity := activitymap.LogSink(
		app.GetLogger("activity").Zerolog(),
		activitymap.WithMaskedEmails(),
	)

	hasher := auth.NewBcryptHasher(cfg.GetPasswordHashCost())
	tokens := auth.NewTokenServiceFromConfig(cfg, app.GetLogger("tokens"))

	sessions := auth.NewSessionMiddleware(
		tokens,
		auth.WithSessionCookieName(cfg.CookieName),
		auth.WithSessionContextKey(cfg.GetContextKey()),
		auth.WithSecureCookie(cfg.SecureCookie),
		auth.WithSessionLogger(app.GetLogger("session")),
	)

	settings := auth.NewUpdateSettingsHandler(
		auth.ContextSessionDirectory{},
		app.repo.Users(),
		app.repo.VerificationTokens(),
		dispatcher,
		hasher,
	).
		WithActivitySink(activity).
		WithLogger(app.GetLogger("settings")).
		WithMetrics(metrics)

	confirm := auth.NewConfirmEmailHandler(app.repo).
		WithActivitySink(activity).
		WithLogger(app.GetLogger("confirm"))

	app.fiberApp = router.DefaultFiberOptions(fiber.New(fiber.Config{
		AppName:               "authninja",
		DisableStartupMessage: !cfg.Debug,
	}))

	srv := router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		return app.fiberApp
	})

	// promhttp speaks net/http, mount it on the wrapped fiber app
	app.fiberApp.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{})))

	srv.Router().Get("/healthz", func(c router.Context) error {
		if err := app.bunDB.PingContext(c.Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	auth.RegisterSettingsRoutes(srv.Router(),
		auth.WithControllerDebug(cfg.Debug),
		auth.WithControllerLogger(app.GetLogger("auth:ctrl")),
		auth.WithControllerRepository(app.repo),
		auth.WithControllerHasher(hasher),
		auth.WithControllerSessions(sessions),
		auth.WithControllerMailer(dispatcher),
		auth.WithControllerSettingsHandler(settings),
		auth.WithControllerConfirmEmailHandler(confirm),
	)

	app.srv = srv

	return nil
}

// PurgeExpiredTokens removes expired verification tokens until ctx is done
func PurgeExpiredTokens(ctx context.Context, app *App) {
	interval := app.config.PurgeInterval
	if interval <= 0 {
		return
	}

	lgr := app.GetLogger("purge")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := app.repo.VerificationTokens().DeleteExpired(ctx, now)
			if err != nil {
				lgr.Warn("failed to purge expired tokens", "error", err)
				continue
			}
			if n > 0 {
				lgr.Debug("purged expired tokens", "count", n)
			}
		}
	}
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
