package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/adeilh/corekit/auth"
	"github.com/adeilh/corekit/auth/apikey"
	"github.com/adeilh/corekit/auth/google"
	"github.com/adeilh/corekit/cache/redis"
	"github.com/adeilh/corekit/config"
	"github.com/adeilh/corekit/db/mongo"
	"github.com/adeilh/corekit/db/sql/postgres"
	"github.com/adeilh/corekit/httpx"
	"github.com/adeilh/corekit/notify/discord"
	"github.com/adeilh/corekit/notify/email"
	"github.com/adeilh/corekit/telemetry"
)

const imagesCollection = "images"

var mongoSchema = mongo.Schema{
	imagesCollection: {
		Index: [][]string{{"owner_id", "created_at"}},
	},
}

type application struct {
	settings config.Settings
	log      zerolog.Logger

	metrics  *telemetry.Provider
	cache    *redis.Store
	db       *sql.DB
	mongo    *mongo.Connection
	notifier *discord.Notifier
	manager  *auth.Manager[postgres.User]
	server   *httpx.Server
}

func newApplication(s config.Settings, log zerolog.Logger) (*application, error) {
	app := &application{settings: s, log: log}

	metrics, err := telemetry.New(s.Metrics)
	if err != nil {
		return nil, err
	}
	app.metrics = metrics

	// The resolver is bound once Postgres is reachable, in the startup hook.
	manager, err := auth.NewManager[postgres.User](s.Core.AuthConfig(), nil,
		auth.WithLogger(log),
		auth.WithMeter(metrics.Meter("github.com/adeilh/corekit/auth")),
	)
	if err != nil {
		return nil, err
	}
	app.manager = manager

	app.cache = redis.NewStore(s.Redis)

	app.notifier = discord.New(discord.WithLogger(log))
	if s.Discord.LogWebhook != "" {
		app.notifier.RegisterChannel(discord.ChannelLog, s.Discord.LogWebhook)
	}
	if s.Discord.AlertWebhook != "" {
		app.notifier.RegisterChannel(discord.ChannelAlert, s.Discord.AlertWebhook)
	}

	keys := apikey.NewStore(app.cache)
	keyAuth, err := auth.NewManager[string](s.Core.AuthConfig(), keys.Resolver(),
		auth.WithLogger(log),
		auth.WithMeter(metrics.Meter("github.com/adeilh/corekit/auth/apikey")),
	)
	if err != nil {
		return nil, err
	}

	handlers := &api{
		auth:     manager,
		keys:     keys,
		keyAuth:  keyAuth,
		google:   google.NewClient(),
		mediaDir: s.Media.Dir,
		mediaURL: s.Media.BaseURL,
		log:      log,
	}
	if s.Email.ResendAPIKey != "" {
		m, err := email.New(s.Email.ResendAPIKey, s.Email.From, os.DirFS(s.Email.TemplateDir), email.WithLogger(log))
		if err != nil {
			return nil, err
		}
		handlers.mailer = m
	}

	serverOpts := []httpx.ServerOption{
		httpx.WithAddress(s.HTTP.Address),
		httpx.WithTimeouts(s.HTTP.ReadTimeout, s.HTTP.WriteTimeout),
		httpx.WithShutdownTimeout(s.HTTP.ShutdownTimeout),
		httpx.WithLogger(log),
		httpx.WithAlerter(app.notifier),
		httpx.WithLifecycle(
			func(ctx context.Context) error { return app.startup(ctx, handlers) },
			app.shutdown,
		),
	}
	if len(s.Core.CORSOrigins) > 0 {
		serverOpts = append(serverOpts, httpx.WithCORSOrigins(s.Core.CORSOrigins...))
	}
	app.server = httpx.NewServer(serverOpts...)
	app.server.RegisterRoutes(handlers.routes)
	app.server.App().Echo().Static(s.Media.BaseURL, s.Media.Dir)
	if h := metrics.Handler(); h != nil {
		app.server.App().Echo().GET(s.Metrics.Path, httpx.WrapHandler(h))
	}
	return app, nil
}

func (a *application) run(ctx context.Context) error {
	return a.server.Start(ctx)
}

func (a *application) startup(ctx context.Context, handlers *api) error {
	if err := a.cache.Ping(ctx); err != nil {
		return err
	}

	db, err := postgres.Connect(ctx, a.settings.Postgres)
	if err != nil {
		return err
	}
	a.db = db
	if err := postgres.ApplyMigrations(ctx, db, postgres.Migrations...); err != nil {
		return err
	}
	users := postgres.NewUserRepository(db)
	handlers.users = users
	if err := a.manager.Bind(postgres.NewUserResolver(users)); err != nil {
		return err
	}

	if a.settings.Mongo.DatabaseURL != "" {
		conn, err := mongo.Connect(ctx, a.settings.Mongo, mongo.WithLogger(a.log))
		if err != nil {
			return err
		}
		a.mongo = conn
		if err := conn.RegisterSchema(ctx, mongoSchema); err != nil {
			return err
		}
		handlers.images = mongoImages{conn: conn}
	}

	if err := a.notifier.SendLog(ctx, fmt.Sprintf("%s started", a.settings.Core.Name), discord.Lenient()); err != nil {
		a.log.Warn().Err(err).Msg("startup notification failed")
	}
	return nil
}

func (a *application) shutdown(ctx context.Context) error {
	var errs []error
	if err := a.notifier.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.mongo != nil {
		errs = append(errs, a.mongo.Close(ctx))
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	errs = append(errs, a.cache.Close(), a.metrics.Shutdown(ctx))
	return errors.Join(errs...)
}

type mongoImages struct {
	conn *mongo.Connection
}

func (m mongoImages) RecordImage(ctx context.Context, img imageRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := m.conn.Collection(imagesCollection).InsertOne(ctx, img)
	return err
}
