package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Maryclair03/Latest-LittleWatch/internal/api"
	"github.com/Maryclair03/Latest-LittleWatch/internal/config"
	"github.com/Maryclair03/Latest-LittleWatch/internal/database"
	"github.com/Maryclair03/Latest-LittleWatch/internal/models"
	rediscommon "github.com/Maryclair03/Latest-LittleWatch/internal/redis"
	"github.com/Maryclair03/Latest-LittleWatch/internal/session"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// App holds the dependencies shared by all commands.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Store  *session.Store
	API    *api.Client

	redisClient *redis.Client
	db          *sql.DB
}

// AppFactory builds the App on first use. Tests substitute their own.
type AppFactory func() (*App, error)

// NewApp creates the session store and REST client from the config.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
		API:    api.NewClient(cfg, logger),
	}

	var kv session.KVStore
	switch cfg.Session.Backend {
	case config.SessionBackendRedis:
		client, err := app.Redis(ctx)
		if err != nil {
			return nil, err
		}
		kv = session.NewRedisKVStore(client)
	case config.SessionBackendPostgres:
		db, err := database.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, err
		}
		app.db = db
		pg := session.NewPostgresKVStore(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			app.Close()
			return nil, err
		}
		kv = pg
	default:
		return nil, fmt.Errorf("unsupported session backend: %s", cfg.Session.Backend)
	}

	app.Store = session.NewStore(kv, cfg.Session.KeyPrefix, logger)
	app.installUnauthorizedHandler()
	return app, nil
}

// NewAppWithStore creates an App backed by the given session store.
func NewAppWithStore(cfg *config.Config, store *session.Store, client *api.Client, logger *zap.Logger) *App {
	app := &App{Config: cfg, Logger: logger, Store: store, API: client}
	app.installUnauthorizedHandler()
	return app
}

// installUnauthorizedHandler clears the local session when the server rejects it.
func (a *App) installUnauthorizedHandler() {
	a.API.SetUnauthorizedHandler(func(statusCode int) {
		a.Logger.Warn("Session expired, clearing local session", zap.Int("status_code", statusCode))
		if err := a.Store.Clear(context.Background()); err != nil {
			a.Logger.Error("Failed to clear session", zap.Error(err))
		}
	})
}

// Redis returns the Redis client, connecting on first use.
func (a *App) Redis(ctx context.Context) (*redis.Client, error) {
	if a.redisClient != nil {
		return a.redisClient, nil
	}
	client, err := rediscommon.Open(ctx, &a.Config.Redis)
	if err != nil {
		return nil, err
	}
	a.redisClient = client
	return client, nil
}

// RequireSession loads the local session and fails when not logged in.
func (a *App) RequireSession(ctx context.Context) (*models.Session, error) {
	sess, err := a.Store.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !sess.Valid() {
		return nil, NewExitError(ExitCommandError, "not logged in, run `littlewatch login` first")
	}
	return sess, nil
}

// RequireDevice loads the session and requires a linked device.
func (a *App) RequireDevice(ctx context.Context) (*models.Session, error) {
	sess, err := a.RequireSession(ctx)
	if err != nil {
		return nil, err
	}
	if !sess.HasDevice() {
		return nil, NewExitError(ExitCommandError, "no device linked, run `littlewatch link <serial>` first")
	}
	return sess, nil
}

// Close releases open connections.
func (a *App) Close() {
	if a.redisClient != nil {
		if err := rediscommon.Close(a.redisClient); err != nil {
			a.Logger.Warn("Failed to close redis client", zap.Error(err))
		}
		a.redisClient = nil
	}
	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			a.Logger.Warn("Failed to close database", zap.Error(err))
		}
		a.db = nil
	}
}
