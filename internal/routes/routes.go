package routes

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/hsportal/portal/internal/banner"
	"github.com/hsportal/portal/internal/buildinfo"
	"github.com/hsportal/portal/internal/config"
	"github.com/hsportal/portal/internal/docs"
	"github.com/hsportal/portal/internal/identity"
	"github.com/hsportal/portal/internal/kv"
	"github.com/hsportal/portal/internal/link"
	"github.com/hsportal/portal/internal/metrics"
	"github.com/hsportal/portal/internal/middleware"
	"github.com/hsportal/portal/internal/neis"
	"github.com/hsportal/portal/internal/post"
	"github.com/hsportal/portal/internal/profile"
	"github.com/hsportal/portal/internal/session"
	"github.com/hsportal/portal/internal/upload"
)

// Deps aggregates shared dependencies required to wire routes. Nil backends
// are replaced by in-memory ones in development.
type Deps struct {
	Cfg     config.Config
	DB      *pgxpool.Pool
	Cache   *redis.Client
	S3      *s3.Client
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Worker is a background loop owned by the server.
type Worker interface {
	Start()
	Stop()
}

// ErrorHandler renders every error as {"error": message}.
func ErrorHandler(log *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := http.StatusInternalServerError
		msg := "internal server error"
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status, msg = fe.Code, fe.Message
		} else {
			log.Error("unhandled error", slog.String("path", c.Path()), slog.Any("error", err))
		}
		return c.Status(status).JSON(fiber.Map{"error": msg})
	}
}

// Setup configures middlewares and all application routes. The returned
// workers are not started.
func Setup(app *fiber.App, d Deps) ([]Worker, error) {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	if d.Metrics != nil {
		app.Use(d.Metrics.Middleware())
		app.Get("/metrics", d.Metrics.Handler())
	}

	RegisterHealthRoutes(app, d)

	var (
		profileRepo   profile.Repository
		postRepo      post.Repository
		docsRepo      docs.Repository
		buildinfoRepo buildinfo.Repository
		stores        kv.Factory
		objects       upload.ObjectStorage
	)
	if d.DB != nil {
		profileRepo = profile.NewPostgresRepository(d.DB)
		postRepo = post.NewPostgresRepository(d.DB)
		docsRepo = docs.NewPostgresRepository(d.DB)
		buildinfoRepo = buildinfo.NewPostgresRepository(d.DB)
	} else {
		profileRepo = profile.NewMemoryRepository()
		postRepo = post.NewMemoryRepository()
		docsRepo = docs.NewMemoryRepository()
		buildinfoRepo = buildinfo.NewMemoryRepository()
	}
	if d.Cache != nil {
		stores = kv.NewRedisFactory(d.Cache, d.Cfg.Session.Expiry)
	} else {
		stores = kv.NewMemoryFactory()
	}
	if d.S3 != nil {
		objects = upload.NewS3Storage(d.S3, d.Cfg.Storage.Bucket)
	} else {
		objects = upload.NewMemoryStorage()
	}

	profileSvc := profile.NewService(profileRepo)

	var observer session.Observer
	if d.Metrics != nil {
		observer = d.Metrics
	}
	cacheOpts := session.OptionsFromConfig(d.Cfg.Session)
	manager := session.NewManager(func(scope string) *session.Cache {
		store := stores.Scope(scope)
		return session.New(session.Deps{
			Store: store,
			Provider: identity.NewGoTrueClient(identity.ClientConfig{
				BaseURL: d.Cfg.Auth.URL,
				AnonKey: d.Cfg.Auth.AnonKey,
			}, store),
			Profiles: profileSvc,
			Logger:   d.Logger.With(slog.String("scope", scope)),
			Observer: observer,
		}, cacheOpts)
	}, d.Cfg.Session.IdleTTL, d.Logger)
	if d.Metrics != nil {
		d.Metrics.TrackLiveSessions(manager)
	}
	sessionHandler := session.NewHandler(manager, session.HandlerConfig{
		OAuthProvider: d.Cfg.Auth.OAuthProvider,
		PublicURL:     d.Cfg.PublicURL,
		SecureCookie:  d.Cfg.Session.SecureCookie,
		CookieMaxAge:  d.Cfg.Session.Expiry,
	}, d.Logger)

	scraper := link.NewScraper(link.Config{}, d.Logger)
	neisSvc := neis.NewService(neis.NewClient(nil, d.Cfg.Neis), d.Logger)

	requireIdentity := middleware.RequireIdentity(identity.NewVerifier(d.Cfg.Auth.JWTSecret), sessionHandler.ConfirmedIdentity)
	requireAuthor := middleware.RequireAuthor(d.Cfg.Auth.AuthorEmail)

	api := app.Group("/api")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterAuthRoutes(api, sessionHandler)
	RegisterProfileRoutes(api, profile.NewHandler(profileSvc, sessionHandler.ProfileSaved), requireIdentity)
	RegisterPostRoutes(api,
		post.NewHandler(post.NewService(postRepo, profileSvc), d.Logger),
		upload.NewHandler(upload.NewService(objects, d.Cfg.Storage.PublicBaseURL), d.Logger),
		requireIdentity, requireAuthor,
	)
	RegisterWidgetRoutes(api, WidgetHandlers{
		Banners: banner.NewProber(nil, d.Cfg.Storage.BannerBaseURL, d.Cfg.Storage.BannerCount, d.Logger),
		Links:   scraper,
		Neis:    neis.NewHandler(neisSvc, profileSvc),
	}, requireIdentity)
	RegisterAdminRoutes(api,
		docs.NewHandler(docs.NewService(docsRepo, docs.NewAuthenticator(d.Cfg.Docs.AdminPasswordHash, d.Cfg.Docs.AdminPassword)), d.Logger),
		buildinfo.NewHandler(buildinfoRepo, d.Logger),
		middleware.AttemptLimit(d.Cache, "docs", d.Cfg.Docs.AttemptsPerMinute),
		middleware.Idempotency(d.Cache, middleware.IdempotencyConfig{TTL: d.Cfg.IdempotencyTTL, Logger: d.Logger}),
	)

	return []Worker{manager, scraper, neisSvc}, nil
}
