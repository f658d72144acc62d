package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "secretcontest/docs"
	"secretcontest/internal/config"
	"secretcontest/internal/handlers"
	"secretcontest/internal/middleware"
	"secretcontest/internal/repositories"
	"secretcontest/internal/routes"
	"secretcontest/internal/services"
)

type App struct {
	cfg     *config.Config
	db      *repositories.DB
	redis   *redis.Client
	service services.ContestService
	router  *gin.Engine
}

// New opens the store, applies migrations and assembles the HTTP stack.
// clock may be nil.
func New(cfg *config.Config, clock func() time.Time) (*App, error) {
	verifier, err := services.NewCodeVerifier(cfg.Contest.CodeHash)
	if err != nil {
		return nil, fmt.Errorf("contest.code_hash: %w", err)
	}

	// === DB ===
	db, err := repositories.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := repositories.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// === Services ===
	service := services.NewContestService(db, verifier, buildNotifier(cfg), cfg.Contest.Settings(), clock)
	resolver := services.NewActorResolver(cfg.Contest.ActorPepper)
	if cfg.Contest.ActorPepper == "" {
		log.Printf("[app] contest.actor_pepper is empty; actor hashes are unkeyed")
	}

	// === Redis throttle (optional) ===
	var (
		rdb      *redis.Client
		throttle gin.HandlerFunc
	)
	if cfg.ThrottleEnabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		throttle = middleware.NewRequestLimiter(rdb, "contest_rl", cfg.Redis.Limit(), cfg.Redis.Window).Middleware()
	}

	// === Gin ===
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("server.trusted_proxies: %w", err)
	}
	router.Use(middleware.CORS(cfg.Server.CORSOrigins, cfg.Server.CORSAllowCredentials))

	if cfg.Server.Swagger {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	device := middleware.DeviceIdentity(middleware.CookieSettings{
		Secure:   cfg.CookieSecure(),
		SameSite: middleware.ParseSameSite(cfg.Cookie.SameSite),
		MaxAge:   cfg.CookieMaxAge(),
	})
	routes.SetupRoutes(
		router,
		handlers.NewContestHandler(service, resolver),
		handlers.NewAdminHandler(service),
		handlers.NewHealthHandler(db),
		device,
		throttle,
	)

	log.Printf("[app] ready driver=%s test_mode=%v notifications=%v throttle=%v",
		cfg.Database.Driver, cfg.Contest.TestMode, cfg.NotificationsEnabled(), throttle != nil)
	return &App{cfg: cfg, db: db, redis: rdb, service: service, router: router}, nil
}

func buildNotifier(cfg *config.Config) services.Notifier {
	var channels services.MultiNotifier
	if cfg.Email.SMTPHost != "" && cfg.Email.ToEmail != "" {
		channels = append(channels, services.NewEmailNotifier(
			cfg.Email.SMTPHost,
			cfg.Email.SMTPPort,
			cfg.Email.SMTPUser,
			cfg.Email.SMTPPassword,
			cfg.Email.FromEmail,
			cfg.Email.ToEmail,
		))
	}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != 0 {
		channels = append(channels, services.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.Endpoint))
	}
	if len(channels) == 0 {
		return nil
	}
	return channels
}

func (a *App) Handler() http.Handler { return a.router }

func (a *App) Service() services.ContestService { return a.service }

// Run serves until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[app] listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Printf("[app] shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.db.Close())
	return errors.Join(errs...)
}
