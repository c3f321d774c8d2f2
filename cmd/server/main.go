package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookcircle/internal/auth"
	"bookcircle/internal/config"
	"bookcircle/internal/db"
	"bookcircle/internal/logging"
	"bookcircle/internal/middleware"
	"bookcircle/internal/ratelimit"
	"bookcircle/internal/router"
	"bookcircle/internal/services"
	"bookcircle/internal/storage"
	"bookcircle/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logging.Init(cfg.LogLevel, cfg.LogJSON)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	store, mediaDir, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	svc := services.New(services.Deps{
		DB:     conn,
		Cache:  utils.NewCache(500),
		Store:  store,
		Mailer: services.NewMailService(cfg),
		Config: cfg,
	})
	if err := svc.Users.SeedAdmin(ctx, cfg.AdminEmail, cfg.AdminInitialPassword); err != nil {
		return err
	}

	loginLimiter, registerLimiter, closeRedis := openLimiters(cfg)
	defer closeRedis()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLog())

	// Setup Sessions
	cookieStore := cookie.NewStore(cfg.SessionKey())
	cookieStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(cfg.CookieName, cookieStore))

	router.RegisterRoutes(r, router.Deps{
		Services:        svc,
		Authenticator:   auth.NewAuthenticator(conn, auth.NewTokenSigner(cfg.JWTSecret, cfg.SessionTTL)),
		LoginLimiter:    loginLimiter,
		RegisterLimiter: registerLimiter,
		MaxUploadBytes:  cfg.MaxUploadBytes,
		SecureCookie:    cfg.CookieSecure,
		MediaDir:        mediaDir,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("bookcircle server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		svc.Notifications.Close()
		slog.Info("server shut down, pending notifications flushed")
		return err
	})
	return g.Wait()
}

// openStore returns the object store and, for the local backend, the
// directory to serve under /media.
func openStore(ctx context.Context, cfg config.Config) (storage.ObjectStore, string, error) {
	if cfg.MediaBackend == config.MediaBackendMinio {
		store, err := storage.NewMinioStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, "", err
		}
		slog.Info("media stored in minio", "endpoint", cfg.MinioEndpoint, "bucket", cfg.MinioBucket)
		return store, "", nil
	}
	store, err := storage.NewLocalStore(cfg.MediaDir, cfg.MediaBaseURL)
	if err != nil {
		return nil, "", err
	}
	slog.Info("media stored on local disk", "dir", cfg.MediaDir)
	return store, store.Dir(), nil
}

// openLimiters builds the login and register limiters. Without Redis the
// endpoints are not throttled.
func openLimiters(cfg config.Config) (middleware.Limiter, middleware.Limiter, func()) {
	if cfg.RedisAddr == "" {
		slog.Warn("REDIS_ADDR not set, auth rate limiting disabled")
		return nil, nil, func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	closeFn := func() {
		if err := client.Close(); err != nil {
			slog.Warn("close redis client failed", "error", err)
		}
	}

	var login, register middleware.Limiter
	if cfg.LoginRateLimitPerMinute > 0 {
		l, err := ratelimit.NewFixedWindowLimiter(client, "bookcircle:ratelimit:login", cfg.LoginRateLimitPerMinute, time.Minute)
		if err != nil {
			slog.Warn("login rate limiter disabled", "error", err)
		} else {
			login = l
		}
	}
	if cfg.RegisterRateLimitPerMinute > 0 {
		l, err := ratelimit.NewFixedWindowLimiter(client, "bookcircle:ratelimit:register", cfg.RegisterRateLimitPerMinute, time.Minute)
		if err != nil {
			slog.Warn("register rate limiter disabled", "error", err)
		} else {
			register = l
		}
	}
	return login, register, closeFn
}
