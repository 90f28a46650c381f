package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/sessiond/internal/api"
	"github.com/charlesng35/sessiond/internal/app"
	"github.com/charlesng35/sessiond/internal/app/maintenance"
	iauth "github.com/charlesng35/sessiond/internal/auth"
	"github.com/charlesng35/sessiond/internal/auth/providers"
	"github.com/charlesng35/sessiond/internal/cache"
	"github.com/charlesng35/sessiond/internal/database"
	"github.com/charlesng35/sessiond/internal/events"
	"github.com/charlesng35/sessiond/internal/monitoring"
	"github.com/charlesng35/sessiond/internal/ratelimit"
	"github.com/charlesng35/sessiond/internal/store"
	"github.com/charlesng35/sessiond/pkg/crypto"
	"github.com/charlesng35/sessiond/pkg/logger"
	"github.com/charlesng35/sessiond/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Redis      *redis.Client
	Events     events.Publisher
	AuthSvc    *iauth.AuthService
	SessionSvc *iauth.SessionService
	Cleaner    *maintenance.Cleaner
	RateStore  ratelimit.Store
	Router     *gin.Engine
}

// bootstrapRuntime initialises the database, cache, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	var sweeper maintenance.Sweeper
	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisClient(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to in-memory rate limiting", zap.Error(err))
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}
	if stack.Redis != nil {
		stack.RateStore, err = ratelimit.NewRedisStore(stack.Redis, ratelimit.WithPrefix(cfg.Cache.Redis.Prefix))
		if err != nil {
			return nil, fmt.Errorf("initialise redis rate limiter: %w", err)
		}
	} else {
		memory := ratelimit.NewMemoryStore()
		stack.RateStore = memory
		sweeper = memory
	}

	stack.Events = events.NopPublisher{}
	if cfg.Events.AMQP.Enabled {
		publisher, pubErr := events.NewAMQPPublisher(
			cfg.Events.AMQP.PublisherConfig(),
			events.WithAMQPLogger(log.Named("events")),
		)
		if pubErr != nil {
			return nil, fmt.Errorf("initialise event publisher: %w", pubErr)
		}
		stack.Events = publisher
		log.Info("session events published to amqp", zap.String("exchange", cfg.Events.AMQP.Exchange))
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	users := store.NewUserStore(stack.DB)
	sessions := store.NewSessionStore(stack.DB)

	authCfg := cfg.Auth.AuthServiceConfig()
	authCfg.Events = stack.Events
	stack.AuthSvc, err = iauth.NewAuthService(jwtSvc, users, sessions, authCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise auth service: %w", err)
	}

	stack.SessionSvc, err = iauth.NewSessionService(users, sessions, iauth.SessionConfig{Events: stack.Events})
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	mailer, err := mail.New(cfg.Mail.SMTP.SMTPSettings(), log.Named("mail"))
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}
	localCfg := cfg.Auth.LocalProviderConfig()
	localCfg.Mailer = mailer
	local, err := providers.NewLocalProvider(users, crypto.NewPasswordHasher(0), stack.RateStore, localCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise local provider: %w", err)
	}

	stack.Cleaner = maintenance.NewCleaner(stack.SessionSvc,
		maintenance.WithSessionSchedule(cfg.Auth.Session.CleanupSchedule),
		maintenance.WithSweeper(sweeper),
	)
	if err := stack.Cleaner.RunOnce(ctx); err != nil {
		log.Warn("startup cleanup failed", zap.Error(err))
	}
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	health := monitoring.NewHealth(0)
	health.Register("database", monitoring.DatabaseCheck(stack.DB))
	if stack.Redis != nil {
		health.Register("redis", monitoring.RedisCheck(stack.Redis))
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		Config:   cfg,
		DB:       stack.DB,
		Tokens:   jwtSvc,
		Auth:     stack.AuthSvc,
		Sessions: stack.SessionSvc,
		Local:    local,
		Users:    users,
		Limiter:  stack.RateStore,
		Health:   health,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		<-s.Cleaner.Stop().Done()
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if closer, ok := s.Events.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.Warn("event publisher shutdown", zap.Error(err))
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}
