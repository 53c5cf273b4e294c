package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/sahilchouksey/icm-reconcile/api"
	"github.com/sahilchouksey/icm-reconcile/config"
	"github.com/sahilchouksey/icm-reconcile/database"
	"github.com/sahilchouksey/icm-reconcile/model"
	"github.com/sahilchouksey/icm-reconcile/router"
	"github.com/sahilchouksey/icm-reconcile/services/cron"
	"github.com/sahilchouksey/icm-reconcile/services/expectation"
	"github.com/sahilchouksey/icm-reconcile/services/extraction"
	"github.com/sahilchouksey/icm-reconcile/services/matcher"
	"github.com/sahilchouksey/icm-reconcile/services/reconcile"
	"github.com/sahilchouksey/icm-reconcile/services/storage"
	"github.com/sahilchouksey/icm-reconcile/services/unmatched"
	"github.com/sahilchouksey/icm-reconcile/utils/cache"
	applog "github.com/sahilchouksey/icm-reconcile/utils/logger"
	"gorm.io/gorm"
)

func SetupAndRunServer() error {

	// Load ENV
	if err := config.LoadENV(); err != nil {
		applog.Warnw(".env file not loaded, using process environment", "error", err)
	}

	getEnv, err := config.Get()
	if err != nil {
		return err
	}

	if err := applog.Init(getEnv.GO_ENV); err != nil {
		return err
	}
	defer applog.Sync()

	// Initialize GORM database connection
	store, err := database.StartGORM()
	if err != nil {
		applog.Errorw("unable to open the database, check DB_HOST and DB_PORT", "error", err)
		return err
	}
	defer store.Close()

	if err := store.Init(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	db := store.GetDB()

	if getEnv.SEED_DEMO {
		if err := database.RunSeeds(db); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis is optional; without it events stay in-process and apply locks are local
	var redisCache *cache.RedisCache
	if getEnv.REDIS_URL != "" {
		redisCache, err = cache.NewRedisCache(getEnv.REDIS_URL)
		if err != nil {
			applog.Warnw("failed to connect to Redis, continuing without it", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
		}
	}

	bus, err := newBus(getEnv, db, redisCache)
	if err != nil {
		return err
	}
	defer bus.Close()

	files, err := newFileStore(getEnv)
	if err != nil {
		return err
	}

	client := extraction.NewClient(getEnv.EXTRACTION_SERVICE_URL, getEnv.EXTRACTION_TIMEOUT)
	manager := extraction.NewManager(db, client, files, bus, extraction.Options{
		CallbackURL: getEnv.EXTRACTION_CALLBACK_URL,
		Concurrency: getEnv.EXTRACTION_SUBMIT_CONCURRENCY,
	})

	// Fallback polling for jobs whose webhook never arrives
	poller := extraction.NewPoller(manager, getEnv.EXTRACTION_POLL_INTERVAL)
	manager.OnSubmit(poller.Kick)
	poller.Start(ctx)
	defer poller.Stop()

	// Initialize Cron Manager (only if enabled via environment variable)
	if getEnv.CRON_ENABLED {
		cronManager := cron.NewCronManager(db, manager, poller, cron.Options{
			StaleAfter:    getEnv.STALE_JOB_AFTER,
			SweepSchedule: getEnv.STALE_SWEEP_SCHEDULE,
		})
		if err := cronManager.Start(); err != nil {
			// Don't fail the app, just log the warning
			applog.Warnw("failed to start cron jobs", "error", err)
		} else {
			defer cronManager.Stop()
		}
	}

	var locker matcher.DistributedLocker
	if redisCache != nil {
		locker = redisCache
	}

	generator := expectation.NewGenerator(db, getEnv.ICM_CANDIDATES_PER_SHEET)
	services := router.Services{
		Generator:  generator,
		Reconciler: reconcile.NewReconciler(db, generator),
		Extraction: manager,
		Scores:     matcher.NewMatcher(db, locker),
		Unmatched:  unmatched.NewStore(db),
	}

	// Init API
	server := api.NewAPIServer(fmt.Sprintf(":%d", getEnv.PORT))
	app := server.GetEngine()

	router.SetupRoutes(app, store, services, router.Options{
		AllowedOrigins:    getEnv.ALLOWED_ORIGINS,
		RateLimitRequests: getEnv.RATE_LIMIT_REQUESTS,
	})

	go func() {
		<-ctx.Done()
		applog.Infow("shutting down")
		if err := server.Shutdown(10 * time.Second); err != nil {
			applog.Errorw("shutdown failed", "error", err)
		}
	}()

	return server.Run()
}

// newBus picks the job event transport named by EVENT_BUS
func newBus(env *config.EnviornmentVariable, db *gorm.DB, redisCache *cache.RedisCache) (extraction.Bus, error) {
	switch env.EVENT_BUS {
	case "", "memory":
		return extraction.NewMemoryBus(), nil
	case "redis":
		if redisCache == nil {
			return nil, fmt.Errorf("EVENT_BUS=redis needs a reachable REDIS_URL")
		}
		return extraction.NewRedisBus(redisCache), nil
	case "postgres":
		listener, err := database.NewListener(env, model.PostgresChannelJobEvents)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", model.PostgresChannelJobEvents, err)
		}
		return extraction.NewPostgresBus(db, listener), nil
	default:
		return nil, fmt.Errorf("unknown EVENT_BUS %q (memory, redis or postgres)", env.EVENT_BUS)
	}
}

// newFileStore uses Spaces when a bucket is configured and memory otherwise
func newFileStore(env *config.EnviornmentVariable) (extraction.FileStore, error) {
	if env.DO_SPACES_BUCKET == "" {
		applog.Warnw("DO_SPACES_BUCKET not set, sheet files are kept in memory")
		return storage.NewMemoryStore(), nil
	}
	cfg, err := storage.ConfigFromEnv(env)
	if err != nil {
		return nil, err
	}
	return storage.NewSpacesStore(cfg)
}
