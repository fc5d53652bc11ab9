package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/teachflow/teachflow-backend/internal/db"
	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
	"github.com/teachflow/teachflow-backend/internal/services"
	"github.com/teachflow/teachflow-backend/internal/sse"
)

// Sweeper bounds mirror the worker's claim policy: a running job whose
// heartbeat went quiet for longer than this, with no attempts left, is dead.
const (
	sweepMaxAttempts  = 3
	sweepStaleRunning = 2 * time.Minute
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Services Services
	SSEHub   *sse.Hub

	cron   *cron.Cron
	cancel context.CancelFunc
}

func New(logMode string) (*App, error) {
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	hub := sse.NewHub(log)
	reposet := wireRepos(theDB, log)
	serviceset, err := wireServices(theDB, log, cfg, reposet, hub)
	if err != nil {
		log.Sync()
		return nil, err
	}
	handlerset := wireHandlers(log, reposet, serviceset, hub)
	router := wireRouter(handlerset, serviceset.Auth, cfg.GeneratedDir)

	return &App{
		Log:      log,
		DB:       theDB,
		Router:   router,
		Cfg:      cfg,
		Repos:    reposet,
		Services: serviceset,
		SSEHub:   hub,
	}, nil
}

// Start launches the background pieces: the job worker pool, the cross
// instance event relay, and the cron sweep that fails orphaned jobs.
func (a *App) Start() error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.Services.JobWorker.Start(ctx)
	services.StartJobEventRelay(ctx, a.Log, a.SSEHub, a.Services.Redis)

	a.cron = cron.New()
	_, err := a.cron.AddFunc("@every 1m", func() {
		n, err := a.Repos.GenerationJob.FailExhausted(context.Background(), a.DB, sweepMaxAttempts, sweepStaleRunning)
		if err != nil {
			a.Log.Warn("orphaned job sweep failed", "error", err)
			return
		}
		if n > 0 {
			a.Log.Info("failed orphaned jobs", "count", n)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule job sweep: %w", err)
	}
	a.cron.Start()
	return nil
}

func (a *App) Run() error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(":" + a.Cfg.Port)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cron != nil {
		a.cron.Stop()
		a.cron = nil
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Services.Redis != nil {
		_ = a.Services.Redis.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
