package app

import (
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/teachflow/teachflow-backend/internal/jobs"
	"github.com/teachflow/teachflow-backend/internal/jobs/pipeline/copyright_build"
	"github.com/teachflow/teachflow-backend/internal/jobs/pipeline/lesson_plan_build"
	"github.com/teachflow/teachflow-backend/internal/jobs/pipeline/teaching_plan_build"
	"github.com/teachflow/teachflow-backend/internal/jobs/runtime"
	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
	"github.com/teachflow/teachflow-backend/internal/platform/openai"
	"github.com/teachflow/teachflow-backend/internal/services"
	"github.com/teachflow/teachflow-backend/internal/sse"
	"github.com/teachflow/teachflow-backend/internal/workspace"
)

type Services struct {
	Auth         services.AuthService
	Jobs         services.JobService
	Notifier     services.JobNotifier
	DocxRenderer services.DocxRenderer
	SourceMerger services.SourceMerger
	Workspace    *workspace.Manager
	JobWorker    *jobs.Worker
	Redis        *redis.Client
}

func newLLMClient(log *logger.Logger, cfg openai.Config) (openai.Client, error) {
	return openai.NewClient(log, cfg)
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, hub *sse.Hub) (Services, error) {
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}

	notifier := services.NewJobNotifier(log, hub, rdb)
	jobService := services.NewJobService(db, log, reposet.GenerationJob, notifier, rdb)
	auth := services.NewAuthService(db, log, reposet.User, services.AuthConfig{
		JWTSecret: cfg.JWTSecret,
		TokenTTL:  cfg.TokenTTL,
	})
	renderer := services.NewDocxRenderer(log, services.DocxRendererConfig{
		BaseURL:      cfg.DocxRendererURL,
		GeneratedDir: cfg.GeneratedDir,
	})
	merger := services.NewSourceMerger(log, cfg.PythonBin)
	ws := workspace.NewManager(log, workspace.Config{
		VendorDir:   cfg.VendorDir,
		ProjectsDir: cfg.ProjectsDir,
		ZipsDir:     cfg.ZipsDir,
	})

	registry := runtime.NewRegistry()
	pipelines := []runtime.Handler{
		teaching_plan_build.New(db, log, reposet.User, reposet.Course, reposet.CourseDocument, renderer, newLLMClient),
		lesson_plan_build.New(db, log, reposet.User, reposet.Course, reposet.CourseDocument, renderer, newLLMClient),
		copyright_build.New(db, log, reposet.User, reposet.CopyrightProject, ws, merger, newLLMClient),
	}
	for _, p := range pipelines {
		if err := registry.Register(p); err != nil {
			return Services{}, err
		}
	}
	worker := jobs.NewWorker(db, log, reposet.GenerationJob, registry, notifier, cfg.WorkerConcurrency)

	return Services{
		Auth:         auth,
		Jobs:         jobService,
		Notifier:     notifier,
		DocxRenderer: renderer,
		SourceMerger: merger,
		Workspace:    ws,
		JobWorker:    worker,
		Redis:        rdb,
	}, nil
}
