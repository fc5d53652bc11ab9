package app

import (
	"time"

	"github.com/teachflow/teachflow-backend/internal/pkg/envutil"
	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
)

type Config struct {
	Port      string
	LogMode   string
	JWTSecret string
	TokenTTL  time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	VendorDir    string
	ProjectsDir  string
	ZipsDir      string
	GeneratedDir string

	DocxRendererURL string
	PythonBin       string

	WorkerConcurrency int
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		Port:      envutil.GetEnv("PORT", "8080", log),
		LogMode:   envutil.GetEnv("LOG_MODE", "development", log),
		JWTSecret: envutil.GetEnv("JWT_SECRET_KEY", "defaultsecret", log),
		TokenTTL:  time.Duration(envutil.GetEnvAsInt("TOKEN_TTL", 7*24*3600, log)) * time.Second,

		RedisAddr:     envutil.GetEnv("REDIS_ADDR", "", log),
		RedisPassword: envutil.GetEnv("REDIS_PASSWORD", "", log),
		RedisDB:       envutil.GetEnvAsInt("REDIS_DB", 0, log),

		VendorDir:    envutil.GetEnv("COPYRIGHT_VENDOR_DIR", "./vendor_kit", log),
		ProjectsDir:  envutil.GetEnv("COPYRIGHT_PROJECTS_DIR", "./data/projects", log),
		ZipsDir:      envutil.GetEnv("COPYRIGHT_ZIPS_DIR", "./data/zips", log),
		GeneratedDir: envutil.GetEnv("GENERATED_UPLOADS_DIR", "./uploads/generated", log),

		DocxRendererURL: envutil.GetEnv("DOCX_RENDERER_URL", "http://localhost:8180", log),
		PythonBin:       envutil.GetEnv("PYTHON_BIN", "python3", log),

		WorkerConcurrency: envutil.GetEnvAsInt("JOB_WORKER_CONCURRENCY", 2, log),
	}
}
