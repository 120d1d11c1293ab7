package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/yungbote/stockscan-backend/internal/jobs/worker"
	"github.com/yungbote/stockscan-backend/internal/modules/receipts"
	"github.com/yungbote/stockscan-backend/internal/modules/receipts/matching"
	"github.com/yungbote/stockscan-backend/internal/modules/receipts/pipeline"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
	"github.com/yungbote/stockscan-backend/internal/storage"
)

const (
	ExtractionVisionLLM = "vision_llm"
	ExtractionOCRLLM    = "ocr_llm"
)

type Config struct {
	Port        string
	ServiceName string
	Environment string
	Version     string
	CORSOrigins []string

	MetricsAddr string

	ExtractionMode string
	StorageMode    storage.Mode
	// LocalStorageDir and LocalPublicBase apply to the local image store.
	LocalStorageDir string
	LocalPublicBase string

	EmbeddingCacheTTL time.Duration
	VariantsFile      string

	Match    matching.Config
	Pipeline pipeline.Config

	WorkerEnabled bool
	Worker        worker.Config
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("PORT", "8080")
	v.SetDefault("SERVICE_NAME", "stockscan-backend")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("VERSION", "dev")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("METRICS_ADDR", ":9090")

	v.SetDefault("EXTRACTION_MODE", ExtractionVisionLLM)
	v.SetDefault("OBJECT_STORAGE_MODE", "local")
	v.SetDefault("LOCAL_STORAGE_DIR", "./data/receipts")
	v.SetDefault("LOCAL_STORAGE_PUBLIC_BASE", "/files")
	v.SetDefault("EMBEDDING_CACHE_TTL_HOURS", 168)
	v.SetDefault("NORMALIZER_VARIANTS_FILE", "")

	v.SetDefault("MATCH_VECTOR_THRESHOLD", 0.7)
	v.SetDefault("MATCH_TEXT_THRESHOLD", 0.6)
	v.SetDefault("MATCH_FUZZY_THRESHOLD", 0.7)
	v.SetDefault("MATCH_CONTAINMENT_SCORE", 0.95)
	v.SetDefault("MATCH_CONTAINMENT_MIN_COVERAGE", 0.5)

	v.SetDefault("PIPELINE_ITEM_CONCURRENCY", 4)
	v.SetDefault("ADAPTER_RETRY_ATTEMPTS", 3)
	v.SetDefault("ADAPTER_RETRY_MIN_SECONDS", 2)
	v.SetDefault("ADAPTER_RETRY_MAX_SECONDS", 30)
	v.SetDefault("VALIDATION_CONFIDENCE_WARN", 0.8)

	v.SetDefault("WORKER_ENABLED", true)
	v.SetDefault("WORKER_CONCURRENCY", 4)
	v.SetDefault("WORKER_POLL_SECONDS", 1)
	v.SetDefault("JOB_MAX_ATTEMPTS", 5)
	v.SetDefault("JOB_RETRY_DELAY_SECONDS", 30)
	v.SetDefault("JOB_STALE_SECONDS", 300)
	v.SetDefault("JOB_TIMEOUT_SECONDS", 600)
	return v
}

// LoadConfig reads defaults, then an optional file named by STOCKSCAN_CONFIG,
// then the environment. Later sources win.
func LoadConfig(log *logger.Logger) (Config, error) {
	v := newViper()
	if path := strings.TrimSpace(os.Getenv("STOCKSCAN_CONFIG")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		log.Info("Loaded config file", "path", path)
	}
	v.AutomaticEnv()
	return configFrom(v, log)
}

func configFrom(v *viper.Viper, log *logger.Logger) (Config, error) {
	mode, err := storage.ParseMode(v.GetString("OBJECT_STORAGE_MODE"))
	if err != nil {
		return Config{}, err
	}
	extraction := strings.ToLower(strings.TrimSpace(v.GetString("EXTRACTION_MODE")))
	switch extraction {
	case ExtractionVisionLLM, ExtractionOCRLLM:
	default:
		return Config{}, fmt.Errorf("unsupported EXTRACTION_MODE %q", extraction)
	}

	cfg := Config{
		Port:        v.GetString("PORT"),
		ServiceName: v.GetString("SERVICE_NAME"),
		Environment: v.GetString("ENVIRONMENT"),
		Version:     v.GetString("VERSION"),
		CORSOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		MetricsAddr: v.GetString("METRICS_ADDR"),

		ExtractionMode:  extraction,
		StorageMode:     mode,
		LocalStorageDir: v.GetString("LOCAL_STORAGE_DIR"),
		LocalPublicBase: v.GetString("LOCAL_STORAGE_PUBLIC_BASE"),

		EmbeddingCacheTTL: time.Duration(v.GetInt("EMBEDDING_CACHE_TTL_HOURS")) * time.Hour,
		VariantsFile:      v.GetString("NORMALIZER_VARIANTS_FILE"),

		Match: matching.Config{
			VectorThreshold:  v.GetFloat64("MATCH_VECTOR_THRESHOLD"),
			TextThreshold:    v.GetFloat64("MATCH_TEXT_THRESHOLD"),
			FuzzyThreshold:   v.GetFloat64("MATCH_FUZZY_THRESHOLD"),
			ContainmentBoost: v.GetFloat64("MATCH_CONTAINMENT_SCORE"),
			MinCoverage:      v.GetFloat64("MATCH_CONTAINMENT_MIN_COVERAGE"),
		},
		Pipeline: pipeline.Config{
			ItemConcurrency: v.GetInt("PIPELINE_ITEM_CONCURRENCY"),
			Retry: receipts.RetryPolicy{
				Attempts: v.GetInt("ADAPTER_RETRY_ATTEMPTS"),
				MinDelay: time.Duration(v.GetInt("ADAPTER_RETRY_MIN_SECONDS")) * time.Second,
				MaxDelay: time.Duration(v.GetInt("ADAPTER_RETRY_MAX_SECONDS")) * time.Second,
			},
			ConfidenceWarn: v.GetFloat64("VALIDATION_CONFIDENCE_WARN"),
		},

		WorkerEnabled: v.GetBool("WORKER_ENABLED"),
		Worker: worker.Config{
			Concurrency:  v.GetInt("WORKER_CONCURRENCY"),
			PollInterval: time.Duration(v.GetInt("WORKER_POLL_SECONDS")) * time.Second,
			MaxAttempts:  v.GetInt("JOB_MAX_ATTEMPTS"),
			RetryDelay:   time.Duration(v.GetInt("JOB_RETRY_DELAY_SECONDS")) * time.Second,
			StaleRunning: time.Duration(v.GetInt("JOB_STALE_SECONDS")) * time.Second,
			JobTimeout:   time.Duration(v.GetInt("JOB_TIMEOUT_SECONDS")) * time.Second,
		},
	}
	log.Debug("Config loaded",
		"port", cfg.Port,
		"extraction_mode", cfg.ExtractionMode,
		"object_storage_mode", cfg.StorageMode,
		"worker_enabled", cfg.WorkerEnabled,
		"worker_concurrency", cfg.Worker.Concurrency,
		"job_timeout", cfg.Worker.JobTimeout.String(),
	)
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
