package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	// Write timeout must exceed the provider timeout: submit and poll
	// hold the response open while the remote call runs.
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"90s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	// ASR provider selection: "tingwu" (HMAC-signed) or "volc" (token).
	Provider        string        `env:"ASR_PROVIDER" envDefault:"tingwu"`
	ProviderTimeout time.Duration `env:"ASR_TIMEOUT" envDefault:"60s"`
	SourceLanguage  string        `env:"ASR_SOURCE_LANGUAGE" envDefault:"auto"`
	Summarization   bool          `env:"ASR_SUMMARIZATION" envDefault:"true"`
	AutoChapters    bool          `env:"ASR_AUTO_CHAPTERS" envDefault:"false"`
	SpeakerInfo     bool          `env:"ASR_SPEAKER_INFO" envDefault:"true"`

	// HMAC provider credentials
	TingwuHost      string `env:"TINGWU_HOST" envDefault:"tingwu.cn-beijing.aliyuncs.com"`
	TingwuBasePath  string `env:"TINGWU_BASE_PATH" envDefault:"/openapi/tingwu/v2"`
	TingwuAppKey    string `env:"TINGWU_APP_KEY"`
	TingwuKeyID     string `env:"TINGWU_ACCESS_KEY_ID"`
	TingwuKeySecret string `env:"TINGWU_ACCESS_KEY_SECRET"`

	// Token provider credentials
	VolcBaseURL string `env:"VOLC_BASE_URL" envDefault:"https://openspeech.bytedance.com/api/v1/auc"`
	VolcAppID   string `env:"VOLC_APP_ID"`
	VolcToken   string `env:"VOLC_TOKEN"`
	VolcCluster string `env:"VOLC_CLUSTER"`
	VolcUID     string `env:"VOLC_UID" envDefault:"meetpipe"`

	// Object storage for uploaded audio
	S3Bucket    string `env:"S3_BUCKET"`
	S3Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`
	S3PublicURL string `env:"S3_PUBLIC_URL"` // base URL for uploaded objects; defaults to the bucket endpoint
	KeyPrefix   string `env:"UPLOAD_KEY_PREFIX" envDefault:"meetings/"`

	FFmpegPath  string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	AudioFormat string `env:"AUDIO_FORMAT" envDefault:"m4a"`
	WorkDir     string `env:"WORK_DIR" envDefault:"./work"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile     string
	HTTPAddr    string
	LogLevel    string
	DatabaseURL string
	Provider    string
}

// Load reads configuration from .env file, environment variables, and CLI
// overrides. Priority: CLI flags > environment variables > .env file >
// struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.Provider != "" {
		cfg.Provider = overrides.Provider
	}

	if cfg.Provider != "tingwu" && cfg.Provider != "volc" {
		return nil, fmt.Errorf("unknown ASR_PROVIDER %q (want tingwu or volc)", cfg.Provider)
	}

	return cfg, nil
}
