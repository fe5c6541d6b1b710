package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Recognition service
	OpenAIAPIKey       string        `env:"OPENAI_API_KEY,required,notEmpty"`
	WhisperURL         string        `env:"WHISPER_URL" envDefault:"https://api.openai.com/v1/audio/transcriptions"`
	WhisperModel       string        `env:"WHISPER_MODEL" envDefault:"whisper-1"`
	WhisperLanguage    string        `env:"WHISPER_LANGUAGE" envDefault:"ru"`
	WhisperPrompt      string        `env:"WHISPER_PROMPT"`
	WhisperTemperature float64       `env:"WHISPER_TEMPERATURE"`
	WhisperTimeout     time.Duration `env:"WHISPER_TIMEOUT" envDefault:"60s"`

	// Fetch / transcode
	FetchTimeout  time.Duration `env:"FETCH_TIMEOUT" envDefault:"10s"`
	MaxAudioBytes int64         `env:"MAX_AUDIO_BYTES" envDefault:"26214400"`
	FFmpegPath    string        `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	ScratchDir    string        `env:"SCRATCH_DIR"`

	// HTTP
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:5000"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"120s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	AuthToken    string        `env:"AUTH_TOKEN"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Archive ArchiveConfig `envPrefix:"ARCHIVE_"`
	MQTT    MQTTConfig    `envPrefix:"MQTT_"`
}

// ArchiveConfig controls optional archiving of fetched source audio.
type ArchiveConfig struct {
	Backend string        `env:"BACKEND"` // "", "local" or "s3"
	Dir     string        `env:"DIR" envDefault:"./archive"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"` // per-job write bound

	Bucket    string `env:"S3_BUCKET"`
	Endpoint  string `env:"S3_ENDPOINT"`
	Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	AccessKey string `env:"S3_ACCESS_KEY"`
	SecretKey string `env:"S3_SECRET_KEY"`
	Prefix    string `env:"S3_PREFIX"`
}

// Enabled reports whether archiving is configured.
func (a ArchiveConfig) Enabled() bool { return a.Backend != "" }

// MQTTConfig controls the optional MQTT job intake.
type MQTTConfig struct {
	BrokerURL    string `env:"BROKER_URL"`
	ClientID     string `env:"CLIENT_ID" envDefault:"voicescribe"`
	Username     string `env:"USERNAME"`
	Password     string `env:"PASSWORD"`
	RequestTopic string `env:"REQUEST_TOPIC" envDefault:"voicescribe/jobs"`
	ResultTopic  string `env:"RESULT_TOPIC" envDefault:"voicescribe/results"`
	Workers      int    `env:"WORKERS" envDefault:"2"`
	QueueSize    int    `env:"QUEUE_SIZE" envDefault:"32"`
}

// Enabled reports whether MQTT intake is configured.
func (m MQTTConfig) Enabled() bool { return m.BrokerURL != "" }

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile  string
	HTTPAddr string
	LogLevel string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges that struct tags cannot express.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.OpenAIAPIKey) == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.MaxAudioBytes <= 0 {
		return fmt.Errorf("MAX_AUDIO_BYTES must be positive, got %d", c.MaxAudioBytes)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive, got %s", c.FetchTimeout)
	}
	if c.FetchTimeout > 10*time.Second {
		c.FetchTimeout = 10 * time.Second
	}
	if c.WhisperTimeout <= 0 {
		return fmt.Errorf("WHISPER_TIMEOUT must be positive, got %s", c.WhisperTimeout)
	}
	if c.WhisperTemperature < 0 || c.WhisperTemperature > 1 {
		return fmt.Errorf("WHISPER_TEMPERATURE must be between 0 and 1, got %g", c.WhisperTemperature)
	}
	if c.Archive.Enabled() && c.Archive.Timeout <= 0 {
		return fmt.Errorf("ARCHIVE_TIMEOUT must be positive, got %s", c.Archive.Timeout)
	}
	switch c.Archive.Backend {
	case "", "local":
	case "s3":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("ARCHIVE_S3_BUCKET is required when ARCHIVE_BACKEND=s3")
		}
	default:
		return fmt.Errorf("ARCHIVE_BACKEND must be local or s3, got %q", c.Archive.Backend)
	}
	if c.MQTT.Enabled() && c.MQTT.Workers < 1 {
		return fmt.Errorf("MQTT_WORKERS must be at least 1, got %d", c.MQTT.Workers)
	}
	return nil
}
