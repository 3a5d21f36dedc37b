package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Synthesis providers.
const (
	ProviderStub       = "stub"
	ProviderHTTP       = "http"
	ProviderElevenLabs = "elevenlabs"
)

// Config holds runtime configuration.
type Config struct {
	Port string `envconfig:"PORT" default:"8080"`

	// Empty keeps activity in process memory.
	DBDSN string `envconfig:"DB_DSN"`

	TTSProvider string        `envconfig:"TTS_PROVIDER" default:"stub"`
	TTSEndpoint string        `envconfig:"TTS_ENDPOINT"`
	TTSAPIKey   string        `envconfig:"TTS_API_KEY"`
	TTSEngine   string        `envconfig:"TTS_ENGINE" default:"neural"`
	TTSTimeout  time.Duration `envconfig:"TTS_TIMEOUT" default:"30s"`

	ElevenLabsAPIKey  string            `envconfig:"ELEVENLABS_API_KEY"`
	ElevenLabsVoiceID string            `envconfig:"ELEVENLABS_VOICE_ID"`
	ElevenLabsVoices  map[string]string `envconfig:"ELEVENLABS_VOICE_MAP"` // Joanna:id1,Hans:id2
	ElevenLabsModelID string            `envconfig:"ELEVENLABS_MODEL_ID"`

	AuthJWTSecret string `envconfig:"AUTH_JWT_SECRET" required:"true"`
	AuthJWTIssuer string `envconfig:"AUTH_JWT_ISSUER"`

	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads .env when present, then the environment, and validates the result.
func Load() (Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv skips the .env file.
func LoadFromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg.TTSProvider = strings.ToLower(strings.TrimSpace(cfg.TTSProvider))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks provider specific requirements.
func (c Config) Validate() error {
	if c.AuthJWTSecret == "" {
		return errors.New("AUTH_JWT_SECRET is required")
	}
	if c.TTSTimeout <= 0 {
		return errors.New("TTS_TIMEOUT must be positive")
	}

	switch c.TTSProvider {
	case ProviderStub:
	case ProviderHTTP:
		if c.TTSEndpoint == "" {
			return errors.New("TTS_ENDPOINT is required for the http provider")
		}
	case ProviderElevenLabs:
		if c.ElevenLabsAPIKey == "" {
			return errors.New("ELEVENLABS_API_KEY is required for the elevenlabs provider")
		}
		if c.ElevenLabsVoiceID == "" && len(c.ElevenLabsVoices) == 0 {
			return errors.New("ELEVENLABS_VOICE_ID or ELEVENLABS_VOICE_MAP is required for the elevenlabs provider")
		}
	default:
		return fmt.Errorf("unknown TTS_PROVIDER %q", c.TTSProvider)
	}
	return nil
}

// Persistent reports whether activity goes to Postgres.
func (c Config) Persistent() bool {
	return c.DBDSN != ""
}
