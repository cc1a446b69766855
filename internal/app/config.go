package app

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the process configuration, read from the environment. A
// .env file in the working directory is merged in first so local runs
// match the hosted deployment.
type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"prod"`
	Timezone string `envconfig:"TIMEZONE" default:"UTC"`

	BotToken string `envconfig:"BOT_TOKEN" required:"true"`
	// AdminID pre-seeds the admin so /start claiming is not needed on a
	// fresh deployment. 0 leaves the admin unset.
	AdminID int64 `envconfig:"ADMIN_ID"`

	StateFile string `envconfig:"STATE_FILE" default:"data/state.json"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`

	// HealthAddr is where the liveness and metrics endpoints listen.
	// Empty disables the sidecar.
	HealthAddr string `envconfig:"HEALTH_ADDR" default:":10000"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile  string `envconfig:"LOG_FILE"`

	PollTimeout    time.Duration `envconfig:"POLL_TIMEOUT" default:"10s"`
	SendRatePerSec int           `envconfig:"SEND_RATE_PER_SEC" default:"1"`
}

func LoadConfig() (Config, error) {
	// Missing .env is the normal hosted case.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return Config{}, fmt.Errorf("TIMEZONE: invalid %q: %w", cfg.Timezone, err)
	}
	return cfg, nil
}
