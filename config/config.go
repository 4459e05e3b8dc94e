package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Funding policies for anonymous (patientless) bookings. Which pool an
// anonymous booking charges is a deployment decision, not something the
// server infers.
const (
	AnonFundingProvider = "provider"
	AnonFundingDisabled = "disabled"
)

type Config struct {
	ServerPort  string `envconfig:"SERVER_PORT" default:"8080"`
	DatabaseURL string `envconfig:"DB_URL" required:"true"`

	// Credit claim contention handling.
	ClaimRetries    int           `envconfig:"CLAIM_RETRIES" default:"3"`
	ClaimRetryDelay time.Duration `envconfig:"CLAIM_RETRY_DELAY" default:"25ms"`
	ClaimTimeout    time.Duration `envconfig:"CLAIM_TIMEOUT" default:"5s"`

	AnonFundingPolicy string `envconfig:"ANON_FUNDING_POLICY" default:"provider"`

	SMTPHost string `envconfig:"SMTP_HOST"`
	SMTPPort int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser string `envconfig:"SMTP_USER"`
	SMTPPass string `envconfig:"SMTP_PASS"`
}

func Load() (Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return c, err
	}
	switch c.AnonFundingPolicy {
	case AnonFundingProvider, AnonFundingDisabled:
	default:
		return c, fmt.Errorf("unknown ANON_FUNDING_POLICY %q", c.AnonFundingPolicy)
	}
	return c, nil
}
