package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	envparse "github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"

	"github.com/fanflowhq/fanflow/internal/pkg/env"
)

// Expiry policies for unpaid PPV offers.
const (
	OnExpiryStop = "stop"
	OnExpirySkip = "skip"
)

// Ledger backend choices.
const (
	LedgerBackendMemory = "memory"
	LedgerBackendRedis  = "redis"
)

// Settings carries every runtime knob the automation core reads. Values come
// from the environment (.env file plus process env); defaults mirror the
// behavior of the hosted dashboard.
type Settings struct {
	AppHost string `env:"APP_HOST" envDefault:"localhost"`
	AppPort string `env:"APP_PORT" envDefault:"4000"`

	// Webhook ingestion
	WebhookSecret string `env:"WEBHOOK_SECRET"`
	APIKey        string `env:"API_KEY"`

	// Auto response
	AutoResponseEnabled bool          `env:"AUTO_RESPONSE_ENABLED" envDefault:"false"`
	AutoResponseScript  string        `env:"AUTO_RESPONSE_SCRIPT"`
	AutoResponseText    string        `env:"AUTO_RESPONSE_TEXT" envDefault:"Thanks for your message! I'll get back to you soon 💕"`
	WelcomeDelay        time.Duration `env:"WELCOME_DELAY" envDefault:"10m"`

	// PPV payment gating
	PPVExpirationHours   int    `env:"PPV_EXPIRATION_HOURS" envDefault:"24" validate:"gt=0"`
	PPVReminderEnabled   bool   `env:"PPV_REMINDER_ENABLED" envDefault:"true"`
	PPVReminderWaitHours int    `env:"PPV_REMINDER_WAIT_HOURS" envDefault:"6" validate:"gt=0"`
	PPVMaxResendAttempts int    `env:"PPV_MAX_RESEND_ATTEMPTS" envDefault:"1" validate:"gte=0"`
	PPVOnExpiry          string `env:"PPV_ON_EXPIRY" envDefault:"stop" validate:"oneof=stop skip"`

	// Revenue
	CommissionRate float64 `env:"COMMISSION_RATE" envDefault:"0.2" validate:"gte=0,lt=1"`

	// Ledger
	LedgerCapacity int    `env:"LEDGER_CAPACITY" envDefault:"100" validate:"gt=0"`
	LedgerBackend  string `env:"LEDGER_BACKEND" envDefault:"memory" validate:"oneof=memory redis"`
}

// PaymentTTL returns the PPV offer lifetime.
func (s *Settings) PaymentTTL() time.Duration {
	return time.Duration(s.PPVExpirationHours) * time.Hour
}

// ReminderWait returns the shorter wait window after a reminder was sent.
func (s *Settings) ReminderWait() time.Duration {
	return time.Duration(s.PPVReminderWaitHours) * time.Hour
}

// Load parses settings from the merged environment (.env file values layered
// over the process environment) and validates them.
func Load() (*Settings, error) {
	merged := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			merged[k] = v
		}
	}
	for k, v := range env.Env {
		merged[k] = v
	}

	s := &Settings{}
	if err := envparse.ParseWithOptions(s, envparse.Options{Environment: merged}); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	if err := validator.New().Struct(s); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}
