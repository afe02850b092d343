package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Env holds provider credentials read from the process environment.
// They sit beneath organization settings when credentials are resolved.
type Env struct {
	TwilioAccountSID     string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken      string `env:"TWILIO_AUTH_TOKEN"`
	TwilioPhoneNumber    string `env:"TWILIO_PHONE_NUMBER"`
	TwilioWhatsAppNumber string `env:"TWILIO_WHATSAPP_NUMBER" envDefault:"+14155238886"`

	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	AWSRegion          string `env:"AWS_REGION" envDefault:"us-east-1"`

	// Overrides for secrets that should not live in the config file
	APIKey   string `env:"MSGHUB_API_KEY"`
	RedisURL string `env:"MSGHUB_REDIS_URL"`
	AMQPURL  string `env:"MSGHUB_AMQP_URL"`
}

// LoadEnv parses the environment credential layer
func LoadEnv() (*Env, error) {
	e, err := env.ParseAs[Env]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return &e, nil
}

// ApplyEnv copies secret overrides from the environment into cfg
func (c *Config) ApplyEnv(e *Env) {
	if e == nil {
		return
	}
	if e.APIKey != "" {
		c.API.APIKey = e.APIKey
	}
	if e.RedisURL != "" {
		c.Events.RedisURL = e.RedisURL
	}
	if e.AMQPURL != "" {
		c.Events.AMQPURL = e.AMQPURL
	}
}
