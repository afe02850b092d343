package provider

import (
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/foxzi/msghub/internal/config"
	"github.com/foxzi/msghub/internal/dkim"
	"github.com/foxzi/msghub/internal/models"
)

// ResolvedCredentials are the SDK credentials for one dispatch, with tenant
// settings taking precedence over the process environment
type ResolvedCredentials struct {
	Twilio TwilioCredentials
	SES    SESCredentials
}

// ResolveCredentials layers tenant config over env. Each credential set is
// taken whole from one layer so accounts are never mixed. Tenant SMS
// username and key are Twilio credentials only when Twilio is the SMS
// provider.
func ResolveCredentials(cfg *models.OrganizationConfig, env *config.Env) ResolvedCredentials {
	if env == nil {
		env = &config.Env{}
	}
	var rc ResolvedCredentials

	if cfg != nil && cfg.SMS.Provider == models.SMSProviderTwilio && cfg.SMS.Username != "" && cfg.SMS.APIKey != "" {
		rc.Twilio = TwilioCredentials{
			AccountSID: cfg.SMS.Username,
			AuthToken:  cfg.SMS.APIKey,
			From:       cfg.SMS.SenderID,
		}
	} else {
		rc.Twilio = envTwilio(env)
	}

	if cfg != nil && cfg.Email.AWSAccessKey != "" && cfg.Email.AWSSecretKey != "" {
		rc.SES = SESCredentials{
			AccessKey: cfg.Email.AWSAccessKey,
			SecretKey: cfg.Email.AWSSecretKey,
			Region:    cfg.Email.AWSRegion,
		}
	} else {
		rc.SES = SESCredentials{
			AccessKey: env.AWSAccessKeyID,
			SecretKey: env.AWSSecretAccessKey,
			Region:    env.AWSRegion,
		}
	}
	if rc.SES.Region == "" {
		rc.SES.Region = DefaultAWSRegion
	}

	return rc
}

func envTwilio(env *config.Env) TwilioCredentials {
	return TwilioCredentials{
		AccountSID: env.TwilioAccountSID,
		AuthToken:  env.TwilioAuthToken,
		From:       env.TwilioPhoneNumber,
	}
}

// Options configures a Resolver
type Options struct {
	Env      *config.Env
	Timeout  time.Duration
	Hostname string
	Logger   *slog.Logger

	// SDK constructors, replaceable in tests
	NewTwilioAPI func(TwilioCredentials, time.Duration) MessageCreator
	NewSESAPI    func(SESCredentials, time.Duration) SESAPI
}

// Resolver builds provider clients from organization configuration.
// It holds no per-organization state; every call builds a fresh client.
type Resolver struct {
	opts Options
}

// NewResolver creates a resolver
func NewResolver(opts Options) *Resolver {
	if opts.Env == nil {
		opts.Env = &config.Env{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewTwilioAPI == nil {
		opts.NewTwilioAPI = NewTwilioAPI
	}
	if opts.NewSESAPI == nil {
		opts.NewSESAPI = NewSESAPI
	}
	return &Resolver{opts: opts}
}

// Resolve returns the client for the organization's provider on channel
func (r *Resolver) Resolve(cfg *models.OrganizationConfig, ch models.Channel) (Client, error) {
	if cfg == nil {
		return nil, &ConfigurationError{Channel: ch, Reason: "organization has no messaging configuration"}
	}
	if !cfg.Active() {
		return nil, &ConfigurationError{Channel: ch, Reason: "messaging is disabled for this organization"}
	}

	creds := ResolveCredentials(cfg, r.opts.Env)

	switch ch {
	case models.ChannelSMS:
		return r.resolveSMS(cfg, creds)
	case models.ChannelEmail:
		return r.resolveEmail(cfg, creds)
	case models.ChannelWhatsApp:
		return r.resolveWhatsApp(cfg, creds)
	}
	return nil, &ConfigurationError{Channel: ch, Reason: "unsupported channel"}
}

func (r *Resolver) resolveSMS(cfg *models.OrganizationConfig, creds ResolvedCredentials) (Client, error) {
	sms := cfg.SMS
	missing := func(fields string) error {
		return &ConfigurationError{Channel: models.ChannelSMS, Provider: sms.Provider, Reason: "missing " + fields}
	}

	switch sms.Provider {
	case models.SMSProviderTwilio:
		if !creds.Twilio.Complete() {
			return nil, missing("account sid, auth token or sender number")
		}
		return NewTwilioSMS(r.opts.NewTwilioAPI(creds.Twilio, r.opts.Timeout), creds.Twilio.From, r.opts.Timeout), nil

	case models.SMSProviderTextLocal:
		if sms.APIKey == "" || sms.Username == "" {
			return nil, missing("api_key or username")
		}
		return NewTextLocal(sms.APIURL, sms.APIKey, sms.Username, sms.SenderID, r.opts.Timeout), nil

	case models.SMSProviderMSG91:
		if sms.APIKey == "" {
			return nil, missing("api_key")
		}
		return NewMSG91(sms.APIURL, sms.APIKey, sms.SenderID, r.opts.Timeout), nil

	case models.SMSProviderClickatell:
		if sms.APIKey == "" {
			return nil, missing("api_key")
		}
		return NewClickatell(sms.APIURL, sms.APIKey, sms.SenderID, r.opts.Timeout), nil

	case models.SMSProviderCustom:
		if sms.APIURL == "" {
			return nil, missing("api_url")
		}
		if sms.APIKey == "" && (sms.Username == "" || sms.Password == "") {
			return nil, missing("api_key or username/password")
		}
		return NewCustomSMS(sms.APIURL, sms.APIKey, sms.Username, sms.Password, sms.SenderID, r.opts.Timeout), nil

	case "":
		return nil, &ConfigurationError{Channel: models.ChannelSMS, Reason: "no provider selected"}
	}

	return nil, &ConfigurationError{Channel: models.ChannelSMS, Provider: sms.Provider, Reason: "unknown provider"}
}

func (r *Resolver) resolveEmail(cfg *models.OrganizationConfig, creds ResolvedCredentials) (Client, error) {
	em := cfg.Email
	missing := func(fields string) error {
		return &ConfigurationError{Channel: models.ChannelEmail, Provider: em.Provider, Reason: "missing " + fields}
	}

	switch em.Provider {
	case models.EmailProviderSMTP:
		if em.SMTPHost == "" || em.SMTPUsername == "" || em.SMTPPassword == "" {
			return nil, missing("smtp_host, smtp_username or smtp_password")
		}

		var signer *dkim.Signer
		if em.DKIMPrivateKey != "" {
			s, err := dkim.NewSignerFromConfig(em.DKIMPrivateKey, em.DKIMDomain, em.DKIMSelector)
			if err != nil {
				return nil, &ConfigurationError{Channel: models.ChannelEmail, Provider: em.Provider, Reason: err.Error()}
			}
			signer = s
		}

		return NewSMTP(SMTPConfig{
			Host:     em.SMTPHost,
			Port:     em.SMTPPort,
			Username: em.SMTPUsername,
			Password: em.SMTPPassword,
			UseTLS:   em.UseTLS,
			UseSSL:   em.UseSSL,
			From:     mail.Address{Name: cfg.General.DefaultSenderName, Address: em.SMTPUsername},
			Hostname: r.opts.Hostname,
		}, signer, r.opts.Timeout, r.opts.Logger), nil

	case models.EmailProviderAWSSES:
		if creds.SES.AccessKey == "" || creds.SES.SecretKey == "" || em.AWSSenderEmail == "" {
			return nil, missing("aws access key, secret key or sender email")
		}
		from := mail.Address{Name: cfg.General.DefaultSenderName, Address: em.AWSSenderEmail}
		return NewSES(r.opts.NewSESAPI(creds.SES, r.opts.Timeout), from, r.opts.Timeout), nil

	case "":
		return nil, &ConfigurationError{Channel: models.ChannelEmail, Reason: "no provider selected"}
	}

	return nil, &ConfigurationError{Channel: models.ChannelEmail, Provider: em.Provider, Reason: "unknown provider"}
}

func (r *Resolver) resolveWhatsApp(cfg *models.OrganizationConfig, creds ResolvedCredentials) (Client, error) {
	wa := cfg.WhatsApp
	provider := cfg.ProviderFor(models.ChannelWhatsApp)

	switch provider {
	case models.WhatsAppProviderBusiness:
		if wa.APIURL == "" || wa.APIKey == "" || wa.PhoneNumber == "" {
			return nil, &ConfigurationError{
				Channel:  models.ChannelWhatsApp,
				Provider: provider,
				Reason:   "missing api_url, api_key or phone_number",
			}
		}
		return NewWhatsAppBusiness(wa.APIURL, wa.APIKey, r.opts.Timeout), nil

	case models.WhatsAppProviderTwilio:
		tc := creds.Twilio
		from := wa.PhoneNumber
		if from == "" {
			from = r.opts.Env.TwilioWhatsAppNumber
		}
		if tc.AccountSID == "" || tc.AuthToken == "" {
			return nil, &ConfigurationError{
				Channel:  models.ChannelWhatsApp,
				Provider: provider,
				Reason:   "missing twilio account sid or auth token",
			}
		}
		return NewTwilioWhatsApp(r.opts.NewTwilioAPI(tc, r.opts.Timeout), from, r.opts.Timeout), nil
	}

	return nil, &ConfigurationError{Channel: models.ChannelWhatsApp, Provider: provider, Reason: "unknown provider"}
}

// SMSFallback returns the environment-credentialed Twilio client used when
// a non-Twilio SMS primary fails. ok is false when no fallback applies.
func (r *Resolver) SMSFallback(primary string) (client Client, ok bool) {
	if primary == models.SMSProviderTwilio {
		return nil, false
	}
	creds := envTwilio(r.opts.Env)
	if !creds.Complete() {
		return nil, false
	}
	return NewTwilioSMS(r.opts.NewTwilioAPI(creds, r.opts.Timeout), creds.From, r.opts.Timeout), true
}

// Describe returns a short label for logs
func Describe(c Client) string {
	return fmt.Sprintf("%s/%s", c.Channel(), c.Name())
}
