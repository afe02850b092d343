package provider

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/foxzi/msghub/internal/config"
	"github.com/foxzi/msghub/internal/dkim"
	"github.com/foxzi/msghub/internal/models"
)

// recordingFactories captures the credentials the resolver hands to the SDKs
type recordingFactories struct {
	twilio []TwilioCredentials
	ses    []SESCredentials
}

func (f *recordingFactories) options(env *config.Env) Options {
	return Options{
		Env:     env,
		Timeout: time.Second,
		NewTwilioAPI: func(c TwilioCredentials, _ time.Duration) MessageCreator {
			f.twilio = append(f.twilio, c)
			return &fakeTwilio{sid: "SM1"}
		},
		NewSESAPI: func(c SESCredentials, _ time.Duration) SESAPI {
			f.ses = append(f.ses, c)
			return &fakeSES{}
		},
	}
}

func boolPtr(b bool) *bool { return &b }

func TestResolveSMS(t *testing.T) {
	env := &config.Env{TwilioAccountSID: "ACenv", TwilioAuthToken: "env-token", TwilioPhoneNumber: "+15550000"}

	tests := []struct {
		name     string
		sms      models.SMSConfig
		env      *config.Env
		wantName string
		wantErr  bool
	}{
		{"twilio from tenant", models.SMSConfig{Provider: "twilio", Username: "ACorg", APIKey: "tok", SenderID: "+15551111"}, nil, "twilio", false},
		{"twilio from env", models.SMSConfig{Provider: "twilio"}, env, "twilio", false},
		{"twilio missing", models.SMSConfig{Provider: "twilio"}, nil, "", true},
		{"textlocal", models.SMSConfig{Provider: "textlocal", APIKey: "k", Username: "u"}, nil, "textlocal", false},
		{"textlocal without username", models.SMSConfig{Provider: "textlocal", APIKey: "k"}, nil, "", true},
		{"msg91", models.SMSConfig{Provider: "msg91", APIKey: "k"}, nil, "msg91", false},
		{"msg91 missing key", models.SMSConfig{Provider: "msg91"}, nil, "", true},
		{"clickatell", models.SMSConfig{Provider: "clickatell", APIKey: "k"}, nil, "clickatell", false},
		{"custom bearer", models.SMSConfig{Provider: "custom", APIURL: "https://gw", APIKey: "k"}, nil, "custom", false},
		{"custom basic", models.SMSConfig{Provider: "custom", APIURL: "https://gw", Username: "u", Password: "p"}, nil, "custom", false},
		{"custom without url", models.SMSConfig{Provider: "custom", APIKey: "k"}, nil, "", true},
		{"custom without auth", models.SMSConfig{Provider: "custom", APIURL: "https://gw", Username: "u"}, nil, "", true},
		{"no provider", models.SMSConfig{}, nil, "", true},
		{"unknown provider", models.SMSConfig{Provider: "nexmo", APIKey: "k"}, nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &recordingFactories{}
			r := NewResolver(f.options(tt.env))
			c, err := r.Resolve(&models.OrganizationConfig{SMS: tt.sms}, models.ChannelSMS)

			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got client %s", Describe(c))
				}
				if !IsConfigurationError(err) {
					t.Errorf("error %v is not a ConfigurationError", err)
				}
				if len(f.twilio) != 0 {
					t.Error("no SDK client may be built on a configuration error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if c.Name() != tt.wantName || c.Channel() != models.ChannelSMS {
				t.Errorf("client = %s, want sms/%s", Describe(c), tt.wantName)
			}
		})
	}
}

func TestResolveCredentialsLayering(t *testing.T) {
	env := &config.Env{
		TwilioAccountSID:   "ACenv",
		TwilioAuthToken:    "env-token",
		TwilioPhoneNumber:  "+15550000",
		AWSAccessKeyID:     "AKIAENV",
		AWSSecretAccessKey: "env-secret",
		AWSRegion:          "eu-west-1",
	}

	tenant := &models.OrganizationConfig{
		SMS:   models.SMSConfig{Provider: "twilio", Username: "ACorg", APIKey: "org-token", SenderID: "+15551111"},
		Email: models.EmailConfig{AWSAccessKey: "AKIAORG", AWSSecretKey: "org-secret"},
	}
	rc := ResolveCredentials(tenant, env)
	if rc.Twilio != (TwilioCredentials{AccountSID: "ACorg", AuthToken: "org-token", From: "+15551111"}) {
		t.Errorf("tenant twilio = %+v", rc.Twilio)
	}
	if rc.SES.AccessKey != "AKIAORG" || rc.SES.SecretKey != "org-secret" || rc.SES.Region != "us-east-1" {
		t.Errorf("tenant ses = %+v", rc.SES)
	}

	// a partial tenant set never borrows from env
	partial := &models.OrganizationConfig{Email: models.EmailConfig{AWSAccessKey: "AKIAORG", AWSRegion: "ap-south-1"}}
	rc = ResolveCredentials(partial, env)
	if rc.SES.AccessKey != "AKIAENV" || rc.SES.SecretKey != "env-secret" || rc.SES.Region != "eu-west-1" {
		t.Errorf("env ses = %+v", rc.SES)
	}
	if rc.Twilio.AccountSID != "ACenv" || rc.Twilio.From != "+15550000" {
		t.Errorf("env twilio = %+v", rc.Twilio)
	}

	rc = ResolveCredentials(nil, nil)
	if rc.Twilio.Complete() || rc.SES.Region != DefaultAWSRegion {
		t.Errorf("empty credentials = %+v", rc)
	}
}

func TestResolveTwilioWhatsAppWithOtherSMSProvider(t *testing.T) {
	env := &config.Env{TwilioAccountSID: "ACenv", TwilioAuthToken: "env-token", TwilioWhatsAppNumber: "+14155238886"}

	f := &recordingFactories{}
	r := NewResolver(f.options(env))

	cfg := &models.OrganizationConfig{
		SMS:      models.SMSConfig{Provider: "textlocal", Username: "tl-user", APIKey: "TEXTLOCAL-KEY", SenderID: "SHOP"},
		WhatsApp: models.WhatsAppConfig{Provider: "twilio"},
	}

	rc := ResolveCredentials(cfg, env)
	if rc.Twilio.AccountSID != "ACenv" || rc.Twilio.AuthToken != "env-token" {
		t.Errorf("twilio credentials = %+v, want env", rc.Twilio)
	}

	if _, err := r.Resolve(cfg, models.ChannelWhatsApp); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(f.twilio) != 1 {
		t.Fatalf("twilio clients built = %d, want 1", len(f.twilio))
	}
	if got := f.twilio[0]; got.AccountSID != "ACenv" || got.AuthToken != "env-token" {
		t.Errorf("twilio SDK got %+v, textlocal credentials leaked", got)
	}

	// the textlocal SMS client keeps its own credentials
	c, err := r.Resolve(cfg, models.ChannelSMS)
	if err != nil {
		t.Fatalf("Resolve sms failed: %v", err)
	}
	if c.Name() != "textlocal" || len(f.twilio) != 1 {
		t.Errorf("sms client = %s, twilio clients = %d", Describe(c), len(f.twilio))
	}
}

func TestResolveEmail(t *testing.T) {
	kp, err := dkim.GenerateKey("shop.example", "mail")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		email    models.EmailConfig
		wantName string
		wantErr  bool
	}{
		{"smtp", models.EmailConfig{Provider: "smtp", SMTPHost: "mail", SMTPUsername: "u@shop.example", SMTPPassword: "p"}, "smtp", false},
		{"smtp missing password", models.EmailConfig{Provider: "smtp", SMTPHost: "mail", SMTPUsername: "u"}, "", true},
		{"smtp with dkim", models.EmailConfig{
			Provider: "smtp", SMTPHost: "mail", SMTPUsername: "u@shop.example", SMTPPassword: "p",
			DKIMDomain: "shop.example", DKIMSelector: "mail", DKIMPrivateKey: string(kp.PEM()),
		}, "smtp", false},
		{"smtp with bad dkim", models.EmailConfig{
			Provider: "smtp", SMTPHost: "mail", SMTPUsername: "u", SMTPPassword: "p",
			DKIMPrivateKey: "/nonexistent/key.pem",
		}, "", true},
		{"ses", models.EmailConfig{Provider: "aws_ses", AWSAccessKey: "a", AWSSecretKey: "s", AWSSenderEmail: "no-reply@shop.example"}, "aws_ses", false},
		{"ses missing sender", models.EmailConfig{Provider: "aws_ses", AWSAccessKey: "a", AWSSecretKey: "s"}, "", true},
		{"no provider", models.EmailConfig{}, "", true},
		{"unknown provider", models.EmailConfig{Provider: "sendgrid"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &recordingFactories{}
			c, err := NewResolver(f.options(nil)).Resolve(&models.OrganizationConfig{Email: tt.email}, models.ChannelEmail)
			if tt.wantErr {
				if !IsConfigurationError(err) {
					t.Fatalf("error = %v, want ConfigurationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if c.Name() != tt.wantName {
				t.Errorf("client = %s", Describe(c))
			}
		})
	}
}

func TestResolveSMTPSender(t *testing.T) {
	cfg := &models.OrganizationConfig{
		Email:   models.EmailConfig{Provider: "smtp", SMTPHost: "mail", SMTPUsername: "u@shop.example", SMTPPassword: "p"},
		General: models.GeneralConfig{DefaultSenderName: "Shop"},
	}
	c, err := NewResolver(Options{}).Resolve(cfg, models.ChannelEmail)
	if err != nil {
		t.Fatal(err)
	}
	s := c.(*SMTP)
	if s.cfg.From.Address != "u@shop.example" || s.cfg.From.Name != "Shop" {
		t.Errorf("From = %v", s.cfg.From)
	}
	if s.cfg.Port != DefaultSMTPPort {
		t.Errorf("Port = %d", s.cfg.Port)
	}
}

func TestResolveWhatsApp(t *testing.T) {
	env := &config.Env{TwilioAccountSID: "ACenv", TwilioAuthToken: "env-token", TwilioWhatsAppNumber: "+14155238886"}

	f := &recordingFactories{}
	r := NewResolver(f.options(env))

	c, err := r.Resolve(&models.OrganizationConfig{
		WhatsApp: models.WhatsAppConfig{APIURL: "https://graph", APIKey: "k", PhoneNumber: "+15550100"},
	}, models.ChannelWhatsApp)
	if err != nil {
		t.Fatalf("business: %v", err)
	}
	if c.Name() != models.WhatsAppProviderBusiness {
		t.Errorf("default provider = %s", c.Name())
	}

	_, err = r.Resolve(&models.OrganizationConfig{WhatsApp: models.WhatsAppConfig{APIKey: "k"}}, models.ChannelWhatsApp)
	if !IsConfigurationError(err) {
		t.Errorf("incomplete business config error = %v", err)
	}

	c, err = r.Resolve(&models.OrganizationConfig{WhatsApp: models.WhatsAppConfig{Provider: "twilio"}}, models.ChannelWhatsApp)
	if err != nil {
		t.Fatalf("twilio: %v", err)
	}
	tw := c.(*Twilio)
	if tw.from != "+14155238886" || tw.Channel() != models.ChannelWhatsApp {
		t.Errorf("twilio whatsapp = %+v", tw)
	}

	_, err = NewResolver(f.options(nil)).Resolve(&models.OrganizationConfig{WhatsApp: models.WhatsAppConfig{Provider: "twilio"}}, models.ChannelWhatsApp)
	if !IsConfigurationError(err) {
		t.Errorf("twilio without credentials error = %v", err)
	}
}

func TestResolveInactiveOrMissing(t *testing.T) {
	r := NewResolver(Options{})

	_, err := r.Resolve(nil, models.ChannelSMS)
	var ce *ConfigurationError
	if !errors.As(err, &ce) || ce.Channel != models.ChannelSMS {
		t.Errorf("nil config error = %v", err)
	}

	cfg := &models.OrganizationConfig{
		SMS:     models.SMSConfig{Provider: "msg91", APIKey: "k"},
		General: models.GeneralConfig{IsActive: boolPtr(false)},
	}
	_, err = r.Resolve(cfg, models.ChannelSMS)
	if !IsConfigurationError(err) || !strings.Contains(err.Error(), "disabled") {
		t.Errorf("inactive config error = %v", err)
	}

	_, err = r.Resolve(&models.OrganizationConfig{}, models.Channel("fax"))
	if !IsConfigurationError(err) {
		t.Errorf("unknown channel error = %v", err)
	}
}

func TestSMSFallback(t *testing.T) {
	complete := &config.Env{TwilioAccountSID: "ACenv", TwilioAuthToken: "t", TwilioPhoneNumber: "+15550000"}

	f := &recordingFactories{}
	r := NewResolver(f.options(complete))

	c, ok := r.SMSFallback(models.SMSProviderMSG91)
	if !ok || c.Name() != "twilio" {
		t.Fatalf("fallback = %v, %v", c, ok)
	}
	if len(f.twilio) != 1 || f.twilio[0].AccountSID != "ACenv" {
		t.Errorf("fallback credentials = %+v", f.twilio)
	}

	if _, ok := r.SMSFallback(models.SMSProviderTwilio); ok {
		t.Error("twilio primary must not fall back to twilio")
	}

	partial := NewResolver(f.options(&config.Env{TwilioAccountSID: "ACenv"}))
	if _, ok := partial.SMSFallback(models.SMSProviderTextLocal); ok {
		t.Error("incomplete env credentials must not enable fallback")
	}
}

func TestConfigurationErrorMessage(t *testing.T) {
	e := &ConfigurationError{Channel: models.ChannelSMS, Provider: "msg91", Reason: "missing api_key"}
	if e.Error() != `sms provider "msg91" misconfigured: missing api_key` {
		t.Errorf("Error() = %q", e.Error())
	}
	e = &ConfigurationError{Channel: models.ChannelEmail, Reason: "no provider selected"}
	if e.Error() != "email provider not configured: no provider selected" {
		t.Errorf("Error() = %q", e.Error())
	}
}
