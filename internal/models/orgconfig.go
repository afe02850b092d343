package models

// SMS providers
const (
	SMSProviderTwilio     = "twilio"
	SMSProviderTextLocal  = "textlocal"
	SMSProviderMSG91      = "msg91"
	SMSProviderClickatell = "clickatell"
	SMSProviderCustom     = "custom"
)

// Email providers
const (
	EmailProviderSMTP   = "smtp"
	EmailProviderAWSSES = "aws_ses"
)

// WhatsApp providers
const (
	WhatsAppProviderBusiness = "business"
	WhatsAppProviderTwilio   = "twilio"
)

// OrganizationConfig holds the per-tenant messaging settings.
// It is owned by the organization and read, never written, by dispatch.
type OrganizationConfig struct {
	OrganizationID string         `yaml:"-" json:"organization_id"`
	SMS            SMSConfig      `yaml:"sms" json:"sms"`
	Email          EmailConfig    `yaml:"email" json:"email"`
	WhatsApp       WhatsAppConfig `yaml:"whatsapp" json:"whatsapp"`
	General        GeneralConfig  `yaml:"general" json:"general"`
}

type SMSConfig struct {
	Provider string `yaml:"provider" json:"provider"`
	APIURL   string `yaml:"api_url" json:"api_url,omitempty"`
	APIKey   string `yaml:"api_key" json:"-"`
	Username string `yaml:"username" json:"username,omitempty"`
	Password string `yaml:"password" json:"-"`
	SenderID string `yaml:"sender_id" json:"sender_id,omitempty"`
}

type EmailConfig struct {
	Provider string `yaml:"provider" json:"provider"`

	SMTPHost     string `yaml:"smtp_host" json:"smtp_host,omitempty"`
	SMTPPort     int    `yaml:"smtp_port" json:"smtp_port,omitempty"`
	SMTPUsername string `yaml:"smtp_username" json:"smtp_username,omitempty"`
	SMTPPassword string `yaml:"smtp_password" json:"-"`
	UseTLS       bool   `yaml:"use_tls" json:"use_tls"`
	UseSSL       bool   `yaml:"use_ssl" json:"use_ssl"`

	AWSAccessKey   string `yaml:"aws_access_key" json:"-"`
	AWSSecretKey   string `yaml:"aws_secret_key" json:"-"`
	AWSRegion      string `yaml:"aws_region" json:"aws_region,omitempty"`
	AWSSenderEmail string `yaml:"aws_sender_email" json:"aws_sender_email,omitempty"`

	// DKIM signing for the smtp provider
	DKIMDomain     string `yaml:"dkim_domain" json:"dkim_domain,omitempty"`
	DKIMSelector   string `yaml:"dkim_selector" json:"dkim_selector,omitempty"`
	DKIMPrivateKey string `yaml:"dkim_private_key" json:"-"`
}

type WhatsAppConfig struct {
	Provider    string `yaml:"provider" json:"provider,omitempty"`
	APIURL      string `yaml:"api_url" json:"api_url,omitempty"`
	APIKey      string `yaml:"api_key" json:"-"`
	PhoneNumber string `yaml:"phone_number" json:"phone_number,omitempty"`
}

type GeneralConfig struct {
	DefaultSenderName string `yaml:"default_sender_name" json:"default_sender_name,omitempty"`
	IsActive          *bool  `yaml:"is_active" json:"is_active,omitempty"`
}

// Active reports whether messaging is enabled for the organization.
// An unset flag counts as active.
func (c *OrganizationConfig) Active() bool {
	if c == nil {
		return false
	}
	return c.General.IsActive == nil || *c.General.IsActive
}

// ProviderFor returns the configured provider name for a channel
func (c *OrganizationConfig) ProviderFor(ch Channel) string {
	switch ch {
	case ChannelSMS:
		return c.SMS.Provider
	case ChannelEmail:
		return c.Email.Provider
	case ChannelWhatsApp:
		if c.WhatsApp.Provider == "" {
			return WhatsAppProviderBusiness
		}
		return c.WhatsApp.Provider
	}
	return ""
}
