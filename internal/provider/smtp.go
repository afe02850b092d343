package provider

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"time"

	"github.com/foxzi/msghub/internal/dkim"
	"github.com/foxzi/msghub/internal/models"
)

// DefaultSMTPPort is used when the organization leaves smtp_port unset
const DefaultSMTPPort = 587

// SMTPConfig describes an organization's submission server
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool // STARTTLS after connect
	UseSSL   bool // implicit TLS
	From     mail.Address
	Hostname string // HELO name

	// TLSConfig overrides the default client TLS settings
	TLSConfig *tls.Config
}

// SMTP sends email through an authenticated submission server
type SMTP struct {
	cfg     SMTPConfig
	signer  *dkim.Signer
	timeout time.Duration
	logger  *slog.Logger
}

// NewSMTP creates an SMTP email client. signer may be nil.
func NewSMTP(cfg SMTPConfig, signer *dkim.Signer, timeout time.Duration, logger *slog.Logger) *SMTP {
	if cfg.Port == 0 {
		cfg.Port = DefaultSMTPPort
	}
	if cfg.Hostname == "" {
		cfg.Hostname = "localhost"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTP{cfg: cfg, signer: signer, timeout: timeout, logger: logger}
}

func (c *SMTP) Name() string            { return models.EmailProviderSMTP }
func (c *SMTP) Channel() models.Channel { return models.ChannelEmail }

func (c *SMTP) Send(ctx context.Context, msg *Message) Result {
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return failure(c.Name(), "invalid email address %q", msg.To)
	}

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	e := newEmail(c.cfg.From, msg)
	data := e.Bytes()

	if c.signer != nil {
		signed, err := c.signer.Sign(data)
		if err != nil {
			c.logger.Warn("DKIM signing failed, sending unsigned",
				"domain", c.signer.Domain(),
				"error", err,
			)
		} else {
			data = signed
		}
	}

	if err := c.deliver(ctx, msg.To, data); err != nil {
		return failure(c.Name(), "%v", err)
	}
	return success(c.Name(), e.MessageID)
}

func (c *SMTP) tlsConfig() *tls.Config {
	if c.cfg.TLSConfig != nil {
		return c.cfg.TLSConfig
	}
	return &tls.Config{
		ServerName: c.cfg.Host,
		MinVersion: tls.VersionTLS12,
	}
}

func (c *SMTP) deliver(ctx context.Context, to string, data []byte) error {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))

	dialer := &net.Dialer{Timeout: c.timeout}
	var (
		conn net.Conn
		err  error
	)
	if c.cfg.UseSSL {
		td := &tls.Dialer{NetDialer: dialer, Config: c.tlsConfig()}
		conn, err = td.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("connection failed to %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, c.cfg.Host)
	if err != nil {
		return fmt.Errorf("SMTP client creation failed: %w", err)
	}
	defer client.Close()

	if err := client.Hello(c.cfg.Hostname); err != nil {
		return fmt.Errorf("HELO failed: %w", err)
	}

	if c.cfg.UseTLS && !c.cfg.UseSSL {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return fmt.Errorf("server does not support STARTTLS")
		}
		if err := client.StartTLS(c.tlsConfig()); err != nil {
			return fmt.Errorf("STARTTLS failed: %w", err)
		}
	}

	if c.cfg.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)); err != nil {
			return fmt.Errorf("AUTH failed: %w", err)
		}
	}

	if err := client.Mail(c.cfg.From.Address); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO %s failed: %w", to, err)
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA failed: %w", err)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("failed to write message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("DATA close failed: %w", err)
	}

	client.Quit()
	return nil
}
