// Package mailer sends passcode and shared-video emails over SMTP.
package mailer

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/wneessen/go-mail"

	"helpmeout/internal/logging"
	"helpmeout/internal/metrics"
)

//go:embed templates/*.html
var templateFS embed.FS

// ErrDisabled is returned when no SMTP host is configured.
var ErrDisabled = errors.New("email is not configured")

// Config holds SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Mailer renders and delivers emails.
type Mailer struct {
	from      string
	client    sender
	templates map[string]*template.Template
}

// OTPPurpose selects the wording of a passcode email.
type OTPPurpose string

const (
	OTPSignup        OTPPurpose = "signup"
	OTPPasswordReset OTPPurpose = "password_reset"
)

// VideoEmail is the data for a shared recording.
type VideoEmail struct {
	Title         string
	Sender        string
	StreamURL     string
	DownloadURL   string
	ThumbnailURL  string
	TranscriptURL string
}

// New creates a Mailer. An empty host yields a disabled Mailer whose send
// methods return ErrDisabled.
func New(cfg Config) (*Mailer, error) {
	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	m := &Mailer{from: cfg.From, templates: templates}
	if cfg.Host == "" {
		logging.Info("SMTP not configured, email delivery disabled")
		return m, nil
	}
	if m.from == "" {
		m.from = cfg.Username
	}

	var opts []mail.Option
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.Port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSOpportunistic))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}
	m.client = client

	logging.Info("SMTP configured: %s:%d", cfg.Host, cfg.Port)
	return m, nil
}

func parseTemplates() (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template)
	for _, name := range []string{"otp", "video"} {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s email template: %w", name, err)
		}
		templates[name] = t
	}
	return templates, nil
}

// Enabled reports whether emails can be delivered.
func (m *Mailer) Enabled() bool {
	return m != nil && m.client != nil
}

// SendOTP emails a passcode.
func (m *Mailer) SendOTP(ctx context.Context, to, username, code string, purpose OTPPurpose, ttl time.Duration) error {
	data := struct {
		Heading, Username, Action, Code, Expires string
	}{
		Heading:  "Verify your email",
		Username: username,
		Action:   "finish creating your account",
		Code:     code,
		Expires:  ttl.String(),
	}
	subject := "Your HelpMeOut verification code"
	if purpose == OTPPasswordReset {
		data.Heading = "Reset your password"
		data.Action = "reset your password"
		subject = "Your HelpMeOut password reset code"
	}

	text := fmt.Sprintf("Hi %s, your HelpMeOut code is %s. It expires in %s.", username, code, data.Expires)
	return m.send(ctx, "otp", to, subject, data, text)
}

// SendVideo emails links to a recording.
func (m *Mailer) SendVideo(ctx context.Context, to string, v VideoEmail) error {
	text := fmt.Sprintf("%s shared a screen recording with you: %s\nWatch: %s\nDownload: %s",
		v.Sender, v.Title, v.StreamURL, v.DownloadURL)
	return m.send(ctx, "video", to, v.Title+" - HelpMeOut", v, text)
}

// Render executes the named template with data.
func (m *Mailer) Render(name string, data any) (string, error) {
	t, ok := m.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown email template %q", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", fmt.Errorf("failed to render %s email: %w", name, err)
	}
	return buf.String(), nil
}

func (m *Mailer) send(ctx context.Context, kind, to, subject string, data any, text string) (err error) {
	if !m.Enabled() {
		return ErrDisabled
	}

	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.EmailsSentTotal.WithLabelValues(kind, status).Inc()
	}()

	html, err := m.Render(kind, data)
	if err != nil {
		return err
	}

	msg := mail.NewMsg()
	if err = msg.From(m.from); err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}
	if err = msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, text)
	msg.AddAlternativeString(mail.TypeTextHTML, html)

	if err = m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	logging.Info("Sent %s email to %s", kind, to)
	return nil
}
