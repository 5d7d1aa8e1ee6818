// Package notify delivers update digests to project members by mail.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/rocketDuck/folivora/internal/domain"
	"github.com/rocketDuck/folivora/internal/eventlog"
	"github.com/rocketDuck/folivora/internal/logger"
)

// Config holds SMTP settings.
type Config struct {
	Host          string `yaml:"host" env:"SMTP_HOST"`
	Port          int    `yaml:"port" env:"SMTP_PORT"`
	Username      string `yaml:"username" env:"SMTP_USERNAME"`
	Password      string `yaml:"password" env:"SMTP_PASSWORD"`
	From          string `yaml:"from" env:"MAIL_FROM"`
	SubjectPrefix string `yaml:"subject_prefix" env:"MAIL_SUBJECT_PREFIX"`
}

// sender is the slice of mail.Client the mailer needs.
type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Mailer renders log entry batches into one digest mail per project.
type Mailer struct {
	client sender
	cfg    Config
	log    logger.Logger
}

// New creates a mailer with a real SMTP client.
func New(cfg Config, log logger.Logger) (*Mailer, error) {
	opts := []mail.Option{mail.WithPort(cfg.Port)}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password))
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create mail client: %w", err)
	}
	return &Mailer{client: client, cfg: cfg, log: log}, nil
}

// DigestHandler returns the handler routing update_available batches.
func (m *Mailer) DigestHandler() eventlog.Handler {
	return m.sendDigest
}

func (m *Mailer) sendDigest(ctx context.Context, project *domain.Project, members []domain.ProjectMember, entries []domain.LogEntry) error {
	recipients := make([]string, 0, len(members))
	for _, member := range members {
		if addr := member.NotifyAddress(); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	if len(recipients) == 0 {
		m.log.Debug("No notifiable members, digest dropped",
			logger.String("project", project.Slug))
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return fmt.Errorf("digest for %s: %w", project.Slug, err)
	}
	if err := msg.To(recipients...); err != nil {
		return fmt.Errorf("digest for %s: %w", project.Slug, err)
	}
	msg.Subject(fmt.Sprintf("%sUpdates available for %s", m.cfg.SubjectPrefix, project.Name))
	msg.SetBodyString(mail.TypeTextPlain, digestBody(project, entries))

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("digest for %s: %w", project.Slug, err)
	}

	m.log.Info("Digest sent",
		logger.String("project", project.Slug),
		logger.Int("recipients", len(recipients)),
		logger.Int("updates", len(entries)))
	return nil
}

func digestBody(project *domain.Project, entries []domain.LogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The following updates are available for %s:\n\n", project.Name)
	for _, e := range entries {
		name, _ := e.Data["name"].(string)
		version, _ := e.Data["version"].(string)
		fmt.Fprintf(&b, "  * %s %s\n", name, version)
	}
	b.WriteString("\nVisit your project dashboard to review them.\n")
	return b.String()
}
