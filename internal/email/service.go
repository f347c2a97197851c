package email

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	gomail "gopkg.in/gomail.v2"

	"github.com/contentforge/review-api/pkg/logger"
)

// RecipientResolver maps a user id to an email address. Users without a
// locally known address are skipped, not failed.
type RecipientResolver interface {
	EmailFor(ctx context.Context, userID uuid.UUID) (string, error)
}

type Service interface {
	SendCustom(ctx context.Context, to, subject, content string) error
	SendNotification(ctx context.Context, userID uuid.UUID, subject, content string) error
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type service struct {
	dialer   *gomail.Dialer
	from     string
	resolver RecipientResolver
	logger   *logger.Logger
}

func NewService(cfg Config, resolver RecipientResolver, log *logger.Logger) Service {
	return &service{
		dialer:   gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:     cfg.From,
		resolver: resolver,
		logger:   log,
	}
}

func (s *service) SendCustom(_ context.Context, to, subject, content string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", content)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}

func (s *service) SendNotification(ctx context.Context, userID uuid.UUID, subject, content string) error {
	to, err := s.resolver.EmailFor(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to resolve recipient: %w", err)
	}
	if to == "" {
		s.logger.Debug("no email address for user, skipping", "user_id", userID.String())
		return nil
	}
	return s.SendCustom(ctx, to, subject, content)
}
