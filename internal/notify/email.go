package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"orgdirectory/configs"
	"orgdirectory/internal/service"
	"orgdirectory/pkg/logger"
)

// mailer is the part of *gomail.Dialer the notifier needs.
type mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier delivers verification codes over SMTP.
type EmailNotifier struct {
	from   string
	dialer mailer
}

func NewEmailNotifier(cfg configs.Config) *EmailNotifier {
	return &EmailNotifier{
		from:   cfg.FromEmail,
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass),
	}
}

func (n *EmailNotifier) Notify(ctx context.Context, email, code string, window time.Duration) error {
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("empty recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", email)
	m.SetHeader("Subject", "Your verification code")
	m.SetBody("text/html", verificationBody(code, window))

	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	logger.AuditLogger.Info("Verification email sent", zap.String("to", email))
	return nil
}

func verificationBody(code string, window time.Duration) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <h2>Verify your account</h2>
  <p>Your verification code is:</p>
  <div style="font-size: 28px; font-weight: bold; letter-spacing: 3px;">%s</div>
  <p>The code expires in %d minutes.</p>
</body>
</html>`, code, int(window.Minutes()))
}

// LogNotifier writes codes to the system log. It is used when SMTP is not
// configured, e.g. on a developer machine.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, email, code string, window time.Duration) error {
	logger.SystemLogger.Info("DEVELOPER MODE: verification code",
		zap.String("to", email), zap.String("code", code), zap.Duration("valid_for", window))
	return nil
}

// New picks the SMTP notifier when a host and sender are configured.
func New(cfg configs.Config) service.Notifier {
	if cfg.SMTPHost == "" || cfg.FromEmail == "" {
		logger.SystemLogger.Warn("SMTP not configured, verification codes go to the system log")
		return LogNotifier{}
	}
	return NewEmailNotifier(cfg)
}
