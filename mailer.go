package account

import (
	"context"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/gomail.v2"
)

// SMTPMailerConfig holds the connection and rendering options for SMTPMailer.
// ActivationURL and friends are format strings receiving the scoped token,
// e.g. "https://app.example.com/activate/%s".
type SMTPMailerConfig struct {
	Host                    string
	Port                    int
	Username                string
	Password                string
	From                    string
	SiteName                string
	ActivationURL           string
	PasswordResetURL        string
	PasswordSetURL          string
	SecondaryEmailVerifyURL string
}

// SMTPMailer delivers lifecycle emails over SMTP.
type SMTPMailer struct {
	dialer *gomail.Dialer
	cfg    SMTPMailerConfig
}

// NewSMTPMailer creates a mailer from the given config.
func NewSMTPMailer(cfg SMTPMailerConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		cfg:    cfg,
	}
}

func (s *SMTPMailer) SendActivation(ctx context.Context, user *User, token string) error {
	body := fmt.Sprintf(`
		<h3>Activate your account on %s</h3>
		<p>Hi %s,</p>
		<p>Follow the link below to activate your account:</p>
		<p><a href="%s">Activate account</a></p>
	`, s.cfg.SiteName, user.Username, s.link(s.cfg.ActivationURL, token))

	return s.send(ctx, user.Email, fmt.Sprintf("Activate your account on %s", s.cfg.SiteName), body)
}

func (s *SMTPMailer) SendPasswordReset(ctx context.Context, user *User, email, token string) error {
	body := fmt.Sprintf(`
		<h3>Password reset requested</h3>
		<p>Hi %s,</p>
		<p>We received a request to reset the password for your account on %s.</p>
		<p><a href="%s">Reset password</a></p>
		<p>If you did not request this change, you can ignore this email.</p>
	`, user.Username, s.cfg.SiteName, s.link(s.cfg.PasswordResetURL, token))

	return s.send(ctx, email, "Reset your password", body)
}

func (s *SMTPMailer) SendPasswordSet(ctx context.Context, user *User, token string) error {
	body := fmt.Sprintf(`
		<h3>Set your password</h3>
		<p>Hi %s,</p>
		<p>Your account on %s has no password yet. Use the link below to set one:</p>
		<p><a href="%s">Set password</a></p>
	`, user.Username, s.cfg.SiteName, s.link(s.cfg.PasswordSetURL, token))

	return s.send(ctx, user.Email, "Set your password", body)
}

func (s *SMTPMailer) SendSecondaryEmailActivation(ctx context.Context, user *User, email, token string) error {
	body := fmt.Sprintf(`
		<h3>Confirm this email address</h3>
		<p>Hi %s,</p>
		<p>Follow the link below to attach this address to your account on %s:</p>
		<p><a href="%s">Confirm email</a></p>
	`, user.Username, s.cfg.SiteName, s.link(s.cfg.SecondaryEmailVerifyURL, token))

	return s.send(ctx, email, "Confirm your email address", body)
}

func (s *SMTPMailer) link(format, token string) string {
	if format == "" {
		return token
	}
	return fmt.Sprintf(format, token)
}

func (s *SMTPMailer) send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to send email").
			WithMetadata(map[string]any{"subject": subject})
	}

	return nil
}

// NoopMailer discards every email. Useful for tests and for deployments that
// disable email flows through configuration.
type NoopMailer struct{}

func (NoopMailer) SendActivation(context.Context, *User, string) error { return nil }

func (NoopMailer) SendPasswordReset(context.Context, *User, string, string) error { return nil }

func (NoopMailer) SendPasswordSet(context.Context, *User, string) error { return nil }

func (NoopMailer) SendSecondaryEmailActivation(context.Context, *User, string, string) error {
	return nil
}

// EmailDispatcher wraps a Mailer with the configured delivery mode. In async
// mode errors are logged, never returned, matching the fire and forget
// semantics callers expect from background delivery.
type EmailDispatcher struct {
	mailer Mailer
	cfg    Config
	logger Logger
}

// NewEmailDispatcher creates a dispatcher with sane defaults.
func NewEmailDispatcher(mailer Mailer, cfg Config) *EmailDispatcher {
	if mailer == nil {
		mailer = NoopMailer{}
	}
	return &EmailDispatcher{
		mailer: mailer,
		cfg:    cfg,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used for async delivery failures.
func (d *EmailDispatcher) WithLogger(logger Logger) *EmailDispatcher {
	if logger != nil {
		d.logger = logger
	}
	return d
}

func (d *EmailDispatcher) SendActivation(ctx context.Context, user *User, token string) error {
	return d.dispatch(ctx, "activation", func(ctx context.Context) error {
		return d.mailer.SendActivation(ctx, user, token)
	})
}

func (d *EmailDispatcher) SendPasswordReset(ctx context.Context, user *User, email, token string) error {
	return d.dispatch(ctx, "password reset", func(ctx context.Context) error {
		return d.mailer.SendPasswordReset(ctx, user, email, token)
	})
}

func (d *EmailDispatcher) SendPasswordSet(ctx context.Context, user *User, token string) error {
	return d.dispatch(ctx, "password set", func(ctx context.Context) error {
		return d.mailer.SendPasswordSet(ctx, user, token)
	})
}

func (d *EmailDispatcher) SendSecondaryEmailActivation(ctx context.Context, user *User, email, token string) error {
	return d.dispatch(ctx, "secondary email activation", func(ctx context.Context) error {
		return d.mailer.SendSecondaryEmailActivation(ctx, user, email, token)
	})
}

func (d *EmailDispatcher) dispatch(ctx context.Context, kind string, send func(context.Context) error) error {
	if !d.cfg.GetAsyncEmail() {
		return send(ctx)
	}

	go func() {
		// detach from the request context, the mutation already returned
		if err := send(context.Background()); err != nil {
			d.logger.Error("async %s email delivery failed: %v", kind, err)
		}
	}()

	return nil
}
