package auth

import (
	"context"
	"fmt"
	"strings"
)

// Mailer is the outbound email collaborator. Dispatch is fire-and-forget
// from this package's perspective: failures are logged by callers, never
// retried.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// MailerFunc adapts a function into a Mailer.
type MailerFunc func(ctx context.Context, to, subject, body string) error

func (f MailerFunc) Send(ctx context.Context, to, subject, body string) error {
	return f(ctx, to, subject, body)
}

// VerificationLink builds the frontend link carrying a signed token, of the
// form {frontendBase}/{verb}?token={token}.
func VerificationLink(frontendBase, verb, token string) string {
	base := strings.TrimSuffix(frontendBase, "/")
	verb = strings.TrimPrefix(verb, "/")
	return fmt.Sprintf("%s/%s?token=%s", base, verb, token)
}

type notifier struct {
	mailer      Mailer
	frontendURL string
	logger      Logger
}

func newNotifier(mailer Mailer, frontendURL string, logger Logger) *notifier {
	if mailer == nil {
		mailer = logMailer{logger: logger}
	}
	if logger == nil {
		logger = defLogger{}
	}
	return &notifier{mailer: mailer, frontendURL: frontendURL, logger: logger}
}

func (n *notifier) sendAccountVerification(ctx context.Context, to, token string) {
	link := VerificationLink(n.frontendURL, "verify", token)
	n.deliver(ctx, to, "Email Verification",
		"Please verify your email by clicking this link: "+link)
}

func (n *notifier) sendPasswordReset(ctx context.Context, to, token string) {
	link := VerificationLink(n.frontendURL, "reset-password", token)
	n.deliver(ctx, to, "Reset Password",
		"Please click on this link within 24 hours to reset your password: "+link)
}

func (n *notifier) sendEmailUpdateVerification(ctx context.Context, to, token string) {
	link := VerificationLink(n.frontendURL, "verify-email-update", token)
	n.deliver(ctx, to, "Confirm Email Change",
		"Please confirm your new email address by clicking this link: "+link)
}

func (n *notifier) deliver(ctx context.Context, to, subject, body string) {
	if err := n.mailer.Send(ctx, to, subject, body); err != nil {
		n.logger.Error("mail dispatch failed", "to", to, "subject", subject, "error", err)
	}
}

// logMailer is the default dispatcher used when no Mailer is configured.
type logMailer struct {
	logger Logger
}

func (m logMailer) Send(_ context.Context, to, subject, body string) error {
	logger := m.logger
	if logger == nil {
		logger = defLogger{}
	}
	logger.Info("email notification", "to", to, "subject", subject, "body", body)
	return nil
}
