package accounts

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"net/smtp"
	"strings"

	"github.com/gofiber/template/django/v3"
	goerrors "github.com/goliatone/go-errors"
)

// MailMessage is a plain text outbound email.
type MailMessage struct {
	From    string
	To      string
	Subject string
	Text    string
}

// Mailer delivers outbound mail. Delivery failures never fail the operation
// that triggered the send.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}

// SMTPMailer delivers mail through a plain SMTP relay.
type SMTPMailer struct {
	addr string
	auth smtp.Auth
}

func NewSMTPMailer(host string, port int, username, password string) *SMTPMailer {
	m := &SMTPMailer{
		addr: fmt.Sprintf("%s:%d", host, port),
	}

	if username != "" {
		m.auth = smtp.PlainAuth("", username, password, host)
	}

	return m
}

func (m *SMTPMailer) Send(ctx context.Context, msg MailMessage) error {
	if err := ctx.Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "context cancelled before mail delivery")
	}

	var body bytes.Buffer
	fmt.Fprintf(&body, "From: %s\r\n", msg.From)
	fmt.Fprintf(&body, "To: %s\r\n", msg.To)
	fmt.Fprintf(&body, "Subject: %s\r\n", msg.Subject)
	body.WriteString("MIME-Version: 1.0\r\n")
	body.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	body.WriteString("\r\n")
	body.WriteString(msg.Text)

	if err := smtp.SendMail(m.addr, m.auth, msg.From, []string{msg.To}, body.Bytes()); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "smtp delivery failed").
			WithMetadata(map[string]any{"to": msg.To})
	}

	return nil
}

// LogMailer prints outbound mail instead of delivering it. Default in
// development where no relay is configured.
type LogMailer struct {
	logger Logger
}

func NewLogMailer(logger Logger) LogMailer {
	if logger == nil {
		logger = defLogger{}
	}
	return LogMailer{logger: logger}
}

func (m LogMailer) Send(_ context.Context, msg MailMessage) error {
	m.logger.Info("outbound email",
		"to", msg.To,
		"subject", msg.Subject,
		"text", msg.Text,
	)
	return nil
}

// ActivationNotifier renders and sends the activation email carrying the
// single use link a new account must follow.
type ActivationNotifier struct {
	mailer Mailer
	views  *django.Engine
	origin string
	from   string
}

func NewActivationNotifier(mailer Mailer, origin, from string) (*ActivationNotifier, error) {
	sub, err := fs.Sub(GetTemplatesFS(), "data/templates")
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mount email templates")
	}

	views := django.NewFileSystem(http.FS(sub), ".django")
	if err := views.Load(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load email templates")
	}

	return &ActivationNotifier{
		mailer: mailer,
		views:  views,
		origin: strings.TrimRight(origin, "/"),
		from:   from,
	}, nil
}

// Notify emails the activation link for the given token.
func (n *ActivationNotifier) Notify(ctx context.Context, user *User, token *ActivationToken) error {
	var body bytes.Buffer
	err := n.views.Render(&body, "activation_email", map[string]any{
		"username":        user.Username,
		"activation_link": n.origin + "/activations/" + token.ID.String(),
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render activation email")
	}

	return n.mailer.Send(ctx, MailMessage{
		From:    n.from,
		To:      user.Email,
		Subject: "Activate your account",
		Text:    body.String(),
	})
}
