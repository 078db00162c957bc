// Package notify emails the operator when a run fails.
package notify

import (
	"context"
	"fmt"
	"loggingturtle/internal/entity"
	"loggingturtle/internal/stage"
	"loggingturtle/lib/telemetry"
	"net/smtp"
	"strings"
	"time"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("loggingturtle/internal/notify")

// Failure describes a failed run.
type Failure struct {
	Entity string
	RunID  string
	At     time.Time
	Err    error
}

type Notifier struct {
	config entity.NotifyConfig
}

func New(config entity.NotifyConfig) Notifier {
	return Notifier{config: config}
}

func (n Notifier) Enabled() bool {
	return n.config.Enabled()
}

// Compose builds the email sent for a failure.
func (n Notifier) Compose(f Failure) *email.Email {
	failed := "unknown"
	if s, ok := stage.Of(f.Err); ok {
		failed = string(s)
	}

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Logging Turtle <%s>", n.config.Address)
	mail.To = n.config.To
	mail.Subject = fmt.Sprintf("[loggingturtle] %s failed at %s", f.Entity, failed)

	var body strings.Builder
	fmt.Fprintf(&body, "The %s run %s failed during %s.\n\n", f.Entity, f.RunID, failed)
	fmt.Fprintf(&body, "Time: %s\n", f.At.Format(time.RFC3339))
	fmt.Fprintf(&body, "Error: %v\n", f.Err)
	mail.Text = []byte(body.String())
	return mail
}

// Send emails a failure, it does nothing when notifications are not configured.
func (n Notifier) Send(ctx context.Context, f Failure) error {
	if !n.Enabled() {
		return nil
	}

	_, span := tracer.Start(ctx, "Send")
	defer span.End()

	mail := n.Compose(f)
	addr := fmt.Sprintf("%s:%d", n.config.Server, n.config.Port)
	err := mail.Send(addr, smtp.PlainAuth("", n.config.Address, n.config.Password, n.config.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}
	return nil
}
