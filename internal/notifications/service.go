package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/kukusoko/kukusoko-backend/pkg/db/models"
	"github.com/kukusoko/kukusoko-backend/pkg/enums"
	"github.com/kukusoko/kukusoko-backend/pkg/logger"
)

// EmailSender delivers an email-class notification. Implementations are
// external; the pipeline treats them as black boxes.
type EmailSender interface {
	SendEmail(ctx context.Context, recipientID uuid.UUID, subject, body string) error
}

// SMSSender delivers an SMS-class notification.
type SMSSender interface {
	SendSMS(ctx context.Context, recipientID uuid.UUID, message string) error
}

// Message is one notification to dispatch to a single recipient.
type Message struct {
	RecipientID uuid.UUID
	Kind        enums.NotificationKind
	Title       string
	Body        string
	OrderID     *uuid.UUID
	SendEmail   bool
	SendSMS     bool
}

// Dispatcher fans a message out to the in-app table and the configured
// senders. Dispatch never returns an error: notification failure must not
// fail the order or payment flow that triggered it.
type Dispatcher interface {
	Dispatch(ctx context.Context, messages []Message)
}

type dispatcher struct {
	repo   Repository
	email  EmailSender
	sms    SMSSender
	logger *logger.Logger
}

// NewDispatcher wires the notification fan-out. Email and SMS senders are
// optional; a nil sender skips that channel.
func NewDispatcher(repo Repository, email EmailSender, sms SMSSender, logg *logger.Logger) (Dispatcher, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &dispatcher{repo: repo, email: email, sms: sms, logger: logg}, nil
}

func (d *dispatcher) Dispatch(ctx context.Context, messages []Message) {
	var errs error
	for _, msg := range messages {
		if msg.RecipientID == uuid.Nil {
			continue
		}
		if err := d.repo.Create(ctx, &models.Notification{
			RecipientID: msg.RecipientID,
			Kind:        msg.Kind,
			Title:       msg.Title,
			Body:        msg.Body,
			OrderID:     msg.OrderID,
		}); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("persist notification for %s: %w", msg.RecipientID, err))
		}
		if msg.SendEmail && d.email != nil {
			if err := d.email.SendEmail(ctx, msg.RecipientID, msg.Title, msg.Body); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("email %s: %w", msg.RecipientID, err))
			}
		}
		if msg.SendSMS && d.sms != nil {
			if err := d.sms.SendSMS(ctx, msg.RecipientID, msg.Body); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("sms %s: %w", msg.RecipientID, err))
			}
		}
	}
	if errs != nil {
		d.logger.Error(ctx, "notification dispatch partially failed", errs)
	}
}
