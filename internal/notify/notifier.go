// Package notify fans customer and admin notifications out to the configured
// channels. Every send is best effort; a failed notification is logged and
// never fails the operation that triggered it.
package notify

import (
	"context"

	"github.com/openisp/netbill/internal/events"
	"github.com/openisp/netbill/internal/providers/email"
	"github.com/openisp/netbill/internal/providers/sms"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// CustomerMessage targets one subscriber over email and SMS. Empty contact
// fields skip the corresponding channel.
type CustomerMessage struct {
	Email    string
	Phone    string
	Subject  string
	HTMLBody string
	SMSText  string
}

type Notifier interface {
	NotifyCustomer(ctx context.Context, msg CustomerMessage)
	NotifyAdmin(ctx context.Context, event events.Event)
}

type notifier struct {
	email email.Provider
	sms   sms.Provider
	hub   *events.Hub
	log   *zap.Logger
}

type Params struct {
	fx.In

	Email email.Provider
	SMS   sms.Provider
	Hub   *events.Hub
	Log   *zap.Logger
}

func New(p Params) Notifier {
	return &notifier{
		email: p.Email,
		sms:   p.SMS,
		hub:   p.Hub,
		log:   p.Log.Named("notify"),
	}
}

func (n *notifier) NotifyCustomer(ctx context.Context, msg CustomerMessage) {
	if msg.Email != "" && msg.HTMLBody != "" {
		if err := n.email.Send(ctx, []string{msg.Email}, msg.Subject, msg.HTMLBody); err != nil {
			n.log.Warn("email send failed",
				zap.String("to", msg.Email),
				zap.String("subject", msg.Subject),
				zap.Error(err),
			)
		}
	}
	if msg.Phone != "" && msg.SMSText != "" {
		if err := n.sms.Send(ctx, msg.Phone, msg.SMSText); err != nil {
			n.log.Warn("sms send failed",
				zap.String("to", msg.Phone),
				zap.Error(err),
			)
		}
	}
}

func (n *notifier) NotifyAdmin(ctx context.Context, event events.Event) {
	n.hub.Publish(event)
}

var Module = fx.Module("notify",
	fx.Provide(New),
)
