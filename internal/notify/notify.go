// Package notify walks the expiring-prescription flags and sends the renewal
// reminder sequence. Each flag advances one step per daily run; after the
// final reminder the flag is removed.
package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meridianrx/fillengine/internal/crm/konnektive"
	"github.com/meridianrx/fillengine/internal/infrastructure/kafka"
	"github.com/meridianrx/fillengine/internal/store"
)

// reminders maps each step to the message sent when a flag reaches it. A flag
// past the last step is done.
var reminders = []string{
	"Your prescription is expiring soon. Please contact your provider to renew it.",
	"Reminder: your prescription expires shortly. Renew it to avoid a gap in your fills.",
	"Final notice: your prescription expires in days. Upcoming orders will not ship until it is renewed.",
}

// OrderSource fetches order snapshots for contact details.
type OrderSource interface {
	QueryOrder(ctx context.Context, orderID string) (*konnektive.Order, error)
}

// Messenger delivers one SMS.
type Messenger interface {
	Send(ctx context.Context, phone, message string) error
}

// FlagStore is the persisted expiring-prescription queue.
type FlagStore interface {
	ListAtStep(ctx context.Context, step int) ([]store.ExpiringRx, error)
	Advance(ctx context.Context, id uint, step int) error
	Remove(ctx context.Context, id uint) error
}

// Publisher emits expiring-prescription audit events. May be nil.
type Publisher interface {
	Publish(ctx context.Context, topic string, event kafka.FillEvent) error
}

// Notifier runs the reminder sequence.
type Notifier struct {
	flags     FlagStore
	orders    OrderSource
	messenger Messenger
	events    Publisher
	logger    *zap.Logger
}

// New creates a notifier.
func New(flags FlagStore, orders OrderSource, messenger Messenger, events Publisher, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		flags:     flags,
		orders:    orders,
		messenger: messenger,
		events:    events,
		logger:    logger,
	}
}

// Run sends one reminder per flag and advances it. Steps are walked highest
// first so a flag advanced this run is not picked up again by the next step's
// sweep.
func (n *Notifier) Run(ctx context.Context) error {
	for step := len(reminders) - 1; step >= 0; step-- {
		rows, err := n.flags.ListAtStep(ctx, step)
		if err != nil {
			return fmt.Errorf("list flags at step %d: %w", step, err)
		}

		for _, row := range rows {
			if err := n.remind(ctx, row, step); err != nil {
				n.logger.Error("reminder failed",
					zap.Uint("id", row.ID),
					zap.String("crm_order", row.CRMOrder),
					zap.Int("step", step),
					zap.Error(err))
				continue
			}
		}
	}
	return nil
}

func (n *Notifier) remind(ctx context.Context, row store.ExpiringRx, step int) error {
	order, err := n.orders.QueryOrder(ctx, row.CRMOrder)
	if err != nil {
		return fmt.Errorf("fetch order: %w", err)
	}
	if order == nil || order.Shipping.Phone == "" {
		// No way to reach the customer; drop the flag rather than
		// retrying it every day forever.
		n.logger.Warn("no contact phone for expiring rx, removing flag",
			zap.Uint("id", row.ID),
			zap.String("crm_order", row.CRMOrder))
		return n.flags.Remove(ctx, row.ID)
	}

	if err := n.messenger.Send(ctx, order.Shipping.Phone, reminders[step]); err != nil {
		return fmt.Errorf("send reminder: %w", err)
	}

	if n.events != nil {
		event := kafka.FillEvent{
			CRMType:   row.CRMType,
			CRMID:     row.CRMID,
			CRMOrder:  row.CRMOrder,
			Reason:    fmt.Sprintf("REMINDER %d", step+1),
			Timestamp: time.Now().UTC(),
		}
		if err := n.events.Publish(ctx, kafka.TopicRxExpiring, event); err != nil {
			n.logger.Warn("event publish failed", zap.Error(err))
		}
	}

	n.logger.Info("reminder sent",
		zap.Uint("id", row.ID),
		zap.String("crm_order", row.CRMOrder),
		zap.Int("rx_id", row.RxID),
		zap.Int("step", step))

	if step == len(reminders)-1 {
		return n.flags.Remove(ctx, row.ID)
	}
	return n.flags.Advance(ctx, row.ID, step+1)
}
