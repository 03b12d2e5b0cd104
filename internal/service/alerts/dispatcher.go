package alerts

import (
	"context"
	"log/slog"

	"github.com/oggyb/attention/internal/app"
	svcErr "github.com/oggyb/attention/internal/errors"
	"github.com/oggyb/attention/internal/push"
	"github.com/oggyb/attention/internal/repository"
	"github.com/oggyb/attention/internal/service/friends"
)

// Payload actions understood by client devices.
const (
	ActionAlert = "alert"
	ActionRead  = "read"
)

// Dispatcher sends alerts between friends and propagates read receipts.
type Dispatcher struct {
	relationships *friends.Service
	friends       *repository.FriendRepository
	devices       *repository.DeviceRepository
	messenger     *push.Messenger
	broadcaster   *push.Broadcaster
	ids           *IDGenerator
	logger        *slog.Logger
}

// NewDispatcher creates a Dispatcher with dependencies from AppContext.
func NewDispatcher(appCtx *app.AppContext, relationships *friends.Service) *Dispatcher {
	return &Dispatcher{
		relationships: relationships,
		friends:       repository.NewFriendRepository(appCtx.DB),
		devices:       repository.NewDeviceRepository(appCtx.DB, appCtx.RedisCache, appCtx.Logger),
		messenger:     appCtx.Messenger,
		broadcaster:   push.NewBroadcaster(appCtx.FanoutLimit, appCtx.Logger),
		ids:           NewIDGenerator(appCtx.RedisCache, appCtx.Logger),
		logger:        appCtx.Logger,
	}
}

// SendAlert delivers message from sender to every device of recipient and
// returns the new alert id.
//
// Behavior:
//  1. recipient must have sender as a live friend, else ErrPermissionDenied.
//  2. In one transaction: both edges of the pair are locked lower owner id
//     first, recipient's received counter +1, sender's edge to recipient
//     created hidden if missing, then its sent counter +1 with the new alert
//     id and the read flag reset. A deadlock or serialization failure replays
//     the transaction.
//  3. The payload goes out at high priority; invalid tokens are skipped.
//  4. Fails with ErrNoDevices if recipient has no devices, ErrDeliveryFailed
//     if none accepted it. Counters stay committed in both cases.
func (d *Dispatcher) SendAlert(ctx context.Context, sender, recipient, message string) (alertID string, err error) {
	defer func() { alertsTotal.WithLabelValues(outcome(err)).Inc() }()

	snd, err := d.relationships.Resolve(ctx, sender)
	if err != nil {
		return "", err
	}
	rcp, err := d.relationships.Resolve(ctx, recipient)
	if err != nil {
		return "", err
	}

	hidden := true
	err = d.friends.Transaction(ctx, func(tx *repository.FriendRepository) error {
		if err := d.relationships.Authorize(ctx, tx, snd.ID, rcp.ID); err != nil {
			return err
		}
		alertID = d.ids.Next(ctx)

		if err := tx.IncrementReceived(ctx, rcp.ID, snd.ID); err != nil {
			return err
		}
		if _, _, err := tx.Upsert(ctx, snd.ID, rcp.ID, repository.EdgeFields{}, repository.EdgeFields{Deleted: &hidden}); err != nil {
			return err
		}
		return tx.IncrementSent(ctx, snd.ID, rcp.ID, alertID)
	})
	if err != nil {
		if svcErr.CodeOf(err) == svcErr.CodePermissionDenied {
			return "", err
		}
		return "", svcErr.Internal("record alert", err)
	}

	tokens, err := d.devices.TokensForUser(ctx, rcp.ID)
	if err != nil {
		return "", svcErr.Internal("load recipient devices", err)
	}
	if len(tokens) == 0 {
		return "", svcErr.ErrNoDevices
	}

	tally, err := d.broadcast(ctx, tokens, map[string]string{
		"action":        ActionAlert,
		"alert_id":      alertID,
		"alert_to":      recipient,
		"alert_from":    sender,
		"alert_message": message,
	}, push.PriorityHigh)
	if err != nil {
		return "", err
	}
	if !tally.OK() {
		d.logger.WarnContext(ctx, "alert reached no device",
			"alert_id", alertID,
			"recipient", recipient,
			"failed", tally.Failed,
		)
		return "", svcErr.ErrDeliveryFailed
	}

	d.logger.InfoContext(ctx, "alert sent",
		"alert_id", alertID,
		"sender", sender,
		"recipient", recipient,
		"delivered", tally.Delivered,
		"failed", tally.Failed,
	)
	return alertID, nil
}

// AcknowledgeRead marks alertID, sent by originalSender, as read and tells
// the other devices of both parties.
//
// Behavior:
//   - Every edge of originalSender whose last alert is alertID gets its read flag set.
//   - Notified: originalSender's devices plus acker's devices, deduplicated,
//     minus ackingToken. An empty set fails with ErrNoRecipientDevices.
//   - The payload goes out at low priority; ErrDeliveryFailed if nothing accepted it.
func (d *Dispatcher) AcknowledgeRead(ctx context.Context, acker, originalSender, alertID, ackingToken string) (err error) {
	defer func() { readsTotal.WithLabelValues(outcome(err)).Inc() }()

	snd, err := d.relationships.Resolve(ctx, originalSender)
	if err != nil {
		return err
	}
	ack, err := d.relationships.Resolve(ctx, acker)
	if err != nil {
		return err
	}

	marked, err := d.friends.MarkReadByAlert(ctx, snd.ID, alertID)
	if err != nil {
		return svcErr.Internal("mark alert read", err)
	}
	if marked > 1 {
		d.logger.WarnContext(ctx, "alert id matched several edges", "alert_id", alertID, "rows", marked)
	}

	senderTokens, err := d.devices.TokensForUser(ctx, snd.ID)
	if err != nil {
		return svcErr.Internal("load sender devices", err)
	}
	ackerTokens, err := d.devices.TokensForUser(ctx, ack.ID)
	if err != nil {
		return svcErr.Internal("load acker devices", err)
	}

	tokens := notifySet(ackingToken, senderTokens, ackerTokens)
	if len(tokens) == 0 {
		d.logger.WarnContext(ctx, "no devices to notify of read", "alert_id", alertID, "acker", acker)
		return svcErr.ErrNoRecipientDevices
	}

	tally, err := d.broadcast(ctx, tokens, map[string]string{
		"action":      ActionRead,
		"alert_id":    alertID,
		"username_to": acker,
	}, push.PriorityLow)
	if err != nil {
		return err
	}
	if !tally.OK() {
		return svcErr.ErrDeliveryFailed
	}
	return nil
}

func (d *Dispatcher) broadcast(ctx context.Context, tokens []string, data map[string]string, priority push.Priority) (push.Tally, error) {
	sender, err := d.messenger.Acquire(ctx)
	if err != nil {
		return push.Tally{}, svcErr.Internal("messaging unavailable", err)
	}
	return d.broadcaster.Broadcast(ctx, sender, tokens, data, priority), nil
}

// notifySet unions the token groups in order, dropping duplicates and exclude.
func notifySet(exclude string, groups ...[]string) []string {
	seen := map[string]bool{exclude: true}
	var out []string
	for _, group := range groups {
		for _, t := range group {
			if seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
